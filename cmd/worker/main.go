/*
 * Copyright 2026 Workray, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/workray/taskmine/pkg/classify"
	"github.com/workray/taskmine/pkg/config"
	"github.com/workray/taskmine/pkg/db"
	"github.com/workray/taskmine/pkg/lifecycle"
	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
	"github.com/workray/taskmine/pkg/queue"
	"github.com/workray/taskmine/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/taskmine/worker.json", "Path to worker config file")
	flag.Parse()

	ctx := context.Background()

	var cfg models.WorkerConfig
	if err := config.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg, err := lifecycle.InitLogger(nil, "worker")
	if err != nil {
		return err
	}

	svc := &workerService{cfg: &cfg, log: logg}

	return lifecycle.Run(ctx, svc, logg)
}

type workerService struct {
	cfg *models.WorkerConfig
	log logger.Logger

	pool      *pgxpool.Pool
	natsConn  *nats.Conn
	processor *worker.Processor
	cancelRun context.CancelFunc
}

func (s *workerService) Start(ctx context.Context) error {
	pool, err := db.NewPool(ctx, &s.cfg.Postgres, s.log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	s.pool = pool
	store := db.NewStore(pool, s.log)

	nc, js, err := queue.Connect(&s.cfg.NATS)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}

	s.natsConn = nc

	if err := queue.EnsureStream(ctx, js, &s.cfg.Queue); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	publisher := queue.NewPublisher(js, s.cfg.Queue, s.log)
	classifier := s.buildClassifier()

	s.processor = worker.NewProcessor(
		s.cfg.Pipeline.AggregationPartitions, classifier, store, publisher, s.log)
	s.processor.Start()

	consumer, err := queue.NewConsumer(ctx, js, &s.cfg.Queue, s.log)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel

	go consumer.Run(runCtx, s.processor)

	s.log.Info().
		Int("partitions", s.cfg.Pipeline.AggregationPartitions).
		Msg("Worker ready")

	return nil
}

// buildClassifier loads a persisted model when one is configured and
// readable; otherwise the hybrid classifier runs rules only.
func (s *workerService) buildClassifier() *classify.HybridClassifier {
	ml := classify.NewMLClassifier()

	if path := s.cfg.Pipeline.ModelPath; path != "" {
		switch err := ml.Load(path); {
		case err == nil:
			s.log.Info().Str("path", path).Msg("Loaded classification model")
		case errors.Is(err, classify.ErrModelSchemaMismatch):
			s.log.Warn().Err(err).Str("path", path).Msg("Persisted model is incompatible, using rules only")
		case errors.Is(err, os.ErrNotExist):
			s.log.Info().Str("path", path).Msg("No persisted model, using rules only")
		default:
			s.log.Warn().Err(err).Str("path", path).Msg("Failed to load model, using rules only")
		}
	}

	return classify.NewHybridClassifier(nil, ml, s.cfg.Pipeline.MLConfidenceThreshold, s.log)
}

func (s *workerService) Stop(ctx context.Context) error {
	if s.cancelRun != nil {
		s.cancelRun()
	}

	var stopErr error
	if s.processor != nil {
		stopErr = s.processor.Stop(ctx)
	}

	if s.natsConn != nil {
		s.natsConn.Close()
	}

	if s.pool != nil {
		s.pool.Close()
	}

	return stopErr
}
