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
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/workray/taskmine/pkg/config"
	"github.com/workray/taskmine/pkg/core/api"
	"github.com/workray/taskmine/pkg/db"
	"github.com/workray/taskmine/pkg/ingest"
	"github.com/workray/taskmine/pkg/lifecycle"
	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
	"github.com/workray/taskmine/pkg/pii"
	"github.com/workray/taskmine/pkg/quarantine"
	"github.com/workray/taskmine/pkg/queue"
	"github.com/workray/taskmine/pkg/switching"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/taskmine/core.json", "Path to core config file")
	flag.Parse()

	ctx := context.Background()

	var cfg models.CoreConfig
	if err := config.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg, err := lifecycle.InitLogger(nil, "core")
	if err != nil {
		return err
	}

	svc := &coreService{cfg: &cfg, log: logg}

	return lifecycle.Run(ctx, svc, logg)
}

type coreService struct {
	cfg *models.CoreConfig
	log logger.Logger

	pool          *pgxpool.Pool
	natsConn      *nats.Conn
	janitorCancel context.CancelFunc
}

func (s *coreService) Start(ctx context.Context) error {
	pool, err := db.NewPool(ctx, &s.cfg.Postgres, s.log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	s.pool = pool

	if err := db.RunMigrations(ctx, pool, s.log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

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

	gate := ingest.NewGate(store, s.log)
	filter := pii.NewFilter(pii.DefaultPatternSet(), s.cfg.Pipeline.QuarantineThreshold)
	pipeline := ingest.NewPipeline(store, gate, filter, publisher,
		time.Duration(s.cfg.Pipeline.QuarantineTTL), s.log)

	review := quarantine.NewReviewService(store, s.log)

	switchSvc := switching.NewService(store, switching.Config{
		IdleGap:           time.Duration(s.cfg.Pipeline.IdleGapSeconds) * time.Second,
		RapidSwitchMS:     s.cfg.Pipeline.RapidSwitchMS,
		PingPongThreshold: s.cfg.Pipeline.PingPongThreshold,
	}, s.log)

	server := api.NewAPIServer(s.log,
		api.WithAPIKey(s.cfg.APIKey),
		api.WithIngester(pipeline),
		api.WithReviewer(review),
		api.WithSwitchingAnalytics(switchSvc),
		api.WithSessionReader(store),
	)

	janitorCtx, cancel := context.WithCancel(context.Background())
	s.janitorCancel = cancel

	janitor := quarantine.NewJanitor(store, time.Duration(s.cfg.Pipeline.QuarantineSweepInterval), s.log)
	go func() {
		_ = janitor.Run(janitorCtx)
	}()

	go func() {
		if err := server.Start(s.cfg.ListenAddr); err != nil {
			s.log.Error().Err(err).Msg("API server stopped")
		}
	}()

	s.log.Info().Str("listen_addr", s.cfg.ListenAddr).Msg("Core service ready")

	return nil
}

func (s *coreService) Stop(_ context.Context) error {
	if s.janitorCancel != nil {
		s.janitorCancel()
	}

	if s.natsConn != nil {
		s.natsConn.Close()
	}

	if s.pool != nil {
		s.pool.Close()
	}

	return nil
}
