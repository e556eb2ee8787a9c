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

// Package lifecycle runs a service until an OS signal or a fatal error
// stops it.
package lifecycle

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/workray/taskmine/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Service is a long-running component with an explicit start/stop cycle.
type Service interface {
	// Start begins serving. It returns promptly after launching any
	// background work; serving errors are delivered through the returned
	// error channel semantics of Run.
	Start(ctx context.Context) error
	// Stop performs a graceful shutdown.
	Stop(ctx context.Context) error
}

// Run starts the service and blocks until SIGINT/SIGTERM or a start failure,
// then stops it with a bounded shutdown timeout.
func Run(ctx context.Context, svc Service, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("service start failed: %w", err)
	}

	log.Info().Msg("Service started")

	<-ctx.Done()

	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := svc.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("service stop failed: %w", err)
	}

	log.Info().Msg("Service stopped")

	return nil
}

// InitLogger initializes a component logger with the provided configuration,
// falling back to environment defaults when config is nil.
func InitLogger(config *logger.Config, component string) (logger.Logger, error) {
	log, err := logger.New(config, component)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return log, nil
}
