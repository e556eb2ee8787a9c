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

// Package quarantine manages the review lifecycle and time-based expiry of
// quarantined events.
package quarantine

import (
	"context"
	"time"

	"github.com/workray/taskmine/pkg/logger"
)

// DefaultSweepInterval is how often the janitor deletes expired records.
const DefaultSweepInterval = time.Hour

// Sweeper deletes every pending-review record whose auto-delete horizon has
// passed. The cutoff check and the delete happen in one statement so a
// concurrent reviewer decision cannot race the expiry.
type Sweeper interface {
	DeleteExpiredQuarantine(ctx context.Context) (int64, error)
}

// Janitor periodically sweeps expired quarantine records.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	log      logger.Logger
}

// NewJanitor builds a janitor. A non-positive interval gets the hourly
// default.
func NewJanitor(sweeper Sweeper, interval time.Duration, log logger.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Janitor{sweeper: sweeper, interval: interval, log: log}
}

// Run sweeps once immediately, then on every tick until the context is
// canceled.
func (j *Janitor) Run(ctx context.Context) error {
	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	deleted, err := j.sweeper.DeleteExpiredQuarantine(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Quarantine sweep failed")
		return
	}

	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Expired quarantine records removed")
	}
}
