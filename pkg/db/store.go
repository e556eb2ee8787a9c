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

// Package db is the Postgres persistence layer for events, sessions,
// quarantine records, and switching analytics.
package db

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workray/taskmine/pkg/logger"
)

// Store wraps a pgx pool with the pipeline's queries.
type Store struct {
	pool *pgxpool.Pool
	log  logger.Logger

	// nowUTC is a hook for deterministic time in tests.
	nowUTC func() time.Time
}

// NewStore creates a store over an established pool.
func NewStore(pool *pgxpool.Pool, log logger.Logger) *Store {
	return &Store{
		pool:   pool,
		log:    log,
		nowUTC: func() time.Time { return time.Now().UTC() },
	}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
