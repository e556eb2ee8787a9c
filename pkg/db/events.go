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

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/workray/taskmine/pkg/models"
)

const insertEventSQL = `INSERT INTO events (
	id,
	session_id,
	engagement_id,
	event_type,
	timestamp,
	application_name,
	window_title,
	event_data,
	idempotency_key,
	pii_filtered,
	created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

// InsertEvent persists a filtered event.
func (s *Store) InsertEvent(ctx context.Context, event *models.RawEvent) error {
	var eventData []byte

	if event.EventData != nil {
		var err error
		if eventData, err = json.Marshal(event.EventData); err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.nowUTC()
	}

	_, err := s.pool.Exec(ctx, insertEventSQL,
		event.ID,
		event.SessionID,
		event.EngagementID,
		string(event.EventType),
		event.Timestamp,
		nullableText(event.ApplicationName),
		nullableText(event.WindowTitle),
		eventData,
		nullableText(event.IdempotencyKey),
		event.PIIFiltered,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// EventExists reports whether an event with the given idempotency key was
// already accepted.
func (s *Store) EventExists(ctx context.Context, idempotencyKey string) (bool, error) {
	if idempotencyKey == "" {
		return false, nil
	}

	var exists bool

	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE idempotency_key = $1)`,
		idempotencyKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	return exists, nil
}

const listAppSwitchSQL = `SELECT
	id, session_id, engagement_id, event_type, timestamp,
	COALESCE(application_name, ''), COALESCE(window_title, ''),
	event_data, COALESCE(idempotency_key, ''), pii_filtered, created_at
FROM events
WHERE engagement_id = $1 AND event_type = $2`

// ListAppSwitchEvents returns an engagement's app_switch events ordered by
// timestamp. A non-empty sessionID narrows the list to one capture session.
func (s *Store) ListAppSwitchEvents(ctx context.Context, engagementID, sessionID string) ([]models.RawEvent, error) {
	sql := listAppSwitchSQL
	args := []any{engagementID, string(models.EventTypeAppSwitch)}

	if sessionID != "" {
		sql += ` AND session_id = $3`

		args = append(args, sessionID)
	}

	sql += ` ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query app_switch events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListAppSwitchEventsInPeriod returns app_switch events inside an inclusive
// time window, ordered by timestamp.
func (s *Store) ListAppSwitchEventsInPeriod(ctx context.Context, engagementID string, start, end time.Time) ([]models.RawEvent, error) {
	sql := listAppSwitchSQL + ` AND timestamp >= $3 AND timestamp <= $4 ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, sql,
		engagementID, string(models.EventTypeAppSwitch), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query app_switch events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]models.RawEvent, error) {
	var events []models.RawEvent

	for rows.Next() {
		var (
			event     models.RawEvent
			eventType string
			eventData []byte
		)

		if err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.EngagementID,
			&eventType,
			&event.Timestamp,
			&event.ApplicationName,
			&event.WindowTitle,
			&eventData,
			&event.IdempotencyKey,
			&event.PIIFiltered,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.EventType = models.EventType(eventType)

		if len(eventData) > 0 {
			if err := json.Unmarshal(eventData, &event.EventData); err != nil {
				return nil, fmt.Errorf("failed to parse event data: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// nullableText maps empty strings to NULL so partial indexes and COALESCE
// reads behave.
func nullableText(v string) any {
	if v == "" {
		return nil
	}

	return v
}
