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

	"github.com/jackc/pgx/v5"

	"github.com/workray/taskmine/pkg/models"
)

const insertQuarantineSQL = `INSERT INTO quarantine_records (
	id,
	engagement_id,
	redacted_event_data,
	pii_category,
	pii_field,
	detection_confidence,
	status,
	auto_delete_at,
	created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

// InsertQuarantineRecord persists a redacted quarantine record.
func (s *Store) InsertQuarantineRecord(ctx context.Context, record *models.QuarantineRecord) error {
	redacted, err := json.Marshal(record.RedactedEventData)
	if err != nil {
		return fmt.Errorf("failed to marshal redacted event data: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.nowUTC()
	}

	_, err = s.pool.Exec(ctx, insertQuarantineSQL,
		record.ID,
		record.EngagementID,
		redacted,
		string(record.PIICategory),
		record.PIIField,
		record.DetectionConfidence,
		string(record.Status),
		record.AutoDeleteAt,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quarantine record: %w", err)
	}

	return nil
}

const selectQuarantineSQL = `SELECT
	id, engagement_id, redacted_event_data, pii_category, pii_field,
	detection_confidence, status, auto_delete_at, created_at
FROM quarantine_records`

// GetQuarantineRecord fetches one record by id.
func (s *Store) GetQuarantineRecord(ctx context.Context, id string) (*models.QuarantineRecord, error) {
	rows, err := s.pool.Query(ctx, selectQuarantineSQL+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarantine record: %w", err)
	}
	defer rows.Close()

	records, err := scanQuarantineRecords(rows)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, ErrQuarantineItemNotFound
	}

	return &records[0], nil
}

// ListQuarantineRecords returns an engagement's records, optionally filtered
// by status, newest first.
func (s *Store) ListQuarantineRecords(ctx context.Context, engagementID string, status models.QuarantineStatus) ([]models.QuarantineRecord, error) {
	sql := selectQuarantineSQL + ` WHERE engagement_id = $1`
	args := []any{engagementID}

	if status != "" {
		sql += ` AND status = $2`

		args = append(args, string(status))
	}

	sql += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarantine records: %w", err)
	}
	defer rows.Close()

	return scanQuarantineRecords(rows)
}

// UpdateQuarantineStatus moves a record to a new review status. Content is
// never touched.
func (s *Store) UpdateQuarantineStatus(ctx context.Context, id string, status models.QuarantineStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quarantine_records SET status = $2 WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update quarantine status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrQuarantineItemNotFound
	}

	return nil
}

// DeleteExpiredQuarantine removes every pending record whose TTL has lapsed
// in one atomic statement and returns the number deleted.
func (s *Store) DeleteExpiredQuarantine(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM quarantine_records WHERE status = $1 AND auto_delete_at <= now()`,
		string(models.QuarantinePendingReview))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired quarantine records: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanQuarantineRecords(rows pgx.Rows) ([]models.QuarantineRecord, error) {
	var records []models.QuarantineRecord

	for rows.Next() {
		var (
			record   models.QuarantineRecord
			redacted []byte
			category string
			status   string
		)

		if err := rows.Scan(
			&record.ID,
			&record.EngagementID,
			&redacted,
			&category,
			&record.PIIField,
			&record.DetectionConfidence,
			&status,
			&record.AutoDeleteAt,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quarantine record: %w", err)
		}

		record.PIICategory = models.PIICategory(category)
		record.Status = models.QuarantineStatus(status)

		if len(redacted) > 0 {
			if err := json.Unmarshal(redacted, &record.RedactedEventData); err != nil {
				return nil, fmt.Errorf("failed to parse redacted event data: %w", err)
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quarantine records: %w", err)
	}

	return records, nil
}
