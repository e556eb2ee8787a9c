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
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workray/taskmine/pkg/models"
)

const insertClassifiedSessionSQL = `INSERT INTO aggregated_sessions (
	id,
	session_id,
	engagement_id,
	app_name,
	window_title_sample,
	started_at,
	ended_at,
	duration_ms,
	active_duration_ms,
	idle_duration_ms,
	keyboard_event_count,
	mouse_event_count,
	copy_paste_count,
	scroll_count,
	file_operation_count,
	url_navigation_count,
	total_event_count,
	category,
	confidence,
	classification_source,
	rule_name,
	description,
	created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

// InsertClassifiedSession persists a closed session together with its
// classification.
func (s *Store) InsertClassifiedSession(ctx context.Context, session *models.AggregatedSession, result *models.HybridResult) error {
	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, insertClassifiedSessionSQL,
		id,
		session.SessionID,
		session.EngagementID,
		session.AppName,
		nullableText(session.WindowTitleSample),
		session.StartedAt,
		session.EndedAt,
		session.DurationMS,
		session.ActiveDurationMS,
		session.IdleDurationMS,
		session.KeyboardEventCount,
		session.MouseEventCount,
		session.CopyPasteCount,
		session.ScrollCount,
		session.FileOperationCount,
		session.URLNavigationCount,
		session.TotalEventCount,
		string(result.Category),
		result.Confidence,
		result.Source,
		nullableText(result.RuleName),
		nullableText(result.Description),
		s.nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert classified session: %w", err)
	}

	return nil
}

// ListClassifiedSessions returns an engagement's classified sessions ordered
// by start time.
func (s *Store) ListClassifiedSessions(ctx context.Context, engagementID string) ([]models.AggregatedSession, error) {
	rows, err := s.pool.Query(ctx, `SELECT
		id, session_id, engagement_id, app_name, COALESCE(window_title_sample, ''),
		started_at, ended_at, duration_ms, active_duration_ms, idle_duration_ms,
		keyboard_event_count, mouse_event_count, copy_paste_count, scroll_count,
		file_operation_count, url_navigation_count, total_event_count
	FROM aggregated_sessions
	WHERE engagement_id = $1
	ORDER BY started_at ASC`, engagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query classified sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.AggregatedSession

	for rows.Next() {
		var session models.AggregatedSession

		if err := rows.Scan(
			&session.ID,
			&session.SessionID,
			&session.EngagementID,
			&session.AppName,
			&session.WindowTitleSample,
			&session.StartedAt,
			&session.EndedAt,
			&session.DurationMS,
			&session.ActiveDurationMS,
			&session.IdleDurationMS,
			&session.KeyboardEventCount,
			&session.MouseEventCount,
			&session.CopyPasteCount,
			&session.ScrollCount,
			&session.FileOperationCount,
			&session.URLNavigationCount,
			&session.TotalEventCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan classified session: %w", err)
		}

		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate classified sessions: %w", err)
	}

	return sessions, nil
}

// GetCaptureSession fetches one capture session by id.
func (s *Store) GetCaptureSession(ctx context.Context, id string) (*models.CaptureSession, error) {
	var session models.CaptureSession

	err := s.pool.QueryRow(ctx, `SELECT
		id, agent_id, engagement_id, event_count, pii_detections, started_at
	FROM capture_sessions WHERE id = $1`, id).Scan(
		&session.ID,
		&session.AgentID,
		&session.EngagementID,
		&session.EventCount,
		&session.PIIDetections,
		&session.StartedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaptureSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query capture session: %w", err)
	}

	return &session, nil
}

// EnsureCaptureSession creates the capture session row if it does not exist
// yet, so counter bumps from the first batch always have a target.
func (s *Store) EnsureCaptureSession(ctx context.Context, id, agentID, engagementID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO capture_sessions (id, agent_id, engagement_id, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		id, agentID, engagementID, s.nowUTC())
	if err != nil {
		return fmt.Errorf("failed to ensure capture session: %w", err)
	}

	return nil
}

// BumpCaptureSessionCounters adds accepted-event and PII-detection counts to
// a capture session.
func (s *Store) BumpCaptureSessionCounters(ctx context.Context, id string, events, piiDetections int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE capture_sessions
		SET event_count = event_count + $2, pii_detections = pii_detections + $3
		WHERE id = $1`,
		id, events, piiDetections)
	if err != nil {
		return fmt.Errorf("failed to bump capture session counters: %w", err)
	}

	return nil
}
