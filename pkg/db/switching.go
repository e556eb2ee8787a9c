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

	"github.com/google/uuid"

	"github.com/workray/taskmine/pkg/models"
)

const insertTraceSQL = `INSERT INTO switching_traces (
	id,
	engagement_id,
	session_id,
	trace_sequence,
	dwell_durations_ms,
	total_duration_ms,
	friction_score,
	is_ping_pong,
	ping_pong_count,
	app_count,
	started_at,
	ended_at,
	created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

// InsertSwitchingTrace persists an assembled trace, assigning an id when the
// analyzer left it empty.
func (s *Store) InsertSwitchingTrace(ctx context.Context, trace *models.SwitchingTrace) error {
	if trace.ID == "" {
		trace.ID = uuid.NewString()
	}

	sequence, err := json.Marshal(trace.TraceSequence)
	if err != nil {
		return fmt.Errorf("failed to marshal trace sequence: %w", err)
	}

	dwells, err := json.Marshal(trace.DwellDurationsMS)
	if err != nil {
		return fmt.Errorf("failed to marshal dwell durations: %w", err)
	}

	_, err = s.pool.Exec(ctx, insertTraceSQL,
		trace.ID,
		trace.EngagementID,
		nullableText(trace.SessionID),
		sequence,
		dwells,
		trace.TotalDurationMS,
		trace.FrictionScore,
		trace.IsPingPong,
		trace.PingPongCount,
		trace.AppCount,
		trace.StartedAt,
		trace.EndedAt,
		s.nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert switching trace: %w", err)
	}

	return nil
}

// ListSwitchingTraces returns an engagement's persisted traces ordered by
// start time.
func (s *Store) ListSwitchingTraces(ctx context.Context, engagementID string) ([]models.SwitchingTrace, error) {
	rows, err := s.pool.Query(ctx, `SELECT
		id, engagement_id, COALESCE(session_id, ''), trace_sequence, dwell_durations_ms,
		total_duration_ms, friction_score, is_ping_pong, ping_pong_count, app_count,
		started_at, ended_at
	FROM switching_traces
	WHERE engagement_id = $1
	ORDER BY started_at ASC`, engagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query switching traces: %w", err)
	}
	defer rows.Close()

	var traces []models.SwitchingTrace

	for rows.Next() {
		var (
			trace    models.SwitchingTrace
			sequence []byte
			dwells   []byte
		)

		if err := rows.Scan(
			&trace.ID,
			&trace.EngagementID,
			&trace.SessionID,
			&sequence,
			&dwells,
			&trace.TotalDurationMS,
			&trace.FrictionScore,
			&trace.IsPingPong,
			&trace.PingPongCount,
			&trace.AppCount,
			&trace.StartedAt,
			&trace.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan switching trace: %w", err)
		}

		if err := json.Unmarshal(sequence, &trace.TraceSequence); err != nil {
			return nil, fmt.Errorf("failed to parse trace sequence: %w", err)
		}

		if err := json.Unmarshal(dwells, &trace.DwellDurationsMS); err != nil {
			return nil, fmt.Errorf("failed to parse dwell durations: %w", err)
		}

		traces = append(traces, trace)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate switching traces: %w", err)
	}

	return traces, nil
}

const insertMatrixSQL = `INSERT INTO transition_matrices (
	id,
	engagement_id,
	role_id,
	period_start,
	period_end,
	matrix,
	total_transitions,
	unique_apps,
	top_transitions,
	created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

// InsertTransitionMatrix persists a computed transition matrix.
func (s *Store) InsertTransitionMatrix(ctx context.Context, matrix *models.TransitionMatrix) error {
	if matrix.ID == "" {
		matrix.ID = uuid.NewString()
	}

	matrixData, err := json.Marshal(matrix.Matrix)
	if err != nil {
		return fmt.Errorf("failed to marshal transition matrix: %w", err)
	}

	var topTransitions []byte

	if len(matrix.TopTransitions) > 0 {
		if topTransitions, err = json.Marshal(matrix.TopTransitions); err != nil {
			return fmt.Errorf("failed to marshal top transitions: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, insertMatrixSQL,
		matrix.ID,
		matrix.EngagementID,
		nullableText(matrix.RoleID),
		matrix.PeriodStart,
		matrix.PeriodEnd,
		matrixData,
		matrix.TotalTransitions,
		matrix.UniqueApps,
		topTransitions,
		s.nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition matrix: %w", err)
	}

	return nil
}
