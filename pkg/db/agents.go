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

	"github.com/jackc/pgx/v5"

	"github.com/workray/taskmine/pkg/models"
)

// GetAgent fetches the read-side view of a registered agent.
func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var (
		agent  models.Agent
		status string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT id, engagement_id, status, engagement_end_date FROM agents WHERE id = $1`,
		id,
	).Scan(&agent.ID, &agent.EngagementID, &status, &agent.EngagementEndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAgentNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}

	agent.Status = models.AgentStatus(status)

	return &agent, nil
}

// UpdateAgentStatus records an agent lifecycle transition.
func (s *Store) UpdateAgentStatus(ctx context.Context, id string, status models.AgentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET status = $2 WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAgentNotFound
	}

	return nil
}

// GetConsentStatus reports the capture-consent fact for an agent. Agents
// without a consent row are not_recorded.
func (s *Store) GetConsentStatus(ctx context.Context, agentID string) (models.ConsentStatus, error) {
	var status string

	err := s.pool.QueryRow(ctx,
		`SELECT status FROM consent_records WHERE agent_id = $1`,
		agentID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ConsentNotRecorded, nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to query consent status: %w", err)
	}

	return models.ConsentStatus(status), nil
}
