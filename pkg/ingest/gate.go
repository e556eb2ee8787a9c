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

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/workray/taskmine/pkg/db"
	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

// ErrAccessDenied rejects a whole batch before any event is processed. The
// API layer maps it to 403.
var ErrAccessDenied = errors.New("access denied")

// AgentStore is the read side of the agent-lifecycle and consent facts the
// gate consults.
type AgentStore interface {
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	UpdateAgentStatus(ctx context.Context, id string, status models.AgentStatus) error
	GetConsentStatus(ctx context.Context, agentID string) (models.ConsentStatus, error)
}

// Gate evaluates agent status, engagement window, and consent once per batch.
type Gate struct {
	store AgentStore
	log   logger.Logger
	now   func() time.Time
}

// NewGate builds a batch gate over the agent-lifecycle facts.
func NewGate(store AgentStore, log logger.Logger) *Gate {
	return &Gate{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Authorize checks that the agent may submit a batch. An agent whose
// engagement window has lapsed is marked expired as a side effect.
func (g *Gate) Authorize(ctx context.Context, agentID string) (*models.Agent, error) {
	agent, err := g.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, db.ErrAgentNotFound) {
			return nil, fmt.Errorf("%w: unknown agent %q", ErrAccessDenied, agentID)
		}

		return nil, fmt.Errorf("look up agent: %w", err)
	}

	if !agent.Status.CanSubmit() {
		return nil, fmt.Errorf("%w: agent %q is %s", ErrAccessDenied, agentID, agent.Status)
	}

	if agent.EngagementEndDate != nil && g.now().After(*agent.EngagementEndDate) {
		if err := g.store.UpdateAgentStatus(ctx, agentID, models.AgentExpired); err != nil {
			return nil, fmt.Errorf("expire agent: %w", err)
		}

		g.log.Info().
			Str("agent_id", agentID).
			Time("engagement_end", *agent.EngagementEndDate).
			Msg("Agent engagement window lapsed, marked expired")

		return nil, fmt.Errorf("%w: engagement for agent %q has ended", ErrAccessDenied, agentID)
	}

	consent, err := g.store.GetConsentStatus(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("look up consent: %w", err)
	}

	if consent == models.ConsentRevoked {
		return nil, fmt.Errorf("%w: consent revoked for agent %q", ErrAccessDenied, agentID)
	}

	return agent, nil
}

// Activate promotes an approved agent to active after its first accepted
// batch. Already-active agents are left alone.
func (g *Gate) Activate(ctx context.Context, agent *models.Agent) error {
	if agent.Status != models.AgentApproved {
		return nil
	}

	if err := g.store.UpdateAgentStatus(ctx, agent.ID, models.AgentActive); err != nil {
		return fmt.Errorf("activate agent: %w", err)
	}

	agent.Status = models.AgentActive

	return nil
}
