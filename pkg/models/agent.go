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

package models

import "time"

// AgentStatus is the lifecycle state of a registered capture agent. Agent
// registration and approval live in the agent-lifecycle service; the pipeline
// only reads these facts to gate batches.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentApproved  AgentStatus = "approved"
	AgentActive    AgentStatus = "active"
	AgentSuspended AgentStatus = "suspended"
	AgentExpired   AgentStatus = "expired"
)

// CanSubmit reports whether an agent in this state may upload batches.
func (s AgentStatus) CanSubmit() bool {
	return s == AgentApproved || s == AgentActive
}

// ConsentStatus is the capture-consent fact reported by the consent service.
type ConsentStatus string

const (
	ConsentActive      ConsentStatus = "active"
	ConsentRevoked     ConsentStatus = "revoked"
	ConsentNotRecorded ConsentStatus = "not_recorded"
)

// Agent is the read-side view of a registered capture agent.
type Agent struct {
	ID                string      `json:"id"`
	EngagementID      string      `json:"engagement_id"`
	Status            AgentStatus `json:"status"`
	EngagementEndDate *time.Time  `json:"engagement_end_date,omitempty"`
}
