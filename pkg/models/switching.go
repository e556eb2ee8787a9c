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

// SwitchingTrace is a bounded run of app_switch events, broken by idle gaps.
// DwellDurationsMS always has the same length as TraceSequence; the last entry
// is 0 because the dwell of the still-open last app is unknown.
type SwitchingTrace struct {
	ID               string    `json:"id,omitempty"`
	EngagementID     string    `json:"engagement_id"`
	SessionID        string    `json:"session_id,omitempty"`
	TraceSequence    []string  `json:"trace_sequence"`
	DwellDurationsMS []int64   `json:"dwell_durations_ms"`
	TotalDurationMS  int64     `json:"total_duration_ms"`
	FrictionScore    float64   `json:"friction_score"`
	IsPingPong       bool      `json:"is_ping_pong"`
	PingPongCount    int       `json:"ping_pong_count,omitempty"`
	AppCount         int       `json:"app_count"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
}

// AppTransition is one (from, to, count) entry of a transition matrix.
type AppTransition struct {
	FromApp string `json:"from_app"`
	ToApp   string `json:"to_app"`
	Count   int    `json:"count"`
}

// TransitionMatrix aggregates from→to application switch counts over a
// time window. Recomputed on demand per (engagement, period, optional role).
type TransitionMatrix struct {
	ID               string                    `json:"id,omitempty"`
	EngagementID     string                    `json:"engagement_id"`
	RoleID           string                    `json:"role_id,omitempty"`
	PeriodStart      time.Time                 `json:"period_start"`
	PeriodEnd        time.Time                 `json:"period_end"`
	Matrix           map[string]map[string]int `json:"matrix"`
	TotalTransitions int                       `json:"total_transitions"`
	UniqueApps       int                       `json:"unique_apps"`
	TopTransitions   []AppTransition           `json:"top_transitions,omitempty"`
}

// TraceSummary is the per-trace digest reported by the friction analysis.
type TraceSummary struct {
	ID              string  `json:"id"`
	FrictionScore   float64 `json:"friction_score"`
	AppCount        int     `json:"app_count"`
	IsPingPong      bool    `json:"is_ping_pong"`
	TotalDurationMS int64   `json:"total_duration_ms"`
}

// PingPongPair is an A↔B application pair aggregated across ping-pong traces.
type PingPongPair struct {
	Pair       string `json:"pair"`
	TraceCount int    `json:"trace_count"`
}

// FrictionAnalysis is the aggregate switching-friction report for an
// engagement.
type FrictionAnalysis struct {
	AvgFrictionScore    float64        `json:"avg_friction_score"`
	HighFrictionTraces  []TraceSummary `json:"high_friction_traces"`
	TopPingPongPairs    []PingPongPair `json:"top_ping_pong_pairs"`
	TotalTracesAnalyzed int            `json:"total_traces_analyzed"`
}
