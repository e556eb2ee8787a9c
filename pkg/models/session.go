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

// AggregatedSession is one continuous period of activity in a single
// application. Opened on the first qualifying event or an app switch, closed
// on app change or flush, immutable after close.
type AggregatedSession struct {
	ID                 string     `json:"id,omitempty"`
	SessionID          string     `json:"session_id,omitempty"`
	EngagementID       string     `json:"engagement_id,omitempty"`
	AppName            string     `json:"app_name"`
	WindowTitleSample  string     `json:"window_title_sample,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	DurationMS         int64      `json:"duration_ms"`
	ActiveDurationMS   int64      `json:"active_duration_ms"`
	IdleDurationMS     int64      `json:"idle_duration_ms"`
	KeyboardEventCount int        `json:"keyboard_event_count"`
	MouseEventCount    int        `json:"mouse_event_count"`
	CopyPasteCount     int        `json:"copy_paste_count"`
	ScrollCount        int        `json:"scroll_count"`
	FileOperationCount int        `json:"file_operation_count"`
	URLNavigationCount int        `json:"url_navigation_count"`
	TotalEventCount    int        `json:"total_event_count"`
}

// IsComplete reports whether the session has been closed.
func (s *AggregatedSession) IsComplete() bool {
	return s.EndedAt != nil
}

// ComputeDuration stamps the final duration fields from the open/close
// timestamps. Active time is whatever is left after subtracting idle time.
func (s *AggregatedSession) ComputeDuration() {
	if s.EndedAt == nil {
		return
	}

	total := s.EndedAt.Sub(s.StartedAt).Milliseconds()
	s.DurationMS = total
	s.ActiveDurationMS = total - s.IdleDurationMS
}

// CaptureSession is the agent-side recording session a batch belongs to.
// The pipeline bumps its counters as batches are accepted.
type CaptureSession struct {
	ID            string    `json:"id"`
	AgentID       string    `json:"agent_id"`
	EngagementID  string    `json:"engagement_id"`
	EventCount    int64     `json:"event_count"`
	PIIDetections int64     `json:"pii_detections"`
	StartedAt     time.Time `json:"started_at"`
}
