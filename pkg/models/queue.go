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

// AggregationTask is the lightweight message enqueued for every accepted
// event. Workers replay these per (session) partition in timestamp order.
type AggregationTask struct {
	TaskType        string    `json:"task_type"`
	EventID         string    `json:"event_id"`
	EventType       EventType `json:"event_type"`
	SessionID       string    `json:"session_id"`
	EngagementID    string    `json:"engagement_id"`
	ApplicationName string    `json:"application_name,omitempty"`
	WindowTitle     string    `json:"window_title,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ClassifiedSessionEvent is published for the evidence-materialization
// service once a session has been closed and classified.
type ClassifiedSessionEvent struct {
	SessionID          string         `json:"session_id"`
	EngagementID       string         `json:"engagement_id"`
	AppName            string         `json:"app_name"`
	Category           ActionCategory `json:"category"`
	Confidence         float64        `json:"confidence"`
	Source             string         `json:"source"`
	Description        string         `json:"description"`
	StartedAt          time.Time      `json:"started_at"`
	EndedAt            time.Time      `json:"ended_at"`
	DurationMS         int64          `json:"duration_ms"`
	ActiveDurationMS   int64          `json:"active_duration_ms"`
	KeyboardEventCount int            `json:"keyboard_event_count"`
	MouseEventCount    int            `json:"mouse_event_count"`
	CopyPasteCount     int            `json:"copy_paste_count"`
	ScrollCount        int            `json:"scroll_count"`
	FileOperationCount int            `json:"file_operation_count"`
	URLNavigationCount int            `json:"url_navigation_count"`
	TotalEventCount    int            `json:"total_event_count"`
}

// CloudEvent is the CloudEvents v1.0 envelope used for events published to
// downstream collaborators.
type CloudEvent struct {
	SpecVersion     string     `json:"specversion"`
	ID              string     `json:"id"`
	Source          string     `json:"source"`
	Type            string     `json:"type"`
	DataContentType string     `json:"datacontenttype,omitempty"`
	Subject         string     `json:"subject,omitempty"`
	Time            *time.Time `json:"time,omitempty"`
	Data            any        `json:"data,omitempty"`
}
