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

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of desktop interaction an agent captured.
type EventType string

const (
	EventTypeAppSwitch            EventType = "app_switch"
	EventTypeWindowFocus          EventType = "window_focus"
	EventTypeMouseClick           EventType = "mouse_click"
	EventTypeMouseDoubleClick     EventType = "mouse_double_click"
	EventTypeMouseDrag            EventType = "mouse_drag"
	EventTypeKeyboardAction       EventType = "keyboard_action"
	EventTypeKeyboardShortcut     EventType = "keyboard_shortcut"
	EventTypeCopyPaste            EventType = "copy_paste"
	EventTypeScroll               EventType = "scroll"
	EventTypeTabSwitch            EventType = "tab_switch"
	EventTypeFileOpen             EventType = "file_open"
	EventTypeFileSave             EventType = "file_save"
	EventTypeURLNavigation        EventType = "url_navigation"
	EventTypeScreenCapture        EventType = "screen_capture"
	EventTypeUIElementInteraction EventType = "ui_element_interaction"
	EventTypeIdleStart            EventType = "idle_start"
	EventTypeIdleEnd              EventType = "idle_end"
)

// knownEventTypes is the closed set accepted by the ingestion pipeline.
var knownEventTypes = map[EventType]struct{}{
	EventTypeAppSwitch:            {},
	EventTypeWindowFocus:          {},
	EventTypeMouseClick:           {},
	EventTypeMouseDoubleClick:     {},
	EventTypeMouseDrag:            {},
	EventTypeKeyboardAction:       {},
	EventTypeKeyboardShortcut:     {},
	EventTypeCopyPaste:            {},
	EventTypeScroll:               {},
	EventTypeTabSwitch:            {},
	EventTypeFileOpen:             {},
	EventTypeFileSave:             {},
	EventTypeURLNavigation:        {},
	EventTypeScreenCapture:        {},
	EventTypeUIElementInteraction: {},
	EventTypeIdleStart:            {},
	EventTypeIdleEnd:              {},
}

// IsValid reports whether the event type is a member of the known set.
func (t EventType) IsValid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// IsKeyboard reports whether the event counts toward keyboard interactions.
func (t EventType) IsKeyboard() bool {
	return t == EventTypeKeyboardAction || t == EventTypeKeyboardShortcut
}

// IsMouse reports whether the event counts toward mouse interactions.
func (t EventType) IsMouse() bool {
	return t == EventTypeMouseClick || t == EventTypeMouseDoubleClick || t == EventTypeMouseDrag
}

// IsFileOperation reports whether the event counts toward file operations.
func (t EventType) IsFileOperation() bool {
	return t == EventTypeFileOpen || t == EventTypeFileSave
}

// RawEvent is one captured interaction after PII filtering. Immutable once
// accepted; never updated.
type RawEvent struct {
	ID              uuid.UUID      `json:"id"`
	SessionID       uuid.UUID      `json:"session_id"`
	EngagementID    uuid.UUID      `json:"engagement_id"`
	EventType       EventType      `json:"event_type"`
	Timestamp       time.Time      `json:"timestamp"`
	ApplicationName string         `json:"application_name,omitempty"`
	WindowTitle     string         `json:"window_title,omitempty"`
	EventData       map[string]any `json:"event_data,omitempty"`
	IdempotencyKey  string         `json:"idempotency_key,omitempty"`
	PIIFiltered     bool           `json:"pii_filtered"`
	CreatedAt       time.Time      `json:"created_at"`
}

// IngestEvent is one entry of an agent batch upload, prior to validation.
type IngestEvent struct {
	EventType       string         `json:"event_type"`
	Timestamp       string         `json:"timestamp"`
	ApplicationName string         `json:"application_name,omitempty"`
	WindowTitle     string         `json:"window_title,omitempty"`
	EventData       map[string]any `json:"event_data,omitempty"`
	IdempotencyKey  string         `json:"idempotency_key,omitempty"`
}

// EventBatch is one agent upload: identification of the submitting agent and
// capture session plus the captured events.
type EventBatch struct {
	AgentID      string        `json:"agent_id"`
	SessionID    string        `json:"session_id"`
	EngagementID string        `json:"engagement_id"`
	Events       []IngestEvent `json:"events"`
}

// BatchCounts is the per-batch ingestion outcome. The four counts always sum
// to the batch length.
type BatchCounts struct {
	Accepted       int `json:"accepted"`
	Rejected       int `json:"rejected"`
	Duplicates     int `json:"duplicates"`
	PIIQuarantined int `json:"pii_quarantined"`
}

// Total returns the number of events the counts account for.
func (c BatchCounts) Total() int {
	return c.Accepted + c.Rejected + c.Duplicates + c.PIIQuarantined
}
