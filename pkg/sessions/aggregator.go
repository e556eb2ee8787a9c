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

// Package sessions groups cleaned telemetry events into bounded application
// sessions, tracking idle time separately from active time.
package sessions

import (
	"time"

	"github.com/workray/taskmine/pkg/models"
)

// Event is the slice of a raw event the aggregator needs.
type Event struct {
	EventID      string
	EventType    models.EventType
	Timestamp    time.Time
	AppName      string
	WindowTitle  string
	SessionID    string
	EngagementID string
}

// Aggregator is the per-partition session state machine. It must only ever
// see events for one (agent, session) partition, in ascending timestamp
// order; it is not safe for concurrent use.
type Aggregator struct {
	active    *models.AggregatedSession
	completed []models.AggregatedSession
	idleStart *time.Time
	seen      map[string]struct{}
	now       func() time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		seen: make(map[string]struct{}),
		now:  time.Now,
	}
}

// ProcessEvents feeds a batch of timestamp-ordered events through the state
// machine and returns the sessions closed during this batch.
func (a *Aggregator) ProcessEvents(events []Event) []models.AggregatedSession {
	before := len(a.completed)

	for _, ev := range events {
		a.ProcessEvent(ev)
	}

	return a.completed[before:]
}

// ProcessEvent advances the state machine by one event. Events carrying an
// ID already applied to this capture session are dropped, so queue
// redeliveries mutate state at most once.
func (a *Aggregator) ProcessEvent(ev Event) {
	if ev.Timestamp.IsZero() {
		return
	}

	if ev.EventID != "" {
		if _, applied := a.seen[ev.EventID]; applied {
			return
		}

		a.seen[ev.EventID] = struct{}{}
	}

	switch ev.EventType {
	case models.EventTypeIdleStart:
		ts := ev.Timestamp
		a.idleStart = &ts

		return
	case models.EventTypeIdleEnd:
		if a.idleStart != nil && a.active != nil {
			a.active.IdleDurationMS += ev.Timestamp.Sub(*a.idleStart).Milliseconds()
		}

		a.idleStart = nil

		return
	case models.EventTypeAppSwitch:
		a.handleAppSwitch(ev)

		return
	}

	if a.active == nil {
		if ev.AppName == "" {
			return
		}

		a.startSession(ev)
	}

	a.active.TotalEventCount++

	if ev.WindowTitle != "" && a.active.WindowTitleSample == "" {
		a.active.WindowTitleSample = ev.WindowTitle
	}

	switch {
	case ev.EventType.IsKeyboard():
		a.active.KeyboardEventCount++
	case ev.EventType.IsMouse():
		a.active.MouseEventCount++
	case ev.EventType == models.EventTypeCopyPaste:
		a.active.CopyPasteCount++
	case ev.EventType == models.EventTypeScroll:
		a.active.ScrollCount++
	case ev.EventType.IsFileOperation():
		a.active.FileOperationCount++
	case ev.EventType == models.EventTypeURLNavigation:
		a.active.URLNavigationCount++
	}
}

// Drain returns the sessions completed since the last drain without touching
// the open session.
func (a *Aggregator) Drain() []models.AggregatedSession {
	out := a.completed
	a.completed = nil

	return out
}

// Flush force-closes any open session using the current time and returns
// every session completed since the last drain.
func (a *Aggregator) Flush() []models.AggregatedSession {
	if a.active != nil {
		a.closeSession(a.now())
	}

	return a.Drain()
}

// handleAppSwitch closes the open session when the app changes and opens a
// session for the new app. A switch to the same app keeps the open session.
func (a *Aggregator) handleAppSwitch(ev Event) {
	if a.active != nil {
		if a.active.AppName == ev.AppName {
			return
		}

		a.closeSession(ev.Timestamp)
	}

	if ev.AppName != "" {
		a.startSession(ev)
	}
}

func (a *Aggregator) startSession(ev Event) {
	a.active = &models.AggregatedSession{
		AppName:           ev.AppName,
		WindowTitleSample: ev.WindowTitle,
		StartedAt:         ev.Timestamp,
		SessionID:         ev.SessionID,
		EngagementID:      ev.EngagementID,
	}
}

func (a *Aggregator) closeSession(end time.Time) {
	if a.active == nil {
		return
	}

	ended := end
	a.active.EndedAt = &ended
	a.active.ComputeDuration()
	a.completed = append(a.completed, *a.active)
	a.active = nil
	a.idleStart = nil
}
