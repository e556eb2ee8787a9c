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

// Package worker turns queued aggregation tasks into classified sessions.
package worker

import (
	"context"
	"fmt"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
	"github.com/workray/taskmine/pkg/sessions"
)

// Classifier assigns a category to a closed session.
type Classifier interface {
	Classify(session *models.AggregatedSession) models.HybridResult
}

// SessionStore persists classified sessions.
type SessionStore interface {
	InsertClassifiedSession(ctx context.Context, session *models.AggregatedSession, result *models.HybridResult) error
}

// EventPublisher emits classified-session events for downstream consumers.
type EventPublisher interface {
	PublishClassifiedSession(ctx context.Context, event *models.ClassifiedSessionEvent) error
}

// Processor feeds aggregation tasks through the partitioned session state
// machine and classifies, persists, and publishes every session that closes.
type Processor struct {
	dispatcher *sessions.Dispatcher
	classifier Classifier
	store      SessionStore
	publisher  EventPublisher
	log        logger.Logger
}

// NewProcessor wires the pipeline. partitionCount controls how many session
// partitions run in parallel.
func NewProcessor(
	partitionCount int, classifier Classifier, store SessionStore,
	publisher EventPublisher, log logger.Logger,
) *Processor {
	p := &Processor{
		classifier: classifier,
		store:      store,
		publisher:  publisher,
		log:        log,
	}
	p.dispatcher = sessions.NewDispatcher(partitionCount, p.onClosed, log)

	return p
}

// Start launches the partition goroutines.
func (p *Processor) Start() {
	p.dispatcher.Start()
}

// Stop flushes open sessions and drains the partitions, returning the first
// failure of a flushed session handler. Call once, at shutdown.
func (p *Processor) Stop(ctx context.Context) error {
	return p.dispatcher.Stop(ctx)
}

// ProcessTasks applies one fetched queue batch. It returns only after every
// event has been applied to its partition, so the caller can safely ack.
func (p *Processor) ProcessTasks(ctx context.Context, tasks []*models.AggregationTask) error {
	events := make([]sessions.Event, 0, len(tasks))

	for _, task := range tasks {
		events = append(events, sessions.Event{
			EventID:      task.EventID,
			EventType:    task.EventType,
			Timestamp:    task.Timestamp,
			AppName:      task.ApplicationName,
			WindowTitle:  task.WindowTitle,
			SessionID:    task.SessionID,
			EngagementID: task.EngagementID,
		})
	}

	return p.dispatcher.ProcessBatch(ctx, events)
}

// onClosed runs on a partition goroutine whenever sessions close.
func (p *Processor) onClosed(ctx context.Context, closed []models.AggregatedSession) error {
	for i := range closed {
		session := &closed[i]

		result := p.classifier.Classify(session)

		if err := p.store.InsertClassifiedSession(ctx, session, &result); err != nil {
			return fmt.Errorf("persist classified session: %w", err)
		}

		if err := p.publisher.PublishClassifiedSession(ctx, classifiedEvent(session, result)); err != nil {
			return fmt.Errorf("publish classified session: %w", err)
		}

		p.log.Debug().
			Str("session_id", session.SessionID).
			Str("app", session.AppName).
			Str("category", string(result.Category)).
			Str("source", result.Source).
			Float64("confidence", result.Confidence).
			Msg("Session classified")
	}

	return nil
}

func classifiedEvent(session *models.AggregatedSession, result models.HybridResult) *models.ClassifiedSessionEvent {
	event := &models.ClassifiedSessionEvent{
		SessionID:          session.SessionID,
		EngagementID:       session.EngagementID,
		AppName:            session.AppName,
		Category:           result.Category,
		Confidence:         result.Confidence,
		Source:             result.Source,
		Description:        result.Description,
		StartedAt:          session.StartedAt,
		DurationMS:         session.DurationMS,
		ActiveDurationMS:   session.ActiveDurationMS,
		KeyboardEventCount: session.KeyboardEventCount,
		MouseEventCount:    session.MouseEventCount,
		CopyPasteCount:     session.CopyPasteCount,
		ScrollCount:        session.ScrollCount,
		FileOperationCount: session.FileOperationCount,
		URLNavigationCount: session.URLNavigationCount,
		TotalEventCount:    session.TotalEventCount,
	}
	if session.EndedAt != nil {
		event.EndedAt = *session.EndedAt
	}

	return event
}
