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

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

const (
	cloudEventSource = "taskmine/worker"
	cloudEventType   = "com.workray.taskmine.session.classified"
)

// JetStreamPublisher is the subset of the JetStream API the publisher needs.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher writes aggregation tasks and classified-session events to the
// pipeline stream.
type Publisher struct {
	js  JetStreamPublisher
	cfg models.QueueConfig
	log logger.Logger

	now func() time.Time
}

// NewPublisher creates a publisher over an established JetStream context.
func NewPublisher(js JetStreamPublisher, cfg models.QueueConfig, log logger.Logger) *Publisher {
	return &Publisher{
		js:  js,
		cfg: cfg,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// PublishAggregationTask enqueues one task for the worker pool. The message
// id mirrors the event id so JetStream deduplicates redelivered publishes.
func (p *Publisher) PublishAggregationTask(ctx context.Context, task *models.AggregationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregation task: %w", err)
	}

	_, err = p.js.Publish(ctx, p.cfg.TaskSubject, payload, jetstream.WithMsgID(task.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish aggregation task: %w", err)
	}

	return nil
}

// PublishClassifiedSession emits a CloudEvents envelope for the
// evidence-materialization service.
func (p *Publisher) PublishClassifiedSession(ctx context.Context, event *models.ClassifiedSessionEvent) error {
	now := p.now()

	envelope := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Source:          cloudEventSource,
		Type:            cloudEventType,
		DataContentType: "application/json",
		Subject:         event.SessionID,
		Time:            &now,
		Data:            event,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal classified-session event: %w", err)
	}

	if _, err := p.js.Publish(ctx, p.cfg.EventSubject, payload); err != nil {
		return fmt.Errorf("failed to publish classified-session event: %w", err)
	}

	p.log.Debug().
		Str("session_id", event.SessionID).
		Str("category", string(event.Category)).
		Msg("Published classified-session event")

	return nil
}
