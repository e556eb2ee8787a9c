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

	"github.com/google/uuid"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
	"github.com/workray/taskmine/pkg/pii"
)

const maxIdempotencyKeyLen = 255

var (
	errBatchAgentRequired   = errors.New("batch agent_id is required")
	errBatchSessionRequired = errors.New("batch session_id is required")

	errEventTypeUnknown   = errors.New("unknown event_type")
	errTimestampRequired  = errors.New("timestamp is required")
	errTimestampMalformed = errors.New("timestamp is not ISO-8601")
	errIdempotencyTooLong = errors.New("idempotency_key exceeds 255 characters")
)

// EventStore is the persistence surface the pipeline writes through.
type EventStore interface {
	EventExists(ctx context.Context, idempotencyKey string) (bool, error)
	InsertEvent(ctx context.Context, event *models.RawEvent) error
	InsertQuarantineRecord(ctx context.Context, record *models.QuarantineRecord) error
	EnsureCaptureSession(ctx context.Context, id, agentID, engagementID string) error
	BumpCaptureSessionCounters(ctx context.Context, id string, events, piiDetections int64) error
}

// TaskPublisher enqueues one aggregation task per accepted event.
type TaskPublisher interface {
	PublishAggregationTask(ctx context.Context, task *models.AggregationTask) error
}

// Pipeline runs agent batches through validation, idempotency, PII filtering,
// quarantine, and persistence. One bad event never aborts a batch; a storage
// outage does.
type Pipeline struct {
	store         EventStore
	gate          *Gate
	filter        *pii.Filter
	publisher     TaskPublisher
	quarantineTTL time.Duration
	log           logger.Logger
	now           func() time.Time
}

// NewPipeline assembles the ingestion pipeline. A nil filter gets the default
// pattern set; a zero TTL gets the 24h default.
func NewPipeline(
	store EventStore, gate *Gate, filter *pii.Filter, publisher TaskPublisher,
	quarantineTTL time.Duration, log logger.Logger,
) *Pipeline {
	if filter == nil {
		filter = pii.NewDefaultFilter()
	}

	if quarantineTTL <= 0 {
		quarantineTTL = 24 * time.Hour
	}

	return &Pipeline{
		store:         store,
		gate:          gate,
		filter:        filter,
		publisher:     publisher,
		quarantineTTL: quarantineTTL,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ProcessBatch ingests one agent upload. The gate is evaluated once up front;
// an ErrAccessDenied return means no event was touched. The returned counts
// always sum to len(batch.Events).
func (p *Pipeline) ProcessBatch(ctx context.Context, batch *models.EventBatch) (models.BatchCounts, error) {
	var counts models.BatchCounts

	if batch.AgentID == "" {
		return counts, errBatchAgentRequired
	}

	if batch.SessionID == "" {
		return counts, errBatchSessionRequired
	}

	agent, err := p.gate.Authorize(ctx, batch.AgentID)
	if err != nil {
		return counts, err
	}

	engagementID := batch.EngagementID
	if engagementID == "" {
		engagementID = agent.EngagementID
	}

	if err := p.store.EnsureCaptureSession(ctx, batch.SessionID, batch.AgentID, engagementID); err != nil {
		return counts, fmt.Errorf("ensure capture session: %w", err)
	}

	for i := range batch.Events {
		outcome, err := p.processEvent(ctx, batch, engagementID, &batch.Events[i])
		if err != nil {
			return counts, err
		}

		switch outcome {
		case outcomeAccepted:
			counts.Accepted++
		case outcomeRejected:
			counts.Rejected++
		case outcomeDuplicate:
			counts.Duplicates++
		case outcomeQuarantined:
			counts.PIIQuarantined++
		}
	}

	// The capture-session PII counter counts quarantined events, not
	// individual detections.
	if err := p.store.BumpCaptureSessionCounters(ctx, batch.SessionID, int64(counts.Accepted), int64(counts.PIIQuarantined)); err != nil {
		return counts, fmt.Errorf("bump capture session counters: %w", err)
	}

	if counts.Accepted > 0 {
		if err := p.gate.Activate(ctx, agent); err != nil {
			return counts, err
		}
	}

	p.log.Info().
		Str("agent_id", batch.AgentID).
		Str("session_id", batch.SessionID).
		Int("accepted", counts.Accepted).
		Int("rejected", counts.Rejected).
		Int("duplicates", counts.Duplicates).
		Int("pii_quarantined", counts.PIIQuarantined).
		Msg("Processed event batch")

	return counts, nil
}

type eventOutcome int

const (
	outcomeAccepted eventOutcome = iota
	outcomeRejected
	outcomeDuplicate
	outcomeQuarantined
)

// processEvent runs one event through the pipeline. A non-nil error is a
// persistence failure and aborts the batch; validation problems come back as
// outcomeRejected instead.
func (p *Pipeline) processEvent(
	ctx context.Context, batch *models.EventBatch, engagementID string, in *models.IngestEvent,
) (eventOutcome, error) {
	event, err := p.validateEvent(batch, engagementID, in)
	if err != nil {
		p.log.Debug().Err(err).Str("session_id", batch.SessionID).Msg("Rejected malformed event")
		return outcomeRejected, nil
	}

	if event.IdempotencyKey != "" {
		exists, err := p.store.EventExists(ctx, event.IdempotencyKey)
		if err != nil {
			return outcomeRejected, fmt.Errorf("idempotency lookup: %w", err)
		}

		if exists {
			return outcomeDuplicate, nil
		}
	}

	result := p.filter.FilterEvent(p.scannableFields(event, in), true)

	if result.QuarantineRecommended {
		if err := p.quarantineEvent(ctx, engagementID, event, result); err != nil {
			return outcomeRejected, err
		}

		return outcomeQuarantined, nil
	}

	p.applyCleanData(event, result.CleanData)
	event.PIIFiltered = result.HasPII

	if err := p.store.InsertEvent(ctx, event); err != nil {
		return outcomeRejected, fmt.Errorf("persist event: %w", err)
	}

	task := &models.AggregationTask{
		TaskType:        "aggregate",
		EventID:         event.ID.String(),
		EventType:       event.EventType,
		SessionID:       event.SessionID.String(),
		EngagementID:    engagementID,
		ApplicationName: event.ApplicationName,
		WindowTitle:     event.WindowTitle,
		Timestamp:       event.Timestamp,
	}
	if err := p.publisher.PublishAggregationTask(ctx, task); err != nil {
		return outcomeRejected, fmt.Errorf("enqueue aggregation task: %w", err)
	}

	return outcomeAccepted, nil
}

func (p *Pipeline) validateEvent(
	batch *models.EventBatch, engagementID string, in *models.IngestEvent,
) (*models.RawEvent, error) {
	eventType := models.EventType(in.EventType)
	if !eventType.IsValid() {
		return nil, fmt.Errorf("%w: %q", errEventTypeUnknown, in.EventType)
	}

	if in.Timestamp == "" {
		return nil, errTimestampRequired
	}

	ts, err := time.Parse(time.RFC3339, in.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errTimestampMalformed, in.Timestamp)
	}

	if len(in.IdempotencyKey) > maxIdempotencyKeyLen {
		return nil, errIdempotencyTooLong
	}

	sessionID, err := uuid.Parse(batch.SessionID)
	if err != nil {
		sessionID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(batch.SessionID))
	}

	engID, err := uuid.Parse(engagementID)
	if err != nil {
		engID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(engagementID))
	}

	return &models.RawEvent{
		ID:              uuid.New(),
		SessionID:       sessionID,
		EngagementID:    engID,
		EventType:       eventType,
		Timestamp:       ts.UTC(),
		ApplicationName: in.ApplicationName,
		WindowTitle:     in.WindowTitle,
		EventData:       in.EventData,
		IdempotencyKey:  in.IdempotencyKey,
		CreatedAt:       p.now(),
	}, nil
}

// scannableFields assembles the payload the PII filter sees: window title
// plus the free-form event data. Application names are product identifiers,
// not user content.
func (p *Pipeline) scannableFields(event *models.RawEvent, in *models.IngestEvent) map[string]any {
	fields := map[string]any{
		"window_title": event.WindowTitle,
	}
	if len(in.EventData) > 0 {
		fields["event_data"] = in.EventData
	}

	return fields
}

func (p *Pipeline) applyCleanData(event *models.RawEvent, clean map[string]any) {
	if title, ok := clean["window_title"].(string); ok {
		event.WindowTitle = title
	}

	if data, ok := clean["event_data"].(map[string]any); ok {
		event.EventData = data
	}
}

// quarantineEvent stores a fully redacted copy with the strongest detection's
// facts and the configured auto-delete horizon.
func (p *Pipeline) quarantineEvent(
	ctx context.Context, engagementID string, event *models.RawEvent, result models.FilterResult,
) error {
	top := result.Detections[0]
	for _, d := range result.Detections[1:] {
		if d.Confidence > top.Confidence {
			top = d
		}
	}

	now := p.now()
	record := &models.QuarantineRecord{
		ID:                  uuid.NewString(),
		EngagementID:        engagementID,
		RedactedEventData:   p.filter.RedactEventData(p.rawFields(event)),
		PIICategory:         top.Category,
		PIIField:            top.FieldName,
		DetectionConfidence: top.Confidence,
		Status:              models.QuarantinePendingReview,
		AutoDeleteAt:        now.Add(p.quarantineTTL),
		CreatedAt:           now,
	}

	if err := p.store.InsertQuarantineRecord(ctx, record); err != nil {
		return fmt.Errorf("persist quarantine record: %w", err)
	}

	p.log.Info().
		Str("quarantine_id", record.ID).
		Str("category", string(record.PIICategory)).
		Str("field", record.PIIField).
		Float64("confidence", record.DetectionConfidence).
		Msg("Event quarantined")

	return nil
}

func (p *Pipeline) rawFields(event *models.RawEvent) map[string]any {
	fields := map[string]any{
		"event_type":       string(event.EventType),
		"application_name": event.ApplicationName,
		"window_title":     event.WindowTitle,
	}
	if len(event.EventData) > 0 {
		fields["event_data"] = event.EventData
	}

	return fields
}
