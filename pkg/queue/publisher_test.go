package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

type fakeJetStream struct {
	subjects []string
	payloads [][]byte
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, payload)

	return &jetstream.PubAck{}, nil
}

func testQueueConfig() models.QueueConfig {
	cfg := models.QueueConfig{}
	_ = cfg.Validate()

	return cfg
}

func TestPublisher_PublishAggregationTask(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{}
	p := NewPublisher(js, testQueueConfig(), logger.NewTestLogger())

	task := &models.AggregationTask{
		TaskType:     "aggregate",
		EventID:      "evt-1",
		EventType:    models.EventTypeAppSwitch,
		SessionID:    "sess-1",
		EngagementID: "eng-1",
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishAggregationTask(context.Background(), task))

	require.Len(t, js.subjects, 1)
	assert.Equal(t, "taskmine.tasks.aggregate", js.subjects[0])

	var decoded models.AggregationTask
	require.NoError(t, json.Unmarshal(js.payloads[0], &decoded))
	assert.Equal(t, *task, decoded)
}

func TestPublisher_PublishClassifiedSessionWrapsCloudEvent(t *testing.T) {
	t.Parallel()

	js := &fakeJetStream{}
	p := NewPublisher(js, testQueueConfig(), logger.NewTestLogger())
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	event := &models.ClassifiedSessionEvent{
		SessionID:    "sess-1",
		EngagementID: "eng-1",
		AppName:      "Excel",
		Category:     models.CategoryDataEntry,
		Confidence:   0.85,
		Source:       models.ClassificationSourceRuleBased,
	}
	require.NoError(t, p.PublishClassifiedSession(context.Background(), event))

	require.Len(t, js.subjects, 1)
	assert.Equal(t, "taskmine.events.session.classified", js.subjects[0])

	var envelope models.CloudEvent
	require.NoError(t, json.Unmarshal(js.payloads[0], &envelope))

	assert.Equal(t, "1.0", envelope.SpecVersion)
	assert.Equal(t, cloudEventType, envelope.Type)
	assert.Equal(t, "sess-1", envelope.Subject)
	assert.NotEmpty(t, envelope.ID)
	require.NotNil(t, envelope.Time)
	assert.Equal(t, 2026, envelope.Time.Year())

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)

	var decoded models.ClassifiedSessionEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, models.CategoryDataEntry, decoded.Category)
	assert.Equal(t, "Excel", decoded.AppName)
}
