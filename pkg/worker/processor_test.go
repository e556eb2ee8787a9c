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

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workray/taskmine/pkg/classify"
	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

type capturingStore struct {
	mu       sync.Mutex
	sessions []models.AggregatedSession
	results  []models.HybridResult
}

func (c *capturingStore) InsertClassifiedSession(_ context.Context, session *models.AggregatedSession, result *models.HybridResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions = append(c.sessions, *session)
	c.results = append(c.results, *result)

	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []models.ClassifiedSessionEvent
}

func (c *capturingPublisher) PublishClassifiedSession(_ context.Context, event *models.ClassifiedSessionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, *event)

	return nil
}

func task(eventType models.EventType, ts time.Time, app string) *models.AggregationTask {
	return &models.AggregationTask{
		TaskType:        "aggregate",
		EventID:         fmt.Sprintf("%s-%d", app, ts.UnixNano()),
		EventType:       eventType,
		SessionID:       "sess-1",
		EngagementID:    "eng-1",
		ApplicationName: app,
		Timestamp:       ts,
	}
}

func TestProcessor_ClassifiesAndPublishesClosedSessions(t *testing.T) {
	t.Parallel()

	store := &capturingStore{}
	publisher := &capturingPublisher{}
	classifier := classify.NewHybridClassifier(nil, nil, 0, logger.NewTestLogger())

	p := NewProcessor(2, classifier, store, publisher, logger.NewTestLogger())
	p.Start()

	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tasks := []*models.AggregationTask{
		task(models.EventTypeAppSwitch, t0, "Excel"),
		task(models.EventTypeKeyboardAction, t0.Add(10*time.Second), "Excel"),
		task(models.EventTypeKeyboardAction, t0.Add(20*time.Second), "Excel"),
		task(models.EventTypeAppSwitch, t0.Add(30*time.Second), "Chrome"),
	}
	require.NoError(t, p.ProcessTasks(context.Background(), tasks))

	// The switch to Chrome closed the Excel session; Chrome is still open
	// until Stop flushes it.
	require.NoError(t, p.Stop(context.Background()))

	store.mu.Lock()
	defer store.mu.Unlock()
	publisher.mu.Lock()
	defer publisher.mu.Unlock()

	require.Len(t, store.sessions, 2)
	assert.Equal(t, "Excel", store.sessions[0].AppName)
	assert.Equal(t, 2, store.sessions[0].KeyboardEventCount)
	assert.Equal(t, "Chrome", store.sessions[1].AppName)

	require.Len(t, store.results, 2)
	assert.Equal(t, models.ClassificationSourceRuleBased, store.results[0].Source)
	assert.NotEmpty(t, store.results[0].Category)

	require.Len(t, publisher.events, 2)
	assert.Equal(t, "sess-1", publisher.events[0].SessionID)
	assert.Equal(t, "eng-1", publisher.events[0].EngagementID)
	assert.Equal(t, store.results[0].Category, publisher.events[0].Category)
	assert.False(t, publisher.events[0].EndedAt.IsZero())
}

func TestProcessor_EmptyBatchIsANoop(t *testing.T) {
	t.Parallel()

	store := &capturingStore{}
	publisher := &capturingPublisher{}
	classifier := classify.NewHybridClassifier(nil, nil, 0, logger.NewTestLogger())

	p := NewProcessor(2, classifier, store, publisher, logger.NewTestLogger())
	p.Start()

	require.NoError(t, p.ProcessTasks(context.Background(), nil))
	require.NoError(t, p.Stop(context.Background()))

	assert.Empty(t, store.sessions)
	assert.Empty(t, publisher.events)
}

func TestProcessor_RedeliveredBatchCountsOnce(t *testing.T) {
	t.Parallel()

	store := &capturingStore{}
	publisher := &capturingPublisher{}
	classifier := classify.NewHybridClassifier(nil, nil, 0, logger.NewTestLogger())

	p := NewProcessor(2, classifier, store, publisher, logger.NewTestLogger())
	p.Start()

	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tasks := []*models.AggregationTask{
		task(models.EventTypeAppSwitch, t0, "Excel"),
		task(models.EventTypeKeyboardAction, t0.Add(10*time.Second), "Excel"),
	}

	// An unacked queue message comes back with the same event ids; the
	// second delivery must not mutate the session again.
	require.NoError(t, p.ProcessTasks(context.Background(), tasks))
	require.NoError(t, p.ProcessTasks(context.Background(), tasks))

	require.NoError(t, p.Stop(context.Background()))

	store.mu.Lock()
	defer store.mu.Unlock()

	require.Len(t, store.sessions, 1)
	assert.Equal(t, 1, store.sessions[0].KeyboardEventCount)
	assert.Equal(t, 1, store.sessions[0].TotalEventCount)
}

type failingStore struct {
	err error
}

func (f *failingStore) InsertClassifiedSession(_ context.Context, _ *models.AggregatedSession, _ *models.HybridResult) error {
	return f.err
}

func TestProcessor_PersistenceFailureSurfacesFromProcessTasks(t *testing.T) {
	t.Parallel()

	insertErr := errors.New("connection refused")
	store := &failingStore{err: insertErr}
	publisher := &capturingPublisher{}
	classifier := classify.NewHybridClassifier(nil, nil, 0, logger.NewTestLogger())

	p := NewProcessor(2, classifier, store, publisher, logger.NewTestLogger())
	p.Start()

	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tasks := []*models.AggregationTask{
		task(models.EventTypeAppSwitch, t0, "Excel"),
		task(models.EventTypeAppSwitch, t0.Add(time.Minute), "Chrome"),
	}

	// The Chrome switch closes the Excel session; the insert failure must
	// surface so the consumer redelivers instead of acking.
	err := p.ProcessTasks(context.Background(), tasks)
	require.ErrorIs(t, err, insertErr)

	require.ErrorIs(t, p.Stop(context.Background()), insertErr)

	assert.Empty(t, publisher.events)
}
