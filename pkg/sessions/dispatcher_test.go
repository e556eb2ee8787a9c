package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workray/taskmine/pkg/logger"
	"github.com/workray/taskmine/pkg/models"
)

type closedCollector struct {
	mu     sync.Mutex
	closed []models.AggregatedSession
}

func (c *closedCollector) handle(_ context.Context, sessions []models.AggregatedSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = append(c.closed, sessions...)

	return nil
}

func (c *closedCollector) snapshot() []models.AggregatedSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]models.AggregatedSession(nil), c.closed...)
}

func TestDispatcher_ClosesSessionsAcrossBatches(t *testing.T) {
	t.Parallel()

	collector := &closedCollector{}
	d := NewDispatcher(4, collector.handle, logger.NewTestLogger())
	d.Start()

	ctx := context.Background()

	require.NoError(t, d.ProcessBatch(ctx, []Event{
		ev(models.EventTypeAppSwitch, t0, "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(time.Minute), "Excel"),
	}))
	require.NoError(t, d.ProcessBatch(ctx, []Event{
		ev(models.EventTypeAppSwitch, t0.Add(2*time.Minute), "Chrome"),
	}))

	require.NoError(t, d.Stop(ctx))

	closed := collector.snapshot()
	require.Len(t, closed, 2)
	assert.Equal(t, "Excel", closed[0].AppName)
	assert.Equal(t, "Chrome", closed[1].AppName)
}

func TestDispatcher_SessionsAreIsolated(t *testing.T) {
	t.Parallel()

	collector := &closedCollector{}
	d := NewDispatcher(4, collector.handle, logger.NewTestLogger())
	d.Start()

	ctx := context.Background()

	var events []Event

	for i := 0; i < 8; i++ {
		e := ev(models.EventTypeKeyboardAction, t0.Add(time.Duration(i)*time.Second), "Excel")
		e.SessionID = fmt.Sprintf("sess-%d", i%4)
		events = append(events, e)
	}

	require.NoError(t, d.ProcessBatch(ctx, events))
	require.NoError(t, d.Stop(ctx))

	closed := collector.snapshot()
	require.Len(t, closed, 4)

	for _, s := range closed {
		assert.Equal(t, 2, s.KeyboardEventCount)
	}
}

func TestDispatcher_OrderingWithinSession(t *testing.T) {
	t.Parallel()

	collector := &closedCollector{}
	d := NewDispatcher(2, collector.handle, logger.NewTestLogger())
	d.Start()

	ctx := context.Background()

	// Alternating app switches for one session must close sessions in event
	// order regardless of partition parallelism.
	apps := []string{"Excel", "Chrome", "Excel", "Chrome"}

	var events []Event
	for i, app := range apps {
		events = append(events, ev(models.EventTypeAppSwitch, t0.Add(time.Duration(i)*time.Minute), app))
	}

	require.NoError(t, d.ProcessBatch(ctx, events))
	require.NoError(t, d.Stop(ctx))

	closed := collector.snapshot()
	require.Len(t, closed, 4)

	for i, s := range closed {
		assert.Equal(t, apps[i], s.AppName)
	}
}

func TestDispatcher_ProcessBatchHonorsContext(t *testing.T) {
	t.Parallel()

	collector := &closedCollector{}
	d := NewDispatcher(1, collector.handle, logger.NewTestLogger())
	// Not started: the partition buffer fills and the canceled context must
	// unblock the caller.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make([]Event, defaultPartitionBuffer+1)
	for i := range events {
		events[i] = ev(models.EventTypeKeyboardAction, t0, "Excel")
	}

	err := d.ProcessBatch(ctx, events)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDispatcher_ProcessBatchReturnsHandlerError(t *testing.T) {
	t.Parallel()

	handlerErr := fmt.Errorf("classified session insert failed")
	failing := func(_ context.Context, _ []models.AggregatedSession) error {
		return handlerErr
	}

	d := NewDispatcher(2, failing, logger.NewTestLogger())
	d.Start()

	ctx := context.Background()

	// The Chrome switch closes the Excel session mid-batch; the handler
	// failure must reach the caller so the queue message is not acked.
	err := d.ProcessBatch(ctx, []Event{
		ev(models.EventTypeAppSwitch, t0, "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(time.Minute), "Excel"),
		ev(models.EventTypeAppSwitch, t0.Add(2*time.Minute), "Chrome"),
	})
	require.ErrorIs(t, err, handlerErr)

	assert.ErrorIs(t, d.Stop(ctx), handlerErr)
}

func TestDispatcher_StopReturnsFlushError(t *testing.T) {
	t.Parallel()

	handlerErr := fmt.Errorf("publish failed")
	failing := func(_ context.Context, _ []models.AggregatedSession) error {
		return handlerErr
	}

	d := NewDispatcher(1, failing, logger.NewTestLogger())
	d.Start()

	ctx := context.Background()

	// No session closes during the batch, so the batch itself succeeds.
	require.NoError(t, d.ProcessBatch(ctx, []Event{
		ev(models.EventTypeAppSwitch, t0, "Excel"),
	}))

	require.ErrorIs(t, d.Stop(ctx), handlerErr)
}
