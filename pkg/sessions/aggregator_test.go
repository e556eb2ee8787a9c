package sessions

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workray/taskmine/pkg/models"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func ev(eventType models.EventType, ts time.Time, app string) Event {
	return Event{
		EventType: eventType,
		Timestamp: ts,
		AppName:   app,
		SessionID: "sess-1",
	}
}

func TestAggregator_IdleTimeSplitsActiveDuration(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	closed := agg.ProcessEvents([]Event{
		ev(models.EventTypeAppSwitch, t0, "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(2*time.Minute), "Excel"),
		ev(models.EventTypeIdleStart, t0.Add(5*time.Minute), "Excel"),
		ev(models.EventTypeIdleEnd, t0.Add(25*time.Minute), "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(26*time.Minute), "Excel"),
		ev(models.EventTypeAppSwitch, t0.Add(30*time.Minute), "Outlook"),
	})

	require.Len(t, closed, 1)

	s := closed[0]
	assert.Equal(t, "Excel", s.AppName)
	assert.Equal(t, int64(20*60000), s.IdleDurationMS)
	assert.Equal(t, int64(30*60000), s.DurationMS)
	assert.Equal(t, int64(10*60000), s.ActiveDurationMS)
	assert.Equal(t, s.DurationMS, s.IdleDurationMS+s.ActiveDurationMS)
}

func TestAggregator_AppSwitchClosesAndOpens(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	closed := agg.ProcessEvents([]Event{
		ev(models.EventTypeAppSwitch, t0, "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(time.Minute), "Excel"),
		ev(models.EventTypeAppSwitch, t0.Add(2*time.Minute), "Chrome"),
		ev(models.EventTypeScroll, t0.Add(3*time.Minute), "Chrome"),
	})

	require.Len(t, closed, 1)
	assert.Equal(t, "Excel", closed[0].AppName)
	assert.Equal(t, int64(2*60000), closed[0].DurationMS)

	// Chrome session is still open.
	final := agg.Flush()
	require.Len(t, final, 1)
	assert.Equal(t, "Chrome", final[0].AppName)
	assert.Equal(t, 1, final[0].ScrollCount)
}

func TestAggregator_SwitchToSameAppKeepsSession(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	closed := agg.ProcessEvents([]Event{
		ev(models.EventTypeAppSwitch, t0, "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(time.Minute), "Excel"),
		ev(models.EventTypeAppSwitch, t0.Add(2*time.Minute), "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(3*time.Minute), "Excel"),
	})

	assert.Empty(t, closed)

	final := agg.Flush()
	require.Len(t, final, 1)
	assert.Equal(t, 2, final[0].KeyboardEventCount)
	assert.Equal(t, t0, final[0].StartedAt)
}

func TestAggregator_InteractionCounters(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	agg.ProcessEvents([]Event{
		ev(models.EventTypeAppSwitch, t0, "Word"),
		ev(models.EventTypeKeyboardAction, t0.Add(1*time.Second), "Word"),
		ev(models.EventTypeKeyboardShortcut, t0.Add(2*time.Second), "Word"),
		ev(models.EventTypeMouseClick, t0.Add(3*time.Second), "Word"),
		ev(models.EventTypeMouseDoubleClick, t0.Add(4*time.Second), "Word"),
		ev(models.EventTypeMouseDrag, t0.Add(5*time.Second), "Word"),
		ev(models.EventTypeCopyPaste, t0.Add(6*time.Second), "Word"),
		ev(models.EventTypeScroll, t0.Add(7*time.Second), "Word"),
		ev(models.EventTypeFileOpen, t0.Add(8*time.Second), "Word"),
		ev(models.EventTypeFileSave, t0.Add(9*time.Second), "Word"),
		ev(models.EventTypeURLNavigation, t0.Add(10*time.Second), "Word"),
	})

	final := agg.Flush()
	require.Len(t, final, 1)

	s := final[0]
	assert.Equal(t, 2, s.KeyboardEventCount)
	assert.Equal(t, 3, s.MouseEventCount)
	assert.Equal(t, 1, s.CopyPasteCount)
	assert.Equal(t, 1, s.ScrollCount)
	assert.Equal(t, 2, s.FileOperationCount)
	assert.Equal(t, 1, s.URLNavigationCount)
	assert.Equal(t, 10, s.TotalEventCount)
}

func TestAggregator_FirstNonEmptyWindowTitleSampled(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	events := []Event{
		ev(models.EventTypeAppSwitch, t0, "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(time.Second), "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(2*time.Second), "Excel"),
	}
	events[1].WindowTitle = "Q3 Budget.xlsx"
	events[2].WindowTitle = "Other.xlsx"

	agg.ProcessEvents(events)

	final := agg.Flush()
	require.Len(t, final, 1)
	assert.Equal(t, "Q3 Budget.xlsx", final[0].WindowTitleSample)
}

func TestAggregator_EventWithoutSessionOpensOne(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	agg.ProcessEvent(ev(models.EventTypeKeyboardAction, t0, "Excel"))

	final := agg.Flush()
	require.Len(t, final, 1)
	assert.Equal(t, "Excel", final[0].AppName)
	assert.Equal(t, 1, final[0].TotalEventCount)
}

func TestAggregator_EventWithoutAppIsIgnoredWhenNoSession(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	agg.ProcessEvent(ev(models.EventTypeKeyboardAction, t0, ""))

	assert.Empty(t, agg.Flush())
}

func TestAggregator_IdleEndWithoutSessionIsNoop(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	agg.ProcessEvent(ev(models.EventTypeIdleStart, t0, ""))
	agg.ProcessEvent(ev(models.EventTypeIdleEnd, t0.Add(time.Minute), ""))

	assert.Empty(t, agg.Flush())
}

func TestAggregator_ActiveNeverExceedsDuration(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	agg.ProcessEvents([]Event{
		ev(models.EventTypeAppSwitch, t0, "Excel"),
		ev(models.EventTypeIdleStart, t0.Add(time.Minute), "Excel"),
		ev(models.EventTypeIdleEnd, t0.Add(5*time.Minute), "Excel"),
		ev(models.EventTypeAppSwitch, t0.Add(6*time.Minute), "Chrome"),
	})

	final := agg.Flush()
	require.Len(t, final, 2)

	for _, s := range final {
		assert.LessOrEqual(t, s.ActiveDurationMS, s.DurationMS)
		assert.Equal(t, s.DurationMS, s.ActiveDurationMS+s.IdleDurationMS)
	}
}

func TestAggregator_FlushUsesClock(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.now = func() time.Time { return t0.Add(42 * time.Minute) }

	agg.ProcessEvent(ev(models.EventTypeAppSwitch, t0, "Excel"))

	final := agg.Flush()
	require.Len(t, final, 1)
	assert.Equal(t, int64(42*60000), final[0].DurationMS)
	require.NotNil(t, final[0].EndedAt)
}

func TestAggregator_RedeliveredEventsApplyOnce(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	batch := []Event{
		ev(models.EventTypeAppSwitch, t0, "Excel"),
		ev(models.EventTypeKeyboardAction, t0.Add(time.Minute), "Excel"),
	}
	for i := range batch {
		batch[i].EventID = fmt.Sprintf("evt-%d", i)
	}

	// The same batch arriving twice, as a queue redelivery would hand it
	// over, must not double the counters.
	agg.ProcessEvents(batch)
	agg.ProcessEvents(batch)

	final := agg.Flush()
	require.Len(t, final, 1)
	assert.Equal(t, 1, final[0].KeyboardEventCount)
	assert.Equal(t, 1, final[0].TotalEventCount)
}

func TestAggregator_EventsWithoutIDsAreNotDeduplicated(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	agg.ProcessEvents([]Event{
		ev(models.EventTypeKeyboardAction, t0, "Excel"),
		ev(models.EventTypeKeyboardAction, t0, "Excel"),
	})

	final := agg.Flush()
	require.Len(t, final, 1)
	assert.Equal(t, 2, final[0].KeyboardEventCount)
}
