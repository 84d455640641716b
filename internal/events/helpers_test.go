package events

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeDataRoundTrip(t *testing.T) {
	event, err := NewMergedEvent("k", MergeData{Into: "running", Stage: "prepare"})
	require.NoError(t, err)

	assert.Equal(t, EventTypeTaskMerged, event.Type)
	assert.Equal(t, "k", event.Key)
	assert.NotEmpty(t, event.ID)

	data, err := event.GetMergeData()
	require.NoError(t, err)
	assert.Equal(t, "running", data.Into)
	assert.Equal(t, "prepare", data.Stage)
}

func TestFailedEventCarriesError(t *testing.T) {
	event, err := NewFailedEvent("k", "w1", 1500*time.Millisecond, errors.New("boom"), true)
	require.NoError(t, err)

	assert.Equal(t, SeverityError, event.Severity)
	assert.Contains(t, event.Message, "boom")

	data, err := event.GetCompletionData()
	require.NoError(t, err)
	assert.Equal(t, int64(1500), data.DurationMs)
	assert.Equal(t, "boom", data.Error)
	assert.True(t, data.Panicked)
}

func TestWorkerDataRoundTrip(t *testing.T) {
	event, err := NewWorkerExitedEvent("w1", false, "idle")
	require.NoError(t, err)

	data, err := event.GetWorkerData()
	require.NoError(t, err)
	assert.False(t, data.Core)
	assert.Equal(t, "idle", data.Reason)
}

func TestEventIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		e := NewClaimedEvent("k")
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(3)
	r.Emit(NewSubmittedEvent("a"))
	r.Emit(NewSubmittedEvent("b"))
	r.Emit(NewClaimedEvent("a"))
	r.Emit(NewClaimedEvent("b"))
	r.Emit(nil)

	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "b", events[0].Key)
	assert.Equal(t, EventTypeTaskClaimed, events[2].Type)

	// Counts survive trimming
	assert.Equal(t, 2, r.Count(EventTypeTaskSubmitted))
	assert.Equal(t, 2, r.Count(EventTypeTaskClaimed))
	assert.Equal(t, 0, r.Count(EventTypeTaskFailed))

	assert.Len(t, r.ForKey("a"), 1)
}

func TestRecorderWrapsInOrder(t *testing.T) {
	r := NewRecorder(3)
	for i := 0; i < 10; i++ {
		r.Emit(NewSubmittedEvent(fmt.Sprintf("k%d", i)))
		if i == 7 {
			r.Emit(NewClaimedEvent("k7"))
		}
	}

	var keys []string
	for _, e := range r.Events() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"k7", "k8", "k9"}, keys)

	// Emit after the wrap keeps replacing the oldest
	r.Emit(NewClaimedEvent("k9"))
	k9 := r.ForKey("k9")
	require.Len(t, k9, 2)
	assert.Equal(t, EventTypeTaskSubmitted, k9[0].Type)
	assert.Equal(t, EventTypeTaskClaimed, k9[1].Type)
	assert.Empty(t, r.ForKey("k7"))
	assert.Equal(t, 10, r.Count(EventTypeTaskSubmitted))
}

func TestRecorderUnlimited(t *testing.T) {
	r := NewRecorder(0)
	for i := 0; i < 50; i++ {
		r.Emit(NewSubmittedEvent("k"))
	}
	assert.Len(t, r.Events(), 50)
}

func TestLogSink(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := LogSink{Logger: logger}

	sink.Emit(NewSubmittedEvent("debug-only"))
	sink.Emit(NewSkippedEvent("visible", "w1"))

	out := buf.String()
	assert.NotContains(t, out, "debug-only")
	assert.Contains(t, out, "key=visible")
	assert.Contains(t, out, "worker=w1")
}

func TestMulti(t *testing.T) {
	a := NewRecorder(0)
	b := NewRecorder(0)
	m := Multi{a, nil, b}

	m.Emit(NewSubmittedEvent("k"))

	assert.Equal(t, 1, a.Count(EventTypeTaskSubmitted))
	assert.Equal(t, 1, b.Count(EventTypeTaskSubmitted))
}
