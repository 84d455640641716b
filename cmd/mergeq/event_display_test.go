package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mergeq/internal/events"
)

func TestExtractEventMetadata(t *testing.T) {
	merged, err := events.NewMergedEvent("k", events.MergeData{Into: "running", Stage: "submit"})
	require.NoError(t, err)
	completed, err := events.NewCompletedEvent("k", "0123456789abcdef", 1500*time.Millisecond)
	require.NoError(t, err)
	failed, err := events.NewFailedEvent("k", "w1", 20*time.Millisecond, errors.New("boom"), true)
	require.NoError(t, err)
	worker, err := events.NewWorkerExitedEvent("w1", false, "idle")
	require.NoError(t, err)

	tests := []struct {
		name     string
		event    *events.Event
		expected string
	}{
		{"merged", merged, "into running | at submit"},
		{"completed", completed, "1.5s | worker 01234567"},
		{"failed", failed, "20ms | panicked | boom | worker w1"},
		{"worker", worker, "extra | idle"},
		{"submitted has none", events.NewSubmittedEvent("k"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractEventMetadata(tt.event))
		})
	}
}

func TestShouldSkipEvent(t *testing.T) {
	merged, err := events.NewMergedEvent("k", events.MergeData{Into: "pending", Stage: "submit"})
	require.NoError(t, err)

	assert.True(t, shouldSkipEvent(events.NewSubmittedEvent("k")))
	assert.True(t, shouldSkipEvent(events.NewClaimedEvent("k")))
	assert.True(t, shouldSkipEvent(events.NewStartedEvent("k", "w")))
	assert.False(t, shouldSkipEvent(merged))
	assert.False(t, shouldSkipEvent(events.NewSkippedEvent("k", "w")))
	assert.False(t, shouldSkipEvent(events.NewPoolShutdownEvent(false, 0)))
}

func TestPrintSink(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	quiet := newPrintSink(&buf, false)
	quiet.Emit(events.NewSubmittedEvent("hidden"))
	quiet.Emit(events.NewRemovedEvent("shown", "cleared"))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown task_removed: task shown removed: cleared")

	buf.Reset()
	loud := newPrintSink(&buf, true)
	loud.Emit(events.NewSubmittedEvent("visible"))
	assert.Contains(t, buf.String(), "visible task_submitted")
}

func TestDisplayEventUsesWorkerWhenNoKey(t *testing.T) {
	color.NoColor = true
	event, err := events.NewWorkerStartedEvent("abcdef0123456789", true)
	require.NoError(t, err)

	var buf bytes.Buffer
	displayEvent(&buf, event)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "abcdef01 worker_started")
	assert.Contains(t, lines[1], "core")
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		s      string
		max    int
		expect string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, truncateString(tt.s, tt.max))
	}
}

func TestFormatDurationMs(t *testing.T) {
	assert.Equal(t, "999ms", formatDurationMs(999))
	assert.Equal(t, "2.0s", formatDurationMs(2000))
}
