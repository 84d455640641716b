package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/steveyegge/mergeq/internal/events"
)

// printSink writes events to a terminal as they happen
type printSink struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

func newPrintSink(w io.Writer, verbose bool) *printSink {
	return &printSink{w: w, verbose: verbose}
}

func (s *printSink) Emit(event *events.Event) {
	if !s.verbose && shouldSkipEvent(event) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	displayEvent(s.w, event)
}

// displayEvent formats and prints a single event on one line, with metadata
// on a second line when there is any
func displayEvent(w io.Writer, event *events.Event) {
	emoji := getEventEmoji(event)
	severityColor := getSeverityColor(event.Severity)
	timestamp := event.Timestamp.Format("15:04:05.000")

	subject := event.Key
	if subject == "" {
		subject = shortID(event.WorkerID)
	}
	keyColor := color.New(color.FgGreen)
	typeColor := color.New(color.FgMagenta)

	maxMessageLen := 60 - len(subject) - len(string(event.Type))
	message := truncateString(event.Message, maxMessageLen)

	fmt.Fprintf(w, "%s [%s] %s %s: %s\n",
		emoji,
		timestamp,
		keyColor.Sprint(subject),
		typeColor.Sprint(event.Type),
		severityColor.Sprint(message),
	)

	if metadata := extractEventMetadata(event); metadata != "" {
		gray := color.New(color.FgHiBlack)
		fmt.Fprintf(w, "  %s\n", gray.Sprint(metadata))
	}
}

// getEventEmoji returns the icon for each event type
func getEventEmoji(event *events.Event) string {
	switch event.Type {
	case events.EventTypeTaskSubmitted:
		return "📥"
	case events.EventTypeTaskMerged:
		return "🔀"
	case events.EventTypeTaskClaimed:
		return "📌"
	case events.EventTypeTaskRemoved:
		return "🗑"
	case events.EventTypeTaskStarted:
		return "🚀"
	case events.EventTypeTaskSkipped:
		return "⏭"
	case events.EventTypeTaskCompleted:
		return "✅"
	case events.EventTypeTaskFailed:
		return "❌"
	case events.EventTypeWorkerStarted, events.EventTypeWorkerExited:
		return "👷"
	case events.EventTypePoolShutdown:
		return "🛑"
	default:
		return "•"
	}
}

func getSeverityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityDebug:
		return color.New(color.FgHiBlack)
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// extractEventMetadata extracts the interesting typed data fields for each
// event type as a pipe-separated string
func extractEventMetadata(event *events.Event) string {
	var fields []string

	switch event.Type {
	case events.EventTypeTaskMerged:
		if data, err := event.GetMergeData(); err == nil {
			fields = append(fields, "into "+data.Into, "at "+data.Stage)
		}
	case events.EventTypeTaskCompleted, events.EventTypeTaskFailed:
		if data, err := event.GetCompletionData(); err == nil {
			fields = append(fields, formatDurationMs(data.DurationMs))
			if data.Panicked {
				fields = append(fields, "panicked")
			}
			if data.Error != "" {
				fields = append(fields, truncateString(data.Error, 50))
			}
		}
		fields = append(fields, "worker "+shortID(event.WorkerID))
	case events.EventTypeWorkerStarted, events.EventTypeWorkerExited:
		if data, err := event.GetWorkerData(); err == nil {
			kind := "extra"
			if data.Core {
				kind = "core"
			}
			fields = append(fields, kind, data.Reason)
		}
	}

	return joinFields(fields)
}

// formatDurationMs formats milliseconds for humans
func formatDurationMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}

// joinFields joins non-empty metadata fields with " | "
func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// shouldSkipEvent returns true for high-volume events that clutter the feed
func shouldSkipEvent(event *events.Event) bool {
	switch event.Type {
	case events.EventTypeTaskSubmitted, events.EventTypeTaskClaimed, events.EventTypeTaskStarted:
		return true
	}
	return event.Severity == events.SeverityDebug
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateString truncates a string to maxLen, adding "..." if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
