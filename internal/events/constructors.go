package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func newEvent(typ EventType, severity EventSeverity, key, workerID, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: time.Now(),
		Key:       key,
		WorkerID:  workerID,
		Severity:  severity,
		Message:   message,
	}
}

// NewSubmittedEvent creates an event for a task entering the pending set.
func NewSubmittedEvent(key string) *Event {
	return newEvent(EventTypeTaskSubmitted, SeverityDebug, key, "", fmt.Sprintf("task %s submitted", key))
}

// NewMergedEvent creates an event for a duplicate folded into an existing task.
func NewMergedEvent(key string, data MergeData) (*Event, error) {
	event := newEvent(EventTypeTaskMerged, SeverityInfo, key, "",
		fmt.Sprintf("duplicate of %s merged into %s task during %s", key, data.Into, data.Stage))
	if err := event.SetMergeData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewClaimedEvent creates an event for a task moved from pending to running.
func NewClaimedEvent(key string) *Event {
	return newEvent(EventTypeTaskClaimed, SeverityDebug, key, "", fmt.Sprintf("task %s claimed", key))
}

// NewRemovedEvent creates an event for a pending task removed without running.
func NewRemovedEvent(key, reason string) *Event {
	return newEvent(EventTypeTaskRemoved, SeverityInfo, key, "", fmt.Sprintf("task %s removed: %s", key, reason))
}

// NewStartedEvent creates an event for a task about to execute on a worker.
func NewStartedEvent(key, workerID string) *Event {
	return newEvent(EventTypeTaskStarted, SeverityDebug, key, workerID, fmt.Sprintf("task %s started", key))
}

// NewSkippedEvent creates an event for a cancelled task finished without executing.
func NewSkippedEvent(key, workerID string) *Event {
	return newEvent(EventTypeTaskSkipped, SeverityInfo, key, workerID, fmt.Sprintf("task %s cancelled, execution skipped", key))
}

// NewCompletedEvent creates an event for a task that executed without error.
func NewCompletedEvent(key, workerID string, duration time.Duration) (*Event, error) {
	event := newEvent(EventTypeTaskCompleted, SeverityInfo, key, workerID,
		fmt.Sprintf("task %s completed in %v", key, duration))
	if err := event.SetCompletionData(CompletionData{DurationMs: duration.Milliseconds()}); err != nil {
		return nil, err
	}
	return event, nil
}

// NewFailedEvent creates an event for a task that returned an error or panicked.
func NewFailedEvent(key, workerID string, duration time.Duration, execErr error, panicked bool) (*Event, error) {
	event := newEvent(EventTypeTaskFailed, SeverityError, key, workerID,
		fmt.Sprintf("task %s failed: %v", key, execErr))
	data := CompletionData{
		DurationMs: duration.Milliseconds(),
		Panicked:   panicked,
	}
	if execErr != nil {
		data.Error = execErr.Error()
	}
	if err := event.SetCompletionData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewWorkerStartedEvent creates an event for a worker goroutine starting.
func NewWorkerStartedEvent(workerID string, core bool) (*Event, error) {
	event := newEvent(EventTypeWorkerStarted, SeverityDebug, "", workerID, fmt.Sprintf("worker %s started", workerID))
	if err := event.SetWorkerData(WorkerData{Core: core}); err != nil {
		return nil, err
	}
	return event, nil
}

// NewWorkerExitedEvent creates an event for a worker goroutine exiting.
func NewWorkerExitedEvent(workerID string, core bool, reason string) (*Event, error) {
	event := newEvent(EventTypeWorkerExited, SeverityDebug, "", workerID,
		fmt.Sprintf("worker %s exited (%s)", workerID, reason))
	if err := event.SetWorkerData(WorkerData{Core: core, Reason: reason}); err != nil {
		return nil, err
	}
	return event, nil
}

// NewPoolShutdownEvent creates an event for the pool stopping intake.
func NewPoolShutdownEvent(immediate bool, abandoned int) *Event {
	msg := "pool shutting down, draining pending tasks"
	if immediate {
		msg = fmt.Sprintf("pool shutting down now, %d pending task(s) abandoned", abandoned)
	}
	event := newEvent(EventTypePoolShutdown, SeverityInfo, "", "", msg)
	event.Data = map[string]interface{}{
		"immediate": immediate,
		"abandoned": abandoned,
	}
	return event
}
