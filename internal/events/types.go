package events

import (
	"time"
)

// EventType represents the kind of scheduling transition an event records.
type EventType string

const (
	// Queue-level events
	// EventTypeTaskSubmitted indicates a task entered the pending set
	EventTypeTaskSubmitted EventType = "task_submitted"
	// EventTypeTaskMerged indicates a submission was folded into a pending or running task
	EventTypeTaskMerged EventType = "task_merged"
	// EventTypeTaskClaimed indicates a worker moved a task from pending to running
	EventTypeTaskClaimed EventType = "task_claimed"
	// EventTypeTaskRemoved indicates a pending task was removed without running
	EventTypeTaskRemoved EventType = "task_removed"

	// Executor-level events
	// EventTypeTaskStarted indicates a worker is about to execute a task
	EventTypeTaskStarted EventType = "task_started"
	// EventTypeTaskSkipped indicates a cancelled task was finished without executing
	EventTypeTaskSkipped EventType = "task_skipped"
	// EventTypeTaskCompleted indicates a task executed without error
	EventTypeTaskCompleted EventType = "task_completed"
	// EventTypeTaskFailed indicates a task returned an error or panicked
	EventTypeTaskFailed EventType = "task_failed"
	// EventTypeWorkerStarted indicates a worker goroutine started
	EventTypeWorkerStarted EventType = "worker_started"
	// EventTypeWorkerExited indicates a worker goroutine exited
	EventTypeWorkerExited EventType = "worker_exited"
	// EventTypePoolShutdown indicates the pool stopped accepting work
	EventTypePoolShutdown EventType = "pool_shutdown"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityDebug indicates high-volume tracing events
	SeverityDebug EventSeverity = "debug"
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
)

// Event represents a single scheduling transition.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// Key is the dedup key of the task involved, empty for pool-level events
	Key string `json:"key,omitempty"`
	// WorkerID is the worker that produced this event, empty for queue-level events
	WorkerID string `json:"worker_id,omitempty"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// MergeData contains structured data for merge events.
type MergeData struct {
	// Into is where the duplicate was merged: "pending" or "running"
	Into string `json:"into"`
	// Stage is the queue operation that detected the duplicate: "submit" or "prepare"
	Stage string `json:"stage"`
}

// CompletionData contains structured data for completed, failed and skipped tasks.
type CompletionData struct {
	// DurationMs is how long Execute ran, in milliseconds
	DurationMs int64 `json:"duration_ms"`
	// Error is the execution error, empty on success
	Error string `json:"error,omitempty"`
	// Panicked is true when Execute panicked
	Panicked bool `json:"panicked,omitempty"`
}

// WorkerData contains structured data for worker lifecycle events.
type WorkerData struct {
	// Core is true for long-lived workers, false for on-demand workers
	Core bool `json:"core"`
	// Reason explains why a worker exited: "drained", "idle" or "interrupted"
	Reason string `json:"reason,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use and
// must not block for long: events are emitted on producer and worker
// goroutines.
type Sink interface {
	Emit(event *Event)
}

// NopSink discards every event.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(*Event) {}
