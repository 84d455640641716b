package events

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder keeps the most recent events in memory.
// It is used by the CLI to summarize a run and by tests to assert on transitions.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []*Event // ring once len reaches limit
	head   int      // index of the oldest event when the ring is full
	counts map[EventType]int
}

// NewRecorder creates a Recorder that retains at most limit events.
// A limit <= 0 retains everything. Counts are kept for all events regardless.
func NewRecorder(limit int) *Recorder {
	return &Recorder{
		limit:  limit,
		counts: make(map[EventType]int),
	}
}

// Emit records the event. Once the limit is reached the oldest event is
// overwritten in place.
func (r *Recorder) Emit(event *Event) {
	if event == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[event.Type]++
	if r.limit <= 0 || len(r.events) < r.limit {
		r.events = append(r.events, event)
		return
	}
	r.events[r.head] = event
	r.head = (r.head + 1) % r.limit
}

// ordered returns the retained events oldest first. Caller holds r.mu.
func (r *Recorder) ordered() []*Event {
	out := make([]*Event, 0, len(r.events))
	out = append(out, r.events[r.head:]...)
	return append(out, r.events[:r.head]...)
}

// Events returns a copy of the retained events, oldest first.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ordered()
}

// Count returns how many events of the given type were emitted.
func (r *Recorder) Count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[typ]
}

// ForKey returns the retained events for one task key, oldest first.
func (r *Recorder) ForKey(key string) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Event
	for _, e := range r.ordered() {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Emit logs the event at a level matching its severity.
func (s LogSink) Emit(event *Event) {
	if event == nil {
		return
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
	}
	if event.Key != "" {
		attrs = append(attrs, slog.String("key", event.Key))
	}
	if event.WorkerID != "" {
		attrs = append(attrs, slog.String("worker", event.WorkerID))
	}
	if len(event.Data) > 0 {
		attrs = append(attrs, slog.Any("data", event.Data))
	}
	logger.LogAttrs(context.Background(), severityLevel(event.Severity), event.Message, attrs...)
}

func severityLevel(s EventSeverity) slog.Level {
	switch s {
	case SeverityDebug:
		return slog.LevelDebug
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Multi fans events out to several sinks. Nil sinks are skipped.
type Multi []Sink

// Emit forwards the event to every sink.
func (m Multi) Emit(event *Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(event)
		}
	}
}
