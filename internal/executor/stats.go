package executor

import "time"

// Stats is a point-in-time view of pool activity.
type Stats struct {
	Submitted int64 // accepted by Submit, merged ones included
	Merged    int64 // absorbed into a pending or running task at submit time
	Executed  int64 // Execute was called
	Skipped   int64 // claimed but cancelled before Execute
	Failed    int64 // Execute returned an error or panicked
	Panics    int64 // panics in Execute or Finish

	Workers     int
	IdleWorkers int
	BusyWorkers int
	PeakWorkers int

	Pending int
	Running int
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Workers:     p.workers,
		IdleWorkers: p.idle,
		BusyWorkers: p.busy,
		PeakWorkers: p.peak,
	}
	p.mu.Unlock()

	s.Submitted = p.submitted.Load()
	s.Merged = p.merged.Load()
	s.Executed = p.executed.Load()
	s.Skipped = p.skipped.Load()
	s.Failed = p.failed.Load()
	s.Panics = p.panics.Load()
	s.Pending = p.q.Len()
	s.Running = p.q.RunningLen()
	return s
}

// Status returns the pool status as a flat map for status output.
func (p *Pool) Status() map[string]interface{} {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	s := p.Stats()
	status := map[string]interface{}{
		"state":        state.String(),
		"core_workers": p.cfg.CoreWorkers,
		"max_workers":  p.cfg.MaxWorkers,
		"order":        p.q.Order().String(),
		"workers": map[string]interface{}{
			"live": s.Workers,
			"idle": s.IdleWorkers,
			"busy": s.BusyWorkers,
			"peak": s.PeakWorkers,
		},
		"tasks": map[string]interface{}{
			"submitted": s.Submitted,
			"merged":    s.Merged,
			"executed":  s.Executed,
			"skipped":   s.Skipped,
			"failed":    s.Failed,
			"panics":    s.Panics,
			"pending":   s.Pending,
			"running":   s.Running,
		},
	}
	status["timestamp"] = time.Now().Format(time.RFC3339)
	return status
}
