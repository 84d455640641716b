package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/mergeq/internal/events"
	"github.com/steveyegge/mergeq/internal/queue"
	"github.com/steveyegge/mergeq/internal/task"
)

type worker struct {
	id   string
	core bool
}

func (p *Pool) run(w *worker) {
	defer p.wg.Done()

	if event, err := events.NewWorkerStartedEvent(w.id, w.core); err == nil {
		p.sink.Emit(event)
	}
	p.logger.Debug("worker started", "worker", w.id, "core", w.core)

	reason := p.loop(w)

	p.logger.Debug("worker exited", "worker", w.id, "core", w.core, "reason", reason)
	if event, err := events.NewWorkerExitedEvent(w.id, w.core, reason); err == nil {
		p.sink.Emit(event)
	}
}

// loop claims and runs tasks until the queue is closed and drained, the pool
// context is cancelled, or an extra worker stays idle for KeepAlive.
// The returned reason is one of the Exit* constants. The worker is no longer
// counted, and its semaphore slot is free, once loop returns.
func (p *Pool) loop(w *worker) string {
	for {
		p.mu.Lock()
		p.idle++
		p.mu.Unlock()

		t, err := p.claim(w)

		p.mu.Lock()
		p.idle--
		switch {
		case errors.Is(err, queue.ErrClosed):
			p.retireLocked()
			p.mu.Unlock()
			return ExitDrained
		case err != nil:
			p.retireLocked()
			p.mu.Unlock()
			return ExitInterrupted
		case t == nil:
			// A submit that saw this worker as idle did not start another one.
			if p.q.Len() > 0 {
				p.mu.Unlock()
				continue
			}
			p.retireLocked()
			p.mu.Unlock()
			return ExitIdle
		}
		p.busy++
		p.mu.Unlock()

		p.runTask(w, t)

		p.mu.Lock()
		p.busy--
		p.mu.Unlock()
	}
}

// retireLocked uncounts the calling worker and frees its slot in one step, so a
// submit that no longer sees the worker can always start a replacement.
func (p *Pool) retireLocked() {
	p.workers--
	p.sem.Release(1)
}

// throttle waits for the start-rate limiter, if any. It runs after the claim so
// that idle workers cannot bank tokens ahead of work.
func (p *Pool) throttle() error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(p.ctx)
}

// claim blocks for the next task. Core workers wait indefinitely; extra
// workers give up after KeepAlive and get (nil, nil).
func (p *Pool) claim(w *worker) (task.Task, error) {
	if w.core {
		return p.q.Take(p.ctx)
	}
	return p.q.Poll(p.ctx, p.cfg.KeepAlive)
}

// runTask takes a claimed task through prepare, execute and finish.
func (p *Pool) runTask(w *worker, t task.Task) {
	key := t.Key()
	p.q.Prepare(t)

	switch {
	case t.Cancelled():
		p.skipped.Add(1)
		p.logger.Debug("task skipped", "key", key, "worker", w.id)
		p.sink.Emit(events.NewSkippedEvent(key, w.id))
	default:
		if err := p.throttle(); err != nil {
			p.report(w, key, 0, false, fmt.Errorf("start of %s interrupted: %w", key, err))
			break
		}
		p.sink.Emit(events.NewStartedEvent(key, w.id))
		start := time.Now()
		panicked, err := p.execute(p.ctx, t)
		p.executed.Add(1)
		p.report(w, key, time.Since(start), panicked, err)
	}

	if err := p.finish(t); err != nil {
		p.logger.Error("failed to finish task", "key", key, "worker", w.id, "error", err)
	}
}

// report records the outcome of one task.
func (p *Pool) report(w *worker, key string, elapsed time.Duration, panicked bool, err error) {
	if err == nil {
		p.logger.Debug("task completed", "key", key, "worker", w.id, "duration", elapsed)
		if event, evErr := events.NewCompletedEvent(key, w.id, elapsed); evErr == nil {
			p.sink.Emit(event)
		}
		return
	}

	p.failed.Add(1)
	if panicked {
		p.panics.Add(1)
	}
	p.logger.Warn("task failed", "key", key, "worker", w.id, "duration", elapsed, "panicked", panicked, "error", err)
	if event, evErr := events.NewFailedEvent(key, w.id, elapsed, err, panicked); evErr == nil {
		p.sink.Emit(event)
	}
}

// execute runs t, turning a panic into an error.
func (p *Pool) execute(ctx context.Context, t task.Task) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("task %s panicked: %v", task.Describe(t), r)
		}
	}()
	return false, t.Execute(ctx)
}

// finish calls queue.Finish, turning a panic in the task's callback into an error.
// The running slot is already released when the callback runs.
func (p *Pool) finish(t task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			err = fmt.Errorf("finish callback of %s panicked: %v", task.Describe(t), r)
		}
	}()
	return p.q.Finish(t)
}
