package executor

import (
	"context"
	"fmt"

	"github.com/steveyegge/mergeq/internal/events"
	"github.com/steveyegge/mergeq/internal/queue"
	"github.com/steveyegge/mergeq/internal/task"
)

// Shutdown stops accepting tasks and lets the workers drain what is pending.
// It waits until every worker has exited or ctx is done. Calling it again, or
// after ShutdownNow, only waits.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.beginShutdown() {
		p.logger.Debug("pool shutting down", "pending", p.q.Len())
		p.sink.Emit(events.NewPoolShutdownEvent(false, 0))
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// ShutdownNow stops accepting tasks, removes every pending task and cancels the
// context of running ones. It returns the tasks that never started; their
// Finish callbacks are not called. It does not wait for workers, use Wait.
func (p *Pool) ShutdownNow() []task.Task {
	p.beginShutdown()

	var abandoned queue.Batch
	if _, err := p.q.DrainTo(&abandoned, -1); err != nil {
		p.logger.Error("failed to drain pending tasks", "error", err)
	}
	p.cancel()

	p.logger.Debug("pool stopped", "abandoned", len(abandoned.Tasks))
	p.sink.Emit(events.NewPoolShutdownEvent(true, len(abandoned.Tasks)))
	return abandoned.Tasks
}

// beginShutdown moves the pool out of the running state exactly once and
// reports whether this call did it.
func (p *Pool) beginShutdown() bool {
	p.mu.Lock()
	if p.state != stateRunning {
		p.mu.Unlock()
		return false
	}
	p.state = stateShutdown
	p.mu.Unlock()

	// No worker can be spawned past this point, so the wait group only shrinks.
	p.q.Close()
	go func() {
		p.wg.Wait()
		p.mu.Lock()
		p.state = stateTerminated
		p.mu.Unlock()
		p.cancel()
		close(p.done)
	}()
	return true
}

// Wait blocks until the pool was shut down and every worker has exited.
func (p *Pool) Wait() {
	<-p.done
}

// IsShutdown reports whether Shutdown or ShutdownNow was called.
func (p *Pool) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != stateRunning
}

// IsTerminated reports whether the pool was shut down and all workers exited.
func (p *Pool) IsTerminated() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
