package control

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/mergeq/internal/executor"
	"github.com/steveyegge/mergeq/internal/task"
)

// PoolHandler executes control commands against a pool
type PoolHandler struct {
	Pool *executor.Pool

	// NewTask builds the task run by a submit command
	NewTask func(key string, work time.Duration) task.Task

	// OnShutdown is called once a shutdown command was accepted. The caller
	// owns the actual pool shutdown.
	OnShutdown func()
}

// Handle implements HandlerFunc
func (h *PoolHandler) Handle(ctx context.Context, cmd Command) (map[string]interface{}, error) {
	q := h.Pool.Queue()

	switch cmd.Type {
	case CmdStatus:
		return h.Pool.Status(), nil

	case CmdSubmit:
		if cmd.Key == "" {
			return nil, fmt.Errorf("submit requires a key")
		}
		work := time.Duration(0)
		if cmd.Work != "" {
			d, err := time.ParseDuration(cmd.Work)
			if err != nil {
				return nil, fmt.Errorf("invalid work duration %q: %w", cmd.Work, err)
			}
			work = d
		}
		t := h.newTask(cmd.Key, work)
		if err := h.Pool.Submit(t); err != nil {
			return nil, err
		}
		return map[string]interface{}{"key": cmd.Key, "merged": t.Cancelled()}, nil

	case CmdPending:
		pending := q.Snapshot()
		keys := make([]string, 0, len(pending))
		for _, t := range pending {
			keys = append(keys, t.Key())
		}
		return map[string]interface{}{"keys": keys}, nil

	case CmdRemove:
		if cmd.Key == "" {
			return nil, fmt.Errorf("remove requires a key")
		}
		return map[string]interface{}{"removed": q.Remove(task.NewFunc(cmd.Key, nil))}, nil

	case CmdClear:
		n := q.Len()
		q.Clear()
		return map[string]interface{}{"cleared": n}, nil

	case CmdShutdown:
		if h.OnShutdown == nil {
			return nil, fmt.Errorf("shutdown is not supported by this server")
		}
		h.OnShutdown()
		return map[string]interface{}{"pending": q.Len()}, nil

	default:
		return nil, fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

func (h *PoolHandler) newTask(key string, work time.Duration) task.Task {
	if h.NewTask != nil {
		return h.NewTask(key, work)
	}
	return task.NewFunc(key, func(ctx context.Context) error {
		select {
		case <-time.After(work):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
