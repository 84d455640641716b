package executor

import (
	"errors"

	"github.com/steveyegge/mergeq/internal/queue"
)

var (
	// ErrRejected is returned by Submit once Shutdown or ShutdownNow was called.
	ErrRejected = errors.New("pool is shut down")

	// ErrInvalidArgument is returned by Submit for values that are not tasks.
	ErrInvalidArgument = queue.ErrInvalidArgument
)

// Worker exit reasons, reported in worker_exited events.
const (
	ExitDrained     = "drained"
	ExitIdle        = "idle"
	ExitInterrupted = "interrupted"
)
