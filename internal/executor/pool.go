package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/steveyegge/mergeq/internal/config"
	"github.com/steveyegge/mergeq/internal/events"
	"github.com/steveyegge/mergeq/internal/queue"
	"github.com/steveyegge/mergeq/internal/task"
)

type poolState int

const (
	stateRunning poolState = iota
	stateShutdown
	stateTerminated
)

func (s poolState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateShutdown:
		return "shutting_down"
	default:
		return "terminated"
	}
}

// Pool runs tasks from one dedup queue on a bounded set of worker goroutines.
//
// CoreWorkers workers are started up front and live until shutdown. When a
// submission finds more pending tasks than idle workers, extra workers are
// started, up to MaxWorkers in total; an extra worker exits after KeepAlive
// without work.
//
// Every claimed task goes through queue.Prepare, Execute (skipped when the
// task was cancelled) and queue.Finish, in that order, on one worker.
type Pool struct {
	q       *queue.Queue
	cfg     config.PoolConfig
	logger  *slog.Logger
	sink    events.Sink
	limiter *rate.Limiter
	sem     *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	// mu guards the fields below. It is taken before the queue lock, never after.
	mu      sync.Mutex
	state   poolState
	workers int
	idle    int
	busy    int
	peak    int

	submitted atomic.Int64
	merged    atomic.Int64
	executed  atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

type options struct {
	queue  *queue.Queue
	logger *slog.Logger
	sink   events.Sink
	ctx    context.Context
}

// Option configures a Pool.
type Option func(*options)

// WithQueue makes the pool drain q instead of a queue of its own.
// The pool closes q on shutdown.
func WithQueue(q *queue.Queue) Option {
	return func(o *options) { o.queue = q }
}

// WithLogger sets the logger for the pool and for the queue it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSink sets where lifecycle events go, for the pool and for the queue it creates.
func WithSink(sink events.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithContext sets the parent of the context passed to Execute.
// Cancelling it stops workers the way ShutdownNow does, without rejecting submissions.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// New validates cfg, creates the pool and starts its core workers.
func New(cfg config.PoolConfig, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	o := options{
		logger: slog.New(slog.DiscardHandler),
		sink:   events.NopSink{},
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	q := o.queue
	if q == nil {
		order, err := queue.ParseOrder(strings.ToLower(cfg.Order))
		if err != nil {
			return nil, fmt.Errorf("invalid pool config: %w", err)
		}
		q = queue.New(queue.WithOrder(order), queue.WithLogger(o.logger), queue.WithSink(o.sink))
	}

	p := &Pool{
		q:      q,
		cfg:    cfg,
		logger: o.logger,
		sink:   o.sink,
		sem:    semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		done:   make(chan struct{}),
	}
	if cfg.StartRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.StartRate), cfg.StartBurst)
	}
	p.ctx, p.cancel = context.WithCancel(o.ctx)

	p.mu.Lock()
	for i := 0; i < cfg.CoreWorkers; i++ {
		p.spawnLocked(true)
	}
	p.mu.Unlock()

	p.logger.Debug("pool started", "config", cfg.String())
	return p, nil
}

// NewFixed creates a pool with exactly n workers.
func NewFixed(n int, opts ...Option) (*Pool, error) {
	return New(config.FixedPoolConfig(n), opts...)
}

// NewCached creates a pool that starts workers on demand and retires idle ones.
func NewCached(opts ...Option) (*Pool, error) {
	return New(config.CachedPoolConfig(), opts...)
}

// Queue returns the queue the pool drains.
func (p *Pool) Queue() *queue.Queue {
	return p.q
}

// Config returns the pool configuration.
func (p *Pool) Config() config.PoolConfig {
	return p.cfg
}

// Submit hands work to the queue. work must be a task.Task; anything else is
// rejected with ErrInvalidArgument. A task whose key is already pending or
// running is merged into that task and cancelled. Execute errors never surface
// here.
func (p *Pool) Submit(work any) error {
	t, ok := work.(task.Task)
	if !ok || t == nil {
		return fmt.Errorf("%w: %T is not a task", ErrInvalidArgument, work)
	}

	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != stateRunning {
		return fmt.Errorf("submit %s: %w", t.Key(), ErrRejected)
	}

	if err := p.q.Submit(t); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return fmt.Errorf("submit %s: %w", t.Key(), ErrRejected)
		}
		return err
	}
	if t.Cancelled() {
		p.submitted.Add(1)
		p.merged.Add(1)
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateRunning && p.q.RemoveInstance(t) {
		// Shut down between the state check and the insert; no worker may be
		// left to run t.
		return fmt.Errorf("submit %s: %w", t.Key(), ErrRejected)
	}
	p.submitted.Add(1)
	if p.q.Len() > p.idle {
		p.spawnLocked(false)
	}
	return nil
}

// Go submits a task that runs fn under key.
func (p *Pool) Go(key string, fn func(ctx context.Context) error) error {
	return p.Submit(task.NewFunc(key, fn))
}

// spawnLocked starts a worker if the pool is running and below MaxWorkers.
func (p *Pool) spawnLocked(core bool) bool {
	if p.state != stateRunning || !p.sem.TryAcquire(1) {
		return false
	}
	w := &worker{id: uuid.NewString(), core: core}
	p.workers++
	if p.workers > p.peak {
		p.peak = p.workers
	}
	p.wg.Add(1)
	go p.run(w)
	return true
}
