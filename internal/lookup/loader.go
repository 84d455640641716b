package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/steveyegge/mergeq/internal/task"
)

// DefaultCacheSize is the number of results kept by a Loader.
const DefaultCacheSize = 256

// ErrAbandoned is delivered to the listeners of a fetch passed to Abandon.
var ErrAbandoned = errors.New("lookup abandoned before it ran")

// ErrInvalidID is returned for ids that are not of the form /m/<token>.
var ErrInvalidID = errors.New("invalid entity id")

var idPattern = regexp.MustCompile(`^/m/[A-Za-z0-9_]+$`)

// ValidID reports whether id is a well-formed entity id such as "/m/0524b41".
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Result is the metadata known about one entity.
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURI    string `json:"image_uri,omitempty"`
}

// Listener receives the outcome of a load. It is called at most once per Load
// call that returned nil: synchronously on a cache hit, or on a pool worker
// once the fetch finished. A fetch dropped from the queue before it ran (by
// Remove, Clear, DrainTo or ShutdownNow) never finishes, so its listeners are
// only called if the dropped tasks are handed to Abandon.
type Listener func(id string, result Result, err error)

// Fetcher retrieves metadata for one entity.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (Result, error)
}

// Submitter accepts work for asynchronous execution. *executor.Pool implements it.
type Submitter interface {
	Submit(work any) error
}

// Loader answers metadata requests from a cache and fetches misses through a
// worker pool. Concurrent loads of one id share a single fetch: the later
// requests are merged into the pending or running one and their listeners
// are notified together.
type Loader struct {
	pool    Submitter
	fetcher Fetcher
	cache   *lru.Cache[string, Result]
	logger  *slog.Logger
}

// Option configures a Loader.
type Option func(*loaderOptions)

type loaderOptions struct {
	cacheSize int
	logger    *slog.Logger
}

// WithCacheSize sets how many results are cached.
func WithCacheSize(n int) Option {
	return func(o *loaderOptions) { o.cacheSize = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *loaderOptions) { o.logger = logger }
}

// NewLoader creates a loader that runs fetches on pool.
func NewLoader(pool Submitter, fetcher Fetcher, opts ...Option) (*Loader, error) {
	if pool == nil || fetcher == nil {
		return nil, errors.New("loader needs a pool and a fetcher")
	}
	o := loaderOptions{cacheSize: DefaultCacheSize, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := lru.New[string, Result](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Loader{pool: pool, fetcher: fetcher, cache: cache, logger: o.logger}, nil
}

// Load delivers the metadata for id to listener. A cached result is delivered
// before Load returns; otherwise a fetch is submitted, or joined if one for id
// is already queued or running.
func (l *Loader) Load(id string, listener Listener) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if listener == nil {
		return errors.New("nil listener")
	}

	if result, ok := l.cache.Get(id); ok {
		l.logger.Debug("lookup cache hit", "id", id)
		listener(id, result, nil)
		return nil
	}

	t := &fetchTask{loader: l, id: id, listeners: []Listener{listener}}
	if err := l.pool.Submit(t); err != nil {
		return fmt.Errorf("failed to submit lookup for %s: %w", id, err)
	}
	return nil
}

// Abandon calls the listeners of every lookup among tasks with ErrAbandoned and
// returns how many lookups that was. Tasks of other kinds, and lookups of other
// loaders, are ignored. Pass it what ShutdownNow returned or what was drained
// out of the queue.
func (l *Loader) Abandon(tasks []task.Task) int {
	n := 0
	for _, t := range tasks {
		ft, ok := t.(*fetchTask)
		if !ok || ft.loader != l {
			continue
		}
		ft.mu.Lock()
		listeners := ft.listeners
		ft.listeners = nil
		ft.mu.Unlock()

		n++
		l.logger.Debug("lookup abandoned", "id", ft.id, "listeners", len(listeners))
		for _, listener := range listeners {
			listener(ft.id, Result{}, ErrAbandoned)
		}
	}
	return n
}

// Cached returns the cached result for id, if any.
func (l *Loader) Cached(id string) (Result, bool) {
	return l.cache.Peek(id)
}

// Len returns the number of cached results.
func (l *Loader) Len() int {
	return l.cache.Len()
}

// Purge empties the cache.
func (l *Loader) Purge() {
	l.cache.Purge()
}

// fetchTask fetches one id and fans the result out to every listener merged
// into it.
type fetchTask struct {
	task.Base

	loader *Loader
	id     string

	mu        sync.Mutex
	listeners []Listener
	result    Result
	err       error
}

// Key namespaces lookups so they cannot collide with other work on a shared pool.
func (t *fetchTask) Key() string {
	return "lookup:" + t.id
}

func (t *fetchTask) Execute(ctx context.Context) error {
	result, err := t.loader.fetcher.Fetch(ctx, t.id)
	t.mu.Lock()
	t.result, t.err = result, err
	t.mu.Unlock()
	return err
}

func (t *fetchTask) Merge(other task.Task) {
	o, ok := other.(*fetchTask)
	if !ok {
		return
	}
	o.mu.Lock()
	moved := o.listeners
	o.listeners = nil
	o.mu.Unlock()

	t.mu.Lock()
	t.listeners = append(t.listeners, moved...)
	t.mu.Unlock()
}

func (t *fetchTask) Finish() {
	t.mu.Lock()
	listeners := t.listeners
	t.listeners = nil
	result, err := t.result, t.err
	t.mu.Unlock()

	if t.Cancelled() {
		// Lost to another fetch in Prepare; its listeners moved there.
		return
	}
	if err == nil {
		t.loader.cache.Add(t.id, result)
	} else {
		t.loader.logger.Warn("lookup failed", "id", t.id, "listeners", len(listeners), "error", err)
	}
	for _, listener := range listeners {
		listener(t.id, result, err)
	}
}

func (t *fetchTask) String() string {
	return fmt.Sprintf("lookup{%s}", t.id)
}
