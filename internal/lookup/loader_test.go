package lookup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mergeq/internal/executor"
	"github.com/steveyegge/mergeq/internal/task"
)

type fakeFetcher struct {
	calls   atomic.Int32
	started chan string
	gate    chan struct{}
	results map[string]Result
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, id string) (Result, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- id
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return f.results[id], nil
}

type delivery struct {
	id     string
	result Result
	err    error
}

type collector struct {
	mu  sync.Mutex
	got []delivery
	wg  sync.WaitGroup
}

func (c *collector) listener() Listener {
	c.wg.Add(1)
	return func(id string, result Result, err error) {
		c.mu.Lock()
		c.got = append(c.got, delivery{id, result, err})
		c.mu.Unlock()
		c.wg.Done()
	}
}

func (c *collector) wait(t *testing.T) []delivery {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listeners were not called")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]delivery(nil), c.got...)
}

func newPool(t *testing.T, n int) *executor.Pool {
	t.Helper()
	pool, err := executor.NewFixed(n)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.ShutdownNow()
		pool.Wait()
	})
	return pool
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"/m/0524b41", true},
		{"/m/abc_DEF_123", true},
		{"/m/", false},
		{"m/0524b41", false},
		{"/m/05 24", false},
		{"/g/11b6", false},
		{"/m/0524b41/extra", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidID(tt.id))
		})
	}
}

func TestLoadRejectsInvalidID(t *testing.T) {
	fetcher := &fakeFetcher{}
	loader, err := NewLoader(newPool(t, 1), fetcher)
	require.NoError(t, err)

	err = loader.Load("not-an-id", func(string, Result, error) {
		t.Error("listener must not be called")
	})
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.Zero(t, fetcher.calls.Load())
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	want := Result{Title: "Babar", Description: "An elephant"}
	fetcher := &fakeFetcher{
		started: make(chan string, 1),
		gate:    make(chan struct{}),
		results: map[string]Result{"/m/0babar": want},
	}
	loader, err := NewLoader(newPool(t, 2), fetcher)
	require.NoError(t, err)

	var c collector
	require.NoError(t, loader.Load("/m/0babar", c.listener()))
	<-fetcher.started

	// The fetch is running; these join it instead of fetching again.
	require.NoError(t, loader.Load("/m/0babar", c.listener()))
	require.NoError(t, loader.Load("/m/0babar", c.listener()))
	close(fetcher.gate)

	got := c.wait(t)
	require.Len(t, got, 3)
	for _, d := range got {
		assert.Equal(t, "/m/0babar", d.id)
		assert.Equal(t, want, d.result)
		assert.NoError(t, d.err)
	}
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestPendingLoadsMerge(t *testing.T) {
	fetcher := &fakeFetcher{
		started: make(chan string, 4),
		gate:    make(chan struct{}),
		results: map[string]Result{"/m/0a": {Title: "A"}, "/m/0b": {Title: "B"}},
	}
	loader, err := NewLoader(newPool(t, 1), fetcher)
	require.NoError(t, err)

	var c collector
	// The single worker is busy with /m/0a, so /m/0b queues up and absorbs its duplicate.
	require.NoError(t, loader.Load("/m/0a", c.listener()))
	assert.Equal(t, "/m/0a", <-fetcher.started)
	require.NoError(t, loader.Load("/m/0b", c.listener()))
	require.NoError(t, loader.Load("/m/0b", c.listener()))
	close(fetcher.gate)

	got := c.wait(t)
	require.Len(t, got, 3)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestCacheHitIsSynchronous(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]Result{"/m/0c": {Title: "C"}}}
	loader, err := NewLoader(newPool(t, 1), fetcher)
	require.NoError(t, err)

	var c collector
	require.NoError(t, loader.Load("/m/0c", c.listener()))
	c.wait(t)
	assert.Equal(t, 1, loader.Len())

	var hit Result
	require.NoError(t, loader.Load("/m/0c", func(id string, r Result, err error) {
		hit = r
	}))
	assert.Equal(t, "C", hit.Title)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	cached, ok := loader.Cached("/m/0c")
	assert.True(t, ok)
	assert.Equal(t, "C", cached.Title)

	loader.Purge()
	assert.Equal(t, 0, loader.Len())
}

func TestFailedFetchIsReportedAndNotCached(t *testing.T) {
	boom := errors.New("upstream down")
	fetcher := &fakeFetcher{err: boom}
	loader, err := NewLoader(newPool(t, 1), fetcher)
	require.NoError(t, err)

	var c collector
	require.NoError(t, loader.Load("/m/0d", c.listener()))
	got := c.wait(t)

	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0].err, boom)
	_, ok := loader.Cached("/m/0d")
	assert.False(t, ok)
}

func TestLoadAfterShutdown(t *testing.T) {
	pool, err := executor.NewFixed(1)
	require.NoError(t, err)
	require.NoError(t, pool.Shutdown(context.Background()))

	loader, err := NewLoader(pool, &fakeFetcher{})
	require.NoError(t, err)

	err = loader.Load("/m/0e", func(string, Result, error) {})
	assert.ErrorIs(t, err, executor.ErrRejected)
}

func TestAbandonNotifiesDroppedLookups(t *testing.T) {
	fetcher := &fakeFetcher{
		started: make(chan string, 4),
		gate:    make(chan struct{}),
		results: map[string]Result{"/m/0a": {Title: "A"}},
	}
	pool, err := executor.NewFixed(1)
	require.NoError(t, err)
	loader, err := NewLoader(pool, fetcher)
	require.NoError(t, err)

	var running, dropped collector
	require.NoError(t, loader.Load("/m/0a", running.listener()))
	assert.Equal(t, "/m/0a", <-fetcher.started)

	// Two loads of /m/0b merge into one pending fetch that never runs
	require.NoError(t, loader.Load("/m/0b", dropped.listener()))
	require.NoError(t, loader.Load("/m/0b", dropped.listener()))

	abandoned := pool.ShutdownNow()
	require.Len(t, abandoned, 1)
	assert.Equal(t, 1, loader.Abandon(abandoned))

	got := dropped.wait(t)
	require.Len(t, got, 2)
	for _, d := range got {
		assert.Equal(t, "/m/0b", d.id)
		assert.ErrorIs(t, d.err, ErrAbandoned)
	}
	_, ok := loader.Cached("/m/0b")
	assert.False(t, ok)

	// Listeners are not called twice
	assert.Equal(t, 1, loader.Abandon(abandoned))
	assert.Len(t, dropped.wait(t), 2)

	close(fetcher.gate)
	pool.Wait()
	running.wait(t)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestAbandonIgnoresOtherTasks(t *testing.T) {
	loader, err := NewLoader(newPool(t, 1), &fakeFetcher{})
	require.NoError(t, err)
	other, err := NewLoader(newPool(t, 1), &fakeFetcher{})
	require.NoError(t, err)

	foreign := &fetchTask{loader: other, id: "/m/0x"}
	assert.Equal(t, 0, loader.Abandon([]task.Task{task.NewFunc("k", nil), foreign, nil}))
}

func TestCacheSizeBound(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string]Result{}}
	loader, err := NewLoader(newPool(t, 1), fetcher, WithCacheSize(2))
	require.NoError(t, err)

	var c collector
	for _, id := range []string{"/m/01", "/m/02", "/m/03"} {
		require.NoError(t, loader.Load(id, c.listener()))
	}
	c.wait(t)
	assert.Equal(t, 2, loader.Len())
	_, ok := loader.Cached("/m/01")
	assert.False(t, ok, "oldest entry is evicted")
}

func TestNewLoaderValidation(t *testing.T) {
	_, err := NewLoader(nil, &fakeFetcher{})
	assert.Error(t, err)

	_, err = NewLoader(newPool(t, 1), &fakeFetcher{}, WithCacheSize(0))
	assert.Error(t, err)
}
