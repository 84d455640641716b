package control

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mergeq/internal/executor"
)

// socketPath returns a short path; Unix socket paths are limited to ~100 bytes
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mq")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "c.sock")
}

func startServer(t *testing.T, handler HandlerFunc) (*Server, *Client) {
	t.Helper()
	path := socketPath(t)
	srv, err := NewServer(path, handler, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	client := NewClient(path)
	client.SetTimeout(2 * time.Second)
	return srv, client
}

func TestServerRoundTrip(t *testing.T) {
	srv, client := startServer(t, func(ctx context.Context, cmd Command) (map[string]interface{}, error) {
		assert.False(t, cmd.Timestamp.IsZero())
		return map[string]interface{}{"echo": cmd.Key}, nil
	})
	assert.True(t, srv.IsRunning())

	resp, err := client.SendCommand(Command{Type: "echo", Key: "hello"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "hello", resp.Data["echo"])
}

func TestServerReportsHandlerErrors(t *testing.T) {
	_, client := startServer(t, func(ctx context.Context, cmd Command) (map[string]interface{}, error) {
		return nil, assert.AnError
	})

	resp, err := client.Status()
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, assert.AnError.Error(), resp.Error)
}

func TestServerStop(t *testing.T) {
	srv, client := startServer(t, func(ctx context.Context, cmd Command) (map[string]interface{}, error) {
		return nil, nil
	})

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())

	_, err := os.Stat(srv.SocketPath())
	assert.True(t, os.IsNotExist(err))

	_, err = client.Status()
	assert.Error(t, err)
}

func TestServerStopsWithContext(t *testing.T) {
	path := socketPath(t)
	srv, err := NewServer(path, func(ctx context.Context, cmd Command) (map[string]interface{}, error) {
		return nil, nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	assert.Error(t, srv.Start(ctx), "second start fails")

	cancel()
	assert.Eventually(t, func() bool { return !srv.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}

func TestNewServerRequiresHandler(t *testing.T) {
	_, err := NewServer(socketPath(t), nil, nil)
	assert.Error(t, err)
}

func TestPoolHandler(t *testing.T) {
	pool, err := executor.NewFixed(1)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.ShutdownNow()
		pool.Wait()
	})

	var shutdowns atomic.Int32
	h := &PoolHandler{Pool: pool, OnShutdown: func() { shutdowns.Add(1) }}
	_, client := startServer(t, h.Handle)

	// Occupy the single worker so later submissions stay pending
	resp, err := client.Submit("blocker", time.Second)
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, false, resp.Data["merged"])
	assert.Eventually(t, func() bool { return pool.Queue().IsRunning("blocker") }, time.Second, 5*time.Millisecond)

	for _, key := range []string{"a", "b", "a"} {
		resp, err = client.Submit(key, 0)
		require.NoError(t, err)
		require.True(t, resp.Success)
	}
	assert.Equal(t, true, resp.Data["merged"], "second a merges into the first")

	resp, err = client.Pending()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, resp.Data["keys"])

	resp, err = client.Remove("a")
	require.NoError(t, err)
	assert.Equal(t, true, resp.Data["removed"])

	resp, err = client.Clear()
	require.NoError(t, err)
	assert.Equal(t, float64(1), resp.Data["cleared"])

	resp, err = client.Status()
	require.NoError(t, err)
	assert.Equal(t, "running", resp.Data["state"])

	resp, err = client.Shutdown()
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(1), shutdowns.Load())
}

func TestPoolHandlerErrors(t *testing.T) {
	pool, err := executor.NewFixed(1)
	require.NoError(t, err)
	t.Cleanup(func() { pool.ShutdownNow() })

	h := &PoolHandler{Pool: pool}
	tests := []Command{
		{Type: CmdSubmit},
		{Type: CmdSubmit, Key: "k", Work: "soon"},
		{Type: CmdRemove},
		{Type: CmdShutdown},
		{Type: "explode"},
	}
	for _, cmd := range tests {
		t.Run(cmd.Type+"/"+cmd.Work, func(t *testing.T) {
			_, err := h.Handle(context.Background(), cmd)
			assert.Error(t, err)
		})
	}
}
