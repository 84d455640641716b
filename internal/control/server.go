package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Command types understood by PoolHandler
const (
	CmdStatus   = "status"
	CmdSubmit   = "submit"
	CmdPending  = "pending"
	CmdRemove   = "remove"
	CmdClear    = "clear"
	CmdShutdown = "shutdown"
)

// Command is a control request sent to a running pool
type Command struct {
	Type      string                 `json:"type"`
	Key       string                 `json:"key,omitempty"`  // Task key (submit, remove)
	Work      string                 `json:"work,omitempty"` // Task duration for submit, e.g. "250ms"
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Response is the reply to a Command
type Response struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// HandlerFunc executes one command and returns response data
type HandlerFunc func(ctx context.Context, cmd Command) (map[string]interface{}, error)

// Server accepts control commands on a Unix domain socket, one JSON command
// and one JSON response per connection
type Server struct {
	socketPath string
	handler    HandlerFunc
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	running  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewServer creates a control server for socketPath. A stale socket file left
// by a crashed process is removed.
func NewServer(socketPath string, handler HandlerFunc, logger *slog.Logger) (*Server, error) {
	if handler == nil {
		return nil, errors.New("command handler is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins listening. The server stops when ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create control socket: %w", err)
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Debug("control server listening", "socket", s.socketPath)

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.stopCh:
		}
	}()
	go s.acceptLoop(ctx)
	return nil
}

// acceptLoop accepts connections until the listener is closed
func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("control: accept failed", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection processes a single control connection
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Bound how long a bad client can hold the connection
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		s.logger.Warn("control: failed to set deadline", "error", err)
		return
	}

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.send(conn, Response{Message: "failed to decode command", Error: err.Error()})
		return
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	s.logger.Debug("control command", "type", cmd.Type, "key", cmd.Key)

	data, err := s.handler(ctx, cmd)
	if err != nil {
		s.send(conn, Response{
			Message: fmt.Sprintf("command %q failed", cmd.Type),
			Error:   err.Error(),
		})
		return
	}
	s.send(conn, Response{
		Success: true,
		Message: fmt.Sprintf("command %q completed", cmd.Type),
		Data:    data,
	})
}

func (s *Server) send(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Warn("control: failed to send response", "error", err)
	}
}

// Stop closes the socket, waits for in-flight commands and removes the
// socket file. It is safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var closeErr error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		closeErr = s.listener.Close()

		select {
		case <-s.doneCh:
		case <-time.After(5 * time.Second):
			s.logger.Warn("control: timeout waiting for server shutdown")
		}

		if err := os.RemoveAll(s.socketPath); err != nil {
			s.logger.Warn("control: failed to remove socket file", "error", err)
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.logger.Debug("control server stopped")
	})
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return fmt.Errorf("failed to close control socket: %w", closeErr)
	}
	return nil
}

// IsRunning returns whether the server is accepting commands
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SocketPath returns the path to the control socket
func (s *Server) SocketPath() string {
	return s.socketPath
}
