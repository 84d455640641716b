package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends control commands to a running pool
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new control client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second, // Default 10s timeout
	}
}

// SetTimeout sets the client timeout for commands
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a command and waits for the response. A response with
// Success false is returned as is, not as an error.
func (c *Client) SendCommand(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pool (is 'mergeq serve' running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// Status requests pool counters
func (c *Client) Status() (*Response, error) {
	return c.SendCommand(Command{Type: CmdStatus})
}

// Submit asks the pool to run a task under key for work
func (c *Client) Submit(key string, work time.Duration) (*Response, error) {
	return c.SendCommand(Command{Type: CmdSubmit, Key: key, Work: work.String()})
}

// Pending lists the pending task keys in claim order
func (c *Client) Pending() (*Response, error) {
	return c.SendCommand(Command{Type: CmdPending})
}

// Remove removes the pending task with key
func (c *Client) Remove(key string) (*Response, error) {
	return c.SendCommand(Command{Type: CmdRemove, Key: key})
}

// Clear removes every pending task
func (c *Client) Clear() (*Response, error) {
	return c.SendCommand(Command{Type: CmdClear})
}

// Shutdown asks the serving process to drain the pool and exit
func (c *Client) Shutdown() (*Response, error) {
	return c.SendCommand(Command{Type: CmdShutdown})
}
