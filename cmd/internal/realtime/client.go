package realtime

import (
	"sync"

	"huddle/cmd/internal/session"
	v1 "huddle/shared/contracts/realtime/v1"
)

// Client represents one connected websocket.
//
// Send is never closed by the server so concurrent broadcasters cannot panic;
// done signals the connection's goroutines to stop.
type Client struct {
	ConnID session.ConnID
	// Origin is the key for per-origin budgets (client IP).
	Origin string
	Send   chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	code   string
	pid    string
	isHost bool
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(connID session.ConnID, origin string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ConnID: connID,
		Origin: origin,
		Send:   make(chan v1.Envelope, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Bind records the participant this connection acts for.
func (c *Client) Bind(code, participantID string, isHost bool) {
	c.mu.Lock()
	c.code, c.pid, c.isHost = code, participantID, isHost
	c.mu.Unlock()
}

// Identity returns the bound participant, if any.
func (c *Client) Identity() (code, participantID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, c.pid, c.code != ""
}

// Unbind clears the bound participant and returns what it was.
func (c *Client) Unbind() (code, participantID string, isHost, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, participantID, isHost, ok = c.code, c.pid, c.isHost, c.code != ""
	c.code, c.pid, c.isHost = "", "", false
	return code, participantID, isHost, ok
}

// UnbindIf clears the binding only if it still points at code.
func (c *Client) UnbindIf(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.code != code {
		return false
	}
	c.code, c.pid, c.isHost = "", "", false
	return true
}
