package relay

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is the relay's view of one participant connection. Outbound frames
// are queued on a bounded channel that the transport drains.
type Conn struct {
	id  string
	out chan []byte

	mu        sync.Mutex
	sessionID string
	closed    bool

	released sync.Once
}

func newConn(buffer int) *Conn {
	return &Conn{
		id:  uuid.NewString(),
		out: make(chan []byte, buffer),
	}
}

// ID is a server-generated identifier used in logs.
func (c *Conn) ID() string { return c.id }

// Outbound yields frames to write to the peer. It is closed when the relay
// drops the connection.
func (c *Conn) Outbound() <-chan []byte { return c.out }

// SessionID returns the joined session, or "" before the first join.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Conn) bind(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

// enqueue never blocks; it reports false when the frame was dropped because
// the connection is closed or its queue is full.
func (c *Conn) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// Close stops delivery to the connection. It is idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}
