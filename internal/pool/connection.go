package pool

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnState is a Connection's ownership state.
type ConnState int32

const (
	// StateIdle means the connection is sitting in its pool's idle
	// reservoir, not currently handed to any caller.
	StateIdle ConnState = iota
	// StateAcquired means a caller currently owns the connection.
	StateAcquired
	// StateClosed is terminal; no further transitions are possible.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquired:
		return "acquired"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is an owned, bidirectional byte stream bound to an Endpoint.
// It is created in StateAcquired by a Connector and only the Connection's
// pool-of-origin may transition it between StateIdle and StateAcquired.
type Connection struct {
	ID       uuid.UUID
	Endpoint Endpoint

	conn   net.Conn
	origin *FixedPool

	mu           sync.Mutex
	state        ConnState
	createdAt    time.Time
	lastActiveAt time.Time
}

// newConnection wraps a raw transport connection. It is always created in
// StateAcquired, per spec.md's data model invariant, so that the component
// that dials it (the pool, on behalf of whoever is about to receive it)
// never has to separately flip its state before handing it out.
func newConnection(endpoint Endpoint, raw net.Conn) *Connection {
	now := time.Now()
	return &Connection{
		ID:           uuid.New(),
		Endpoint:     endpoint,
		conn:         raw,
		state:        StateAcquired,
		createdAt:    now,
		lastActiveAt: now,
	}
}

// Conn returns the underlying transport stream. The wire protocol and
// codec that run over it are out of this module's scope (spec.md §1).
func (c *Connection) Conn() net.Conn {
	return c.conn
}

// State returns the connection's current ownership state. Diagnostic only;
// may be briefly stale relative to a concurrent pool operation.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Origin reports the FixedPool this connection was created by. Release
// calls against any other pool fail with ErrWrongPool without touching
// that pool's counters.
func (c *Connection) Origin() *FixedPool {
	return c.origin
}

func (c *Connection) markIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = StateIdle
		c.lastActiveAt = time.Now()
	}
}

func (c *Connection) markAcquired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = StateAcquired
		c.lastActiveAt = time.Now()
	}
}

// close is idempotent and terminal; it never returns the connection to any
// state other than StateClosed.
func (c *Connection) close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()
	return c.conn.Close()
}

// IsOpen is the minimal liveness predicate a HealthChecker can fall back
// on: the connection has not been closed on this side.
func (c *Connection) IsOpen() bool {
	return c.State() != StateClosed
}
