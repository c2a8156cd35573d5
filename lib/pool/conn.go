package pool

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/go-i2p/fdfspool/lib/endpoint"
)

type connState int

const (
	stateInUse connState = iota
	stateIdle
	stateClosed
)

// Conn is a pooled connection to a single endpoint. It embeds the
// underlying net.Conn so the command layer can read and write on it
// directly. Between Acquire and Release the caller owns it exclusively.
type Conn struct {
	net.Conn

	pool      *Pool
	createdAt time.Time
	dead      atomic.Bool

	// guarded by pool.mu
	state    connState
	lastUsed time.Time
}

// Endpoint returns the endpoint this connection is attached to.
func (c *Conn) Endpoint() endpoint.Endpoint {
	return c.pool.ep
}

// NetConn returns the underlying transport connection.
func (c *Conn) NetConn() net.Conn {
	return c.Conn
}

// CreatedAt returns when the transport connection was established.
func (c *Conn) CreatedAt() time.Time {
	return c.createdAt
}

// MarkDead flags the connection as unusable, typically after a protocol
// error or remote reset. A dead connection is destroyed on release instead
// of returning to the idle set.
func (c *Conn) MarkDead() {
	c.dead.Store(true)
}

// IsDead reports whether MarkDead was called.
func (c *Conn) IsDead() bool {
	return c.dead.Load()
}

// Release returns the connection to its pool. live=false destroys it.
func (c *Conn) Release(live bool) {
	c.pool.Release(c, live)
}

// Discard destroys the connection and frees its slot in the pool.
func (c *Conn) Discard() {
	c.pool.Release(c, false)
}

// Close returns the connection to its pool, keeping it for reuse unless it
// was marked dead. It does not close the transport of a live connection;
// use Discard for that.
func (c *Conn) Close() error {
	c.pool.Release(c, !c.IsDead())
	return nil
}
