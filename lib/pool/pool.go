package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/fdfspool/lib/endpoint"
	apperrors "github.com/go-i2p/fdfspool/lib/errors"
	"github.com/go-i2p/fdfspool/lib/metrics"
)

// Dialer establishes transport connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext calls f.
func (f DialFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// Config configures an endpoint pool.
type Config struct {
	// Capacity is the maximum number of connections (idle, in use, or
	// being dialed) to the endpoint.
	// Default: 10
	Capacity int
	// AcquireTimeout bounds how long Acquire waits for a free connection.
	// It does not bound dialing. Zero waits until the context is done.
	// Default: 0
	AcquireTimeout time.Duration
	// MaxIdleTime closes idle connections older than this when they are
	// next picked up. Zero keeps idle connections indefinitely.
	// Default: 0
	MaxIdleTime time.Duration
	// Network is passed to the dialer.
	// Default: "tcp"
	Network string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capacity: 10,
		Network:  "tcp",
	}
}

// grant is what a waiter receives: a live connection, a reserved slot it
// must dial itself (conn == nil, err == nil), or a terminal error.
type grant struct {
	conn *Conn
	err  error
}

type waiter struct {
	ch   chan grant
	elem *list.Element // nil once the waiter has been dequeued
}

// Pool bounds and reuses connections to one endpoint.
//
// Invariant: numOpen (idle + checked out + dialing) never exceeds
// Capacity. Waiters are served in arrival order. A freed slot or released
// connection is handed directly to the oldest waiter, so newcomers cannot
// overtake a queued caller.
type Pool struct {
	ep     endpoint.Endpoint
	dialer Dialer
	config Config

	mu      sync.Mutex
	idle    []*Conn
	numOpen int
	waiters list.List
	closed  bool

	acquireCount   uint64
	acquireSuccess uint64
	acquireFailed  uint64
	releaseCount   uint64
	dialFailures   uint64
	timeouts       uint64
	cancellations  uint64
	discarded      uint64
}

// New creates a pool for ep. Connections are established lazily by Acquire.
func New(ep endpoint.Endpoint, dialer Dialer, cfg Config) *Pool {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10
	}
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}

	p := &Pool{
		ep:     ep,
		dialer: dialer,
		config: cfg,
		idle:   make([]*Conn, 0, cfg.Capacity),
	}

	log.WithField("endpoint", ep.String()).WithField("capacity", cfg.Capacity).Debug("pool created")
	return p
}

// Endpoint returns the endpoint served by this pool.
func (p *Pool) Endpoint() endpoint.Endpoint {
	return p.ep
}

// Capacity returns the configured maximum number of connections.
func (p *Pool) Capacity() int {
	return p.config.Capacity
}

// Acquire returns a connection to the endpoint. It reuses an idle
// connection if one exists, dials a new one while under capacity, and
// otherwise waits for a release. Waiting ends with ErrPoolAcquireTimeout
// when the configured AcquireTimeout or the context deadline passes, and
// with ErrPoolAcquireCanceled when the context is canceled. AcquireTimeout
// does not apply to dialing, which is bounded by ctx and the dialer. Dial
// failures are returned as connectivity errors and never retried.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	atomic.AddUint64(&p.acquireCount, 1)
	PoolAcquireTotal.Inc()
	timer := metrics.NewTimer(PoolAcquireLatency)
	defer timer.ObserveDuration()

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, p.fail(apperrors.ErrPoolClosed)
	}
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return nil, p.fail(p.waitError(err))
	}

	conn, stale := p.takeIdleLocked()
	if conn != nil {
		p.mu.Unlock()
		closeConns(stale)
		return p.succeed(conn, "reused idle connection"), nil
	}

	if p.numOpen < p.config.Capacity {
		p.numOpen++
		p.mu.Unlock()
		closeConns(stale)
		return p.dial(ctx)
	}

	w := &waiter{ch: make(chan grant, 1)}
	w.elem = p.waiters.PushBack(w)
	p.mu.Unlock()
	closeConns(stale)

	log.WithField("endpoint", p.ep.String()).Debug("waiting for available connection")

	// AcquireTimeout bounds the wait only; a granted slot dials under ctx.
	waitCtx := ctx
	if p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	select {
	case g := <-w.ch:
		return p.accept(ctx, g)
	case <-waitCtx.Done():
		p.mu.Lock()
		if w.elem != nil {
			p.waiters.Remove(w.elem)
			w.elem = nil
			p.mu.Unlock()
			return nil, p.fail(p.waitError(waitCtx.Err()))
		}
		p.mu.Unlock()

		// A grant was sent before we could dequeue; pass it on.
		p.giveBack(<-w.ch)
		return nil, p.fail(p.waitError(waitCtx.Err()))
	}
}

// accept turns a grant received while waiting into a result.
func (p *Pool) accept(ctx context.Context, g grant) (*Conn, error) {
	if g.err != nil {
		return nil, p.fail(g.err)
	}
	if g.conn != nil {
		return p.succeed(g.conn, "received released connection"), nil
	}
	if err := ctx.Err(); err != nil {
		p.giveBack(g)
		return nil, p.fail(p.waitError(err))
	}
	return p.dial(ctx)
}

// dial establishes a new connection into a slot already counted in numOpen.
func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	nc, err := p.dialer.DialContext(ctx, p.config.Network, p.ep.String())
	if err != nil {
		p.mu.Lock()
		p.freeSlotLocked()
		p.mu.Unlock()

		atomic.AddUint64(&p.dialFailures, 1)
		PoolDialFailuresTotal.Inc()
		log.WithError(err).WithField("endpoint", p.ep.String()).Debug("failed to create new connection")
		return nil, p.fail(apperrors.Connectivity(p.ep.String(), err))
	}

	now := time.Now()
	conn := &Conn{
		Conn:      nc,
		pool:      p,
		createdAt: now,
		lastUsed:  now,
		state:     stateInUse,
	}

	p.mu.Lock()
	if p.closed {
		p.freeSlotLocked()
		p.mu.Unlock()
		nc.Close()
		return nil, p.fail(apperrors.ErrPoolClosed)
	}
	p.mu.Unlock()

	return p.succeed(conn, "created new connection"), nil
}

// takeIdleLocked pops the most recently released idle connection. Idle
// connections past MaxIdleTime are removed and returned for closing.
func (p *Pool) takeIdleLocked() (*Conn, []*Conn) {
	var stale []*Conn
	now := time.Now()
	for len(p.idle) > 0 {
		c := p.idle[len(p.idle)-1]
		p.idle[len(p.idle)-1] = nil
		p.idle = p.idle[:len(p.idle)-1]

		if p.config.MaxIdleTime > 0 && now.Sub(c.lastUsed) > p.config.MaxIdleTime {
			c.state = stateClosed
			p.numOpen--
			stale = append(stale, c)
			continue
		}

		c.state = stateInUse
		return c, stale
	}
	return nil, stale
}

// freeSlotLocked gives up one slot. If someone is waiting, the slot is
// transferred to them and they dial; otherwise numOpen shrinks.
func (p *Pool) freeSlotLocked() {
	if w := p.popWaiterLocked(); w != nil {
		w.ch <- grant{}
		return
	}
	p.numOpen--
}

func (p *Pool) popWaiterLocked() *waiter {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	w := p.waiters.Remove(front).(*waiter)
	w.elem = nil
	return w
}

// giveBack re-offers a grant that its waiter no longer wants.
func (p *Pool) giveBack(g grant) {
	switch {
	case g.err != nil:
	case g.conn != nil:
		p.mu.Lock()
		if p.closed {
			g.conn.state = stateClosed
			p.freeSlotLocked()
			p.mu.Unlock()
			g.conn.Conn.Close()
			return
		}
		p.putLocked(g.conn)
		p.mu.Unlock()
	default:
		p.mu.Lock()
		p.freeSlotLocked()
		p.mu.Unlock()
	}
}

// Release returns a connection to the pool. A live connection goes to the
// oldest waiter or back to the idle set. A connection released with
// live=false, or previously marked dead, is closed and its slot freed.
// Releasing a connection twice, or to the wrong pool, is ignored.
func (p *Pool) Release(conn *Conn, live bool) {
	if conn == nil {
		return
	}
	if conn.pool != p {
		log.WithField("endpoint", p.ep.String()).Warn("release of connection owned by another pool ignored")
		return
	}

	p.mu.Lock()

	if conn.state != stateInUse {
		p.mu.Unlock()
		log.WithField("endpoint", p.ep.String()).Warn("release of connection not checked out ignored")
		return
	}

	atomic.AddUint64(&p.releaseCount, 1)
	PoolReleaseTotal.Inc()

	if !live || conn.IsDead() || p.closed {
		conn.state = stateClosed
		p.freeSlotLocked()
		p.mu.Unlock()

		atomic.AddUint64(&p.discarded, 1)
		PoolDiscardedTotal.Inc()
		conn.Conn.Close()
		log.WithField("endpoint", p.ep.String()).Debug("connection destroyed on release")
		return
	}

	conn.lastUsed = time.Now()
	p.putLocked(conn)
	p.mu.Unlock()
}

// putLocked hands a live connection to the oldest waiter, or parks it idle.
func (p *Pool) putLocked(conn *Conn) {
	if w := p.popWaiterLocked(); w != nil {
		w.ch <- grant{conn: conn}
		return
	}
	conn.state = stateIdle
	p.idle = append(p.idle, conn)
}

// Close closes all idle connections and fails every waiter with
// ErrPoolClosed. Connections still checked out are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return apperrors.ErrPoolClosed
	}
	p.closed = true

	idle := p.idle
	p.idle = nil
	for _, c := range idle {
		c.state = stateClosed
	}
	p.numOpen -= len(idle)

	for w := p.popWaiterLocked(); w != nil; w = p.popWaiterLocked() {
		w.ch <- grant{err: apperrors.ErrPoolClosed}
	}
	p.mu.Unlock()

	closeConns(idle)
	log.WithField("endpoint", p.ep.String()).Debug("pool closed")
	return nil
}

func (p *Pool) succeed(conn *Conn, msg string) *Conn {
	atomic.AddUint64(&p.acquireSuccess, 1)
	PoolAcquireSuccessTotal.Inc()
	log.WithField("endpoint", p.ep.String()).Debug(msg)
	return conn
}

func (p *Pool) fail(err error) error {
	atomic.AddUint64(&p.acquireFailed, 1)
	PoolAcquireFailedTotal.Inc()
	switch {
	case apperrors.IsTimeout(err):
		atomic.AddUint64(&p.timeouts, 1)
		PoolAcquireTimeoutsTotal.Inc()
	case apperrors.IsCanceled(err):
		atomic.AddUint64(&p.cancellations, 1)
		PoolAcquireCanceledTotal.Inc()
	}
	return err
}

// waitError maps a context error to the pool's timeout or cancellation error.
func (p *Pool) waitError(ctxErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrPoolAcquireTimeout, p.ep, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", apperrors.ErrPoolAcquireCanceled, p.ep, ctxErr)
}

func closeConns(conns []*Conn) {
	for _, c := range conns {
		if err := c.Conn.Close(); err != nil {
			log.WithError(err).Debug("closing evicted connection")
		}
	}
}

// Stats describes the state of a pool.
type Stats struct {
	// Endpoint is the endpoint served by the pool.
	Endpoint string `json:"endpoint"`
	// Capacity is the maximum number of connections.
	Capacity int `json:"capacity"`
	// NumOpen is the number of connections idle, in use, or being dialed.
	NumOpen int `json:"num_open"`
	// NumIdle is the current number of idle connections.
	NumIdle int `json:"num_idle"`
	// NumInUse is NumOpen minus NumIdle.
	NumInUse int `json:"num_in_use"`
	// NumWaiting is the number of callers blocked in Acquire.
	NumWaiting int `json:"num_waiting"`
	// AcquireCount is the total number of acquire attempts.
	AcquireCount uint64 `json:"acquire_count"`
	// AcquireSuccess is the number of successful acquires.
	AcquireSuccess uint64 `json:"acquire_success"`
	// AcquireFailed is the number of failed acquires.
	AcquireFailed uint64 `json:"acquire_failed"`
	// ReleaseCount is the number of releases.
	ReleaseCount uint64 `json:"release_count"`
	// DialFailures is the number of failed connection attempts.
	DialFailures uint64 `json:"dial_failures"`
	// Timeouts is the number of acquires that timed out waiting.
	Timeouts uint64 `json:"timeouts"`
	// Cancellations is the number of acquires abandoned by the caller.
	Cancellations uint64 `json:"cancellations"`
	// Discarded is the number of connections destroyed on release.
	Discarded uint64 `json:"discarded"`
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Endpoint:       p.ep.String(),
		Capacity:       p.config.Capacity,
		NumOpen:        p.numOpen,
		NumIdle:        len(p.idle),
		NumInUse:       p.numOpen - len(p.idle),
		NumWaiting:     p.waiters.Len(),
		AcquireCount:   atomic.LoadUint64(&p.acquireCount),
		AcquireSuccess: atomic.LoadUint64(&p.acquireSuccess),
		AcquireFailed:  atomic.LoadUint64(&p.acquireFailed),
		ReleaseCount:   atomic.LoadUint64(&p.releaseCount),
		DialFailures:   atomic.LoadUint64(&p.dialFailures),
		Timeouts:       atomic.LoadUint64(&p.timeouts),
		Cancellations:  atomic.LoadUint64(&p.cancellations),
		Discarded:      atomic.LoadUint64(&p.discarded),
	}
}
