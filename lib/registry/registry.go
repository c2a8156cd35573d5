package registry

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-i2p/fdfspool/lib/endpoint"
	apperrors "github.com/go-i2p/fdfspool/lib/errors"
	"github.com/go-i2p/fdfspool/lib/metrics"
	"github.com/go-i2p/fdfspool/lib/pool"
)

// Default per-endpoint capacities.
const (
	DefaultCoordinatorCapacity = 10
	DefaultDataCapacity        = 20
)

// Options configures the pools a Registry creates.
type Options struct {
	// CoordinatorCapacity is the maximum number of connections per tracker.
	// Default: 10
	CoordinatorCapacity int
	// DataCapacity is the maximum number of connections per storage node.
	// Default: 20
	DataCapacity int
	// AcquireTimeout bounds how long an acquire waits for a free
	// connection. It does not bound dialing. Zero waits until the caller's
	// context is done.
	AcquireTimeout time.Duration
	// MaxIdleTime evicts idle connections older than this. Zero disables eviction.
	MaxIdleTime time.Duration
	// Network is passed to the dialer.
	// Default: "tcp"
	Network string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		CoordinatorCapacity: DefaultCoordinatorCapacity,
		DataCapacity:        DefaultDataCapacity,
		Network:             "tcp",
	}
}

func (o Options) withDefaults() Options {
	if o.CoordinatorCapacity <= 0 {
		o.CoordinatorCapacity = DefaultCoordinatorCapacity
	}
	if o.DataCapacity <= 0 {
		o.DataCapacity = DefaultDataCapacity
	}
	if o.Network == "" {
		o.Network = "tcp"
	}
	return o
}

func (o Options) poolConfig(capacity int) pool.Config {
	return pool.Config{
		Capacity:       capacity,
		AcquireTimeout: o.AcquireTimeout,
		MaxIdleTime:    o.MaxIdleTime,
		Network:        o.Network,
	}
}

// Registry routes connection requests for one client configuration to the
// right endpoint pool. Tracker pools are fixed at construction; storage
// pools are created on first use of an endpoint.
type Registry struct {
	dialer pool.Dialer
	opts   Options

	// read-only after New
	coordinators     []endpoint.Endpoint
	coordinatorPools map[endpoint.Endpoint]*pool.Pool

	// data holds endpoint.Endpoint -> *pool.Pool. Loads are lock-free;
	// dataMu serializes creation so each endpoint gets exactly one pool.
	data   sync.Map
	dataMu sync.Mutex

	// pick returns a random index in [0, n).
	pick func(n int) int
}

// New builds a Registry with one pool per distinct coordinator endpoint,
// in first-seen order. An empty list is accepted; CoordinatorConn then
// fails with ErrRegistryNoCoordinators.
func New(coordinators []endpoint.Endpoint, dialer pool.Dialer, opts Options) *Registry {
	opts = opts.withDefaults()
	eps := endpoint.Dedupe(coordinators)

	r := &Registry{
		dialer:           dialer,
		opts:             opts,
		coordinators:     eps,
		coordinatorPools: make(map[endpoint.Endpoint]*pool.Pool, len(eps)),
		pick:             rand.IntN,
	}
	for _, ep := range eps {
		r.coordinatorPools[ep] = pool.New(ep, dialer, opts.poolConfig(opts.CoordinatorCapacity))
	}
	metrics.CoordinatorPoolsTotal.Add(int64(len(eps)))

	log.WithField("coordinators", len(eps)).Debug("registry created")
	return r
}

// Coordinators returns a copy of the tracker endpoints in selection order.
func (r *Registry) Coordinators() []endpoint.Endpoint {
	out := make([]endpoint.Endpoint, len(r.coordinators))
	copy(out, r.coordinators)
	return out
}

// CoordinatorPool returns the pool for a tracker endpoint.
func (r *Registry) CoordinatorPool(ep endpoint.Endpoint) (*pool.Pool, bool) {
	p, ok := r.coordinatorPools[ep]
	return p, ok
}

// pickCoordinator draws a tracker pool uniformly at random. Every call is
// an independent draw.
func (r *Registry) pickCoordinator() (*pool.Pool, error) {
	if len(r.coordinators) == 0 {
		return nil, apperrors.ErrRegistryNoCoordinators
	}
	metrics.CoordinatorSelections.Inc()
	return r.coordinatorPools[r.coordinators[r.pick(len(r.coordinators))]], nil
}

// CoordinatorConn acquires a connection to a randomly chosen tracker.
func (r *Registry) CoordinatorConn(ctx context.Context) (*pool.Conn, error) {
	p, err := r.pickCoordinator()
	if err != nil {
		return nil, err
	}
	return p.Acquire(ctx)
}

// DataPool returns the pool for a storage endpoint, creating it on first
// use. Concurrent first calls for the same endpoint all get the same pool.
func (r *Registry) DataPool(ep endpoint.Endpoint) *pool.Pool {
	if p, ok := r.data.Load(ep); ok {
		return p.(*pool.Pool)
	}

	r.dataMu.Lock()
	defer r.dataMu.Unlock()

	if p, ok := r.data.Load(ep); ok {
		return p.(*pool.Pool)
	}
	p := pool.New(ep, r.dialer, r.opts.poolConfig(r.opts.DataCapacity))
	r.data.Store(ep, p)
	metrics.DataPoolsTotal.Inc()

	log.WithField("endpoint", ep.String()).Debug("storage pool created")
	return p
}

// LookupDataPool returns the pool for a storage endpoint without creating it.
func (r *Registry) LookupDataPool(ep endpoint.Endpoint) (*pool.Pool, bool) {
	p, ok := r.data.Load(ep)
	if !ok {
		return nil, false
	}
	return p.(*pool.Pool), true
}

// DataConn acquires a connection to the given storage endpoint.
func (r *Registry) DataConn(ctx context.Context, ep endpoint.Endpoint) (*pool.Conn, error) {
	return r.DataPool(ep).Acquire(ctx)
}

// DataEndpoints returns the storage endpoints that have a pool, sorted.
func (r *Registry) DataEndpoints() []endpoint.Endpoint {
	var out []endpoint.Endpoint
	r.data.Range(func(k, _ any) bool {
		out = append(out, k.(endpoint.Endpoint))
		return true
	})
	endpoint.Sort(out)
	return out
}

// Stats holds pool statistics for every endpoint of a registry.
type Stats struct {
	Coordinators []pool.Stats `json:"coordinators"`
	Data         []pool.Stats `json:"data"`
}

// All returns coordinator and data stats in one slice.
func (s Stats) All() []pool.Stats {
	out := make([]pool.Stats, 0, len(s.Coordinators)+len(s.Data))
	out = append(out, s.Coordinators...)
	return append(out, s.Data...)
}

// Stats returns current statistics for all pools.
func (r *Registry) Stats() Stats {
	var s Stats
	for _, ep := range r.coordinators {
		s.Coordinators = append(s.Coordinators, r.coordinatorPools[ep].Stats())
	}
	for _, ep := range r.DataEndpoints() {
		if p, ok := r.LookupDataPool(ep); ok {
			s.Data = append(s.Data, p.Stats())
		}
	}
	return s
}

// Close closes every pool. Connections still checked out are closed when
// released.
func (r *Registry) Close() error {
	var errs []error
	for _, ep := range r.coordinators {
		if err := r.coordinatorPools[ep].Close(); err != nil && !apperrors.IsClosed(err) {
			errs = append(errs, err)
		}
	}
	r.data.Range(func(_, v any) bool {
		if err := v.(*pool.Pool).Close(); err != nil && !apperrors.IsClosed(err) {
			errs = append(errs, err)
		}
		return true
	})
	return apperrors.Join(errs...)
}
