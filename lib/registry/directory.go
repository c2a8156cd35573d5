package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-i2p/fdfspool/lib/endpoint"
	apperrors "github.com/go-i2p/fdfspool/lib/errors"
	"github.com/go-i2p/fdfspool/lib/metrics"
	"github.com/go-i2p/fdfspool/lib/pool"
)

// Directory maps client identifiers to their Registry. It is created once
// at start-up and passed to whatever needs connections, so several
// independently configured clusters can be used from one process.
type Directory struct {
	dialer pool.Dialer
	opts   Options

	mu         sync.RWMutex
	registries map[string]*Registry
	closed     bool
}

// NewDirectory creates an empty directory. Every Registry it creates uses
// dialer and opts.
func NewDirectory(dialer pool.Dialer, opts Options) *Directory {
	return &Directory{
		dialer:     dialer,
		opts:       opts.withDefaults(),
		registries: make(map[string]*Registry),
	}
}

// Initialize registers a Registry for id built from coordinators. If id is
// already registered the call is a no-op and the existing Registry is kept.
func (d *Directory) Initialize(id string, coordinators []endpoint.Endpoint) error {
	if id == "" {
		return apperrors.ErrRegistryInvalidClient
	}
	if len(coordinators) == 0 {
		return fmt.Errorf("%w: client %q", apperrors.ErrRegistryNoCoordinators, id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("registry: directory %w", apperrors.ErrClosed)
	}
	if _, ok := d.registries[id]; ok {
		log.WithField("client", id).Debug("client already initialized, keeping existing registry")
		return nil
	}

	d.registries[id] = New(coordinators, d.dialer, d.opts)
	metrics.RegistriesTotal.Inc()

	log.WithField("client", id).WithField("coordinators", len(coordinators)).Debug("client initialized")
	return nil
}

// Get returns the Registry for id. It never creates one.
func (d *Directory) Get(id string) (*Registry, error) {
	d.mu.RLock()
	r, ok := d.registries[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrRegistryUnknownClient, id)
	}
	return r, nil
}

// GetCoordinatorConnection acquires a tracker connection for client id.
func (d *Directory) GetCoordinatorConnection(ctx context.Context, id string) (*pool.Conn, error) {
	r, err := d.Get(id)
	if err != nil {
		return nil, err
	}
	return r.CoordinatorConn(ctx)
}

// GetDataConnection acquires a connection to storage endpoint ep for client id.
func (d *Directory) GetDataConnection(ctx context.Context, id string, ep endpoint.Endpoint) (*pool.Conn, error) {
	r, err := d.Get(id)
	if err != nil {
		return nil, err
	}
	return r.DataConn(ctx, ep)
}

// IDs returns the initialized client identifiers, sorted.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.registries))
	for id := range d.registries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns the stats of every registry keyed by client id.
func (d *Directory) Stats() map[string]Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]Stats, len(d.registries))
	for id, r := range d.registries {
		out[id] = r.Stats()
	}
	return out
}

// UpdateMetrics refreshes the pool gauges from the current stats of every
// registry.
func (d *Directory) UpdateMetrics() {
	var all []pool.Stats
	for _, s := range d.Stats() {
		all = append(all, s.All()...)
	}
	pool.UpdateMetrics(all...)
}

// Close closes every registry. Initialize fails afterwards; Get keeps
// returning the closed registries, whose pools reject new acquires.
func (d *Directory) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	registries := make([]*Registry, 0, len(d.registries))
	for _, r := range d.registries {
		registries = append(registries, r)
	}
	d.mu.Unlock()

	var errs []error
	for _, r := range registries {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	log.WithField("clients", len(registries)).Debug("directory closed")
	return apperrors.Join(errs...)
}
