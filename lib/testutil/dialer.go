package testutil

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// ErrDialRefused is returned by Dialer while failing is set.
var ErrDialRefused = errors.New("connection refused")

// Dialer hands out in-memory connections and records dials per address.
// The zero value is ready to use.
type Dialer struct {
	mu      sync.Mutex
	dials   map[string]int
	failing bool
	delay   time.Duration
}

// SetFailing makes subsequent dials fail with ErrDialRefused.
func (d *Dialer) SetFailing(failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = failing
}

// SetDelay makes subsequent dials take at least delay.
func (d *Dialer) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Dials returns how many dials were attempted to address.
func (d *Dialer) Dials(address string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[address]
}

// DialContext implements pool.Dialer.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	if d.dials == nil {
		d.dials = make(map[string]int)
	}
	d.dials[address]++
	failing, delay := d.failing, d.delay
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return nil, ErrDialRefused
	}

	client, server := net.Pipe()
	server.Close()
	return client, nil
}
