package transport

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/go-i2p/fdfspool/lib/errors"
)

// Limiter rate-limits connection attempts per address. Limiters are
// created lazily on first use of an address and live as long as the
// Limiter, matching the lifetime of the endpoint pools they protect.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// NewLimiter creates a limiter allowing rps dials per second per address
// with the given burst. A burst below 1 is raised to 1.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		entries: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// get returns the limiter for address, creating it if needed.
func (l *Limiter) get(address string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.entries[address]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.entries[address] = lim
	return lim
}

// Allow reports whether a dial to address may happen now, consuming a token.
func (l *Limiter) Allow(address string) bool {
	return l.get(address).Allow()
}

// Wait blocks until a dial to address is allowed or ctx is done. It fails
// immediately when ctx's deadline is too close for a token to arrive.
func (l *Limiter) Wait(ctx context.Context, address string) error {
	if err := l.get(address).Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrTransportRateLimited, address, err)
	}
	return nil
}

// Len returns the number of addresses with a limiter.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
