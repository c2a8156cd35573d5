// Package transport builds the dialers the endpoint pools use to establish
// connections to trackers and storage nodes. Plain TCP is the default;
// endpoints can also be reached over I2P streaming through a SAM bridge.
// Either can be wrapped with a per-endpoint dial rate limit and a
// per-endpoint circuit breaker.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	apperrors "github.com/go-i2p/fdfspool/lib/errors"
	"github.com/go-i2p/fdfspool/lib/pool"
	"github.com/go-i2p/fdfspool/lib/resilience"
)

// Supported networks.
const (
	NetworkTCP = "tcp"
	NetworkI2P = "i2p"
)

// Default configuration values
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultKeepAlive   = 30 * time.Second
	DefaultSAMAddress  = "127.0.0.1:7656"
	DefaultTunnelName  = "fdfspool"
)

// Config configures how connections are established.
type Config struct {
	// Network is NetworkTCP or NetworkI2P.
	Network string
	// DialTimeout bounds a single connection attempt. Zero disables it.
	DialTimeout time.Duration
	// KeepAlive is the TCP keep-alive period. Negative disables keep-alives.
	KeepAlive time.Duration
	// DialRate limits new connections per endpoint per second. Zero disables it.
	DialRate float64
	// DialBurst is the number of dials allowed at once before DialRate applies.
	DialBurst int
	// BreakerThreshold is the number of consecutive dial failures after
	// which dials to that endpoint are rejected for BreakerCooldown. Zero
	// disables the breaker.
	BreakerThreshold int
	// BreakerCooldown is how long an open breaker rejects dials before
	// letting a probe through.
	BreakerCooldown time.Duration
	// SAMAddress is the SAM bridge used when Network is NetworkI2P.
	SAMAddress string
	// TunnelName names the I2P tunnel when Network is NetworkI2P.
	TunnelName string
	// SAMOptions are tunnel options passed to the SAM bridge.
	SAMOptions []string
}

// DefaultConfig returns a Config for plain TCP.
func DefaultConfig() Config {
	return Config{
		Network:     NetworkTCP,
		DialTimeout: DefaultDialTimeout,
		KeepAlive:   DefaultKeepAlive,
		SAMAddress:  DefaultSAMAddress,
		TunnelName:  DefaultTunnelName,
	}
}

// Dialer is the pool.Dialer handed to every endpoint pool of a directory.
// It owns any long-lived transport session and must be closed after the
// pools using it.
type Dialer struct {
	network  string
	base     pool.Dialer
	limiter  *Limiter
	breakers *resilience.Group
	timeout  time.Duration

	mu     sync.Mutex
	closer interface{ Close() error }
	closed bool
}

// New builds the dialer described by cfg.
func New(cfg Config) (*Dialer, error) {
	d := &Dialer{
		network: cfg.Network,
		timeout: cfg.DialTimeout,
	}

	switch cfg.Network {
	case NetworkTCP, "":
		d.network = NetworkTCP
		d.base = &net.Dialer{KeepAlive: cfg.KeepAlive}
	case NetworkI2P:
		g := NewGarlicDialer(cfg.TunnelName, cfg.SAMAddress, cfg.SAMOptions)
		d.base = g
		d.closer = g
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrTransportUnsupported, cfg.Network)
	}

	if cfg.DialRate > 0 {
		d.limiter = NewLimiter(cfg.DialRate, cfg.DialBurst)
	}
	if cfg.BreakerThreshold > 0 {
		d.breakers = resilience.NewGroup(resilience.Config{
			FailureThreshold: cfg.BreakerThreshold,
			Cooldown:         cfg.BreakerCooldown,
		})
	}

	log.WithField("network", d.network).WithField("dialRate", cfg.DialRate).Debug("transport dialer created")
	return d, nil
}

// Network returns the configured network.
func (d *Dialer) Network() string {
	return d.network
}

// DialContext connects to address. An open circuit breaker rejects the
// dial immediately; otherwise the endpoint's dial limiter is waited on
// first when one is configured.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("transport: %w", apperrors.ErrClosed)
	}

	var breaker *resilience.Breaker
	if d.breakers != nil {
		breaker = d.breakers.Get(address)
		if err := breaker.Allow(); err != nil {
			return nil, err
		}
	}

	parent := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, address); err != nil {
			if breaker != nil {
				breaker.Abandon()
			}
			return nil, err
		}
	}

	// A dial that runs into DialTimeout counts as a failure; only the
	// caller giving up abandons it.
	conn, err := d.base.DialContext(ctx, network, address)
	if breaker != nil {
		switch {
		case err == nil:
			breaker.Success()
		case parent.Err() != nil:
			breaker.Abandon()
		default:
			breaker.Failure()
		}
	}
	return conn, err
}

// OpenCircuits returns the addresses whose circuit breaker is open.
func (d *Dialer) OpenCircuits() []string {
	if d.breakers == nil {
		return nil
	}
	return d.breakers.Open()
}

// Close releases the transport session, if any. Further dials fail.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}
