package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/go-i2p/fdfspool/lib/errors"
	"github.com/go-i2p/fdfspool/lib/metrics"
	"github.com/go-i2p/fdfspool/lib/registry"
	"github.com/go-i2p/fdfspool/lib/transport"
)

// ClientState represents the current state of the client.
type ClientState int

const (
	// StateInitial is the initial state before Start is called.
	StateInitial ClientState = iota
	// StateStarting means the client is building its pools.
	StateStarting
	// StateRunning means connections can be acquired.
	StateRunning
	// StateStopping means the client is shutting down.
	StateStopping
	// StateStopped means the client has been stopped.
	StateStopped
)

func (s ClientState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Client owns the transport dialer and the registry directory built from
// a Config. Every configured cluster is initialized on Start.
type Client struct {
	mu     sync.RWMutex
	config *Config
	logger *slog.Logger
	state  ClientState

	dialer *transport.Dialer
	dir    *registry.Directory

	// cancel stops the metrics refresh loop
	cancel context.CancelFunc
	// done is closed when the refresh loop has exited
	done chan struct{}

	startedAt time.Time

	onStateChange func(oldState, newState ClientState)
	onError       func(err error, message string)
}

// NewClient creates a new Client with the given configuration.
// No connections are made until Start is called.
func NewClient(cfg *Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required: %w", apperrors.ErrConfiguration)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: cfg,
		logger: logger.With("component", "client"),
		state:  StateInitial,
		done:   make(chan struct{}),
	}, nil
}

// Start builds the transport dialer and the registry directory and
// initializes one registry per configured cluster. Pools dial lazily, so
// Start does not contact any tracker.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInitial && c.state != StateStopped {
		c.mu.Unlock()
		return fmt.Errorf("cannot start client in state %s", c.state)
	}
	oldState := c.state
	c.state = StateStarting
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.emitStateChange(oldState, StateStarting)

	c.logger.Info("starting client",
		"network", c.config.Transport.Network,
		"clusters", len(c.config.Clusters),
	)

	dialer, err := transport.New(c.config.TransportOptions())
	if err != nil {
		c.transitionToStopped()
		c.emitError(err, "failed to create transport")
		return fmt.Errorf("creating transport: %w", err)
	}

	dir := registry.NewDirectory(dialer, c.config.RegistryOptions())
	for _, cl := range c.config.Clusters {
		eps, err := cl.Endpoints()
		if err == nil {
			err = dir.Initialize(cl.Name, eps)
		}
		if err != nil {
			dir.Close()
			dialer.Close()
			c.transitionToStopped()
			c.emitError(err, "failed to initialize cluster")
			return fmt.Errorf("initializing cluster %q: %w", cl.Name, err)
		}
		c.logger.Debug("cluster initialized", "cluster", cl.Name, "trackers", len(eps))
	}

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.dialer = dialer
	c.dir = dir
	c.cancel = cancel
	c.state = StateRunning
	c.startedAt = time.Now()
	c.mu.Unlock()

	metrics.RecordStartTime()
	c.emitStateChange(StateStarting, StateRunning)
	c.logger.Info("client started")

	go c.run(runCtx, dir)

	return nil
}

// run refreshes the pool gauges until the context is cancelled.
func (c *Client) run(ctx context.Context, dir *registry.Directory) {
	defer close(c.done)

	interval := c.config.Metrics.Interval.Std()
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dir.UpdateMetrics()
		}
	}
}

// Stop closes every pool and the transport. Connections still checked out
// are closed when released. It blocks until the refresh loop has exited or
// ctx is done.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return fmt.Errorf("cannot stop client in state %s", c.state)
	}
	c.state = StateStopping
	cancel := c.cancel
	dir, dialer := c.dir, c.dialer
	done := c.done
	c.mu.Unlock()

	c.emitStateChange(StateRunning, StateStopping)
	c.logger.Info("stopping client")

	if cancel != nil {
		cancel()
	}

	var errs []error
	if err := dir.Close(); err != nil {
		c.emitError(err, "failed to close pools")
		errs = append(errs, err)
	}
	if err := dialer.Close(); err != nil {
		c.emitError(err, "failed to close transport")
		errs = append(errs, err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	c.transitionToStopped()
	c.emitStateChange(StateStopping, StateStopped)
	c.logger.Info("client stopped")
	return errors.Join(errs...)
}

// transitionToStopped updates the state to stopped.
func (c *Client) transitionToStopped() {
	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
}

// State returns the current state of the client.
func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Config returns the client's configuration.
func (c *Client) Config() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Directory returns the registry directory, or nil before Start.
func (c *Client) Directory() *registry.Directory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dir
}

// OpenCircuits returns the endpoints whose dial breaker is open.
func (c *Client) OpenCircuits() []string {
	c.mu.RLock()
	dialer := c.dialer
	c.mu.RUnlock()
	if dialer == nil {
		return nil
	}
	return dialer.OpenCircuits()
}

// Done returns a channel that is closed when the client has stopped.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// StartedAt returns when the client was started.
// Returns zero time if not started.
func (c *Client) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

// Uptime returns how long the client has been running.
// Returns zero if not running.
func (c *Client) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.startedAt.IsZero() || c.state != StateRunning {
		return 0
	}
	return time.Since(c.startedAt)
}

// SetOnStateChange sets a callback for state changes.
// The callback is invoked synchronously during state transitions.
func (c *Client) SetOnStateChange(callback func(oldState, newState ClientState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = callback
}

// SetOnError sets a callback for error events.
func (c *Client) SetOnError(callback func(err error, message string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

func (c *Client) emitStateChange(oldState, newState ClientState) {
	c.mu.RLock()
	callback := c.onStateChange
	c.mu.RUnlock()

	if callback != nil {
		callback(oldState, newState)
	}
}

func (c *Client) emitError(err error, message string) {
	c.mu.RLock()
	callback := c.onError
	c.mu.RUnlock()

	if callback != nil {
		callback(err, message)
	}
}
