// Package resilience provides a circuit breaker that stops dialing an
// endpoint after repeated connection failures and lets a few probe dials
// through once a cooldown has passed.
//
// State transitions:
//
//	Closed (normal) -> Open (failing) -> HalfOpen (probing) -> Closed
//	                     ^                    |
//	                     +--------------------+ (if a probe fails)
package resilience

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/go-i2p/fdfspool/lib/errors"
)

// State represents the state of a breaker.
type State int

const (
	// StateClosed lets every dial through.
	StateClosed State = iota
	// StateOpen rejects dials until the cooldown has passed.
	StateOpen
	// StateHalfOpen lets a limited number of probe dials through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures breaker behavior.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of successful probes that closes it again.
	SuccessThreshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// MaxProbes is the number of dials allowed while half-open.
	MaxProbes int
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
		MaxProbes:        1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.MaxProbes <= 0 {
		c.MaxProbes = d.MaxProbes
	}
	return c
}

// Breaker tracks dial outcomes for one endpoint.
type Breaker struct {
	mu     sync.Mutex
	config Config
	name   string
	now    func() time.Time

	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time

	onStateChange func(from, to State)
}

// New creates a closed breaker. Zero fields in cfg take their defaults.
func New(name string, cfg Config) *Breaker {
	return &Breaker{
		config: cfg.withDefaults(),
		name:   name,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}

// SetStateChangeCallback sets a callback run after every state transition.
func (b *Breaker) SetStateChangeCallback(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// State returns the current state. An open breaker whose cooldown has
// passed reports StateHalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Allow reports whether a dial may proceed. It returns an error wrapping
// apperrors.ErrCircuitOpen when the dial is rejected. Every allowed dial
// must be followed by Success, Failure or Abandon.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.config.Cooldown {
			b.transitionLocked(StateHalfOpen)
			b.probes = 1
			return nil
		}
	case StateHalfOpen:
		if b.probes < b.config.MaxProbes {
			b.probes++
			return nil
		}
	}
	BreakerRejections.Inc()
	return fmt.Errorf("%w: %s", apperrors.ErrCircuitOpen, b.name)
}

// Success records a successful dial.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		b.probes--
		if b.successes >= b.config.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

// Failure records a failed dial.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	}
}

// Abandon releases a probe slot for a dial that ended without an outcome,
// such as one whose context was canceled.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
}

// transitionLocked changes state. Must be called with the lock held.
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	switch to {
	case StateClosed:
		b.failures = 0
		b.successes = 0
		b.probes = 0
	case StateOpen:
		b.openedAt = b.now()
		b.successes = 0
		b.probes = 0
		BreakerTrips.Inc()
	case StateHalfOpen:
		b.successes = 0
		b.probes = 0
	}

	log.WithField("breaker", b.name).
		WithField("from", from.String()).
		WithField("to", to.String()).
		Info("circuit breaker state transition")

	if b.onStateChange != nil {
		go b.onStateChange(from, to)
	}
}

// Stats holds a snapshot of a breaker.
type Stats struct {
	Name     string
	State    State
	Failures int
	OpenedAt time.Time
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	state := b.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:     b.name,
		State:    state,
		Failures: b.failures,
		OpenedAt: b.openedAt,
	}
}

// Group holds one breaker per key, created on first use.
type Group struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*Breaker
}

// NewGroup creates an empty group whose breakers use cfg.
func NewGroup(cfg Config) *Group {
	return &Group{
		config:   cfg.withDefaults(),
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it if needed.
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.breakers[key]; ok {
		return b
	}
	b := New(key, g.config)
	g.breakers[key] = b
	return b
}

// Open returns the names of breakers that are currently open, unsorted.
func (g *Group) Open() []string {
	g.mu.Lock()
	breakers := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		breakers = append(breakers, b)
	}
	g.mu.Unlock()

	var open []string
	for _, b := range breakers {
		if b.State() == StateOpen {
			open = append(open, b.Name())
		}
	}
	return open
}
