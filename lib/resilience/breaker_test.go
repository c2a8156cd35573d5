package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/go-i2p/fdfspool/lib/errors"
)

// fakeClock lets tests move a breaker's notion of time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	b := New("10.0.0.1:23000", cfg)
	b.now = clock.Now
	return b, clock
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.FailureThreshold <= 0 || cfg.SuccessThreshold <= 0 || cfg.MaxProbes <= 0 {
		t.Errorf("thresholds should be positive: %+v", cfg)
	}
	if cfg.Cooldown <= 0 {
		t.Error("Cooldown should be positive")
	}

	b := New("x", Config{})
	if b.config != cfg {
		t.Errorf("zero config should take defaults, got %+v", b.config)
	}
}

func TestBreakerInitialState(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())
	if b.State() != StateClosed {
		t.Errorf("expected initial state closed, got %v", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("closed breaker should allow: %v", err)
	}
	if b.Name() != "10.0.0.1:23000" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, Cooldown: time.Minute})

	b.Failure()
	b.Failure()
	b.Success() // resets the streak
	b.Failure()
	b.Failure()
	if b.State() != StateClosed {
		t.Fatalf("breaker opened before three consecutive failures")
	}

	b.Failure()
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	err := b.Allow()
	if !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
	if !apperrors.IsConnectivity(err) {
		t.Errorf("rejection should be a connectivity error: %v", err)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Minute, MaxProbes: 1})

	b.Failure()
	clock.Advance(30 * time.Second)
	if err := b.Allow(); err == nil {
		t.Fatal("breaker should still reject during cooldown")
	}

	clock.Advance(30 * time.Second)
	if b.State() != StateHalfOpen {
		t.Errorf("expected half-open after cooldown, got %v", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("first probe should be allowed: %v", err)
	}
	if err := b.Allow(); err == nil {
		t.Error("second concurrent probe should be rejected")
	}

	b.Success()
	if b.State() != StateClosed {
		t.Errorf("successful probe should close the breaker, got %v", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Minute})

	b.Failure()
	clock.Advance(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	b.Failure()

	if b.State() != StateOpen {
		t.Fatalf("failed probe should reopen, got %v", b.State())
	}
	if err := b.Allow(); err == nil {
		t.Error("reopened breaker should reject for a full cooldown")
	}
}

func TestBreakerAbandonFreesProbe(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, Cooldown: time.Minute, MaxProbes: 1})

	b.Failure()
	clock.Advance(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	b.Abandon()

	if err := b.Allow(); err != nil {
		t.Errorf("abandoned probe should free its slot: %v", err)
	}
}

func TestBreakerStateChangeCallback(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})

	changes := make(chan [2]State, 1)
	b.SetStateChangeCallback(func(from, to State) {
		changes <- [2]State{from, to}
	})
	b.Failure()

	select {
	case got := <-changes:
		if got != [2]State{StateClosed, StateOpen} {
			t.Errorf("transition = %v -> %v, want closed -> open", got[0], got[1])
		}
	case <-time.After(time.Second):
		t.Fatal("state change callback not called")
	}
}

func TestBreakerStats(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})
	b.Failure()
	b.Failure()

	s := b.Stats()
	if s.State != StateClosed || s.Failures != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestGroup(t *testing.T) {
	g := NewGroup(Config{FailureThreshold: 1, Cooldown: time.Hour})

	a := g.Get("a:1")
	if g.Get("a:1") != a {
		t.Error("Get should return the same breaker for a key")
	}
	if g.Get("b:1") == a {
		t.Error("different keys should get different breakers")
	}

	a.Failure()
	open := g.Open()
	if len(open) != 1 || open[0] != "a:1" {
		t.Errorf("Open() = %v, want [a:1]", open)
	}
	if err := g.Get("b:1").Allow(); err != nil {
		t.Errorf("breakers should be independent: %v", err)
	}
}
