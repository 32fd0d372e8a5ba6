// Package resilience guards outbound service calls with retries and
// per-service circuit breakers.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the position of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed admits every call.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls outright until the reset timeout passes.
	CircuitOpen
	// CircuitHalfOpen admits probe calls to test whether the service recovered.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned for calls rejected by an open circuit.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls when a breaker trips and recovers.
type CircuitBreakerConfig struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	// Default: 5.
	FailureThreshold int

	// ResetTimeout is how long an open circuit rejects calls before allowing
	// a probe. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMaxProbes is how many probes must succeed before the circuit
	// closes again. Default: 1.
	HalfOpenMaxProbes int

	// ShouldTrip decides whether an error counts toward the threshold;
	// nil counts every error.
	ShouldTrip func(err error) bool

	// OnStateChange observes transitions between states.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the standard breaker settings.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 1,
	}
}

// CircuitBreaker tracks consecutive failures for one service and rejects
// calls while the service is presumed down.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
	probes      int

	now func() time.Time // swapped in tests
}

// NewCircuitBreaker builds a closed breaker, filling config defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = 1
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed, now: time.Now}
}

// Execute runs fn unless the circuit is open, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal is Execute for calls that produce a value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.admit(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	cb.observe(err)
	return val, err
}

// State reports the effective state: an open circuit whose reset timeout has
// elapsed reads as half-open even before the next call transitions it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailure) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset forces the circuit closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probes = 0
	cb.setState(CircuitClosed)
}

// Counters exposes the failure count and raw state for monitoring.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures, cb.state
}

// admit decides whether a call may proceed, moving an expired open circuit
// to half-open.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailure) < cb.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		cb.setState(CircuitHalfOpen)
	}
	return nil
}

// observe folds one call outcome into the state machine.
func (cb *CircuitBreaker) observe(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	trips := cb.cfg.ShouldTrip
	if trips == nil {
		trips = func(e error) bool { return e != nil }
	}

	if err != nil && trips(err) {
		cb.failures++
		cb.lastFailure = cb.now()
		// Any half-open failure reopens immediately; closed circuits wait
		// for the threshold.
		if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.probes = 0
			cb.setState(CircuitOpen)
		}
		return
	}

	switch cb.state {
	case CircuitHalfOpen:
		cb.probes++
		if cb.probes >= cb.cfg.HalfOpenMaxProbes {
			cb.failures = 0
			cb.probes = 0
			cb.setState(CircuitClosed)
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

// setState transitions with the change hook; callers hold the lock.
func (cb *CircuitBreaker) setState(to CircuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// ServiceBreakers hands out one circuit breaker per named service, all built
// from the same config.
type ServiceBreakers struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig
	set map[string]*CircuitBreaker
}

// NewServiceBreakers builds an empty breaker registry.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{cfg: cfg, set: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for service, creating it on first use.
func (sb *ServiceBreakers) Get(service string) *CircuitBreaker {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	cb, ok := sb.set[service]
	if !ok {
		cb = NewCircuitBreaker(sb.cfg)
		sb.set[service] = cb
	}
	return cb
}

// States snapshots every breaker's effective state.
func (sb *ServiceBreakers) States() map[string]CircuitState {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	out := make(map[string]CircuitState, len(sb.set))
	for name, cb := range sb.set {
		out[name] = cb.State()
	}
	return out
}
