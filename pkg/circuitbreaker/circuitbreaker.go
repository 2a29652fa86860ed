// Package circuitbreaker guards outbound dependencies (the billing
// provider, the Redis broker) so a failing dependency sheds load fast
// instead of tying up request goroutines.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned without invoking the wrapped call while the
// breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
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

type Settings struct {
	Name string
	// MaxRequests is the consecutive-failure threshold that opens the
	// breaker.
	MaxRequests int
	// Interval after which the failure count decays in the closed state.
	Interval time.Duration
	// Timeout is how long the breaker stays open before allowing a
	// half-open probe.
	Timeout time.Duration
}

type CircuitBreaker struct {
	name        string
	threshold   int
	interval    time.Duration
	cooldown    time.Duration
	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	threshold := settings.MaxRequests
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := settings.Timeout
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		name:      settings.Name,
		threshold: threshold,
		interval:  settings.Interval,
		cooldown:  cooldown,
		state:     StateClosed,
	}
}

// Execute runs fn unless the breaker is open. A success in half-open
// closes the breaker; any failure in half-open reopens it immediately.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// State reports the current state, for logging and health endpoints.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			return fmt.Errorf("%w: %s", ErrOpen, cb.name)
		}
		cb.state = StateHalfOpen
	case StateClosed:
		// Stale failures from a recovered blip should not accumulate
		// toward the threshold forever.
		if cb.interval > 0 && cb.failures > 0 && time.Since(cb.lastFailure) > cb.interval {
			cb.failures = 0
		}
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
			cb.state = StateOpen
		}
		return
	}

	cb.state = StateClosed
	cb.failures = 0
}
