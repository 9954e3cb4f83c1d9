package connectivity

import (
	"sync"
	"time"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls rejected immediately
	BreakerHalfOpen                     // one probe allowed
)

// String returns the state name used in logs and metrics labels.
func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker trips after consecutive failures against one collaborator
// and lets a probe through once the reset timeout has elapsed. Safe for
// concurrent use by independent pipeline runs.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	probing   bool
	now       func() time.Time
	onChange  func(from, to BreakerState)
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerThreshold sets the consecutive failure count that opens the breaker.
func WithBreakerThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.threshold = n }
}

// WithBreakerCooldown sets how long the breaker stays open before a probe.
func WithBreakerCooldown(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.cooldown = d }
}

// WithBreakerClock overrides the clock (tests).
func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.now = fn }
}

// WithBreakerOnChange registers a callback invoked on every state change.
// It runs with the breaker lock held and must not call back into it.
func WithBreakerOnChange(fn func(from, to BreakerState)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// NewCircuitBreaker creates a breaker that opens after 5 consecutive
// failures and probes again after 30s.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		threshold: 5,
		cooldown:  30 * time.Second,
		now:       time.Now,
	}
	for _, o := range opts {
		o(cb)
	}
	if cb.threshold < 1 {
		cb.threshold = 1
	}
	return cb
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.state
}

// Allow reports whether a call may proceed. In half-open state only one
// probe is admitted until its outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	switch cb.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
	}
	return true
}

// RecordSuccess closes the breaker and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
	cb.set(BreakerClosed)
}

// RecordFailure counts a failure; a failed probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == BreakerHalfOpen || cb.failures >= cb.threshold {
		cb.openedAt = cb.now()
		cb.probing = false
		cb.set(BreakerOpen)
	}
}

// refresh moves an open breaker to half-open after the cooldown.
// Must be called with mu held.
func (cb *CircuitBreaker) refresh() {
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.set(BreakerHalfOpen)
	}
}

func (cb *CircuitBreaker) set(to BreakerState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}
