// Package connectivity holds the outbound call policy shared by the two
// network-bound pipeline stages: a bounded retry with fixed backoff and an
// optional per-service circuit breaker.
package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// Policy retries a call a bounded number of times with a fixed backoff.
// Only errors accepted by Retryable are retried; everything else propagates
// on the first failure. The zero value makes a single attempt.
type Policy struct {
	// Service names the collaborator in logs and breaker errors.
	Service string
	// Attempts is the total number of tries including the first one.
	Attempts int
	// Backoff is the fixed wait between two attempts.
	Backoff time.Duration
	// Retryable reports whether err deserves another attempt. Nil means
	// nothing is retried.
	Retryable func(error) bool
	// Breaker, when set, rejects calls while open and records outcomes.
	Breaker *CircuitBreaker
	Logger  *slog.Logger
}

// Single returns the standard policy of the pipeline: one retry after a
// fixed backoff, for errors matched by retryable.
func Single(service string, backoff time.Duration, retryable func(error) bool) Policy {
	return Policy{
		Service:   service,
		Attempts:  2,
		Backoff:   backoff,
		Retryable: retryable,
	}
}

// Do runs fn under the policy. fn receives the 1-based attempt number.
// The last error is returned unchanged so callers can inspect its type.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if p.Breaker != nil && !p.Breaker.Allow() {
			if lastErr != nil {
				return lastErr
			}
			return &ErrCircuitOpen{Service: p.Service}
		}

		err := fn(ctx, attempt)
		if p.Breaker != nil {
			if err != nil {
				p.Breaker.RecordFailure()
			} else {
				p.Breaker.RecordSuccess()
			}
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}
		if attempt == attempts || p.Retryable == nil || !p.Retryable(err) {
			return lastErr
		}

		if p.Logger != nil {
			p.Logger.WarnContext(ctx, "retrying call",
				"service", p.Service,
				"attempt", attempt+1,
				"max_attempts", attempts,
				"backoff_ms", p.Backoff.Milliseconds(),
				"error", err)
		}
		if p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(p.Backoff):
			}
		}
	}
	return lastErr
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		v, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
