package synth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kononmatsumoto/webcloner/connectivity"
)

// Kind classifies generation failures.
type Kind string

const (
	ServiceUnavailable Kind = "service_unavailable"
	RateLimited        Kind = "rate_limited"
	InvalidOutput      Kind = "invalid_output"
)

// Error is the only error type returned by Synthesizer.Synthesize.
type Error struct {
	Kind Kind
	// Transient marks a ServiceUnavailable failure worth one more attempt
	// (5xx, network error, per-call timeout).
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synth: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("synth: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is a human-readable description for API responses.
func (e *Error) Message() string {
	switch e.Kind {
	case RateLimited:
		return "the generation service is rate limiting requests"
	case InvalidOutput:
		return "the generation service returned no usable HTML document"
	default:
		return "the generation service is unavailable"
	}
}

// IsRetryable reports whether err deserves the single retry. InvalidOutput
// never does.
func IsRetryable(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == RateLimited || (se.Kind == ServiceUnavailable && se.Transient)
}

// classifyStatus maps an HTTP status reported by a provider SDK.
func classifyStatus(status int, err error) *Error {
	switch {
	case status == 429:
		return &Error{Kind: RateLimited, Err: err}
	case status >= 500 || status == 408:
		return &Error{Kind: ServiceUnavailable, Transient: true, Err: err}
	default:
		return &Error{Kind: ServiceUnavailable, Err: err}
	}
}

// classifyTransport maps errors that carry no status: cancellation, timeouts,
// network failures and an open breaker.
func classifyTransport(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	var open *connectivity.ErrCircuitOpen
	if errors.As(err, &open) {
		return &Error{Kind: ServiceUnavailable, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: ServiceUnavailable, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ServiceUnavailable, Transient: true, Err: err}
	}
	// Network failures and anything else the SDK could not attribute.
	return &Error{Kind: ServiceUnavailable, Transient: true, Err: err}
}
