package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/go-rod/rod"
	"github.com/kononmatsumoto/webcloner/connectivity"
)

// Kind classifies fetch failures.
type Kind string

const (
	Timeout         Kind = "timeout"
	Unreachable     Kind = "unreachable"
	Blocked         Kind = "blocked"
	InvalidResponse Kind = "invalid_response"
)

// Error is the only error type returned by Fetcher.Fetch.
type Error struct {
	Kind Kind
	URL  string
	// Transient marks failures worth one more attempt even though their
	// kind is not Timeout (connection resets, rate-limited sessions).
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch: %s %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("fetch: %s %s", e.Kind, e.URL)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is a human-readable description for API responses.
func (e *Error) Message() string {
	switch e.Kind {
	case Timeout:
		return fmt.Sprintf("timed out loading %s", e.URL)
	case Blocked:
		return fmt.Sprintf("access to %s was blocked", e.URL)
	case InvalidResponse:
		return fmt.Sprintf("invalid response from %s", e.URL)
	default:
		return fmt.Sprintf("could not reach %s", e.URL)
	}
}

// IsRetryable reports whether err deserves the single retry: timeouts and
// failures flagged transient.
func IsRetryable(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == Timeout || fe.Transient
}

// classify maps any renderer or transport error onto the fetch taxonomy.
func classify(err error, pageURL string) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: Timeout, URL: pageURL, Err: err}
	}
	var open *connectivity.ErrCircuitOpen
	if errors.As(err, &open) {
		return &Error{Kind: Unreachable, URL: pageURL, Err: err}
	}
	var nav *rod.NavigationError
	if errors.As(err, &nav) {
		return classifyNavigation(nav, pageURL)
	}
	var dns *net.DNSError
	if errors.As(err, &dns) {
		return &Error{Kind: Unreachable, URL: pageURL, Transient: dns.IsTemporary, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: Timeout, URL: pageURL, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return &Error{Kind: Unreachable, URL: pageURL, Err: err}
	}
	// Resets, EOFs and other mid-flight transport failures.
	return &Error{Kind: Unreachable, URL: pageURL, Transient: true, Err: err}
}

// classifyNavigation maps Chromium net error codes reported by navigation.
func classifyNavigation(nav *rod.NavigationError, pageURL string) *Error {
	reason := nav.Reason
	e := &Error{URL: pageURL, Err: nav}
	switch {
	case strings.Contains(reason, "TIMED_OUT"):
		e.Kind = Timeout
	case strings.Contains(reason, "BLOCKED"), strings.Contains(reason, "ACCESS_DENIED"):
		e.Kind = Blocked
	case strings.Contains(reason, "CONNECTION_RESET"), strings.Contains(reason, "CONNECTION_CLOSED"),
		strings.Contains(reason, "NETWORK_CHANGED"), strings.Contains(reason, "INTERNET_DISCONNECTED"):
		e.Kind = Unreachable
		e.Transient = true
	case strings.Contains(reason, "INVALID_RESPONSE"), strings.Contains(reason, "EMPTY_RESPONSE"),
		strings.Contains(reason, "TOO_MANY_REDIRECTS"), strings.Contains(reason, "ABORTED"):
		e.Kind = InvalidResponse
	default:
		e.Kind = Unreachable
	}
	return e
}

// statusError maps an HTTP status of the target document. It returns nil for
// statuses that carry a usable page.
func statusError(status int, pageURL string) *Error {
	if status < 400 {
		return nil
	}
	err := fmt.Errorf("status %d", status)
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: Blocked, URL: pageURL, Transient: true, Err: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		status == http.StatusUnavailableForLegalReasons:
		return &Error{Kind: Blocked, URL: pageURL, Err: err}
	case status == http.StatusNotFound || status == http.StatusGone:
		return &Error{Kind: Unreachable, URL: pageURL, Err: err}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &Error{Kind: Timeout, URL: pageURL, Err: err}
	case status >= 500:
		return &Error{Kind: Unreachable, URL: pageURL, Transient: true, Err: err}
	default:
		return &Error{Kind: InvalidResponse, URL: pageURL, Err: err}
	}
}
