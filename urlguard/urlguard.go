// Package urlguard validates clone targets before any network call is made
// and provides bounded reads for untrusted upstream responses.
package urlguard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// MaxResponseBody is the default cap for upstream response bodies (10 MiB).
const MaxResponseBody int64 = 10 << 20

var (
	// ErrMalformed is returned when the input cannot be parsed as an absolute URL.
	ErrMalformed = errors.New("urlguard: malformed URL")
	// ErrUnsupportedScheme is returned for any scheme other than http/https.
	ErrUnsupportedScheme = errors.New("urlguard: only http and https schemes are allowed")
	// ErrMissingHost is returned when the URL has no host component.
	ErrMissingHost = errors.New("urlguard: URL has no host")
	// ErrPrivateTarget is returned when the host is a loopback, private or
	// link-local literal address.
	ErrPrivateTarget = errors.New("urlguard: URL targets a private or loopback address")
)

// Error describes why a target was rejected.
type Error struct {
	Input  string
	Reason error
}

func (e *Error) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("invalid url: %v", e.Reason)
	}
	return fmt.Sprintf("invalid url %q: %v", e.Input, e.Reason)
}

func (e *Error) Unwrap() error { return e.Reason }

// Message is a human-readable description for API responses.
func (e *Error) Message() string {
	switch {
	case errors.Is(e.Reason, ErrUnsupportedScheme):
		return "url must use http or https"
	case errors.Is(e.Reason, ErrMissingHost):
		return "url has no host"
	case errors.Is(e.Reason, ErrPrivateTarget):
		return "url targets a private address"
	default:
		return "url is not a valid absolute url"
	}
}

// Policy controls which targets are accepted.
type Policy struct {
	// AllowPrivate accepts loopback and private literal IP hosts.
	AllowPrivate bool
}

// ValidateTarget parses raw and checks that it is an absolute http(s) URL
// with a host. It never resolves names, so it performs no network I/O.
func (p Policy) ValidateTarget(raw string) (*url.URL, error) {
	in := strings.TrimSpace(raw)
	if in == "" {
		return nil, &Error{Input: raw, Reason: ErrMalformed}
	}
	if strings.ContainsAny(in, " \t\r\n") {
		return nil, &Error{Input: raw, Reason: ErrMalformed}
	}
	u, err := url.Parse(in)
	if err != nil {
		return nil, &Error{Input: raw, Reason: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if !u.IsAbs() {
		return nil, &Error{Input: raw, Reason: ErrMalformed}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, &Error{Input: raw, Reason: ErrUnsupportedScheme}
	}
	u.Scheme = scheme
	host := u.Hostname()
	if host == "" {
		return nil, &Error{Input: raw, Reason: ErrMissingHost}
	}
	if !p.AllowPrivate && isPrivateHost(host) {
		return nil, &Error{Input: raw, Reason: ErrPrivateTarget}
	}
	u.Fragment = ""
	return u, nil
}

// ValidateTarget applies the default policy (private targets rejected).
func ValidateTarget(raw string) (*url.URL, error) {
	return Policy{}.ValidateTarget(raw)
}

// LimitedReadAll reads at most maxBytes from r and fails when the limit is
// exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("urlguard: response exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func isPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return isPrivateIP(ip)
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	// RFC 1918, RFC 4193 and CGNAT.
	return ip.IsPrivate() || cgnat.Contains(ip)
}

var cgnat = func() *net.IPNet {
	_, n, _ := net.ParseCIDR("100.64.0.0/10")
	return n
}()
