package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/kononmatsumoto/webcloner/urlguard"
)

// HTTPRenderer fetches the raw server response with a single GET. Client-side
// scripts never run, so it serves as the fallback when no browser session
// can be obtained.
type HTTPRenderer struct {
	client    *http.Client
	ua        string
	maxBytes  int64
	targets   urlguard.Policy
	redirects int
	logger    *slog.Logger
}

// DefaultMaxRedirects caps the redirect chain followed by HTTPRenderer.
const DefaultMaxRedirects = 5

// HTTPOption configures an HTTPRenderer.
type HTTPOption func(*HTTPRenderer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRenderer) { r.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(r *HTTPRenderer) { r.ua = ua }
}

// WithMaxBytes caps the response body.
func WithMaxBytes(n int64) HTTPOption {
	return func(r *HTTPRenderer) { r.maxBytes = n }
}

// WithTargetPolicy sets the policy every redirect hop is checked against.
// The zero policy rejects private and loopback hops.
func WithTargetPolicy(p urlguard.Policy) HTTPOption {
	return func(r *HTTPRenderer) { r.targets = p }
}

// WithMaxRedirects caps the redirect chain.
func WithMaxRedirects(n int) HTTPOption {
	return func(r *HTTPRenderer) { r.redirects = n }
}

// WithHTTPLogger sets a custom logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(r *HTTPRenderer) { r.logger = l }
}

// NewHTTPRenderer creates an HTTPRenderer.
func NewHTTPRenderer(opts ...HTTPOption) *HTTPRenderer {
	r := &HTTPRenderer{
		client:    &http.Client{Timeout: 30 * time.Second},
		ua:        "Mozilla/5.0 (compatible; webcloner/1.0)",
		maxBytes:  urlguard.MaxResponseBody,
		redirects: DefaultMaxRedirects,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	// Copy so a caller-supplied client is not mutated.
	c := *r.client
	c.CheckRedirect = r.checkRedirect
	r.client = &c
	return r
}

// checkRedirect re-validates every hop so a public URL cannot bounce the
// fetch onto a private address.
func (r *HTTPRenderer) checkRedirect(req *http.Request, via []*http.Request) error {
	origin := via[0].URL.String()
	if len(via) > r.redirects {
		return &Error{Kind: InvalidResponse, URL: origin, Err: fmt.Errorf("stopped after %d redirects", r.redirects)}
	}
	if _, err := r.targets.ValidateTarget(req.URL.String()); err != nil {
		return &Error{Kind: Blocked, URL: origin, Err: fmt.Errorf("redirect to %s: %w", req.URL.Redacted(), err)}
	}
	return nil
}

func (r *HTTPRenderer) Name() string { return "http" }

func (r *HTTPRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &Error{Kind: InvalidResponse, URL: pageURL, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("User-Agent", r.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", classify(err, pageURL)
	}
	defer resp.Body.Close()

	if se := statusError(resp.StatusCode, pageURL); se != nil {
		return "", se
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		switch mt {
		case "text/html", "application/xhtml+xml", "text/plain", "":
		default:
			return "", &Error{Kind: InvalidResponse, URL: pageURL, Err: fmt.Errorf("content type %q is not html", mt)}
		}
	}

	body, err := urlguard.LimitedReadAll(resp.Body, r.maxBytes)
	if err != nil {
		if ctx.Err() != nil {
			return "", classify(ctx.Err(), pageURL)
		}
		return "", &Error{Kind: InvalidResponse, URL: pageURL, Err: err}
	}

	if looksUnrendered(body) {
		r.logger.Warn("fetch: http body looks like an unrendered app shell", "url", pageURL, "bytes", len(body))
	}
	r.logger.Debug("fetch: fetched", "url", pageURL, "status", resp.StatusCode, "bytes", len(body))
	return string(body), nil
}
