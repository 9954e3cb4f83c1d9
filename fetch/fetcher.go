// Package fetch obtains the rendered HTML of a target page through a remote
// browser automation service.
//
// A Fetcher owns the policy around that dependency: one retry with a fixed
// backoff for timeouts and transient failures, an overall wall-clock budget,
// and an optional fallback renderer. Renderers own the mechanics; the
// browser renderer leases exactly one session per attempt and always
// releases it.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kononmatsumoto/webcloner/connectivity"
)

// Page is a rendered document. It lives only as long as the pipeline run
// that fetched it.
type Page struct {
	URL       string
	HTML      string
	FetchedAt time.Time
	// Renderer names the renderer that produced HTML ("browser", "http").
	Renderer string
}

// Renderer turns a URL into serialized HTML.
type Renderer interface {
	Name() string
	Render(ctx context.Context, pageURL string) (string, error)
}

// Config configures a Fetcher.
type Config struct {
	// Budget bounds the whole fetch: attempts, backoff and fallback.
	Budget time.Duration
	// RetryBackoff is the fixed wait before the single retry.
	RetryBackoff time.Duration
	// Breaker guards the primary renderer. Nil disables it.
	Breaker *connectivity.CircuitBreaker
	Logger  *slog.Logger
	// now overrides time.Now in tests.
	now func() time.Time
}

func (c *Config) defaults() {
	if c.Budget <= 0 {
		c.Budget = 60 * time.Second
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
}

// Option configures optional Fetcher collaborators.
type Option func(*Fetcher)

// WithFallback sets a renderer tried once when the primary has exhausted its
// attempts with a failure other than Blocked.
func WithFallback(r Renderer) Option {
	return func(f *Fetcher) { f.fallback = r }
}

// Fetcher fetches rendered pages. Safe for concurrent use; runs share no
// state beyond the injected renderers and breaker.
type Fetcher struct {
	cfg      Config
	primary  Renderer
	fallback Renderer
	policy   connectivity.Policy
}

// New creates a Fetcher around the primary renderer.
func New(primary Renderer, cfg Config, opts ...Option) *Fetcher {
	cfg.defaults()
	f := &Fetcher{cfg: cfg, primary: primary}
	for _, o := range opts {
		o(f)
	}
	f.policy = connectivity.Single(primary.Name(), cfg.RetryBackoff, IsRetryable)
	f.policy.Breaker = cfg.Breaker
	f.policy.Logger = cfg.Logger
	return f
}

// Fetch renders pageURL. Every error is a *Error.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Budget)
	defer cancel()

	html, err := connectivity.Call(ctx, f.policy, func(ctx context.Context, attempt int) (string, error) {
		return f.render(ctx, f.primary, pageURL, attempt)
	})
	renderer := f.primary.Name()

	if err != nil && f.fallback != nil && ctx.Err() == nil && !isBlocked(err) {
		f.cfg.Logger.Warn("fetch: primary renderer failed, trying fallback",
			"url", pageURL, "renderer", renderer, "fallback", f.fallback.Name(), "error", err)
		if fh, ferr := f.render(ctx, f.fallback, pageURL, 1); ferr == nil {
			html, err, renderer = fh, nil, f.fallback.Name()
		} else {
			f.cfg.Logger.Warn("fetch: fallback renderer failed", "url", pageURL, "error", ferr)
		}
	}
	if err != nil {
		fe := classify(err, pageURL)
		if ctx.Err() != nil && fe.Kind != Timeout {
			fe = &Error{Kind: Timeout, URL: pageURL, Err: fmt.Errorf("fetch budget %s exceeded: %w", f.cfg.Budget, err)}
		}
		return nil, fe
	}

	return &Page{
		URL:       pageURL,
		HTML:      html,
		FetchedAt: f.cfg.now(),
		Renderer:  renderer,
	}, nil
}

func (f *Fetcher) render(ctx context.Context, r Renderer, pageURL string, attempt int) (string, error) {
	start := f.cfg.now()
	html, err := r.Render(ctx, pageURL)
	if err != nil {
		fe := classify(err, pageURL)
		f.cfg.Logger.Info("fetch: render failed",
			"url", pageURL,
			"renderer", r.Name(),
			"attempt", attempt,
			"kind", fe.Kind,
			"transient", fe.Transient,
			"duration_ms", f.cfg.now().Sub(start).Milliseconds(),
			"error", err)
		return "", fe
	}
	if strings.TrimSpace(html) == "" {
		return "", &Error{Kind: InvalidResponse, URL: pageURL, Err: errors.New("empty document")}
	}
	return html, nil
}

func isBlocked(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == Blocked
}
