// Package synth turns a design summary and palette into a standalone HTML
// document by prompting a generative text model.
package synth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kononmatsumoto/webcloner/connectivity"
	"github.com/kononmatsumoto/webcloner/extract"
	"github.com/kononmatsumoto/webcloner/palette"
)

const (
	DefaultTimeout     = 120 * time.Second
	DefaultMaxTokens   = 8192
	DefaultTemperature = 0.05
)

// Config configures a Synthesizer.
type Config struct {
	// Timeout bounds each provider call.
	Timeout time.Duration
	// RetryBackoff is the wait before the single retry.
	RetryBackoff time.Duration
	Limits       Limits
	Breaker      *connectivity.CircuitBreaker
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	c.Limits = c.Limits.withDefaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Synthesizer drives one Provider under the shared retry policy.
type Synthesizer struct {
	provider Provider
	cfg      Config
	policy   connectivity.Policy
}

// New creates a Synthesizer around provider.
func New(provider Provider, cfg Config) *Synthesizer {
	cfg.defaults()
	policy := connectivity.Single("synth:"+provider.Name(), cfg.RetryBackoff, IsRetryable)
	policy.Breaker = cfg.Breaker
	policy.Logger = cfg.Logger
	return &Synthesizer{provider: provider, cfg: cfg, policy: policy}
}

var errNilSummary = errors.New("synth: nil summary")

// Synthesize returns a cleaned, validated HTML document. Failures are
// *Error. Rate limiting and transient service failures are retried once;
// unusable output is not.
func (s *Synthesizer) Synthesize(ctx context.Context, summary *extract.Summary, pal palette.Palette) (string, error) {
	if summary == nil {
		return "", errNilSummary
	}
	prompt := BuildPrompt(summary, pal, s.cfg.Limits)
	log := s.cfg.Logger.With("provider", s.provider.Name(), "url", summary.URL)

	doc, err := connectivity.Call(ctx, s.policy, func(ctx context.Context, attempt int) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		raw, err := s.provider.Generate(callCtx, prompt)
		if err != nil {
			return "", classifyTransport(err)
		}
		doc := Clean(raw)
		if err := Validate(doc); err != nil {
			log.Warn("synth: invalid output", "attempt", attempt, "raw_bytes", len(raw), "error", err)
			return "", err
		}
		return doc, nil
	})
	if err != nil {
		return "", classifyTransport(err)
	}
	log.Info("synth: document generated", "bytes", len(doc), "payload_bytes", len(prompt.User))
	return doc, nil
}
