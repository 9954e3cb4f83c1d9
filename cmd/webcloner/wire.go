package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kononmatsumoto/webcloner/auth"
	"github.com/kononmatsumoto/webcloner/clone"
	"github.com/kononmatsumoto/webcloner/connectivity"
	"github.com/kononmatsumoto/webcloner/dbopen"
	"github.com/kononmatsumoto/webcloner/extract"
	"github.com/kononmatsumoto/webcloner/fetch"
	"github.com/kononmatsumoto/webcloner/internal/config"
	"github.com/kononmatsumoto/webcloner/observability"
	"github.com/kononmatsumoto/webcloner/palette"
	"github.com/kononmatsumoto/webcloner/synth"
	"github.com/kononmatsumoto/webcloner/urlguard"
)

// app holds the wired pipeline and the resources it owns.
type app struct {
	pipeline *clone.Pipeline
	metrics  *observability.Metrics
	runs     *observability.RunLog
	guard    *auth.TokenGuard
	logger   *slog.Logger
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// build wires every stage from cfg.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{metrics: observability.NewMetrics(), logger: logger}

	guard, err := auth.NewTokenGuard(cfg.Security.TokenHash)
	if err != nil {
		return nil, err
	}
	a.guard = guard

	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	synthesizer := synth.New(provider, synth.Config{
		Timeout:      cfg.Synth.Timeout,
		RetryBackoff: cfg.Synth.RetryBackoff,
		Limits: synth.Limits{
			Navigation: cfg.Synth.Limits.Navigation,
			Buttons:    cfg.Synth.Limits.Buttons,
			Components: cfg.Synth.Limits.Components,
			Images:     cfg.Synth.Limits.Images,
			TextBlocks: cfg.Synth.Limits.TextBlocks,
			MaxBytes:   cfg.Synth.Limits.MaxBytes,
		},
		Breaker: a.breaker("synth", cfg.Synth.Breaker),
		Logger:  logger,
	})

	hooks := []clone.Hooks{a.metrics.Hooks()}
	if cfg.Ledger.Path != "" {
		db, err := dbopen.Open(cfg.Ledger.Path, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		a.runs = observability.NewRunLog(db, 256, observability.WithRunLogLogger(logger))
		a.closers = append(a.closers, db.Close, a.runs.Close)
		hooks = append(hooks, a.runs.Hooks())
	}

	a.pipeline = clone.New(clone.Config{
		Fetcher:     buildFetcher(cfg, logger, a.breaker("fetch", cfg.Fetch.Breaker)),
		Extractor:   extract.New(extract.Config{MarkdownLimit: cfg.Extract.MarkdownLimit, Logger: logger}),
		Deriver:     palette.New(palette.Config{MaxSize: cfg.Palette.MaxSize, MergeDistance: cfg.Palette.MergeDistance}),
		Synthesizer: synthesizer,
		Targets:     urlguard.Policy{AllowPrivate: cfg.Security.AllowPrivateTargets},
		Logger:      logger,
	}, clone.WithHooks(hooks...))
	return a, nil
}

// breaker returns nil when bc.Threshold is 0.
func (a *app) breaker(service string, bc config.BreakerConfig) *connectivity.CircuitBreaker {
	if bc.Threshold <= 0 {
		return nil
	}
	return connectivity.NewCircuitBreaker(
		connectivity.WithBreakerThreshold(bc.Threshold),
		connectivity.WithBreakerCooldown(bc.Cooldown),
		connectivity.WithBreakerOnChange(a.metrics.BreakerObserver(service)),
	)
}

func buildFetcher(cfg *config.Config, logger *slog.Logger, breaker *connectivity.CircuitBreaker) *fetch.Fetcher {
	fc := cfg.Fetch
	httpRenderer := func() fetch.Renderer {
		opts := []fetch.HTTPOption{
			fetch.WithHTTPLogger(logger),
			fetch.WithTargetPolicy(urlguard.Policy{AllowPrivate: cfg.Security.AllowPrivateTargets}),
		}
		if fc.UserAgent != "" {
			opts = append(opts, fetch.WithUserAgent(fc.UserAgent))
		}
		return fetch.NewHTTPRenderer(opts...)
	}
	fcfg := fetch.Config{
		Budget:       fc.Budget,
		RetryBackoff: fc.RetryBackoff,
		Breaker:      breaker,
		Logger:       logger,
	}
	if fc.Renderer == config.RendererHTTP {
		return fetch.New(httpRenderer(), fcfg)
	}

	var sessions fetch.SessionProvider
	switch fc.Renderer {
	case config.RendererCDP:
		sessions = fetch.StaticCDP{URL: fc.CDPURL}
	case config.RendererLocal:
		sessions = &fetch.LocalLauncher{Bin: fc.ChromeBin, NoSandbox: fc.NoSandbox, Logger: logger}
	default:
		sessions = fetch.NewBrowserbase(fetch.BrowserbaseConfig{
			APIKey:         fc.Browserbase.APIKey,
			ProjectID:      fc.Browserbase.ProjectID,
			BaseURL:        fc.Browserbase.BaseURL,
			SessionTimeout: fc.Browserbase.SessionTimeout,
			Logger:         logger,
		})
	}
	browser := fetch.NewBrowserRenderer(fetch.BrowserConfig{
		Sessions:          sessions,
		Stealth:           *fc.Stealth,
		NavigationTimeout: fc.NavigationTimeout,
		IdleWindow:        fc.IdleWindow,
		SettleDelay:       fc.SettleDelay,
		BlockResources:    fc.BlockResources,
		IgnoreCertErrors:  fc.IgnoreCertErrors,
		Logger:            logger,
	})

	var opts []fetch.Option
	if fc.FallbackHTTP {
		opts = append(opts, fetch.WithFallback(httpRenderer()))
	}
	return fetch.New(browser, fcfg, opts...)
}

func buildProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (synth.Provider, error) {
	sc := cfg.Synth
	var p synth.Provider
	switch sc.Provider {
	case config.ProviderGemini:
		g, err := synth.NewGemini(ctx, synth.GeminiConfig{
			APIKey:      sc.GeminiAPIKey,
			Model:       sc.Model,
			Temperature: float32(*sc.Temperature),
			MaxTokens:   int32(sc.MaxTokens),
			BaseURL:     sc.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		p = g
	default:
		p = synth.NewAnthropic(synth.AnthropicConfig{
			APIKey:      sc.AnthropicAPIKey,
			Model:       sc.Model,
			Temperature: *sc.Temperature,
			MaxTokens:   int64(sc.MaxTokens),
			BaseURL:     sc.BaseURL,
		})
	}
	return synth.Wrap(p,
		synth.WithLogging(logger),
		synth.WithRateLimit(sc.RateLimitRPS, sc.RateLimitBurst),
	), nil
}
