// Package clone sequences one clone run: validate the target, fetch the
// rendered page, extract a design summary, derive a palette, and synthesize
// a new document. Every run ends in a well-formed Result.
package clone

import (
	"context"
	"log/slog"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/kononmatsumoto/webcloner/extract"
	"github.com/kononmatsumoto/webcloner/fetch"
	"github.com/kononmatsumoto/webcloner/idgen"
	"github.com/kononmatsumoto/webcloner/palette"
	"github.com/kononmatsumoto/webcloner/synth"
	"github.com/kononmatsumoto/webcloner/urlguard"
)

// Fetcher obtains the rendered page. Errors should be *fetch.Error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Extractor builds a design summary. Errors should be *extract.Error.
type Extractor interface {
	Extract(rawHTML, pageURL string) (*extract.Summary, error)
}

// Deriver reduces raw color samples to a palette.
type Deriver interface {
	Derive(samples []string) palette.Palette
}

// Synthesizer generates the new document. Errors should be *synth.Error.
type Synthesizer interface {
	Synthesize(ctx context.Context, s *extract.Summary, p palette.Palette) (string, error)
}

// Run identifies one pipeline run in hooks.
type Run struct {
	ID      string
	URL     string
	Started time.Time
}

// Hooks observe runs. Either field may be nil. Hooks run synchronously on
// the run's goroutine.
type Hooks struct {
	OnStage func(run Run, stage Stage, d time.Duration, err error)
	OnDone  func(run Run, res *Result)
}

// Config holds the stage collaborators. Synthesizer may be nil for a
// pipeline that only serves Scrape.
type Config struct {
	Fetcher     Fetcher
	Extractor   Extractor
	Deriver     Deriver
	Synthesizer Synthesizer
	// Targets is the URL acceptance policy of the Validating stage.
	Targets urlguard.Policy
	Logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHooks adds observers. Hooks from several calls all run, in order.
func WithHooks(h ...Hooks) Option {
	return func(p *Pipeline) { p.hooks = append(p.hooks, h...) }
}

// WithIDGenerator overrides run ID generation (tests).
func WithIDGenerator(g idgen.Generator) Option {
	return func(p *Pipeline) { p.ids = g }
}

// Pipeline runs clones. Safe for concurrent use; runs share only the
// injected collaborators.
type Pipeline struct {
	cfg    Config
	hooks  []Hooks
	ids    idgen.Generator
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		ids:    idgen.RunID,
		now:    time.Now,
		logger: cfg.Logger,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Clone runs every stage. The run is detached from the caller's
// cancellation and completes or fails on its own stage timeouts.
func (p *Pipeline) Clone(ctx context.Context, req Request) *Result {
	return p.run(ctx, req, true)
}

// Scrape runs every stage except synthesis and returns the stats, palette
// and full design summary.
func (p *Pipeline) Scrape(ctx context.Context, req Request) *Result {
	return p.run(ctx, req, false)
}

func (p *Pipeline) run(ctx context.Context, req Request, synthesize bool) (res *Result) {
	ctx = context.WithoutCancel(ctx)
	run := Run{ID: p.ids(), URL: req.URL, Started: p.now()}
	log := p.logger.With("run_id", run.ID)

	defer func() {
		res.RunID = run.ID
		if res.Success {
			log.Info("clone: run succeeded", "url", req.URL,
				"duration_ms", time.Since(run.Started).Milliseconds(),
				"bytes", len(res.HTMLContent))
		} else {
			log.Warn("clone: run failed", "url", req.URL,
				"stage", res.Error.Stage, "kind", res.Error.Kind,
				"duration_ms", time.Since(run.Started).Milliseconds())
		}
		for _, h := range p.hooks {
			if h.OnDone != nil {
				h.OnDone(run, res)
			}
		}
	}()

	target, err := stage(p, run, log, Validating, func() (*url.URL, error) {
		return p.cfg.Targets.ValidateTarget(req.URL)
	})
	if err != nil {
		return failed(Validating, err)
	}

	page, err := stage(p, run, log, Fetching, func() (*fetch.Page, error) {
		return present(p.cfg.Fetcher.Fetch(ctx, target.String()))
	})
	if err != nil {
		return failed(Fetching, err)
	}

	summary, err := stage(p, run, log, Extracting, func() (*extract.Summary, error) {
		return present(p.cfg.Extractor.Extract(page.HTML, page.URL))
	})
	if err != nil {
		return failed(Extracting, err)
	}

	pal, err := stage(p, run, log, DerivingPalette, func() (palette.Palette, error) {
		return p.cfg.Deriver.Derive(summary.ColorSamples), nil
	})
	if err != nil {
		return failed(DerivingPalette, err)
	}

	stats := designStats(summary, pal)
	if !synthesize {
		return &Result{Success: true, Stats: stats, Palette: pal.Hex(), Summary: summary}
	}

	doc, err := stage(p, run, log, Synthesizing, func() (string, error) {
		if p.cfg.Synthesizer == nil {
			return "", errNoSynthesizer
		}
		doc, err := p.cfg.Synthesizer.Synthesize(ctx, summary, pal)
		if err == nil && doc == "" {
			err = &synth.Error{Kind: synth.InvalidOutput, Err: errNoOutput}
		}
		return doc, err
	})
	if err != nil {
		return failed(Synthesizing, err)
	}
	return &Result{Success: true, HTMLContent: doc, Stats: stats, Palette: pal.Hex()}
}

// stage times fn, converts a panic into an error and notifies hooks.
func stage[T any](p *Pipeline, run Run, log *slog.Logger, st Stage, fn func() (T, error)) (out T, err error) {
	start := p.now()
	defer func() {
		if r := recover(); r != nil {
			pe := &panicError{value: r, stack: debug.Stack()}
			log.Error("clone: stage panicked", "stage", st, "panic", r, "stack", string(pe.stack))
			err = pe
		}
		d := p.now().Sub(start)
		if err != nil {
			log.Debug("clone: stage failed", "stage", st, "duration_ms", d.Milliseconds(), "error", err)
		} else {
			log.Debug("clone: stage done", "stage", st, "duration_ms", d.Milliseconds())
		}
		for _, h := range p.hooks {
			if h.OnStage != nil {
				h.OnStage(run, st, d, err)
			}
		}
	}()
	return fn()
}

// present turns a nil result without error into an internal failure.
func present[T any](v *T, err error) (*T, error) {
	if err == nil && v == nil {
		return nil, errNoOutput
	}
	return v, err
}

func failed(st Stage, err error) *Result {
	return &Result{Success: false, Error: failure(st, err)}
}

func designStats(s *extract.Summary, pal palette.Palette) *DesignStats {
	return &DesignStats{
		Title:            s.Title,
		URL:              s.URL,
		TextContentCount: len(s.TextBlocks),
		ImagesCount:      len(s.Images),
		ColorsCount:      len(pal),
		ComponentsCount:  len(s.Components),
		NavigationItems:  len(s.Navigation),
		ButtonsCount:     len(s.Buttons),
	}
}
