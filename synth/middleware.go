package synth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Middleware decorates a Provider with a cross-cutting concern.
type Middleware func(Provider) Provider

// Wrap applies middlewares in left-to-right order:
// Wrap(p, A, B) => A(B(p)).
func Wrap(p Provider, mws ...Middleware) Provider {
	out := p
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// WithRateLimit throttles outbound calls to rps with the given burst.
// rps <= 0 disables the limiter.
func WithRateLimit(rps float64, burst int) Middleware {
	return func(next Provider) Provider {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimited{next: next, lim: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	next Provider
	lim  *rate.Limiter
}

func (r *rateLimited) Name() string { return r.next.Name() }

func (r *rateLimited) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := r.lim.Wait(ctx); err != nil {
		return "", &Error{Kind: RateLimited, Err: err}
	}
	return r.next.Generate(ctx, p)
}

// WithLogging logs every call with its duration and outcome.
func WithLogging(logger *slog.Logger) Middleware {
	return func(next Provider) Provider {
		if logger == nil {
			logger = slog.Default()
		}
		return &logged{next: next, logger: logger}
	}
}

type logged struct {
	next   Provider
	logger *slog.Logger
}

func (l *logged) Name() string { return l.next.Name() }

func (l *logged) Generate(ctx context.Context, p Prompt) (string, error) {
	start := time.Now()
	out, err := l.next.Generate(ctx, p)
	attrs := []any{
		"provider", l.next.Name(),
		"prompt_bytes", len(p.System) + len(p.User),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		l.logger.WarnContext(ctx, "synth: generate failed", append(attrs, "error", err)...)
		return "", err
	}
	l.logger.DebugContext(ctx, "synth: generated", append(attrs, "output_bytes", len(out))...)
	return out, nil
}
