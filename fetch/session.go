package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/kononmatsumoto/webcloner/idgen"
)

// Session is one remote browser lease. ConnectURL is a DevTools websocket
// endpoint rod can connect to.
type Session struct {
	ID         string
	ConnectURL string
}

// SessionProvider leases browser sessions. Every successful Acquire must be
// matched by exactly one Release, whatever the outcome of the render.
type SessionProvider interface {
	Acquire(ctx context.Context) (*Session, error)
	Release(ctx context.Context, s *Session) error
}

// StaticCDP hands out a fixed DevTools endpoint, e.g. a self-hosted browser
// pool behind a load balancer. An http:// endpoint is resolved to its
// websocket URL on each Acquire. Release is a no-op.
type StaticCDP struct {
	URL string
}

func (s StaticCDP) Acquire(ctx context.Context) (*Session, error) {
	u, err := launcher.ResolveURL(s.URL)
	if err != nil {
		return nil, &Error{Kind: Unreachable, URL: s.URL, Transient: true, Err: fmt.Errorf("resolve devtools url: %w", err)}
	}
	return &Session{ID: "static", ConnectURL: u}, nil
}

func (StaticCDP) Release(context.Context, *Session) error { return nil }

// LocalLauncher starts one headless Chromium per session on this host.
type LocalLauncher struct {
	// Bin is the browser binary. Empty lets rod find or download one.
	Bin       string
	NoSandbox bool
	Logger    *slog.Logger

	mu       sync.Mutex
	launched map[string]*launcher.Launcher
}

func (l *LocalLauncher) Acquire(ctx context.Context) (*Session, error) {
	ln := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(l.NoSandbox).
		Set("disable-blink-features", "AutomationControlled")
	if l.Bin != "" {
		ln = ln.Bin(l.Bin)
	}
	u, err := ln.Launch()
	if err != nil {
		return nil, &Error{Kind: Unreachable, URL: "local-browser", Err: fmt.Errorf("launch: %w", err)}
	}

	id := idgen.Prefixed("loc_", idgen.Default)()
	l.mu.Lock()
	if l.launched == nil {
		l.launched = make(map[string]*launcher.Launcher)
	}
	l.launched[id] = ln
	l.mu.Unlock()

	l.logger().Debug("fetch: local browser launched", "session", id)
	return &Session{ID: id, ConnectURL: u}, nil
}

func (l *LocalLauncher) Release(_ context.Context, s *Session) error {
	l.mu.Lock()
	ln := l.launched[s.ID]
	delete(l.launched, s.ID)
	l.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("fetch: release: unknown local session %s", s.ID)
	}
	ln.Kill()
	ln.Cleanup()
	return nil
}

func (l *LocalLauncher) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
