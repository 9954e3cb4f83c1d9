package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures a BrowserRenderer.
type BrowserConfig struct {
	Sessions SessionProvider
	// Stealth applies go-rod/stealth evasions to the page.
	Stealth bool
	// NavigationTimeout bounds navigation plus the network-idle wait.
	NavigationTimeout time.Duration
	// IdleWindow is how long the network must stay quiet to count as idle.
	IdleWindow time.Duration
	// SettleDelay is a fixed wait after idle for late layout work.
	SettleDelay time.Duration
	// ReleaseTimeout bounds the session release call.
	ReleaseTimeout time.Duration
	// BlockResources lists resource types never downloaded: images, fonts,
	// media, stylesheets. Blocking does not remove them from the DOM.
	BlockResources []string
	// IgnoreCertErrors accepts invalid TLS certificates on target sites.
	// Off by default.
	IgnoreCertErrors bool
	Logger           *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.IdleWindow <= 0 {
		c.IdleWindow = 500 * time.Millisecond
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.ReleaseTimeout <= 0 {
		c.ReleaseTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserRenderer renders pages in a leased remote browser session.
type BrowserRenderer struct {
	cfg BrowserConfig
}

// NewBrowserRenderer creates a renderer. cfg.Sessions is required.
func NewBrowserRenderer(cfg BrowserConfig) *BrowserRenderer {
	cfg.defaults()
	return &BrowserRenderer{cfg: cfg}
}

func (r *BrowserRenderer) Name() string { return "browser" }

// Render leases exactly one session, serializes the rendered DOM, and
// releases the session on every exit path.
func (r *BrowserRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	if r.cfg.Sessions == nil {
		return "", &Error{Kind: Unreachable, URL: pageURL, Err: errNoSessions}
	}
	sess, err := r.cfg.Sessions.Acquire(ctx)
	if err != nil {
		fe := classify(err, pageURL)
		return "", &Error{Kind: fe.Kind, URL: pageURL, Transient: fe.Transient, Err: fmt.Errorf("acquire session: %w", err)}
	}
	defer r.release(ctx, sess)

	log := r.cfg.Logger.With("session", sess.ID, "url", pageURL)

	b := rod.New().ControlURL(sess.ConnectURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return "", &Error{Kind: Unreachable, URL: pageURL, Transient: true, Err: fmt.Errorf("connect browser: %w", err)}
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Debug("fetch: browser close", "error", err)
		}
	}()
	applyCertPolicy(b, r.cfg.IgnoreCertErrors, log)

	page, err := r.openPage(b)
	if err != nil {
		return "", classify(fmt.Errorf("open page: %w", err), pageURL)
	}
	defer page.Close()

	if len(r.cfg.BlockResources) > 0 {
		router := blockResources(page, r.cfg.BlockResources)
		defer func() { _ = router.Stop() }()
	}

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
	defer cancel()
	nav := page.Context(navCtx)

	waitIdle := nav.WaitRequestIdle(r.cfg.IdleWindow, nil, nil, nil)
	if err := nav.Navigate(pageURL); err != nil {
		return "", classify(err, pageURL)
	}
	if err := nav.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return "", classify(ctx.Err(), pageURL)
		}
		log.Warn("fetch: wait load", "error", err)
	}
	waitIdle()

	if r.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return "", classify(ctx.Err(), pageURL)
		case <-time.After(r.cfg.SettleDelay):
		}
	}

	p := page.Context(ctx)
	if status := documentStatus(p); status > 0 {
		if se := statusError(status, pageURL); se != nil {
			return "", se
		}
	}
	html, err := p.HTML()
	if err != nil {
		return "", classify(fmt.Errorf("serialize dom: %w", err), pageURL)
	}
	log.Debug("fetch: rendered", "bytes", len(html))
	return html, nil
}

func (r *BrowserRenderer) openPage(b *rod.Browser) (*rod.Page, error) {
	if r.cfg.Stealth {
		return stealth.Page(b)
	}
	return b.Page(proto.TargetCreateTarget{URL: ""})
}

// certIgnorer is the part of *rod.Browser that toggles TLS verification.
type certIgnorer interface {
	IgnoreCertErrors(enable bool) error
}

// applyCertPolicy turns off certificate checks only when asked to. A failure
// leaves verification on and is logged.
func applyCertPolicy(b certIgnorer, ignore bool, log *slog.Logger) {
	if !ignore {
		return
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("fetch: could not disable certificate checks", "error", err)
	}
}

// release runs detached from the request context so a timed-out render
// still frees its billable session.
func (r *BrowserRenderer) release(ctx context.Context, s *Session) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ReleaseTimeout)
	defer cancel()
	if err := r.cfg.Sessions.Release(rctx, s); err != nil {
		r.cfg.Logger.Warn("fetch: session release failed", "session", s.ID, "error", err)
	}
}

// documentStatus reads the HTTP status of the main document from the
// Navigation Timing entry. Zero means unknown.
func documentStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		const e = performance.getEntriesByType("navigation")[0];
		return e && e.responseStatus ? e.responseStatus : 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// blockResources fails requests for the listed resource types.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	block := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "image", "images":
			block[proto.NetworkResourceTypeImage] = true
		case "font", "fonts":
			block[proto.NetworkResourceTypeFont] = true
		case "media":
			block[proto.NetworkResourceTypeMedia] = true
		case "stylesheet", "stylesheets":
			block[proto.NetworkResourceTypeStylesheet] = true
		}
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if block[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

var errNoSessions = errors.New("fetch: browser renderer has no session provider")
