package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kononmatsumoto/webcloner/urlguard"
)

// DefaultBrowserbaseURL is the public Browserbase API endpoint.
const DefaultBrowserbaseURL = "https://api.browserbase.com"

// BrowserbaseConfig configures the Browserbase session client.
type BrowserbaseConfig struct {
	APIKey    string
	ProjectID string
	// BaseURL overrides the API endpoint (tests, regional endpoints).
	BaseURL string
	// SessionTimeout is the server-side lifetime cap of a session. It bounds
	// billing if a release is ever lost.
	SessionTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

func (c *BrowserbaseConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBrowserbaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 5 * time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browserbase leases remote browser sessions over the Browserbase REST API.
type Browserbase struct {
	cfg BrowserbaseConfig
}

// NewBrowserbase creates a session client.
func NewBrowserbase(cfg BrowserbaseConfig) *Browserbase {
	cfg.defaults()
	return &Browserbase{cfg: cfg}
}

type createSessionRequest struct {
	ProjectID string `json:"projectId"`
	KeepAlive bool   `json:"keepAlive"`
	Timeout   int    `json:"timeout"`
}

type createSessionResponse struct {
	ID         string `json:"id"`
	ConnectURL string `json:"connectUrl"`
}

type updateSessionRequest struct {
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
}

// Acquire creates a session. Rate limiting and server errors are reported as
// transient so the fetch policy retries them once.
func (b *Browserbase) Acquire(ctx context.Context) (*Session, error) {
	body := createSessionRequest{
		ProjectID: b.cfg.ProjectID,
		KeepAlive: false,
		Timeout:   int(b.cfg.SessionTimeout / time.Second),
	}
	var out createSessionResponse
	if err := b.do(ctx, http.MethodPost, "/v1/sessions", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.ConnectURL == "" {
		return nil, &Error{Kind: Unreachable, URL: b.cfg.BaseURL, Err: fmt.Errorf("browserbase: session response missing id or connectUrl")}
	}
	b.cfg.Logger.Debug("fetch: browserbase session created", "session", out.ID)
	return &Session{ID: out.ID, ConnectURL: out.ConnectURL}, nil
}

// Release asks Browserbase to end the session.
func (b *Browserbase) Release(ctx context.Context, s *Session) error {
	body := updateSessionRequest{ProjectID: b.cfg.ProjectID, Status: "REQUEST_RELEASE"}
	if err := b.do(ctx, http.MethodPost, "/v1/sessions/"+s.ID, body, nil); err != nil {
		return fmt.Errorf("browserbase: release %s: %w", s.ID, err)
	}
	b.cfg.Logger.Debug("fetch: browserbase session released", "session", s.ID)
	return nil
}

func (b *Browserbase) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("browserbase: encode: %w", err)
	}
	endpoint := b.cfg.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("browserbase: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BB-API-Key", b.cfg.APIKey)

	resp, err := b.cfg.HTTPClient.Do(req)
	if err != nil {
		return classify(err, b.cfg.BaseURL)
	}
	defer resp.Body.Close()

	data, err := urlguard.LimitedReadAll(resp.Body, 1<<20)
	if err != nil {
		return &Error{Kind: Unreachable, URL: b.cfg.BaseURL, Transient: true, Err: err}
	}
	if resp.StatusCode >= 300 {
		return sessionStatusError(resp.StatusCode, b.cfg.BaseURL, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: Unreachable, URL: b.cfg.BaseURL, Err: fmt.Errorf("browserbase: decode: %w", err)}
	}
	return nil
}

// sessionStatusError maps a browser-service failure. The target page was never
// reached, so every case is Unreachable; only capacity problems are transient.
func sessionStatusError(status int, endpoint string, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	transient := status == http.StatusTooManyRequests || status >= 500
	return &Error{
		Kind:      Unreachable,
		URL:       endpoint,
		Transient: transient,
		Err:       fmt.Errorf("browserbase: status %d: %s", status, msg),
	}
}
