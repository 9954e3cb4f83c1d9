// Package server exposes the clone pipeline over HTTP and MCP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kononmatsumoto/webcloner/auth"
	"github.com/kononmatsumoto/webcloner/clone"
	"github.com/kononmatsumoto/webcloner/observability"
	"github.com/kononmatsumoto/webcloner/shield"
)

// DefaultMaxBody caps request bodies.
const DefaultMaxBody = 64 << 10

// Cloner runs pipelines. *clone.Pipeline implements it.
type Cloner interface {
	Clone(ctx context.Context, req clone.Request) *clone.Result
	Scrape(ctx context.Context, req clone.Request) *clone.Result
}

// RunLister lists recorded runs. *observability.RunLog implements it.
type RunLister interface {
	Recent(ctx context.Context, f observability.RunFilter) ([]*observability.RunEntry, error)
}

// Config wires the HTTP surface. Cloner is required; everything else is
// optional.
type Config struct {
	Cloner  Cloner
	Guard   *auth.TokenGuard
	Metrics *observability.Metrics
	Runs    RunLister
	// MaxConcurrent bounds in-flight /clone and /scrape runs. 0 is unbounded.
	MaxConcurrent int
	MaxBody       int64
	// MCP mounts the streamable MCP endpoint at /mcp.
	MCP     bool
	Version string
	Logger  *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	cfg  Config
	gate *shield.Gate
	mcp  *mcp.Server
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg}

	var onReject func()
	if cfg.Metrics != nil {
		onReject = cfg.Metrics.Rejected
	}
	s.gate = shield.NewGate(cfg.MaxConcurrent, onReject)
	if cfg.MCP {
		s.mcp = NewMCPServer(cfg.Cloner, cfg.Version)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.cfg.MaxBody) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.cfg.Guard.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(s.gate.Middleware)
			r.Post("/clone", s.runHandler(s.cfg.Cloner.Clone))
			r.Post("/scrape", s.runHandler(s.cfg.Cloner.Scrape))
		})

		if s.cfg.Runs != nil {
			r.Get("/runs", s.handleRuns)
		}
		if s.mcp != nil {
			h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
			r.Handle("/mcp", h)
		}
	})
	return r
}

func (s *Server) runHandler(run func(context.Context, clone.Request) *clone.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clone.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}

		if m := s.cfg.Metrics; m != nil {
			m.RunStarted()
			defer m.RunFinished()
		}
		res := run(r.Context(), req)

		status := StatusFor(res)
		if status >= http.StatusInternalServerError && res.Error != nil {
			shield.GetLogger(r.Context()).Warn("server: run failed",
				"run_id", res.RunID, "status", status, "error", res.Error.Message)
		}
		writeJSON(w, status, res)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := observability.RunFilter{Status: q.Get("status"), Limit: queryInt(r, "limit", 50)}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		f.Since = &t
	}
	runs, err := s.cfg.Runs.Recent(r.Context(), f)
	if err != nil {
		shield.GetLogger(r.Context()).Error("server: list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []*observability.RunEntry{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// StatusFor maps a result to its HTTP status.
func StatusFor(res *clone.Result) int {
	if res.Success {
		return http.StatusOK
	}
	if res.Error == nil {
		return http.StatusInternalServerError
	}
	switch res.Error.Category {
	case clone.InvalidRequest:
		return http.StatusBadRequest
	case clone.FetchError, clone.GenerationError:
		return http.StatusBadGateway
	case clone.ExtractionError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
