// Package shield provides the HTTP middleware shared by the webcloner API:
// security headers, request body limits, request tracing and a concurrency
// gate for expensive routes.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(64 << 10) {
//	    r.Use(mw)
//	}
//	r.With(shield.NewGate(4, onReject).Middleware).Post("/clone", h)
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the middleware applied to every route, in order:
// SecurityHeaders, MaxBody, TraceID.
func DefaultStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		TraceID,
	}
}
