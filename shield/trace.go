package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kononmatsumoto/webcloner/idgen"
)

var traceIDs = idgen.Prefixed("req_", idgen.Default)

// TraceID assigns each request an ID, echoes it in X-Trace-ID and stores a
// per-request logger carrying it. An incoming X-Trace-ID is kept.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" || len(traceID) > 64 {
			traceID = traceIDs()
		}
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		logger.Debug("request", "remote_addr", r.RemoteAddr)
		ctx := context.WithValue(r.Context(), LoggerKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
