package shield

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestMaxBody(t *testing.T) {
	// WHAT: Bodies over the cap fail to read with MaxBytesError.
	// WHY: Handlers map that error to 413 instead of buffering unbounded input.
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))

	var mbe *http.MaxBytesError
	if !errors.As(readErr, &mbe) {
		t.Fatalf("expected MaxBytesError, got %v", readErr)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	if readErr != nil {
		t.Errorf("small body: %v", readErr)
	}
}

func TestTraceID(t *testing.T) {
	var fromCtx bool
	h := TraceID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, fromCtx = r.Context().Value(LoggerKey).(*slog.Logger)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if id := rec.Header().Get("X-Trace-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("generated trace id = %q", id)
	}
	if !fromCtx {
		t.Error("logger not stored in context")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "upstream-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Trace-ID"); got != "upstream-123" {
		t.Errorf("incoming trace id not kept: %q", got)
	}
}

func TestGate(t *testing.T) {
	// WHAT: The gate admits max requests and rejects the rest with 503.
	// WHY: Each clone run holds a billable browser session and a model call.
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	rejected := 0
	g := NewGate(2, func() { rejected++ })
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/clone", nil))
		}()
	}
	<-entered
	<-entered
	if g.InFlight() != 2 {
		t.Fatalf("in flight = %d", g.InFlight())
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clone", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("third request status = %d", rec.Code)
	}
	if rejected != 1 {
		t.Errorf("onReject calls = %d", rejected)
	}

	close(release)
	wg.Wait()
	if g.InFlight() != 0 {
		t.Errorf("slots not freed: %d", g.InFlight())
	}
}

func TestGate_Unbounded(t *testing.T) {
	g := NewGate(0, nil)
	rec := httptest.NewRecorder()
	g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}
