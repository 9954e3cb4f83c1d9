package observability

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kononmatsumoto/webcloner/clone"
	"github.com/kononmatsumoto/webcloner/connectivity"
	"github.com/kononmatsumoto/webcloner/dbopen"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func setupLedger(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func okResult() *clone.Result {
	return &clone.Result{
		Success:     true,
		HTMLContent: "<html><body>x</body></html>",
		Stats:       &clone.DesignStats{Title: "Example", URL: "https://example.com", ImagesCount: 3, NavigationItems: 2, ColorsCount: 1},
		Palette:     []string{"#112233"},
	}
}

func failedResult() *clone.Result {
	return &clone.Result{Error: &clone.Failure{
		Stage: clone.Fetching, Category: clone.FetchError, Kind: "timeout", Message: "fetching: timed out loading https://slow.example",
	}}
}

func TestInit_Idempotent(t *testing.T) {
	db := setupLedger(t)
	if err := Init(db); err != nil {
		t.Fatalf("second init: %v", err)
	}
}

func TestRunLog_RecordAndRecent(t *testing.T) {
	db := setupLedger(t)
	rl := NewRunLog(db, 16, WithRunLogLogger(quiet()))
	defer rl.Close()
	ctx := context.Background()

	t0 := time.Now().Add(-time.Minute)
	ok := EntryFromResult(clone.Run{ID: "run_1", URL: "https://example.com", Started: t0}, okResult(), t0.Add(1500*time.Millisecond))
	bad := EntryFromResult(clone.Run{ID: "run_2", URL: "https://slow.example", Started: t0.Add(time.Second)}, failedResult(), t0.Add(3*time.Second))
	for _, e := range []*RunEntry{ok, bad} {
		if err := rl.Record(ctx, e); err != nil {
			t.Fatalf("record %s: %v", e.RunID, err)
		}
	}

	all, err := rl.Recent(ctx, RunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].RunID != "run_2" {
		t.Fatalf("recent: got %d entries, first %v", len(all), all)
	}

	got := all[1]
	if got.Status != "succeeded" || got.DurationMs != 1500 || got.ImagesCount != 3 || got.NavigationCount != 2 {
		t.Errorf("success entry: %+v", got)
	}
	if len(got.Palette) != 1 || got.Palette[0] != "#112233" {
		t.Errorf("palette: %v", got.Palette)
	}
	if got.HTMLBytes != len(okResult().HTMLContent) {
		t.Errorf("html bytes: %d", got.HTMLBytes)
	}

	failed, err := rl.Recent(ctx, RunFilter{Status: "failed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].Stage != "fetching" || failed[0].Kind != "timeout" || failed[0].Category != "fetch_error" {
		t.Fatalf("failed entries: %+v", failed)
	}
}

func TestRunLog_HooksFlushOnClose(t *testing.T) {
	// WHAT: Entries queued through the pipeline hook are written on Close.
	// WHY: Shutdown must not lose the ledger of runs that already finished.
	db := setupLedger(t)
	rl := NewRunLog(db, 16, WithRunLogLogger(quiet()), WithFlushInterval(time.Hour))

	h := rl.Hooks()
	h.OnDone(clone.Run{ID: "run_a", URL: "https://example.com", Started: time.Now()}, okResult())
	h.OnDone(clone.Run{ID: "run_b", URL: "https://slow.example", Started: time.Now()}, failedResult())
	rl.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM clone_runs").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("rows: got %d, want 2", n)
	}
}

func TestRunLog_UnbufferedRecordAsync(t *testing.T) {
	db := setupLedger(t)
	rl := NewRunLog(db, 0, WithRunLogLogger(quiet()), WithFlushInterval(time.Hour))

	rl.RecordAsync(EntryFromResult(clone.Run{ID: "run_sync", Started: time.Now()}, okResult(), time.Now()))
	rl.Close()

	entries, err := rl.Recent(context.Background(), RunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d", len(entries))
	}
}

func TestRunLog_Cleanup(t *testing.T) {
	db := setupLedger(t)
	rl := NewRunLog(db, 4, WithRunLogLogger(quiet()))
	defer rl.Close()
	ctx := context.Background()

	old := EntryFromResult(clone.Run{ID: "run_old", Started: time.Now().AddDate(0, 0, -40)}, okResult(), time.Now())
	fresh := EntryFromResult(clone.Run{ID: "run_new", Started: time.Now()}, okResult(), time.Now())
	rl.Record(ctx, old)
	rl.Record(ctx, fresh)

	n, err := rl.Cleanup(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted: got %d, want 1", n)
	}
}

func TestMetrics_Hooks(t *testing.T) {
	m := NewMetrics()
	h := m.Hooks()
	run := clone.Run{ID: "r", Started: time.Now()}

	h.OnStage(run, clone.Fetching, 200*time.Millisecond, nil)
	h.OnStage(run, clone.Synthesizing, time.Second, errors.New("x"))
	h.OnDone(run, okResult())
	h.OnDone(run, failedResult())

	if got := testutil.ToFloat64(m.runs.WithLabelValues("succeeded", "", "")); got != 1 {
		t.Errorf("succeeded runs: got %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("failed", "fetch_error", "fetching")); got != 1 {
		t.Errorf("failed runs: got %v", got)
	}
	if n := testutil.CollectAndCount(m.stageDuration); n != 2 {
		t.Errorf("stage series: got %d", n)
	}
}

func TestMetrics_BreakerObserver(t *testing.T) {
	m := NewMetrics()
	cb := connectivity.NewCircuitBreaker(
		connectivity.WithBreakerThreshold(1),
		connectivity.WithBreakerOnChange(m.BreakerObserver("browserbase")),
	)
	cb.RecordFailure()
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("browserbase")); got != float64(connectivity.BreakerOpen) {
		t.Fatalf("breaker gauge: got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RunStarted()
	m.Rejected()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{"webcloner_runs_in_flight 1", "webcloner_runs_rejected_total 1", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if got != tt.want || (err != nil) != tt.err {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo).Info("clone: run succeeded", "run_id", "run_1")
	if !strings.Contains(buf.String(), `"run_id":"run_1"`) {
		t.Fatalf("output: %s", buf.String())
	}
}
