package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kononmatsumoto/webcloner/clone"
	"github.com/kononmatsumoto/webcloner/dbopen"
)

// RunEntry is one finished pipeline run. Generated HTML is not stored, only
// its size.
type RunEntry struct {
	RunID      string    `json:"run_id"`
	URL        string    `json:"url"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Status     string    `json:"status"` // "succeeded" or "failed"

	Stage    string `json:"stage,omitempty"`
	Category string `json:"category,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`

	Title           string   `json:"title,omitempty"`
	TextCount       int      `json:"text_count"`
	ImagesCount     int      `json:"images_count"`
	ColorsCount     int      `json:"colors_count"`
	ComponentsCount int      `json:"components_count"`
	NavigationCount int      `json:"navigation_count"`
	ButtonsCount    int      `json:"buttons_count"`
	Palette         []string `json:"palette,omitempty"`
	HTMLBytes       int      `json:"html_bytes"`
}

// RunFilter selects entries for Recent.
type RunFilter struct {
	Status string // empty means all
	Since  *time.Time
	Limit  int // default 50
}

// RunLog persists run entries asynchronously in batches.
type RunLog struct {
	db     *sql.DB
	logger *slog.Logger
	ch     chan *RunEntry
	stop   chan struct{}
	done   chan struct{}
	flush  time.Duration
	once   sync.Once
}

// RunLogOption configures a RunLog.
type RunLogOption func(*RunLog)

// WithRunLogLogger sets the logger used for persistence errors.
func WithRunLogLogger(l *slog.Logger) RunLogOption {
	return func(r *RunLog) { r.logger = l }
}

// WithFlushInterval sets how often buffered entries are written. Default 2s.
func WithFlushInterval(d time.Duration) RunLogOption {
	return func(r *RunLog) { r.flush = d }
}

// NewRunLog creates a ledger on db, which must already carry Schema.
// Recommended bufferSize: 256.
func NewRunLog(db *sql.DB, bufferSize int, opts ...RunLogOption) *RunLog {
	r := &RunLog{
		db:     db,
		logger: slog.Default(),
		ch:     make(chan *RunEntry, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		flush:  2 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	go r.flushLoop()
	return r
}

// Record inserts an entry synchronously.
func (r *RunLog) Record(ctx context.Context, e *RunEntry) error {
	return r.insert(ctx, r.db, e)
}

// RecordAsync queues an entry. Falls back to a synchronous insert when the
// buffer is full.
func (r *RunLog) RecordAsync(e *RunEntry) {
	select {
	case r.ch <- e:
	default:
		r.logger.Warn("observability: run log buffer full, sync fallback", "run_id", e.RunID)
		if err := r.Record(context.Background(), e); err != nil {
			r.logger.Error("observability: run log sync fallback", "run_id", e.RunID, "error", err)
		}
	}
}

// Hooks returns pipeline hooks that record every finished run.
func (r *RunLog) Hooks() clone.Hooks {
	return clone.Hooks{
		OnDone: func(run clone.Run, res *clone.Result) {
			r.RecordAsync(EntryFromResult(run, res, time.Now()))
		},
	}
}

// EntryFromResult builds a ledger entry from a finished run.
func EntryFromResult(run clone.Run, res *clone.Result, finished time.Time) *RunEntry {
	e := &RunEntry{
		RunID:      run.ID,
		URL:        run.URL,
		StartedAt:  run.Started,
		DurationMs: finished.Sub(run.Started).Milliseconds(),
		Status:     "succeeded",
		Palette:    res.Palette,
		HTMLBytes:  len(res.HTMLContent),
	}
	if s := res.Stats; s != nil {
		e.Title = s.Title
		e.TextCount = s.TextContentCount
		e.ImagesCount = s.ImagesCount
		e.ColorsCount = s.ColorsCount
		e.ComponentsCount = s.ComponentsCount
		e.NavigationCount = s.NavigationItems
		e.ButtonsCount = s.ButtonsCount
	}
	if !res.Success && res.Error != nil {
		e.Status = "failed"
		e.Stage = string(res.Error.Stage)
		e.Category = string(res.Error.Category)
		e.Kind = res.Error.Kind
		e.Message = res.Error.Message
	}
	return e
}

// Recent returns entries newest first.
func (r *RunLog) Recent(ctx context.Context, f RunFilter) ([]*RunEntry, error) {
	q := `SELECT run_id, url, started_at, duration_ms, status, stage, category,
		kind, message, title, text_count, images_count, colors_count,
		components_count, navigation_count, buttons_count, palette, html_bytes
		FROM clone_runs WHERE 1=1`
	var args []any
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Since != nil {
		q += " AND started_at >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	limit := 50
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY started_at DESC, run_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query runs: %w", err)
	}
	defer rows.Close()

	var out []*RunEntry
	for rows.Next() {
		var e RunEntry
		var started int64
		var pal string
		if err := rows.Scan(&e.RunID, &e.URL, &started, &e.DurationMs, &e.Status,
			&e.Stage, &e.Category, &e.Kind, &e.Message, &e.Title,
			&e.TextCount, &e.ImagesCount, &e.ColorsCount, &e.ComponentsCount,
			&e.NavigationCount, &e.ButtonsCount, &pal, &e.HTMLBytes); err != nil {
			return nil, fmt.Errorf("observability: scan run: %w", err)
		}
		e.StartedAt = time.UnixMilli(started)
		if err := json.Unmarshal([]byte(pal), &e.Palette); err != nil {
			return nil, fmt.Errorf("observability: decode palette of %s: %w", e.RunID, err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retentionDays.
func (r *RunLog) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res, err := dbopen.Exec(ctx, r.db, "DELETE FROM clone_runs WHERE started_at < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup runs: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine. Safe to call more
// than once.
func (r *RunLog) Close() error {
	r.once.Do(func() { close(r.stop) })
	<-r.done
	return nil
}

func (r *RunLog) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.flush)
	defer ticker.Stop()
	batch := make([]*RunEntry, 0, 64)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := dbopen.RunTx(ctx, r.db, func(tx *sql.Tx) error {
			for _, e := range batch {
				if err := r.insert(ctx, tx, e); err != nil {
					return fmt.Errorf("run %s: %w", e.RunID, err)
				}
			}
			return nil
		})
		if err != nil {
			r.logger.Error("observability: run log flush", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-r.stop:
			for {
				select {
				case e := <-r.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-r.ch:
			batch = append(batch, e)
			if len(batch) >= 64 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *RunLog) insert(ctx context.Context, db execer, e *RunEntry) error {
	pal := e.Palette
	if pal == nil {
		pal = []string{}
	}
	palJSON, err := json.Marshal(pal)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO clone_runs
		(run_id, url, started_at, duration_ms, status, stage, category, kind,
		 message, title, text_count, images_count, colors_count,
		 components_count, navigation_count, buttons_count, palette, html_bytes)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.RunID, e.URL, e.StartedAt.UnixMilli(), e.DurationMs, e.Status,
		e.Stage, e.Category, e.Kind, e.Message, e.Title,
		e.TextCount, e.ImagesCount, e.ColorsCount, e.ComponentsCount,
		e.NavigationCount, e.ButtonsCount, string(palJSON), e.HTMLBytes)
	return err
}
