package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// busyAttempts bounds RunTx and Exec. Waits grow linearly from busyStep.
const (
	busyAttempts = 3
	busyStep     = 100 * time.Millisecond
)

// IsBusy reports whether err is an SQLite lock conflict worth retrying.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx runs fn in a transaction. The whole transaction is retried on lock
// conflicts, waiting 100ms then 200ms.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	_, err := onBusy(ctx, "tx", func() (struct{}, error) {
		return struct{}{}, runOnce(ctx, db, fn)
	})
	return err
}

// Exec is db.ExecContext with the retry of RunTx.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return onBusy(ctx, "exec", func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}

func onBusy[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		if !IsBusy(err) || attempt == busyAttempts {
			return zero, err
		}
		t := time.NewTimer(time.Duration(attempt) * busyStep)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, fmt.Errorf("dbopen: %s: %w (last error: %v)", op, ctx.Err(), err)
		case <-t.C:
		}
	}
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}
