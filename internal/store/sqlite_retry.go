package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"
)

const (
	sqliteMaxRetries     = 3
	sqliteRetryBaseDelay = 10 * time.Millisecond
)

// isSQLiteConflict reports SQLITE_BUSY and "database is locked" errors,
// both of which are worth retrying.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// execWithRetry runs a write statement with exponential backoff on conflicts.
func execWithRetry(ctx context.Context, db *sql.DB, query string, args ...any) error {
	var err error
	for i := 0; i < sqliteMaxRetries; i++ {
		if _, err = db.ExecContext(ctx, query, args...); err == nil {
			return nil
		}
		if !isSQLiteConflict(err) || i == sqliteMaxRetries-1 {
			return err
		}

		delay := sqliteRetryBaseDelay * time.Duration(1<<i)
		slog.Debug("Database locked, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
