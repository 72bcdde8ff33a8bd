package session

import (
	"context"
	"log/slog"
	"time"
)

// CleanupCallback is called after the reaper closes a session.
type CleanupCallback func(sessionID string)

// StartReaper runs a background goroutine that periodically closes sessions
// idle for longer than ttl. It stops when ctx is done.
func StartReaper(ctx context.Context, reg *Registry, ttl, interval time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session reaper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				reapExpired(reg, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("Session reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func reapExpired(reg *Registry, ttl time.Duration, onCleanup CleanupCallback) int {
	expired := reg.Expired(ttl)
	if len(expired) == 0 {
		return 0
	}

	slog.Info("Session reaper found idle sessions", "count", len(expired))

	cleaned := 0
	for _, id := range expired {
		if !reg.closeIfIdle(id, ttl) {
			slog.Debug("Session reaper skipped session", "session_id", id)
			continue
		}
		cleaned++
		if onCleanup != nil {
			onCleanup(id)
		}
	}

	slog.Info("Session reaper cleanup completed", "cleaned", cleaned)
	return cleaned
}
