package upload

import (
	"context"
	"log/slog"
	"time"
)

// StartCleanupWorker runs a background loop that periodically reaps upload
// sessions abandoned past the inactivity timeout. It blocks until ctx is
// cancelled, so call it in its own goroutine.
func StartCleanupWorker(ctx context.Context, manager *Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("upload cleanup worker started", "interval", interval)

	// Run cleanup immediately on start
	runCleanup(ctx, manager)

	for {
		select {
		case <-ctx.Done():
			slog.Info("upload cleanup worker shutting down")
			return
		case <-ticker.C:
			runCleanup(ctx, manager)
		}
	}
}

func runCleanup(ctx context.Context, manager *Manager) {
	start := time.Now()
	reaped, err := manager.CleanupExpired(ctx)
	duration := time.Since(start)

	if err != nil {
		slog.Error("upload cleanup failed", "error", err, "duration", duration)
		return
	}

	if reaped > 0 {
		slog.Info("upload cleanup completed", "reaped_sessions", reaped, "duration", duration)
	} else {
		slog.Debug("upload cleanup completed", "reaped_sessions", reaped, "duration", duration)
	}
}
