package workspace

import (
	"context"
	"log/slog"
	"time"
)

// RunJanitor sweeps stale workspaces every interval until ctx is cancelled.
// A sweep also runs immediately so leftovers from a previous crash are removed
// at startup.
func RunJanitor(ctx context.Context, m Manager, interval, olderThan time.Duration, logger *slog.Logger) error {
	if interval <= 0 || olderThan <= 0 {
		logger.Info("workspace janitor disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	sweep := func() {
		report, err := m.Cleanup(ctx, olderThan)
		if err != nil {
			logger.Error("workspace cleanup failed", "error", err)
			return
		}
		if report.DeletedDirs > 0 {
			logger.Warn("removed stale workspaces", "count", report.DeletedDirs, "older_than", olderThan)
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweep()
		}
	}
}
