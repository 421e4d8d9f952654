package task

import (
	"context"
	"log/slog"
	"time"
)

// RunJanitor removes records untouched for longer than ttl, checking every
// interval, until ctx is done. A zero ttl or interval disables it.
func RunJanitor(ctx context.Context, store Store, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.Sweep(ctx, now.Add(-ttl))
			if err != nil {
				slog.Error("Task sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("Expired abandoned tasks", "count", removed)
			}
		}
	}
}
