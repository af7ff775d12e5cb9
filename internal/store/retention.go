package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionWorkerInterval = time.Hour

// StartRetentionWorker runs a background goroutine that periodically
// removes conversation transcripts idle longer than ttl.
func StartRetentionWorker(ctx context.Context, repo Repository, ttl time.Duration) {
	ticker := time.NewTicker(retentionWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", retentionWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				deleted, err := repo.CleanupExpiredConversations(ctx, ttl)
				if err != nil {
					slog.Error("Retention worker failed to cleanup conversations", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Retention worker removed stale conversations", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
