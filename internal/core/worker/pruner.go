package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/chainwatch/internal/infra/storage"
)

// Pruner deletes verdict history based on retention policy.
type Pruner struct {
	repo      storage.HistoryRepository
	retention time.Duration
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(repo storage.HistoryRepository, retention time.Duration) *Pruner {
	return &Pruner{
		repo:      repo,
		retention: retention,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop until ctx ends.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune removes records older than the retention period once.
func (p *Pruner) Prune(ctx context.Context) int64 {
	threshold := time.Now().Add(-p.retention)

	deleted, err := p.repo.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("failed to prune history", "error", err)
		return 0
	}
	if deleted > 0 {
		p.log.Debug("pruned history", "deleted", deleted, "before", threshold)
	}
	return deleted
}
