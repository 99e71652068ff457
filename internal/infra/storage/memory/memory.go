// Package memory keeps verdict history in process, bounded by a fixed size.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/chainwatch/internal/core/domain"
)

// DefaultSize is used when NewHistoryRepo gets a non-positive size.
const DefaultSize = 1000

// HistoryRepo is a bounded in-memory storage.HistoryRepository. The oldest
// record is dropped once size is reached.
type HistoryRepo struct {
	mu      sync.RWMutex
	size    int
	records []domain.VerdictRecord // oldest first
}

func NewHistoryRepo(size int) *HistoryRepo {
	if size <= 0 {
		size = DefaultSize
	}
	return &HistoryRepo{size: size}
}

func (r *HistoryRepo) Save(ctx context.Context, rec domain.VerdictRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.NodeHashes = append([]string(nil), rec.NodeHashes...)
	r.records = append(r.records, rec)
	if over := len(r.records) - r.size; over > 0 {
		r.records = append(r.records[:0:0], r.records[over:]...)
	}
	return nil
}

func (r *HistoryRepo) Recent(ctx context.Context, limit int) ([]domain.VerdictRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.VerdictRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}

func (r *HistoryRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	var deleted int64
	for _, rec := range r.records {
		if rec.TakenAt.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return deleted, nil
}

// Len returns the number of stored records.
func (r *HistoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
