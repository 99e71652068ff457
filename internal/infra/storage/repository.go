// Package storage defines persistence for recorded poll cycles.
package storage

import (
	"context"
	"time"

	"github.com/vietddude/chainwatch/internal/core/domain"
)

// HistoryRepository stores consensus verdicts, one per poll cycle.
type HistoryRepository interface {
	// Save appends a record
	Save(ctx context.Context, rec domain.VerdictRecord) error

	// Recent returns up to limit records, newest first
	Recent(ctx context.Context, limit int) ([]domain.VerdictRecord, error)

	// DeleteOlderThan removes records taken before t and returns how many went
	DeleteOlderThan(ctx context.Context, t time.Time) (int64, error)
}
