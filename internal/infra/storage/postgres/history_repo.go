package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/chainwatch/internal/core/domain"
)

// HistoryRepo implements storage.HistoryRepository using PostgreSQL.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a new PostgreSQL history repository.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

type historyRow struct {
	ID              string         `db:"id"`
	TakenAt         time.Time      `db:"taken_at"`
	Synced          bool           `db:"synced"`
	Status          string         `db:"status"`
	TotalNodes      int            `db:"total_nodes"`
	OnlineNodes     int            `db:"online_nodes"`
	ObservedNodes   int            `db:"observed_nodes"`
	ReferenceNumber sql.NullInt64  `db:"reference_number"`
	ReferenceHash   string         `db:"reference_hash"`
	NodeHashes      pq.StringArray `db:"node_hashes"`
	ValidatorCount  int            `db:"validator_count"`
}

func (row historyRow) record() domain.VerdictRecord {
	rec := domain.VerdictRecord{
		ID:             row.ID,
		TakenAt:        row.TakenAt,
		Synced:         row.Synced,
		Status:         row.Status,
		TotalNodes:     row.TotalNodes,
		OnlineNodes:    row.OnlineNodes,
		ObservedNodes:  row.ObservedNodes,
		ReferenceHash:  row.ReferenceHash,
		NodeHashes:     []string(row.NodeHashes),
		ValidatorCount: row.ValidatorCount,
	}
	if row.ReferenceNumber.Valid {
		n := uint64(row.ReferenceNumber.Int64)
		rec.ReferenceNumber = &n
	}
	return rec
}

// Save inserts a record. Saving the same ID twice is a no-op.
func (r *HistoryRepo) Save(ctx context.Context, rec domain.VerdictRecord) error {
	query := `
		INSERT INTO verdict_history (
			id, taken_at, synced, status, total_nodes, online_nodes,
			observed_nodes, reference_number, reference_hash, node_hashes, validator_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	var ref sql.NullInt64
	if rec.ReferenceNumber != nil {
		ref = sql.NullInt64{Int64: int64(*rec.ReferenceNumber), Valid: true}
	}
	hashes := rec.NodeHashes
	if hashes == nil {
		hashes = []string{}
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.TakenAt,
		rec.Synced,
		rec.Status,
		rec.TotalNodes,
		rec.OnlineNodes,
		rec.ObservedNodes,
		ref,
		rec.ReferenceHash,
		pq.Array(hashes),
		rec.ValidatorCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save verdict: %w", err)
	}
	return nil
}

// Recent returns the newest records first.
func (r *HistoryRepo) Recent(ctx context.Context, limit int) ([]domain.VerdictRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, taken_at, synced, status, total_nodes, online_nodes,
		       observed_nodes, reference_number, reference_hash, node_hashes, validator_count
		FROM verdict_history
		ORDER BY taken_at DESC
		LIMIT $1
	`

	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}

	out := make([]domain.VerdictRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// DeleteOlderThan removes records taken before t.
func (r *HistoryRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verdict_history WHERE taken_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("failed to prune verdicts: %w", err)
	}
	return res.RowsAffected()
}
