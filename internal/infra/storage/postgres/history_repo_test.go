package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/storage"
)

var _ storage.HistoryRepository = (*HistoryRepo)(nil)

func TestHistoryRow_Record(t *testing.T) {
	row := historyRow{
		ID:              "id",
		Status:          string(domain.ConsensusReached),
		ReferenceNumber: sql.NullInt64{Int64: 42, Valid: true},
		NodeHashes:      pq.StringArray{"0xaa", ""},
	}
	rec := row.record()
	require.NotNil(t, rec.ReferenceNumber)
	assert.Equal(t, uint64(42), *rec.ReferenceNumber)
	assert.Equal(t, []string{"0xaa", ""}, rec.NodeHashes)

	row.ReferenceNumber = sql.NullInt64{}
	assert.Nil(t, row.record().ReferenceNumber)
}

// Runs against a real database when CHAINWATCH_TEST_DATABASE_URL is set.
func TestHistoryRepo_Live(t *testing.T) {
	url := os.Getenv("CHAINWATCH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHAINWATCH_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	repo := NewHistoryRepo(db)
	ref := uint64(100)
	rec := domain.VerdictRecord{
		ID:              uuid.NewString(),
		TakenAt:         time.Now().UTC().Truncate(time.Microsecond),
		Synced:          true,
		Status:          string(domain.ConsensusReached),
		TotalNodes:      3,
		OnlineNodes:     2,
		ObservedNodes:   2,
		ReferenceNumber: &ref,
		ReferenceHash:   "0xaa",
		NodeHashes:      []string{"0xaa", "", "0xaa"},
		ValidatorCount:  4,
	}
	require.NoError(t, repo.Save(ctx, rec))
	require.NoError(t, repo.Save(ctx, rec))

	recs, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID, recs[0].ID)
	assert.Equal(t, rec.NodeHashes, recs[0].NodeHashes)

	deleted, err := repo.DeleteOlderThan(ctx, rec.TakenAt.Add(time.Second))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))
}
