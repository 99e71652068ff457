package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/storage/memory"
	"github.com/vietddude/chainwatch/internal/monitoring/fleet"
	"github.com/vietddude/chainwatch/internal/monitoring/metrics"
	"github.com/vietddude/chainwatch/internal/monitoring/throttle"
)

type fakeSource struct {
	calls atomic.Int32
}

func (f *fakeSource) Snapshot(ctx context.Context) fleet.Snapshot {
	n := f.calls.Add(1)
	return fleet.Snapshot{
		ID:      string(rune('a' + n - 1)),
		TakenAt: time.Now(),
		Consensus: fleet.ConsensusReport{
			Synced:          true,
			ConsensusStatus: domain.ConsensusReached,
			LatestBlock:     &domain.BlockSummary{Number: uint64(n), Hash: "0xaa"},
		},
		Sections: map[string]fleet.Section{fleet.SectionHealth: {OK: true}},
	}
}

type failingStore struct{ calls int }

func (s *failingStore) SaveSnapshot(ctx context.Context, snap fleet.Snapshot) error {
	s.calls++
	return errors.New("redis down")
}

func TestPollOnce_FeedsSinks(t *testing.T) {
	src := &fakeSource{}
	history := memory.NewHistoryRepo(10)
	cache := throttle.NewSnapshotCache(func(ctx context.Context) (fleet.Snapshot, error) {
		t.Fatal("cache should be primed by the poller")
		return fleet.Snapshot{}, nil
	}, time.Minute)
	store := &failingStore{}
	var hooked fleet.Snapshot

	p := New(src, time.Second, Sinks{
		History: history,
		Store:   store,
		Cache:   cache,
		Hooks:   []func(fleet.Snapshot){func(s fleet.Snapshot) { hooked = s }},
	}, metrics.New())

	snap := p.PollOnce(context.Background())

	assert.Equal(t, 1, history.Len())
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, snap.ID, hooked.ID)

	cached, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.ID, cached.ID)

	recs, _ := history.Recent(context.Background(), 1)
	assert.True(t, recs[0].Synced)
	assert.Equal(t, "0xaa", recs[0].ReferenceHash)
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	src := &fakeSource{}
	p := New(src, 20*time.Millisecond, Sinks{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, src.calls.Load(), int32(2))
}
