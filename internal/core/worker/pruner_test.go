package worker

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/storage/memory"
)

func TestPruner_Prune(t *testing.T) {
	repo := memory.NewHistoryRepo(10)
	ctx := context.Background()
	now := time.Now()

	_ = repo.Save(ctx, domain.VerdictRecord{ID: "old", TakenAt: now.Add(-48 * time.Hour)})
	_ = repo.Save(ctx, domain.VerdictRecord{ID: "new", TakenAt: now})

	p := NewPruner(repo, 24*time.Hour)
	if deleted := p.Prune(ctx); deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	if repo.Len() != 1 {
		t.Errorf("expected 1 record left, got %d", repo.Len())
	}
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	p := NewPruner(memory.NewHistoryRepo(1), 0)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return when retention is disabled")
	}
}
