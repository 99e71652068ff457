// Package consensus compares the latest block reported by every node and
// decides whether the fleet agrees on the chain head.
package consensus

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/chain"
	"github.com/vietddude/chainwatch/internal/infra/rpc/routing"
)

// DefaultMinObservations is the number of valid observations needed before a
// verdict other than "insufficient data" is given.
const DefaultMinObservations = 2

// Reconciler fetches latest blocks and evaluates agreement. It has no side
// effects and may be called concurrently.
type Reconciler struct {
	minObservations int
	retry           routing.RetryConfig
	log             *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMinObservations overrides DefaultMinObservations.
func WithMinObservations(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.minObservations = n
		}
	}
}

// WithRetry sets the retry policy for latest block lookups.
func WithRetry(cfg routing.RetryConfig) Option {
	return func(r *Reconciler) { r.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		minObservations: DefaultMinObservations,
		retry:           routing.RetryConfig{MaxAttempts: 1},
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile fetches the latest block from every endpoint concurrently and
// evaluates the observations.
func (r *Reconciler) Reconcile(ctx context.Context, endpoints []chain.Endpoint) domain.ConsensusVerdict {
	blocks := make([]domain.NodeBlock, len(endpoints))

	var g errgroup.Group
	for i, ep := range endpoints {
		g.Go(func() error {
			blocks[i] = r.latest(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()

	verdict := Evaluate(blocks, r.minObservations)
	r.log.Debug("reconciled",
		"status", verdict.Status,
		"observed", verdict.ObservedValid,
		"total", verdict.TotalNodes,
	)
	return verdict
}

func (r *Reconciler) latest(ctx context.Context, ep chain.Endpoint) domain.NodeBlock {
	out := domain.NodeBlock{Node: ep.Target.Index}
	if ep.Node == nil {
		out.Error = domain.ErrNoClient.Error()
		return out
	}

	block, err := routing.CallWithRetry(ctx, r.retry, func(ctx context.Context) (*domain.BlockSummary, error) {
		return ep.Node.BlockByTag(ctx, "latest")
	})
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Block = block
	return out
}

// Evaluate builds a verdict from index-aligned observations. Agreement is
// judged against the first valid observation in probe order, not the highest
// block, so a node one block ahead yields "still propagating".
func Evaluate(blocks []domain.NodeBlock, minObservations int) domain.ConsensusVerdict {
	verdict := domain.ConsensusVerdict{
		Status:     domain.ConsensusInsufficientData,
		TotalNodes: len(blocks),
		Blocks:     blocks,
	}

	var valid []*domain.BlockSummary
	for _, b := range blocks {
		if b.Valid() {
			valid = append(valid, b.Block)
		}
	}
	verdict.ObservedValid = len(valid)
	if len(valid) == 0 {
		return verdict
	}

	verdict.Reference = valid[0]
	low, high := valid[0].Number, valid[0].Number
	for _, b := range valid[1:] {
		low = min(low, b.Number)
		high = max(high, b.Number)
	}
	verdict.HeightSpread = high - low

	if len(valid) < minObservations {
		return verdict
	}

	verdict.IsSynced = true
	for _, b := range valid[1:] {
		if b.Hash != verdict.Reference.Hash {
			verdict.IsSynced = false
			break
		}
	}

	if verdict.IsSynced {
		verdict.Status = domain.ConsensusReached
	} else {
		verdict.Status = domain.ConsensusPropagating
	}
	return verdict
}
