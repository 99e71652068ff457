package health

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/chain"
	"github.com/vietddude/chainwatch/internal/infra/rpc/routing"
)

// Prober checks liveness of every endpoint. It keeps no state between calls.
type Prober struct {
	retry routing.RetryConfig
	log   *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithRetry sets the retry policy applied to the mandatory readings.
func WithRetry(cfg routing.RetryConfig) Option {
	return func(p *Prober) { p.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) { p.log = l }
}

// NewProber creates a prober. Without options every reading is attempted once.
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		retry: routing.RetryConfig{MaxAttempts: 1},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProbeAll probes every endpoint concurrently and returns one status per
// endpoint in the same order. It never fails: errors land in the statuses.
func (p *Prober) ProbeAll(ctx context.Context, endpoints []chain.Endpoint) []domain.NodeStatus {
	statuses := make([]domain.NodeStatus, len(endpoints))

	var g errgroup.Group
	for i, ep := range endpoints {
		g.Go(func() error {
			statuses[i] = p.probe(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()

	ApplyLag(statuses)
	return statuses
}

func (p *Prober) probe(ctx context.Context, ep chain.Endpoint) (status domain.NodeStatus) {
	status = domain.NodeStatus{
		Node: ep.Target.Index,
		Name: ep.Target.Name,
		URL:  ep.Target.URL,
	}
	if ep.Node == nil {
		status.Error = domain.ErrNoClient.Error()
		return status
	}

	start := time.Now()
	defer func() { status.Latency = time.Since(start) }()

	// Peer count runs alongside the mandatory readings; a mandatory failure
	// cancels it.
	var (
		head, chainID, peers uint64
		peerErr              error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		head, err = routing.CallWithRetry(gctx, p.retry, ep.Node.CurrentBlockNumber)
		return err
	})
	g.Go(func() (err error) {
		chainID, err = routing.CallWithRetry(gctx, p.retry, ep.Node.NetworkIdentity)
		return err
	})
	g.Go(func() error {
		peers, peerErr = ep.Node.PeerCount(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		p.log.Debug("node unreachable", "node", ep.Target.Index, "url", ep.Target.URL, "error", err)
		status.Error = err.Error()
		return status
	}

	status.Reachable = true
	status.ChainHead = &head
	status.ChainID = &chainID

	// Peer count is best effort; many nodes disable the net namespace.
	if peerErr != nil {
		p.log.Debug("peer count unavailable", "node", ep.Target.Index, "error", peerErr)
		peers = 0
	}
	status.PeerCount = &peers

	return status
}
