// Package fleet is the single entry point the API and poller use to observe
// the configured nodes. A Fleet is built once at startup and is safe for
// concurrent use; it owns no mutable state of its own.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/chain"
	"github.com/vietddude/chainwatch/internal/infra/rpc/routing"
	"github.com/vietddude/chainwatch/internal/monitoring/consensus"
	"github.com/vietddude/chainwatch/internal/monitoring/health"
	"github.com/vietddude/chainwatch/internal/monitoring/metrics"
	"github.com/vietddude/chainwatch/internal/monitoring/validators"
)

// Block listing limits.
const (
	DefaultBlockLimit = 10
	MaxBlockLimit     = 50
)

// Config tunes the facade.
type Config struct {
	MinObservations int
	MaxLag          uint64
	PrimaryNode     int // 1-based
	ValidatorMethod string
	Retry           routing.RetryConfig
}

// Fleet aggregates the prober, reconciler and resolver over a fixed set of
// endpoints.
type Fleet struct {
	endpoints []chain.Endpoint
	primary   chain.Endpoint
	cfg       Config

	prober     *health.Prober
	reconciler *consensus.Reconciler
	resolver   *validators.Resolver

	metrics *metrics.Collector
	tracer  trace.Tracer
	log     *slog.Logger
}

// Option configures a Fleet.
type Option func(*Fleet)

// WithMetrics records every query on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(f *Fleet) { f.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fleet) { f.log = l }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(f *Fleet) { f.tracer = t }
}

// New builds a fleet over endpoints. The endpoint list is fixed for the
// lifetime of the Fleet.
func New(endpoints []chain.Endpoint, cfg Config, opts ...Option) (*Fleet, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("fleet: at least one endpoint is required")
	}
	if cfg.PrimaryNode == 0 {
		cfg.PrimaryNode = 1
	}
	if cfg.PrimaryNode < 1 || cfg.PrimaryNode > len(endpoints) {
		return nil, fmt.Errorf("fleet: primary node %d out of range 1..%d", cfg.PrimaryNode, len(endpoints))
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = consensus.DefaultMinObservations
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 1
	}

	f := &Fleet{
		endpoints: append([]chain.Endpoint(nil), endpoints...),
		primary:   endpoints[cfg.PrimaryNode-1],
		cfg:       cfg,
		tracer:    otel.Tracer("chainwatch/fleet"),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.prober = health.NewProber(health.WithRetry(cfg.Retry), health.WithLogger(f.log))
	f.reconciler = consensus.NewReconciler(
		consensus.WithMinObservations(cfg.MinObservations),
		consensus.WithRetry(cfg.Retry),
		consensus.WithLogger(f.log),
	)
	f.resolver = validators.NewResolver(f.primary, cfg.ValidatorMethod)
	return f, nil
}

// Targets returns the configured targets in node order.
func (f *Fleet) Targets() []domain.Target {
	return chain.Targets(f.endpoints)
}

// Primary returns the target used for single-node queries.
func (f *Fleet) Primary() domain.Target {
	return f.primary.Target
}

// Transports reports the accumulated transport health of every client. It
// makes no calls.
func (f *Fleet) Transports() []TransportReport {
	out := make([]TransportReport, len(f.endpoints))
	for i, ep := range f.endpoints {
		out[i] = TransportReport{Node: ep.Target.Index, Name: ep.Target.Name}
		if r, ok := ep.Node.(chain.TransportReporter); ok {
			h := r.Health()
			out[i].Health = &h
		}
	}
	return out
}

// Close releases every client that holds resources.
func (f *Fleet) Close() error {
	return chain.CloseAll(f.endpoints)
}

// NodeHealth probes every node.
func (f *Fleet) NodeHealth(ctx context.Context) HealthReport {
	ctx, span := f.tracer.Start(ctx, "fleet.node_health")
	defer span.End()

	statuses := f.prober.ProbeAll(ctx, f.endpoints)
	f.metrics.ObserveNodes(statuses)

	report := HealthReport{
		Status:      health.Classify(statuses, f.cfg.MinObservations, f.cfg.MaxLag),
		TotalNodes:  len(statuses),
		OnlineNodes: health.Online(statuses),
		Nodes:       statuses,
	}
	span.SetAttributes(
		attribute.Int("fleet.total_nodes", report.TotalNodes),
		attribute.Int("fleet.online_nodes", report.OnlineNodes),
		attribute.String("fleet.status", string(report.Status)),
	)
	return report
}

// Consensus reconciles the latest block of every node.
func (f *Fleet) Consensus(ctx context.Context) ConsensusReport {
	ctx, span := f.tracer.Start(ctx, "fleet.consensus")
	defer span.End()

	verdict := f.reconciler.Reconcile(ctx, f.endpoints)
	f.metrics.ObserveVerdict(verdict)

	span.SetAttributes(
		attribute.Bool("consensus.synced", verdict.IsSynced),
		attribute.Int("consensus.observed", verdict.ObservedValid),
	)
	return consensusReport(verdict)
}

// Validators resolves the validator set from the primary node. It is the
// only query that fails: the error wraps domain.ErrLedgerUnavailable.
func (f *Fleet) Validators(ctx context.Context) (ValidatorReport, error) {
	ctx, span := f.tracer.Start(ctx, "fleet.validators",
		trace.WithAttributes(attribute.Int("node", f.primary.Target.Index)))
	defer span.End()

	set, err := f.resolver.Resolve(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validators unavailable")
		return ValidatorReport{}, err
	}
	f.metrics.ObserveValidators(set)
	return validatorReport(set), nil
}

// Snapshot runs the three queries concurrently. A failing section is marked
// in Sections and never prevents the others from completing.
func (f *Fleet) Snapshot(ctx context.Context) Snapshot {
	ctx, span := f.tracer.Start(ctx, "fleet.snapshot")
	defer span.End()

	snap := Snapshot{
		ID:      uuid.NewString(),
		TakenAt: time.Now().UTC(),
	}

	var (
		validatorsRep ValidatorReport
		validatorsErr error
		g             errgroup.Group
	)
	g.Go(func() error {
		snap.Health = f.NodeHealth(ctx)
		return nil
	})
	g.Go(func() error {
		snap.Consensus = f.Consensus(ctx)
		return nil
	})
	g.Go(func() error {
		validatorsRep, validatorsErr = f.Validators(ctx)
		return nil
	})
	_ = g.Wait()

	snap.Status = snap.Health.Status
	snap.Sections = map[string]Section{
		SectionHealth:     healthSection(snap.Health),
		SectionConsensus:  consensusSection(snap.Consensus),
		SectionValidators: {OK: true},
	}
	if validatorsErr != nil {
		snap.Sections[SectionValidators] = Section{Error: validatorsErr.Error()}
	} else {
		snap.Validators = &validatorsRep
	}

	span.SetAttributes(
		attribute.String("snapshot.id", snap.ID),
		attribute.Bool("snapshot.complete", snap.Complete()),
	)
	return snap
}

func healthSection(r HealthReport) Section {
	if r.OnlineNodes == 0 {
		return Section{Error: "no node reachable"}
	}
	return Section{OK: true}
}

func consensusSection(r ConsensusReport) Section {
	if r.ConsensusStatus == domain.ConsensusInsufficientData {
		return Section{Error: string(domain.ConsensusInsufficientData)}
	}
	return Section{OK: true}
}

// LatestBlock returns the latest block of the primary node.
func (f *Fleet) LatestBlock(ctx context.Context) (*domain.BlockSummary, error) {
	ctx, span := f.tracer.Start(ctx, "fleet.latest_block")
	defer span.End()

	node, err := f.primaryNode()
	if err != nil {
		return nil, err
	}
	block, err := node.BlockByTag(ctx, "latest")
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	return block, nil
}

// NormalizeLimit applies the default and the upper bound to a block limit.
// Zero and negative limits both mean the default.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultBlockLimit
	}
	return min(limit, MaxBlockLimit)
}

// RecentBlocks lists up to limit blocks ending at the primary node's head.
// Heights below zero are skipped, so a young chain yields fewer entries.
func (f *Fleet) RecentBlocks(ctx context.Context, limit int) (BlocksReport, error) {
	limit = NormalizeLimit(limit)
	ctx, span := f.tracer.Start(ctx, "fleet.recent_blocks",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	node, err := f.primaryNode()
	if err != nil {
		return BlocksReport{}, err
	}
	head, err := node.CurrentBlockNumber(ctx)
	if err != nil {
		span.RecordError(err)
		return BlocksReport{}, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}

	count := min(uint64(limit), head+1)
	blocks := make([]domain.BlockSummary, count)

	g, gctx := errgroup.WithContext(ctx)
	for i := range blocks {
		number := head - uint64(i)
		g.Go(func() error {
			b, err := node.BlockByNumber(gctx, number)
			if err != nil {
				return err
			}
			blocks[i] = *b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return BlocksReport{}, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}

	return BlocksReport{Blocks: blocks, LatestBlock: head}, nil
}

func (f *Fleet) primaryNode() (chain.Node, error) {
	if f.primary.Node == nil {
		return nil, fmt.Errorf("%w: node %d: %w",
			domain.ErrLedgerUnavailable, f.primary.Target.Index, domain.ErrNoClient)
	}
	return f.primary.Node, nil
}
