// Package poller takes a fleet snapshot on a fixed interval and hands it to
// the configured sinks.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/chainwatch/internal/infra/storage"
	"github.com/vietddude/chainwatch/internal/monitoring/fleet"
	"github.com/vietddude/chainwatch/internal/monitoring/metrics"
	"github.com/vietddude/chainwatch/internal/monitoring/throttle"
)

// Snapshotter produces fleet snapshots. *fleet.Fleet satisfies it.
type Snapshotter interface {
	Snapshot(ctx context.Context) fleet.Snapshot
}

// SnapshotStore keeps the latest snapshot outside the process.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap fleet.Snapshot) error
}

// Sinks receive every snapshot. All fields are optional.
type Sinks struct {
	History storage.HistoryRepository
	Store   SnapshotStore
	Cache   *throttle.SnapshotCache[fleet.Snapshot]
	// Hooks run synchronously after the other sinks.
	Hooks []func(fleet.Snapshot)
}

// Poller runs poll cycles.
type Poller struct {
	source   Snapshotter
	interval time.Duration
	sinks    Sinks
	metrics  *metrics.Collector
	log      *slog.Logger
}

// New creates a poller. A non-positive interval defaults to 10 seconds.
func New(source Snapshotter, interval time.Duration, sinks Sinks, m *metrics.Collector) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		source:   source,
		interval: interval,
		sinks:    sinks,
		metrics:  m,
		log:      slog.Default().With("component", "poller"),
	}
}

// Run polls immediately and then every interval until ctx ends.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce takes one snapshot and publishes it. Sink failures are logged
// and never stop the cycle.
func (p *Poller) PollOnce(ctx context.Context) fleet.Snapshot {
	snap := p.source.Snapshot(ctx)
	complete := snap.Complete()
	p.metrics.ObservePoll(complete)

	if p.sinks.Cache != nil {
		p.sinks.Cache.Put(snap)
	}
	if p.sinks.History != nil {
		if err := p.sinks.History.Save(ctx, snap.Record()); err != nil {
			p.log.Warn("failed to record verdict", "id", snap.ID, "error", err)
		}
	}
	if p.sinks.Store != nil {
		if err := p.sinks.Store.SaveSnapshot(ctx, snap); err != nil {
			p.log.Warn("failed to store snapshot", "id", snap.ID, "error", err)
		}
	}
	for _, hook := range p.sinks.Hooks {
		hook(snap)
	}

	p.log.Info("poll cycle",
		"id", snap.ID,
		"status", snap.Status,
		"online", snap.Health.OnlineNodes,
		"total", snap.Health.TotalNodes,
		"consensus", snap.Consensus.ConsensusStatus,
		"complete", complete,
	)
	return snap
}
