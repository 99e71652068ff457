// Package control wires configuration into a running monitor.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/chainwatch/internal/api"
	"github.com/vietddude/chainwatch/internal/core/config"
	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/core/worker"
	"github.com/vietddude/chainwatch/internal/infra/chain"
	"github.com/vietddude/chainwatch/internal/infra/chain/evm"
	redisclient "github.com/vietddude/chainwatch/internal/infra/redis"
	"github.com/vietddude/chainwatch/internal/infra/rpc/routing"
	"github.com/vietddude/chainwatch/internal/infra/storage"
	"github.com/vietddude/chainwatch/internal/infra/storage/memory"
	"github.com/vietddude/chainwatch/internal/infra/storage/postgres"
	"github.com/vietddude/chainwatch/internal/monitoring/fleet"
	"github.com/vietddude/chainwatch/internal/monitoring/metrics"
	"github.com/vietddude/chainwatch/internal/monitoring/poller"
	"github.com/vietddude/chainwatch/internal/monitoring/throttle"
	"github.com/vietddude/chainwatch/internal/telemetry"
)

// App owns every long-running component of the monitor.
type App struct {
	cfg     *config.AppConfig
	fleet   *fleet.Fleet
	metrics *metrics.Collector
	cache   *throttle.SnapshotCache[fleet.Snapshot]
	history storage.HistoryRepository
	poller  *poller.Poller
	pruner  *worker.Pruner
	server  *api.Server
	grpc    *api.GRPCHealth
	db      *postgres.DB
	redis   *redisclient.Client
	tracing telemetry.Shutdown
	log     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Endpoints dials every configured node. A node whose client cannot be
// built keeps its slot with a nil Node so indices stay aligned.
func Endpoints(nodes []config.NodeConfig, timeout time.Duration) []chain.Endpoint {
	endpoints := make([]chain.Endpoint, len(nodes))
	for i, n := range nodes {
		target := domain.Target{Index: i + 1, Name: n.Name, URL: n.URL}
		endpoints[i] = chain.Endpoint{Target: target}

		c, err := evm.Dial(target, timeout)
		if err != nil {
			slog.Warn("Node client unavailable", "node", target.Index, "url", n.URL, "error", err)
			continue
		}
		endpoints[i].Node = c
	}
	return endpoints
}

// FleetConfig derives the aggregation settings from the monitor section.
func FleetConfig(m config.MonitorConfig) fleet.Config {
	retry := routing.DefaultRetryConfig
	retry.MaxAttempts = m.RetryAttempts
	retry.InitialDelay = m.RetryDelay
	retry.AttemptTimeout = 0

	return fleet.Config{
		MinObservations: m.MinObservations,
		MaxLag:          m.MaxLag,
		PrimaryNode:     m.PrimaryNode,
		ValidatorMethod: m.ValidatorMethod,
		Retry:           retry,
	}
}

// NewApp builds the monitor from cfg. Storage and redis connect here so
// configuration errors surface before Start.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{
		cfg:     cfg,
		metrics: metrics.New(),
		log:     slog.Default().With("component", "app"),
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.tracing = shutdown

	endpoints := Endpoints(cfg.Nodes, cfg.Monitor.CallTimeout)
	f, err := fleet.New(endpoints, FleetConfig(cfg.Monitor), fleet.WithMetrics(a.metrics))
	if err != nil {
		return nil, errors.Join(err, chain.CloseAll(endpoints), a.closeResources(ctx))
	}
	a.fleet = f

	if err := a.initHistory(ctx); err != nil {
		return nil, errors.Join(err, a.closeResources(ctx))
	}

	sinks := poller.Sinks{History: a.history}
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("init redis: %w", err), a.closeResources(ctx))
		}
		a.redis = rc
		sinks.Store = rc
		a.log.Info("Publishing snapshots to Redis", "channel", cfg.Redis.Channel)
	}

	a.cache = throttle.NewSnapshotCache(func(ctx context.Context) (fleet.Snapshot, error) {
		return a.fleet.Snapshot(ctx), nil
	}, cfg.Server.CacheTTL)
	sinks.Cache = a.cache

	if cfg.Server.GRPCPort > 0 {
		a.grpc = api.NewGRPCHealth(cfg.Server.GRPCPort)
		sinks.Hooks = append(sinks.Hooks, a.grpc.Update)
	}

	a.poller = poller.New(a.fleet, cfg.Monitor.PollInterval, sinks, a.metrics)
	if cfg.Monitor.HistoryRetention > 0 {
		a.pruner = worker.NewPruner(a.history, cfg.Monitor.HistoryRetention)
	}

	router := api.NewRouter(api.Deps{
		Fleet:     a.fleet,
		Snapshots: a.cache,
		History:   a.history,
		Metrics:   a.metrics,
	}, api.Options{
		CORSOrigins: cfg.Server.CORS,
		RateLimit: api.RateLimit{
			RequestsPerMinute: cfg.Server.Rate.RequestsPerMinute,
			Burst:             cfg.Server.Rate.Burst,
		},
	})
	a.server = api.NewServer(cfg.Server.Port, router)

	return a, nil
}

func (a *App) initHistory(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		a.history = memory.NewHistoryRepo(a.cfg.Monitor.HistorySize)
		a.log.Info("Using memory history", "size", a.cfg.Monitor.HistorySize)
		return nil
	}

	db, err := postgres.NewDB(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	a.db = db
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	a.history = postgres.NewHistoryRepo(db)
	a.log.Info("Using PostgreSQL history")
	return nil
}

// Fleet exposes the aggregation facade.
func (a *App) Fleet() *fleet.Fleet {
	return a.fleet
}

// Handler returns the HTTP handler the server runs. Tests drive it directly.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Start launches the poller, pruner and servers. It returns once they run.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	targets := a.fleet.Targets()
	a.log.Info("Starting monitor",
		"nodes", len(targets),
		"primary", a.fleet.Primary().Index,
		"interval", a.cfg.Monitor.PollInterval,
	)

	a.goRun(func() { a.poller.Run(ctx) })
	if a.pruner != nil {
		a.goRun(func() { a.pruner.Start(ctx) })
	}

	a.goRun(func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "error", err)
		}
	})
	if a.grpc != nil {
		a.goRun(func() {
			if err := a.grpc.Serve(); err != nil {
				a.log.Error("gRPC health server failed", "error", err)
			}
		})
	}
	return nil
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Stop shuts the servers down, waits for the workers and closes clients.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping monitor...")
	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop http: %w", err))
	}
	if a.grpc != nil {
		a.grpc.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	errs = append(errs, a.closeResources(ctx))
	return errors.Join(errs...)
}

func (a *App) closeResources(ctx context.Context) error {
	var errs []error
	if a.fleet != nil {
		if err := a.fleet.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.tracing != nil {
		if err := a.tracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush traces: %w", err))
		}
	}
	return errors.Join(errs...)
}
