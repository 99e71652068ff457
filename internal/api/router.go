// Package api serves the dashboard HTTP API and the gRPC health service.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/storage"
	"github.com/vietddude/chainwatch/internal/monitoring/fleet"
	"github.com/vietddude/chainwatch/internal/monitoring/metrics"
)

// Fleet is the subset of *fleet.Fleet the API serves.
type Fleet interface {
	NodeHealth(ctx context.Context) fleet.HealthReport
	Consensus(ctx context.Context) fleet.ConsensusReport
	Validators(ctx context.Context) (fleet.ValidatorReport, error)
	LatestBlock(ctx context.Context) (*domain.BlockSummary, error)
	RecentBlocks(ctx context.Context, limit int) (fleet.BlocksReport, error)
	Transports() []fleet.TransportReport
}

// SnapshotSource returns a possibly cached snapshot.
type SnapshotSource interface {
	Get(ctx context.Context) (fleet.Snapshot, error)
}

// Deps are the collaborators behind the routes. History and Metrics may be nil.
type Deps struct {
	Fleet     Fleet
	Snapshots SnapshotSource
	History   storage.HistoryRepository
	Metrics   *metrics.Collector
}

// Options configure the HTTP surface.
type Options struct {
	CORSOrigins []string
	RateLimit   RateLimit
}

type handlers struct {
	fleet     Fleet
	snapshots SnapshotSource
	history   storage.HistoryRepository
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps, opts Options) http.Handler {
	h := &handlers{
		fleet:     deps.Fleet,
		snapshots: deps.Snapshots,
		history:   deps.History,
	}
	limiter := NewRateLimiter(opts.RateLimit)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(CORS(opts.CORSOrigins))

	r.Route("/api", func(api chi.Router) {
		api.Use(limiter.Middleware)

		api.Get("/health", h.apiHealth)
		api.Get("/nodes/status", h.nodesStatus)
		api.Get("/consensus", h.consensus)
		api.Get("/consensus/history", h.consensusHistory)
		api.Get("/validators", h.validators)
		api.Get("/blocks", h.recentBlocks)
		api.Get("/blocks/latest", h.latestBlock)
		api.Get("/snapshot", h.snapshot)
	})

	r.Get("/health", h.health)
	r.Get("/health/detailed", h.healthDetailed)
	r.Handle("/metrics", deps.Metrics.Handler())

	return otelhttp.NewHandler(r, "chainwatch.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Server provides the HTTP endpoints.
type Server struct {
	server *http.Server
	log    *slog.Logger
}

// NewServer creates a new HTTP server on port.
func NewServer(port int, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: slog.Default().With("component", "api"),
	}
}

// Handler returns the handler the server runs.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("HTTP API listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
