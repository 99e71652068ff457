package api

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vietddude/chainwatch/internal/monitoring/fleet"
	"github.com/vietddude/chainwatch/internal/monitoring/health"
)

// HealthServiceName is the service reported alongside the overall "" entry.
const HealthServiceName = "chainwatch.Fleet"

// GRPCHealth exposes grpc.health.v1 with a status driven by fleet snapshots.
type GRPCHealth struct {
	server *grpc.Server
	health *grpchealth.Server
	port   int
	log    *slog.Logger
}

// NewGRPCHealth creates the server. Status starts as NOT_SERVING until the
// first snapshot arrives.
func NewGRPCHealth(port int) *GRPCHealth {
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &GRPCHealth{
		server: srv,
		health: hs,
		port:   port,
		log:    slog.Default().With("component", "grpc-health"),
	}
}

// ServingStatus maps a fleet status to a gRPC serving status. Only critical
// is NOT_SERVING; a degraded fleet can still answer queries.
func ServingStatus(s health.SystemStatus) healthpb.HealthCheckResponse_ServingStatus {
	if s == health.StatusCritical {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Update applies a snapshot. It is meant to be used as a poller hook.
func (g *GRPCHealth) Update(snap fleet.Snapshot) {
	status := ServingStatus(snap.Status)
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(HealthServiceName, status)
}

// Serve listens on the configured port and blocks until Stop.
func (g *GRPCHealth) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	return g.ServeListener(lis)
}

// ServeListener serves on an existing listener.
func (g *GRPCHealth) ServeListener(lis net.Listener) error {
	g.log.Info("gRPC health listening", "addr", lis.Addr().String())
	return g.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
