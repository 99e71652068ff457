// Package provider implements the JSON-RPC transport to a single node.
//
// This package contains:
//   - RPCProvider interface: what node clients need from a transport
//   - HTTPProvider: JSON-RPC over HTTP backed by the go-ethereum rpc client
//   - Monitor: latency window, failure streak and throttle backoff
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// RPCProvider issues JSON-RPC calls against one node and reports how the
// transport has behaved so far.
type RPCProvider interface {
	// Name identifies the node in logs (e.g., "node1")
	Name() string

	// Call makes a single RPC request and returns the raw result.
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)

	// Health returns the accumulated transport health
	Health() HealthStatus

	// Close releases idle connections
	Close() error
}

// HealthStatus is the transport health of one node since startup.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at,omitzero"`
	LastFailureAt time.Time     `json:"last_failure_at,omitzero"`
	Stats         MonitorStats  `json:"stats"`
}
