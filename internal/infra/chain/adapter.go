package chain

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/rpc/provider"
)

// Node is the read-only view of one JSON-RPC endpoint used by the monitors.
// Every method is a single call with no retries; failures come back as
// *domain.ConnectivityError.
type Node interface {
	// CurrentBlockNumber returns the node's chain head (eth_blockNumber)
	CurrentBlockNumber(ctx context.Context) (uint64, error)

	// NetworkIdentity returns the chain id the node reports (eth_chainId)
	NetworkIdentity(ctx context.Context) (uint64, error)

	// PeerCount returns the number of connected peers (net_peerCount)
	PeerCount(ctx context.Context) (uint64, error)

	// BlockByTag fetches a block header by tag ("latest", "earliest", hex number)
	BlockByTag(ctx context.Context, tag string) (*domain.BlockSummary, error)

	// BlockByNumber fetches a block header by height
	BlockByNumber(ctx context.Context, number uint64) (*domain.BlockSummary, error)

	// Validators returns the validator set at tag through the given RPC method
	Validators(ctx context.Context, method, tag string) ([]common.Address, error)

	// TransactionReceipt fetches a mined receipt
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// RawCall issues an arbitrary JSON-RPC request
	RawCall(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// TransportReporter is implemented by clients that track their transport health.
type TransportReporter interface {
	Health() provider.HealthStatus
}

// Endpoint pairs a configured target with its client. Node is nil when the
// client could not be built at startup.
type Endpoint struct {
	Target domain.Target
	Node   Node
}

// Targets returns the targets of endpoints in order.
func Targets(endpoints []Endpoint) []domain.Target {
	out := make([]domain.Target, len(endpoints))
	for i, ep := range endpoints {
		out[i] = ep.Target
	}
	return out
}

// CloseAll closes every client that holds resources.
func CloseAll(endpoints []Endpoint) error {
	var errs []error
	for _, ep := range endpoints {
		if c, ok := ep.Node.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
