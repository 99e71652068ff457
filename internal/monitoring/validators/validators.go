// Package validators resolves the IBFT validator set from the primary node.
package validators

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/chain"
)

// DefaultMethod is the Besu IBFT 2.0 validator query.
const DefaultMethod = "ibft_getValidatorsByBlockNumber"

// Resolver queries a single designated endpoint. There is no fallback to
// other nodes: if the primary is down the set is unavailable.
type Resolver struct {
	primary chain.Endpoint
	method  string
	tag     string
}

func NewResolver(primary chain.Endpoint, method string) *Resolver {
	if method == "" {
		method = DefaultMethod
	}
	return &Resolver{primary: primary, method: method, tag: "latest"}
}

// Primary returns the endpoint the resolver queries.
func (r *Resolver) Primary() chain.Endpoint {
	return r.primary
}

// Resolve returns the validator set at the latest block. Every failure is
// reported as domain.ErrLedgerUnavailable wrapping the cause.
func (r *Resolver) Resolve(ctx context.Context) (domain.ValidatorSet, error) {
	if r.primary.Node == nil {
		return domain.ValidatorSet{}, fmt.Errorf("%w: node %d: %w",
			domain.ErrLedgerUnavailable, r.primary.Target.Index, domain.ErrNoClient)
	}

	addrs, err := r.primary.Node.Validators(ctx, r.method, r.tag)
	if err != nil {
		return domain.ValidatorSet{}, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}

	unique := Dedupe(addrs)
	out := make([]string, len(unique))
	for i, a := range unique {
		out[i] = a.Hex()
	}

	minimum, tolerance := Thresholds(len(out))
	return domain.ValidatorSet{
		Addresses:           out,
		MinimumForConsensus: minimum,
		FaultTolerance:      tolerance,
	}, nil
}

// Thresholds returns the BFT quorum and fault tolerance for n validators:
// floor(2n/3)+1 and floor((n-1)/3).
func Thresholds(n int) (minimum, faultTolerance int) {
	minimum = (2*n)/3 + 1
	if n > 0 {
		faultTolerance = (n - 1) / 3
	}
	return minimum, faultTolerance
}

// Dedupe drops repeated addresses, keeping first occurrence order.
func Dedupe(addrs []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(addrs))
	out := make([]common.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
