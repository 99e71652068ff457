// Package evm implements chain.Node for Ethereum-compatible JSON-RPC nodes
// (Besu, geth) including the IBFT/QBFT validator namespaces.
package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/rpc/provider"
)

// Client talks to one node. It is safe for concurrent use and holds no
// state besides the provider's health counters.
type Client struct {
	target   domain.Target
	provider provider.RPCProvider
}

// NewClient wraps an existing provider.
func NewClient(target domain.Target, p provider.RPCProvider) *Client {
	return &Client{target: target, provider: p}
}

// Dial builds an HTTP provider for target with the given per-call timeout.
func Dial(target domain.Target, timeout time.Duration) (*Client, error) {
	name := target.Name
	if name == "" {
		name = fmt.Sprintf("node%d", target.Index)
	}
	p, err := provider.NewHTTPProvider(name, target.URL, timeout)
	if err != nil {
		return nil, err
	}
	return NewClient(target, p), nil
}

// Target returns the endpoint this client was built for.
func (c *Client) Target() domain.Target {
	return c.target
}

// Health exposes the transport health counters.
func (c *Client) Health() provider.HealthStatus {
	return c.provider.Health()
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.provider.Close()
}

func (c *Client) wrap(op string, err error) error {
	return &domain.ConnectivityError{Node: c.target.Index, URL: c.target.URL, Op: op, Err: err}
}

// RawCall issues method with params and returns the undecoded result.
func (c *Client) RawCall(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	result, err := c.provider.Call(ctx, method, params)
	if err != nil {
		return nil, c.wrap(method, err)
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.RawCall(ctx, method, params...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.wrap(method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

func (c *Client) quantity(ctx context.Context, method string) (uint64, error) {
	var v hexutil.Uint64
	if err := c.call(ctx, &v, method); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (c *Client) CurrentBlockNumber(ctx context.Context) (uint64, error) {
	return c.quantity(ctx, "eth_blockNumber")
}

func (c *Client) NetworkIdentity(ctx context.Context) (uint64, error) {
	return c.quantity(ctx, "eth_chainId")
}

func (c *Client) PeerCount(ctx context.Context) (uint64, error) {
	return c.quantity(ctx, "net_peerCount")
}

// rpcBlock is the subset of the block object the monitor reads. The hash is
// taken as reported; IBFT extra-data makes local recomputation unreliable.
type rpcBlock struct {
	Number       hexutil.Uint64    `json:"number"`
	Hash         common.Hash       `json:"hash"`
	ParentHash   common.Hash       `json:"parentHash"`
	Timestamp    hexutil.Uint64    `json:"timestamp"`
	Miner        common.Address    `json:"miner"`
	GasUsed      hexutil.Uint64    `json:"gasUsed"`
	GasLimit     hexutil.Uint64    `json:"gasLimit"`
	Transactions []json.RawMessage `json:"transactions"`
}

func (b *rpcBlock) summary() *domain.BlockSummary {
	return &domain.BlockSummary{
		Number:     uint64(b.Number),
		Hash:       b.Hash.Hex(),
		ParentHash: b.ParentHash.Hex(),
		Timestamp:  uint64(b.Timestamp),
		Producer:   b.Miner.Hex(),
		GasUsed:    uint64(b.GasUsed),
		GasLimit:   uint64(b.GasLimit),
		TxCount:    len(b.Transactions),
	}
}

func (c *Client) BlockByTag(ctx context.Context, tag string) (*domain.BlockSummary, error) {
	const method = "eth_getBlockByNumber"

	raw, err := c.RawCall(ctx, method, tag, false)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, c.wrap(method, fmt.Errorf("%w: %s", domain.ErrBlockNotFound, tag))
	}

	var block rpcBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, c.wrap(method, fmt.Errorf("decode block: %w", err))
	}
	return block.summary(), nil
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*domain.BlockSummary, error) {
	return c.BlockByTag(ctx, hexutil.EncodeUint64(number))
}

func (c *Client) Validators(ctx context.Context, method, tag string) ([]common.Address, error) {
	var addrs []common.Address
	if err := c.call(ctx, &addrs, method, tag); err != nil {
		return nil, err
	}
	return addrs, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	const method = "eth_getTransactionReceipt"

	raw, err := c.RawCall(ctx, method, hash)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, c.wrap(method, fmt.Errorf("%w: %s", domain.ErrReceiptNotFound, hash.Hex()))
	}

	var receipt types.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, c.wrap(method, fmt.Errorf("decode receipt: %w", err))
	}
	return &receipt, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
