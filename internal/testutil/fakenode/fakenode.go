// Package fakenode serves an in-process JSON-RPC node for tests. It answers
// the subset of eth/net/ibft methods the monitor uses.
package fakenode

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Block is the JSON shape returned for eth_getBlockByNumber.
type Block struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	Miner        common.Address `json:"miner"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	GasLimit     hexutil.Uint64 `json:"gasLimit"`
	Transactions []common.Hash  `json:"transactions"`
}

// Node is a scriptable fake node.
type Node struct {
	mu         sync.RWMutex
	chainID    uint64
	peers      uint64
	blocks     map[uint64]*Block
	head       uint64
	validators []common.Address
	receipts   map[common.Hash]*types.Receipt
	failures   map[string]error
	delay      time.Duration
	delays     map[string]time.Duration
	calls      map[string]int

	closed chan struct{}
	server *httptest.Server
}

// New starts a fake node with chain id 1337, two peers and a head at block 0.
func New(t testing.TB) *Node {
	t.Helper()

	n := &Node{
		chainID:  1337,
		peers:    2,
		blocks:   make(map[uint64]*Block),
		receipts: make(map[common.Hash]*types.Receipt),
		failures: make(map[string]error),
		delays:   make(map[string]time.Duration),
		calls:    make(map[string]int),
		closed:   make(chan struct{}),
	}
	n.SetHead(0, HashFor(0))

	srv := gethrpc.NewServer()
	if err := srv.RegisterName("eth", &ethAPI{n: n}); err != nil {
		t.Fatalf("register eth: %v", err)
	}
	if err := srv.RegisterName("net", &netAPI{n: n}); err != nil {
		t.Fatalf("register net: %v", err)
	}
	if err := srv.RegisterName("ibft", &ibftAPI{n: n}); err != nil {
		t.Fatalf("register ibft: %v", err)
	}

	n.server = httptest.NewServer(srv)
	t.Cleanup(func() {
		close(n.closed)
		n.server.Close()
		srv.Stop()
	})
	return n
}

// DeadURL returns the URL of a server that has already shut down, so every
// request is refused.
func DeadURL(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

// HashFor returns a deterministic block hash for a height.
func HashFor(number uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(number + 0xb10c))
}

// URL is the node's JSON-RPC endpoint.
func (n *Node) URL() string {
	return n.server.URL
}

// SetHead installs block number with hash as the chain head.
func (n *Node) SetHead(number uint64, hash common.Hash) {
	n.mu.Lock()
	defer n.mu.Unlock()

	parent := common.Hash{}
	if prev, ok := n.blocks[number-1]; ok && number > 0 {
		parent = prev.Hash
	}
	n.blocks[number] = &Block{
		Number:       hexutil.Uint64(number),
		Hash:         hash,
		ParentHash:   parent,
		Timestamp:    hexutil.Uint64(1_700_000_000 + number*2),
		Miner:        common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		GasUsed:      hexutil.Uint64(21000),
		GasLimit:     hexutil.Uint64(30_000_000),
		Transactions: []common.Hash{},
	}
	n.head = number
}

// SetChain fills blocks 0..head with deterministic hashes.
func (n *Node) SetChain(head uint64) {
	for i := uint64(0); i <= head; i++ {
		n.SetHead(i, HashFor(i))
	}
}

// SetValidators sets the validator list.
func (n *Node) SetValidators(addrs ...common.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.validators = addrs
}

// SetPeers sets the net_peerCount answer.
func (n *Node) SetPeers(peers uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers = peers
}

// SetChainID sets the eth_chainId answer.
func (n *Node) SetChainID(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chainID = id
}

// AddReceipt makes a receipt available through eth_getTransactionReceipt.
func (n *Node) AddReceipt(r *types.Receipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts[r.TxHash] = r
}

// Fail makes method return err until cleared with Fail(method, nil).
func (n *Node) Fail(method string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.failures, method)
		return
	}
	n.failures[method] = err
}

// Delay holds every answer for d, or until the caller gives up.
func (n *Node) Delay(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delay = d
}

// DelayMethod holds answers to method for d, overriding Delay. Zero clears it.
func (n *Node) DelayMethod(method string, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if d == 0 {
		delete(n.delays, method)
		return
	}
	n.delays[method] = d
}

// Calls returns how many times method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.calls[method]
}

func (n *Node) enter(ctx context.Context, method string) error {
	n.mu.Lock()
	n.calls[method]++
	delay := n.delay
	if d, ok := n.delays[method]; ok {
		delay = d
	}
	err := n.failures[method]
	n.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		case <-n.closed:
			return errors.New("node closed")
		}
	}
	return err
}

type ethAPI struct{ n *Node }

func (a *ethAPI) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	if err := a.n.enter(ctx, "eth_blockNumber"); err != nil {
		return 0, err
	}
	a.n.mu.RLock()
	defer a.n.mu.RUnlock()
	return hexutil.Uint64(a.n.head), nil
}

func (a *ethAPI) ChainId(ctx context.Context) (hexutil.Uint64, error) {
	if err := a.n.enter(ctx, "eth_chainId"); err != nil {
		return 0, err
	}
	a.n.mu.RLock()
	defer a.n.mu.RUnlock()
	return hexutil.Uint64(a.n.chainID), nil
}

func (a *ethAPI) GetBlockByNumber(ctx context.Context, tag string, full bool) (*Block, error) {
	if err := a.n.enter(ctx, "eth_getBlockByNumber"); err != nil {
		return nil, err
	}
	a.n.mu.RLock()
	defer a.n.mu.RUnlock()

	number := a.n.head
	if tag != "latest" {
		parsed, err := hexutil.DecodeUint64(tag)
		if err != nil {
			return nil, fmt.Errorf("invalid block tag %q", tag)
		}
		number = parsed
	}
	block, ok := a.n.blocks[number]
	if !ok {
		return nil, nil
	}
	cp := *block
	return &cp, nil
}

func (a *ethAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := a.n.enter(ctx, "eth_getTransactionReceipt"); err != nil {
		return nil, err
	}
	a.n.mu.RLock()
	defer a.n.mu.RUnlock()
	return a.n.receipts[hash], nil
}

type netAPI struct{ n *Node }

func (a *netAPI) PeerCount(ctx context.Context) (hexutil.Uint64, error) {
	if err := a.n.enter(ctx, "net_peerCount"); err != nil {
		return 0, err
	}
	a.n.mu.RLock()
	defer a.n.mu.RUnlock()
	return hexutil.Uint64(a.n.peers), nil
}

type ibftAPI struct{ n *Node }

func (a *ibftAPI) GetValidatorsByBlockNumber(ctx context.Context, tag string) ([]common.Address, error) {
	if err := a.n.enter(ctx, "ibft_getValidatorsByBlockNumber"); err != nil {
		return nil, err
	}
	a.n.mu.RLock()
	defer a.n.mu.RUnlock()
	return append([]common.Address(nil), a.n.validators...), nil
}
