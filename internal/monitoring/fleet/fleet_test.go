package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/chain"
	"github.com/vietddude/chainwatch/internal/infra/chain/evm"
	"github.com/vietddude/chainwatch/internal/monitoring/health"
	"github.com/vietddude/chainwatch/internal/monitoring/metrics"
	"github.com/vietddude/chainwatch/internal/testutil/fakenode"
)

func newFleet(t *testing.T, cfg Config, urls ...string) *Fleet {
	t.Helper()
	endpoints := make([]chain.Endpoint, len(urls))
	for i, url := range urls {
		target := domain.Target{Index: i + 1, Name: "node", URL: url}
		c, err := evm.Dial(target, time.Second)
		require.NoError(t, err)
		endpoints[i] = chain.Endpoint{Target: target, Node: c}
	}
	f, err := New(endpoints, cfg, WithMetrics(metrics.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func validatorAddrs(n int) []common.Address {
	out := make([]common.Address, n)
	for i := range out {
		out[i] = common.BytesToAddress([]byte{0x10, byte(i + 1)})
	}
	return out
}

// Node 2 refuses connections, nodes 1 and 3 agree on block 100.
func TestFleet_PartialOutageScenario(t *testing.T) {
	n1, n3 := fakenode.New(t), fakenode.New(t)
	n1.SetHead(100, fakenode.HashFor(100))
	n3.SetHead(100, fakenode.HashFor(100))

	f := newFleet(t, Config{MaxLag: 5}, n1.URL(), fakenode.DeadURL(t), n3.URL())
	ctx := context.Background()

	h := f.NodeHealth(ctx)
	assert.Equal(t, 3, h.TotalNodes)
	assert.Equal(t, 2, h.OnlineNodes)
	assert.Equal(t, health.StatusDegraded, h.Status)
	assert.Equal(t, domain.NodeOffline, h.Nodes[1].State())

	c := f.Consensus(ctx)
	assert.True(t, c.Synced)
	assert.Equal(t, domain.ConsensusReached, c.ConsensusStatus)
	assert.Equal(t, 2, c.SyncedNodes)
	assert.Equal(t, 3, c.TotalNodes)
	require.NotNil(t, c.LatestBlock)
	assert.Equal(t, uint64(100), c.LatestBlock.Number)
}

func TestFleet_Validators(t *testing.T) {
	node := fakenode.New(t)
	node.SetValidators(validatorAddrs(7)...)

	f := newFleet(t, Config{}, node.URL())
	rep, err := f.Validators(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, rep.Count)
	assert.Equal(t, 5, rep.MinimumForConsensus)
	assert.Equal(t, 2, rep.FaultTolerance)
}

func TestFleet_ValidatorsUsePrimary(t *testing.T) {
	n1, n2 := fakenode.New(t), fakenode.New(t)
	n1.SetValidators(validatorAddrs(1)...)
	n2.SetValidators(validatorAddrs(4)...)

	f := newFleet(t, Config{PrimaryNode: 2}, n1.URL(), n2.URL())
	rep, err := f.Validators(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Count)
	assert.Equal(t, 0, n1.Calls("ibft_getValidatorsByBlockNumber"))
}

func TestFleet_SnapshotIsolatesFailures(t *testing.T) {
	n1, n2 := fakenode.New(t), fakenode.New(t)
	n1.SetHead(7, fakenode.HashFor(7))
	n2.SetHead(7, fakenode.HashFor(7))
	n1.Fail("ibft_getValidatorsByBlockNumber", errors.New("method not enabled"))

	f := newFleet(t, Config{}, n1.URL(), n2.URL())
	snap := f.Snapshot(context.Background())

	_, err := uuid.Parse(snap.ID)
	assert.NoError(t, err)
	assert.False(t, snap.TakenAt.IsZero())

	assert.True(t, snap.Sections[SectionHealth].OK)
	assert.True(t, snap.Sections[SectionConsensus].OK)
	assert.False(t, snap.Sections[SectionValidators].OK)
	assert.Contains(t, snap.Sections[SectionValidators].Error, "ledger unavailable")
	assert.Nil(t, snap.Validators)
	assert.False(t, snap.Complete())

	assert.Equal(t, 2, snap.Health.OnlineNodes)
	assert.True(t, snap.Consensus.Synced)

	rec := snap.Record()
	assert.Equal(t, snap.ID, rec.ID)
	require.NotNil(t, rec.ReferenceNumber)
	assert.Equal(t, uint64(7), *rec.ReferenceNumber)
	assert.Equal(t, []string{fakenode.HashFor(7).Hex(), fakenode.HashFor(7).Hex()}, rec.NodeHashes)
}

func TestFleet_SnapshotJSON(t *testing.T) {
	node := fakenode.New(t)
	node.SetValidators(validatorAddrs(4)...)

	f := newFleet(t, Config{MinObservations: 1}, node.URL())
	data, err := json.Marshal(f.Snapshot(context.Background()))
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	for _, key := range []string{"id", "takenAt", "status", "health", "consensus", "validators", "sections"} {
		assert.Contains(t, out, key)
	}
}

func TestFleet_HealthShapeIsStable(t *testing.T) {
	node := fakenode.New(t)
	f := newFleet(t, Config{}, node.URL(), fakenode.DeadURL(t))

	a := f.NodeHealth(context.Background())
	b := f.NodeHealth(context.Background())
	assert.Equal(t, a.TotalNodes, b.TotalNodes)
	assert.Len(t, b.Nodes, len(a.Nodes))
}

func TestFleet_LatestBlock(t *testing.T) {
	node := fakenode.New(t)
	node.SetChain(3)

	f := newFleet(t, Config{}, node.URL())
	b, err := f.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), b.Number)
}

func TestFleet_LatestBlockPrimaryDown(t *testing.T) {
	f := newFleet(t, Config{}, fakenode.DeadURL(t))
	_, err := f.LatestBlock(context.Background())
	assert.True(t, errors.Is(err, domain.ErrLedgerUnavailable))
}

func TestFleet_RecentBlocks(t *testing.T) {
	node := fakenode.New(t)
	node.SetChain(20)

	f := newFleet(t, Config{}, node.URL())

	rep, err := f.RecentBlocks(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), rep.LatestBlock)
	require.Len(t, rep.Blocks, DefaultBlockLimit)
	assert.Equal(t, uint64(20), rep.Blocks[0].Number)
	assert.Equal(t, uint64(11), rep.Blocks[9].Number)
}

func TestFleet_RecentBlocksYoungChain(t *testing.T) {
	node := fakenode.New(t)
	node.SetChain(2)

	f := newFleet(t, Config{}, node.URL())
	rep, err := f.RecentBlocks(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, rep.Blocks, 3)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 10, NormalizeLimit(0))
	assert.Equal(t, 10, NormalizeLimit(-3))
	assert.Equal(t, 5, NormalizeLimit(5))
	assert.Equal(t, 50, NormalizeLimit(500))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)

	_, err = New([]chain.Endpoint{{Target: domain.Target{Index: 1}}}, Config{PrimaryNode: 2})
	assert.Error(t, err)
}

func TestFleet_Transports(t *testing.T) {
	node := fakenode.New(t)
	node.SetHead(5, fakenode.HashFor(5))

	endpoints := []chain.Endpoint{{Target: domain.Target{Index: 1, URL: node.URL()}}, {Target: domain.Target{Index: 2, URL: fakenode.DeadURL(t)}}}
	for i := range endpoints {
		c, err := evm.Dial(endpoints[i].Target, time.Second)
		require.NoError(t, err)
		endpoints[i].Node = c
	}
	endpoints = append(endpoints, chain.Endpoint{Target: domain.Target{Index: 3}})

	f, err := New(endpoints, Config{})
	require.NoError(t, err)
	defer f.Close()

	f.NodeHealth(context.Background())
	reports := f.Transports()
	require.Len(t, reports, 3)

	require.NotNil(t, reports[0].Health)
	assert.True(t, reports[0].Health.Available)
	assert.Zero(t, reports[0].Health.ErrorRate)

	require.NotNil(t, reports[1].Health)
	assert.False(t, reports[1].Health.Available)
	assert.Equal(t, 1.0, reports[1].Health.ErrorRate)

	assert.Nil(t, reports[2].Health)
}
