package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/chain"
	"github.com/vietddude/chainwatch/internal/infra/chain/evm"
	"github.com/vietddude/chainwatch/internal/infra/rpc/routing"
	"github.com/vietddude/chainwatch/internal/testutil/fakenode"
)

func endpoint(t *testing.T, index int, url string, timeout time.Duration) chain.Endpoint {
	t.Helper()
	target := domain.Target{Index: index, URL: url}
	c, err := evm.Dial(target, timeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return chain.Endpoint{Target: target, Node: c}
}

func ptr(v uint64) *uint64 { return &v }

func TestProbeAll_IndexAlignedWithFailures(t *testing.T) {
	n1, n3 := fakenode.New(t), fakenode.New(t)
	n1.SetChain(100)
	n3.SetChain(98)

	endpoints := []chain.Endpoint{
		endpoint(t, 1, n1.URL(), time.Second),
		endpoint(t, 2, fakenode.DeadURL(t), time.Second),
		endpoint(t, 3, n3.URL(), time.Second),
	}

	statuses := NewProber().ProbeAll(context.Background(), endpoints)
	require.Len(t, statuses, 3)

	for i, s := range statuses {
		assert.Equal(t, i+1, s.Node)
	}

	assert.True(t, statuses[0].Reachable)
	assert.Equal(t, uint64(100), *statuses[0].ChainHead)
	assert.Equal(t, uint64(1337), *statuses[0].ChainID)
	assert.Equal(t, uint64(2), *statuses[0].PeerCount)
	assert.Equal(t, uint64(0), *statuses[0].Lag)

	assert.False(t, statuses[1].Reachable)
	assert.NotEmpty(t, statuses[1].Error)
	assert.Nil(t, statuses[1].ChainHead)

	assert.True(t, statuses[2].Reachable)
	assert.Equal(t, uint64(2), *statuses[2].Lag)
}

func TestProbeAll_NoClient(t *testing.T) {
	statuses := NewProber().ProbeAll(context.Background(), []chain.Endpoint{
		{Target: domain.Target{Index: 1, URL: "http://localhost:8545"}},
	})

	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Reachable)
	assert.Equal(t, "no client configured", statuses[0].Error)
}

func TestProbeAll_PeerCountIsBestEffort(t *testing.T) {
	node := fakenode.New(t)
	node.SetChain(5)
	node.Fail("net_peerCount", errors.New("method disabled"))

	statuses := NewProber().ProbeAll(context.Background(), []chain.Endpoint{
		endpoint(t, 1, node.URL(), time.Second),
	})

	assert.True(t, statuses[0].Reachable)
	require.NotNil(t, statuses[0].PeerCount)
	assert.Equal(t, uint64(0), *statuses[0].PeerCount)
}

func TestProbeAll_ChainIDRequired(t *testing.T) {
	node := fakenode.New(t)
	node.Fail("eth_chainId", errors.New("boom"))

	statuses := NewProber().ProbeAll(context.Background(), []chain.Endpoint{
		endpoint(t, 1, node.URL(), time.Second),
	})

	assert.False(t, statuses[0].Reachable)
	assert.Contains(t, statuses[0].Error, "boom")
}

func TestProbeAll_HangingNodeBoundedByTimeout(t *testing.T) {
	fast, slow := fakenode.New(t), fakenode.New(t)
	slow.Delay(10 * time.Second)

	endpoints := []chain.Endpoint{
		endpoint(t, 1, fast.URL(), 200*time.Millisecond),
		endpoint(t, 2, slow.URL(), 200*time.Millisecond),
	}

	start := time.Now()
	statuses := NewProber().ProbeAll(context.Background(), endpoints)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second)
	assert.True(t, statuses[0].Reachable)
	assert.False(t, statuses[1].Reachable)
}

func TestProbeAll_SlowPeerCountDoesNotStack(t *testing.T) {
	node := fakenode.New(t)
	node.SetChain(5)
	node.DelayMethod("eth_blockNumber", 400*time.Millisecond)
	node.DelayMethod("net_peerCount", 400*time.Millisecond)

	start := time.Now()
	statuses := NewProber().ProbeAll(context.Background(), []chain.Endpoint{
		endpoint(t, 1, node.URL(), 2*time.Second),
	})
	elapsed := time.Since(start)

	require.True(t, statuses[0].Reachable)
	require.NotNil(t, statuses[0].PeerCount)
	assert.Equal(t, uint64(2), *statuses[0].PeerCount)
	assert.Less(t, elapsed, 750*time.Millisecond, "peer count must run alongside the head reading")
}

func TestProbeAll_HangingPeerCountBoundedByTimeout(t *testing.T) {
	node := fakenode.New(t)
	node.SetChain(5)
	node.DelayMethod("net_peerCount", 10*time.Second)

	start := time.Now()
	statuses := NewProber().ProbeAll(context.Background(), []chain.Endpoint{
		endpoint(t, 1, node.URL(), 300*time.Millisecond),
	})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second)
	assert.True(t, statuses[0].Reachable)
	require.NotNil(t, statuses[0].ChainHead)
	assert.Equal(t, uint64(5), *statuses[0].ChainHead)
	require.NotNil(t, statuses[0].PeerCount)
	assert.Equal(t, uint64(0), *statuses[0].PeerCount)
}

func TestProbeAll_MandatoryFailureCancelsPeerCount(t *testing.T) {
	node := fakenode.New(t)
	node.Fail("eth_chainId", errors.New("boom"))
	node.DelayMethod("net_peerCount", 10*time.Second)

	start := time.Now()
	statuses := NewProber().ProbeAll(context.Background(), []chain.Endpoint{
		endpoint(t, 1, node.URL(), 5*time.Second),
	})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second)
	assert.False(t, statuses[0].Reachable)
	assert.Contains(t, statuses[0].Error, "boom")
	assert.Nil(t, statuses[0].PeerCount)
}

func TestProbeAll_Retries(t *testing.T) {
	node := fakenode.New(t)
	node.Fail("eth_blockNumber", errors.New("temporarily unavailable"))

	prober := NewProber(WithRetry(routing.RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		BackoffMultiple: 1,
	}))
	statuses := prober.ProbeAll(context.Background(), []chain.Endpoint{
		endpoint(t, 1, node.URL(), time.Second),
	})

	assert.False(t, statuses[0].Reachable)
	assert.Equal(t, 3, node.Calls("eth_blockNumber"))
}

func TestProbeAll_ShapeIsStable(t *testing.T) {
	node := fakenode.New(t)
	endpoints := []chain.Endpoint{
		endpoint(t, 1, node.URL(), time.Second),
		endpoint(t, 2, fakenode.DeadURL(t), time.Second),
	}
	prober := NewProber()

	first := prober.ProbeAll(context.Background(), endpoints)
	second := prober.ProbeAll(context.Background(), endpoints)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Node, second[i].Node)
		assert.Equal(t, first[i].Reachable, second[i].Reachable)
	}
}

func TestClassify(t *testing.T) {
	online := func(head uint64) domain.NodeStatus {
		return domain.NodeStatus{Reachable: true, ChainHead: ptr(head)}
	}
	tests := []struct {
		name     string
		statuses []domain.NodeStatus
		want     SystemStatus
	}{
		{"all online", []domain.NodeStatus{online(10), online(10), online(10)}, StatusHealthy},
		{"one offline", []domain.NodeStatus{online(10), {}, online(10)}, StatusDegraded},
		{"lagging", []domain.NodeStatus{online(100), online(10), online(100)}, StatusDegraded},
		{"below minimum", []domain.NodeStatus{online(10), {}, {}}, StatusCritical},
		{"empty", nil, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ApplyLag(tt.statuses)
			assert.Equal(t, tt.want, Classify(tt.statuses, 2, 5))
		})
	}
}

func TestWorst(t *testing.T) {
	assert.Equal(t, StatusCritical, Worst(StatusDegraded, StatusCritical))
	assert.Equal(t, StatusDegraded, Worst(StatusDegraded, StatusHealthy))
	assert.Equal(t, StatusHealthy, Worst(StatusHealthy, StatusHealthy))
}
