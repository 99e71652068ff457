// Package metrics exposes fleet readings as Prometheus series.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/chainwatch/internal/core/domain"
)

// Collector owns its registry so several instances can coexist in tests.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// NodeUp is 1 when the node answered the last probe
	NodeUp *prometheus.GaugeVec

	// NodeHead tracks the chain head reported by each node
	NodeHead *prometheus.GaugeVec

	// NodePeers tracks net_peerCount per node
	NodePeers *prometheus.GaugeVec

	// NodeLag tracks blocks behind the highest observed head
	NodeLag *prometheus.GaugeVec

	// ProbeLatency tracks probe duration per node
	ProbeLatency *prometheus.HistogramVec

	// RPCErrorsTotal counts failed node calls by operation
	RPCErrorsTotal *prometheus.CounterVec

	ConsensusSynced       prometheus.Gauge
	ConsensusObservations prometheus.Gauge
	ConsensusHeightSpread prometheus.Gauge
	ValidatorCount        prometheus.Gauge

	// PollCyclesTotal counts poll cycles by outcome (ok, partial)
	PollCyclesTotal *prometheus.CounterVec
}

// New creates a collector with Go and process collectors registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		NodeUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chainwatch_node_up",
			Help: "Whether the node answered the last probe",
		}, []string{"node"}),
		NodeHead: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chainwatch_node_head_block",
			Help: "Latest block height reported by the node",
		}, []string{"node"}),
		NodePeers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chainwatch_node_peers",
			Help: "Connected peers reported by the node",
		}, []string{"node"}),
		NodeLag: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chainwatch_node_lag_blocks",
			Help: "Blocks behind the highest head observed in the fleet",
		}, []string{"node"}),
		ProbeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainwatch_probe_latency_seconds",
			Help:    "Node probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		RPCErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_rpc_errors_total",
			Help: "Total number of failed node calls",
		}, []string{"node", "op"}),
		ConsensusSynced: f.NewGauge(prometheus.GaugeOpts{
			Name: "chainwatch_consensus_synced",
			Help: "1 when every observed node reports the same latest block hash",
		}),
		ConsensusObservations: f.NewGauge(prometheus.GaugeOpts{
			Name: "chainwatch_consensus_observed_nodes",
			Help: "Nodes that returned a valid latest block in the last reconcile",
		}),
		ConsensusHeightSpread: f.NewGauge(prometheus.GaugeOpts{
			Name: "chainwatch_consensus_height_spread",
			Help: "Difference between highest and lowest observed latest block",
		}),
		ValidatorCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "chainwatch_validators",
			Help: "Size of the validator set reported by the primary node",
		}),
		PollCyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_poll_cycles_total",
			Help: "Total number of poll cycles",
		}, []string{"result"}),
	}
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func nodeLabel(n int) string {
	return strconv.Itoa(n)
}

// ObserveNodes records one probe cycle.
func (c *Collector) ObserveNodes(statuses []domain.NodeStatus) {
	if c == nil {
		return
	}
	for _, s := range statuses {
		node := nodeLabel(s.Node)
		c.ProbeLatency.WithLabelValues(node).Observe(s.Latency.Seconds())
		if !s.Reachable {
			c.NodeUp.WithLabelValues(node).Set(0)
			c.RPCErrorsTotal.WithLabelValues(node, "probe").Inc()
			continue
		}
		c.NodeUp.WithLabelValues(node).Set(1)
		if s.ChainHead != nil {
			c.NodeHead.WithLabelValues(node).Set(float64(*s.ChainHead))
		}
		if s.PeerCount != nil {
			c.NodePeers.WithLabelValues(node).Set(float64(*s.PeerCount))
		}
		if s.Lag != nil {
			c.NodeLag.WithLabelValues(node).Set(float64(*s.Lag))
		}
	}
}

// ObserveVerdict records one reconcile cycle.
func (c *Collector) ObserveVerdict(v domain.ConsensusVerdict) {
	if c == nil {
		return
	}
	synced := 0.0
	if v.IsSynced {
		synced = 1
	}
	c.ConsensusSynced.Set(synced)
	c.ConsensusObservations.Set(float64(v.ObservedValid))
	c.ConsensusHeightSpread.Set(float64(v.HeightSpread))
	for _, b := range v.Blocks {
		if !b.Valid() {
			c.RPCErrorsTotal.WithLabelValues(nodeLabel(b.Node), "latest_block").Inc()
		}
	}
}

// ObserveValidators records the validator set size.
func (c *Collector) ObserveValidators(set domain.ValidatorSet) {
	if c == nil {
		return
	}
	c.ValidatorCount.Set(float64(len(set.Addresses)))
}

// ObservePoll counts a finished poll cycle.
func (c *Collector) ObservePoll(complete bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !complete {
		result = "partial"
	}
	c.PollCyclesTotal.WithLabelValues(result).Inc()
}
