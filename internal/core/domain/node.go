package domain

import (
	"encoding/json"
	"time"
)

// Target is one configured JSON-RPC endpoint. Index is 1-based and stable
// for the lifetime of the process.
type Target struct {
	Index int    `json:"node"`
	Name  string `json:"name,omitempty"`
	URL   string `json:"url"`
}

// Node states as rendered to API consumers.
const (
	NodeOnline  = "online"
	NodeOffline = "offline"
)

// NodeStatus is the outcome of probing a single endpoint. A fresh set is
// produced every probe cycle.
type NodeStatus struct {
	Node      int
	Name      string
	URL       string
	Reachable bool
	ChainHead *uint64
	ChainID   *uint64
	PeerCount *uint64
	Lag       *uint64
	Error     string
	Latency   time.Duration
}

// State returns "online" or "offline".
func (s NodeStatus) State() string {
	if s.Reachable {
		return NodeOnline
	}
	return NodeOffline
}

type nodeStatusJSON struct {
	Node        int     `json:"node"`
	Name        string  `json:"name,omitempty"`
	URL         string  `json:"url"`
	Status      string  `json:"status"`
	BlockNumber *uint64 `json:"blockNumber,omitempty"`
	ChainID     *uint64 `json:"chainId,omitempty"`
	Peers       *uint64 `json:"peers,omitempty"`
	Lag         *uint64 `json:"lag,omitempty"`
	Error       string  `json:"error,omitempty"`
	LatencyMs   int64   `json:"latencyMs"`
}

// MarshalJSON renders the status in the dashboard's wire shape.
func (s NodeStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeStatusJSON{
		Node:        s.Node,
		Name:        s.Name,
		URL:         s.URL,
		Status:      s.State(),
		BlockNumber: s.ChainHead,
		ChainID:     s.ChainID,
		Peers:       s.PeerCount,
		Lag:         s.Lag,
		Error:       s.Error,
		LatencyMs:   s.Latency.Milliseconds(),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON. Used when reading snapshots
// back from the cache.
func (s *NodeStatus) UnmarshalJSON(data []byte) error {
	var raw nodeStatusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NodeStatus{
		Node:      raw.Node,
		Name:      raw.Name,
		URL:       raw.URL,
		Reachable: raw.Status == NodeOnline,
		ChainHead: raw.BlockNumber,
		ChainID:   raw.ChainID,
		PeerCount: raw.Peers,
		Lag:       raw.Lag,
		Error:     raw.Error,
		Latency:   time.Duration(raw.LatencyMs) * time.Millisecond,
	}
	return nil
}
