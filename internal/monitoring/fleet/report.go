package fleet

import (
	"time"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/infra/rpc/provider"
	"github.com/vietddude/chainwatch/internal/monitoring/health"
)

// HealthReport is the node health query result.
type HealthReport struct {
	Status      health.SystemStatus `json:"status"`
	TotalNodes  int                 `json:"totalNodes"`
	OnlineNodes int                 `json:"onlineNodes"`
	Nodes       []domain.NodeStatus `json:"nodes"`
}

// ConsensusReport is the consensus query result.
type ConsensusReport struct {
	Synced          bool                   `json:"synced"`
	ConsensusStatus domain.ConsensusStatus `json:"consensusStatus"`
	TotalNodes      int                    `json:"totalNodes"`
	SyncedNodes     int                    `json:"syncedNodes"`
	LatestBlock     *domain.BlockSummary   `json:"latestBlock"`
	Blocks          []domain.NodeBlock     `json:"blocks"`
	HeightSpread    uint64                 `json:"heightSpread"`
}

// ValidatorReport is the validator query result.
type ValidatorReport struct {
	Count               int      `json:"count"`
	Validators          []string `json:"validators"`
	MinimumForConsensus int      `json:"minimumForConsensus"`
	FaultTolerance      int      `json:"faultTolerance"`
}

// BlocksReport lists recent blocks from the primary node, newest first.
type BlocksReport struct {
	Blocks      []domain.BlockSummary `json:"blocks"`
	LatestBlock uint64                `json:"latestBlock"`
}

// TransportReport is the transport-level health of one node client,
// accumulated since startup.
type TransportReport struct {
	Node   int                    `json:"node"`
	Name   string                 `json:"name,omitempty"`
	Health *provider.HealthStatus `json:"health,omitempty"` // nil without a client
}

// Section names used in Snapshot.Sections.
const (
	SectionHealth     = "health"
	SectionConsensus  = "consensus"
	SectionValidators = "validators"
)

// Section records whether one part of a snapshot produced usable data.
type Section struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Snapshot is the combined result of the three queries.
type Snapshot struct {
	ID         string              `json:"id"`
	TakenAt    time.Time           `json:"takenAt"`
	Status     health.SystemStatus `json:"status"`
	Health     HealthReport        `json:"health"`
	Consensus  ConsensusReport     `json:"consensus"`
	Validators *ValidatorReport    `json:"validators,omitempty"`
	Sections   map[string]Section  `json:"sections"`
}

// Complete reports whether every section succeeded.
func (s Snapshot) Complete() bool {
	for _, sec := range s.Sections {
		if !sec.OK {
			return false
		}
	}
	return true
}

// Record flattens the snapshot into a history entry.
func (s Snapshot) Record() domain.VerdictRecord {
	rec := domain.VerdictRecord{
		ID:            s.ID,
		TakenAt:       s.TakenAt,
		Synced:        s.Consensus.Synced,
		Status:        string(s.Consensus.ConsensusStatus),
		TotalNodes:    s.Health.TotalNodes,
		OnlineNodes:   s.Health.OnlineNodes,
		ObservedNodes: s.Consensus.SyncedNodes,
		NodeHashes:    make([]string, len(s.Consensus.Blocks)),
	}
	if ref := s.Consensus.LatestBlock; ref != nil {
		number := ref.Number
		rec.ReferenceNumber = &number
		rec.ReferenceHash = ref.Hash
	}
	for i, b := range s.Consensus.Blocks {
		if b.Valid() {
			rec.NodeHashes[i] = b.Block.Hash
		}
	}
	if s.Validators != nil {
		rec.ValidatorCount = s.Validators.Count
	}
	return rec
}

func consensusReport(v domain.ConsensusVerdict) ConsensusReport {
	return ConsensusReport{
		Synced:          v.IsSynced,
		ConsensusStatus: v.Status,
		TotalNodes:      v.TotalNodes,
		SyncedNodes:     v.ObservedValid,
		LatestBlock:     v.Reference,
		Blocks:          v.Blocks,
		HeightSpread:    v.HeightSpread,
	}
}

func validatorReport(set domain.ValidatorSet) ValidatorReport {
	return ValidatorReport{
		Count:               len(set.Addresses),
		Validators:          set.Addresses,
		MinimumForConsensus: set.MinimumForConsensus,
		FaultTolerance:      set.FaultTolerance,
	}
}
