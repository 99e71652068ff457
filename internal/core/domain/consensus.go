package domain

// ConsensusStatus labels the outcome of a reconcile cycle.
type ConsensusStatus string

const (
	ConsensusInsufficientData ConsensusStatus = "insufficient data"
	ConsensusReached          ConsensusStatus = "consensus reached"
	ConsensusPropagating      ConsensusStatus = "still propagating"
)

// ConsensusVerdict is derived per request from the latest block of every node.
type ConsensusVerdict struct {
	IsSynced      bool
	Status        ConsensusStatus
	TotalNodes    int
	ObservedValid int
	// Reference is the first valid observation in probe order, not the highest.
	Reference *BlockSummary
	// Blocks is index-aligned with the configured targets.
	Blocks []NodeBlock
	// HeightSpread is max-min height across valid observations. Informational only.
	HeightSpread uint64
}
