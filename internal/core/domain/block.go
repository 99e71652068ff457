package domain

// BlockSummary is a read-only projection of a block as reported by one node.
type BlockSummary struct {
	Number     uint64 `json:"number"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parentHash"`
	Timestamp  uint64 `json:"timestamp"`
	Producer   string `json:"miner"`
	GasUsed    uint64 `json:"gasUsed"`
	GasLimit   uint64 `json:"gasLimit"`
	TxCount    int    `json:"transactions"`
}

// NodeBlock is the latest block one node reported during a reconcile cycle,
// or the error it returned instead.
type NodeBlock struct {
	Node  int           `json:"node"`
	Block *BlockSummary `json:"block,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Valid reports whether the node produced a usable block.
func (b NodeBlock) Valid() bool {
	return b.Block != nil && b.Error == ""
}
