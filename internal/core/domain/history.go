package domain

import "time"

// VerdictRecord is one poll cycle as stored in the verdict history.
type VerdictRecord struct {
	ID              string    `json:"id"               db:"id"`
	TakenAt         time.Time `json:"takenAt"          db:"taken_at"`
	Synced          bool      `json:"synced"           db:"synced"`
	Status          string    `json:"consensusStatus"  db:"status"`
	TotalNodes      int       `json:"totalNodes"       db:"total_nodes"`
	OnlineNodes     int       `json:"onlineNodes"      db:"online_nodes"`
	ObservedNodes   int       `json:"syncedNodes"      db:"observed_nodes"`
	ReferenceNumber *uint64   `json:"referenceNumber"  db:"reference_number"`
	ReferenceHash   string    `json:"referenceHash"    db:"reference_hash"`
	NodeHashes      []string  `json:"nodeHashes"       db:"node_hashes"`
	ValidatorCount  int       `json:"validatorCount"   db:"validator_count"`
}
