package domain

// ValidatorSet is the IBFT validator list reported by the primary node along
// with the derived BFT thresholds.
type ValidatorSet struct {
	Addresses           []string `json:"validators"`
	MinimumForConsensus int      `json:"minimumForConsensus"`
	FaultTolerance      int      `json:"faultTolerance"`
}
