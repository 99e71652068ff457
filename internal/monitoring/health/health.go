// Package health probes every configured node and classifies the fleet.
package health

import "github.com/vietddude/chainwatch/internal/core/domain"

// SystemStatus represents the overall health state of the fleet.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Online counts reachable nodes.
func Online(statuses []domain.NodeStatus) int {
	n := 0
	for _, s := range statuses {
		if s.Reachable {
			n++
		}
	}
	return n
}

// Classify derives the fleet status from one probe cycle. Fewer than
// minObservations reachable nodes is critical, since no consensus verdict can
// be formed; any offline node or a lag above maxLag is degraded.
func Classify(statuses []domain.NodeStatus, minObservations int, maxLag uint64) SystemStatus {
	online := Online(statuses)
	if online == 0 || online < minObservations {
		return StatusCritical
	}
	if online < len(statuses) {
		return StatusDegraded
	}
	for _, s := range statuses {
		if s.Lag != nil && *s.Lag > maxLag {
			return StatusDegraded
		}
	}
	return StatusHealthy
}

// Worst returns the more severe of two statuses.
func Worst(a, b SystemStatus) SystemStatus {
	rank := func(s SystemStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// ApplyLag fills Lag on every reachable status relative to the highest head.
func ApplyLag(statuses []domain.NodeStatus) {
	var highest uint64
	for _, s := range statuses {
		if s.Reachable && s.ChainHead != nil && *s.ChainHead > highest {
			highest = *s.ChainHead
		}
	}
	for i := range statuses {
		s := &statuses[i]
		if !s.Reachable || s.ChainHead == nil {
			continue
		}
		lag := highest - *s.ChainHead
		s.Lag = &lag
	}
}
