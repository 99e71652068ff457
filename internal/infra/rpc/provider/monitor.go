package provider

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

// TransportStatus summarizes how a node's transport has behaved recently.
type TransportStatus int

const (
	StatusHealthy     TransportStatus = iota
	StatusSlow                        // answering, but p95 latency is above the slow threshold
	StatusThrottled                   // pushed back with 429/403; cleared by the backoff ending or a success
	StatusUnreachable                 // consecutive failures reached the limit
)

func (s TransportStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusSlow:
		return "slow"
	case StatusThrottled:
		return "throttled"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name in JSON.
func (s TransportStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Backoffs applied after the node pushes back.
const (
	rateLimitBackoff = 30 * time.Second
	forbiddenBackoff = 5 * time.Minute
)

var throttleMarkers = []string{
	"rate limit",
	"too many requests",
	"request count exceeded",
}

// IsThrottleMessage reports whether an error message reads like rate limiting.
func IsThrottleMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range throttleMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// MonitorStats is a point-in-time copy of a Monitor.
type MonitorStats struct {
	Status              TransportStatus `json:"status"`
	AverageLatency      time.Duration   `json:"average_latency"`
	P95Latency          time.Duration   `json:"p95_latency"`
	Requests            int             `json:"requests"`
	Failures            int             `json:"failures"`
	Throttles           int             `json:"throttles"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	BackoffRemaining    time.Duration   `json:"backoff_remaining"`
	LastSuccessAt       time.Time       `json:"-"`
	LastFailureAt       time.Time       `json:"-"`
}

// ErrorRate is the share of failed calls, 0 before the first call.
func (s MonitorStats) ErrorRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Requests)
}

// Monitor keeps a fixed window of call latencies and the failure streak of
// one node transport.
type Monitor struct {
	mu sync.Mutex

	latencies []time.Duration // ring
	next      int
	filled    bool

	requests            int
	failures            int
	throttles           int
	consecutiveFailures int
	backoffUntil        time.Time
	lastSuccess         time.Time
	lastFailure         time.Time

	slowThreshold    time.Duration
	unreachableAfter int
	now              func() time.Time
}

// NewMonitor creates a monitor with a 64-call latency window.
func NewMonitor() *Monitor {
	return &Monitor{
		latencies:        make([]time.Duration, 64),
		slowThreshold:    2 * time.Second,
		unreachableAfter: 3,
		now:              time.Now,
	}
}

// RecordSuccess records a completed call.
func (m *Monitor) RecordSuccess(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	m.consecutiveFailures = 0
	m.backoffUntil = time.Time{}
	m.lastSuccess = m.now()
	m.latencies[m.next] = latency
	m.next = (m.next + 1) % len(m.latencies)
	if m.next == 0 {
		m.filled = true
	}
}

// RecordFailure records a failed call.
func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	m.failures++
	m.consecutiveFailures++
	m.lastFailure = m.now()
}

// RecordThrottle starts a backoff. 403 backs off longer than 429.
func (m *Monitor) RecordThrottle(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.throttles++
	backoff := rateLimitBackoff
	if statusCode == http.StatusForbidden {
		backoff = forbiddenBackoff
	}
	m.backoffUntil = m.now().Add(backoff)
}

// Status returns the current transport status.
func (m *Monitor) Status() TransportStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() TransportStatus {
	switch {
	case m.now().Before(m.backoffUntil):
		return StatusThrottled
	case m.consecutiveFailures >= m.unreachableAfter:
		return StatusUnreachable
	case m.sampleCountLocked() >= 10 && m.percentileLocked(95) > m.slowThreshold:
		return StatusSlow
	}
	return StatusHealthy
}

// RetryAfter returns the remaining throttle backoff, or zero.
func (m *Monitor) RetryAfter() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return max(m.backoffUntil.Sub(m.now()), 0)
}

func (m *Monitor) sampleCountLocked() int {
	if m.filled {
		return len(m.latencies)
	}
	return m.next
}

func (m *Monitor) window() []time.Duration {
	return m.latencies[:m.sampleCountLocked()]
}

func (m *Monitor) averageLocked() time.Duration {
	w := m.window()
	if len(w) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range w {
		total += l
	}
	return total / time.Duration(len(w))
}

func (m *Monitor) percentileLocked(p int) time.Duration {
	w := slices.Clone(m.window())
	if len(w) == 0 {
		return 0
	}
	slices.Sort(w)
	idx := (len(w)*p+99)/100 - 1
	return w[max(idx, 0)]
}

// Stats returns a copy of the current counters.
func (m *Monitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MonitorStats{
		Status:              m.statusLocked(),
		AverageLatency:      m.averageLocked(),
		P95Latency:          m.percentileLocked(95),
		Requests:            m.requests,
		Failures:            m.failures,
		Throttles:           m.throttles,
		ConsecutiveFailures: m.consecutiveFailures,
		BackoffRemaining:    max(m.backoffUntil.Sub(m.now()), 0),
		LastSuccessAt:       m.lastSuccess,
		LastFailureAt:       m.lastFailure,
	}
}
