package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vietddude/chainwatch/internal/core/domain"
	"github.com/vietddude/chainwatch/internal/monitoring/health"
)

// ServiceName is reported by /api/health.
const ServiceName = "chainwatch"

// History listing limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps primary-node failures to 503 and everything else to 500.
func errorStatus(err error) int {
	if errors.Is(err, domain.ErrLedgerUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

func (s *handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
		"service":   ServiceName,
	})
}

func (s *handlers) nodesStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.NodeHealth(r.Context()))
}

func (s *handlers) consensus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Consensus(r.Context()))
}

func (s *handlers) validators(w http.ResponseWriter, r *http.Request) {
	rep, err := s.fleet.Validators(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *handlers) latestBlock(w http.ResponseWriter, r *http.Request) {
	block, err := s.fleet.LatestBlock(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (s *handlers) recentBlocks(w http.ResponseWriter, r *http.Request) {
	rep, err := s.fleet.RecentBlocks(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *handlers) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *handlers) consensusHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}
	limit := queryInt(r, "limit")
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	recs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []domain.VerdictRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(recs), "records": recs})
}

// health reports the fleet status from the cached snapshot; critical is 503.
func (s *handlers) health(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Get(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": string(health.StatusCritical)})
		return
	}

	status := http.StatusOK
	if snap.Status == health.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":   snap.Status,
		"sections": snap.Sections,
	})
}

func (s *handlers) healthDetailed(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"health":     snap.Health,
		"transports": s.fleet.Transports(),
	})
}
