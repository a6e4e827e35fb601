package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// staleTickAfter marks the engine degraded when ticks stop this long.
const staleTickAfter = 10 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.engine.Health()

	status := "ok"
	if !health.Running {
		status = "stopped"
	} else if health.LastTickMs > 0 &&
		time.Since(time.UnixMilli(health.LastTickMs)) > staleTickAfter {
		status = "degraded"
	}

	body := map[string]interface{}{
		"status": status,
		"engine": health,
	}

	if s.store != nil {
		if stats, err := s.store.GetStats(health.Asset); err == nil {
			body["windows"] = stats
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot available yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "window history disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}

	recs, err := s.store.RecentWindows(s.engine.Health().Asset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "window lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(recs),
		"windows": recs,
	})
}

// writeJSON marshals v and writes it with the given status. A marshal
// failure falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
