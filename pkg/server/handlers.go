package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bugtriage/pkg/logx"
	"bugtriage/pkg/persistence"
	"bugtriage/pkg/triage"
)

const maxRequestBytes = 64 << 10

// TriageRequest is the body of POST /v1/triage.
type TriageRequest struct {
	Query string `json:"query"`
	// Trace asks for the full trace in the response.
	Trace bool `json:"trace,omitempty"`
}

// TriageResponse is returned by POST /v1/triage.
type TriageResponse struct {
	RunID  string              `json:"run_id"`
	Output *triage.FinalOutput `json:"output,omitempty"`
	Error  string              `json:"error,omitempty"`
	Trace  *triage.Trace       `json:"trace,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleTriage implements POST /v1/triage.
func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req TriageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	if !s.sem.TryAcquire(1) {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "too many triage runs in flight")
		return
	}
	defer s.sem.Release(1)

	trace, err := s.triager.RunWithTrace(r.Context(), req.Query)
	resp := TriageResponse{}
	if trace != nil {
		resp.RunID = trace.RunID
		resp.Output = trace.Output
		if req.Trace {
			resp.Trace = trace
		}
	}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Error("Triage run %s failed: %v", resp.RunID, err)
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, triage.ErrDecisionMaker):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleListRuns implements GET /v1/runs?limit=&status=&severity=.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	q := r.URL.Query()
	filter := persistence.RunFilter{Status: q.Get("status"), Severity: q.Get("severity")}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to list runs: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*persistence.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun implements GET /v1/runs/{id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	run, err := s.history.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, persistence.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("Failed to get run: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleLogs implements GET /v1/logs?domain=&component=&since=. since is a Go duration (default 5m).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	window := 5 * time.Minute
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "since must be a positive duration")
			return
		}
		window = d
	}
	entries := logx.GetRecentLogEntries(r.URL.Query().Get("domain"), time.Now().Add(-window))
	out := make([]logx.LogEntry, 0, len(entries))
	component := r.URL.Query().Get("component")
	for i := range entries {
		if component == "" || entries[i].Component == component {
			out = append(out, entries[i])
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}
