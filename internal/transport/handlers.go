package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/run"
)

type startRunRequest struct {
	Mode      string   `json:"mode"`
	IPSID     string   `json:"ips_id"`
	UserID    string   `json:"user_id"`
	Watchlist []string `json:"watchlist"`
}

type startRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// handleStartRun accepts a watchlist + IPS id, launches the pipeline in a
// background goroutine, and returns the run id immediately so the caller
// can subscribe to its progress stream.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IPSID == "" || len(req.Watchlist) == 0 {
		writeError(w, http.StatusBadRequest, "ips_id and watchlist are required")
		return
	}

	mode := domain.RunMode(req.Mode)
	if mode == "" {
		mode = domain.ModePaper
	}

	runID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	state := s.jobs.register(runID, cancel)

	go func() {
		defer cancel()
		outcome := s.controller.Execute(ctx, run.StartRequest{
			RunID: runID, Mode: mode, IPSID: req.IPSID, UserID: req.UserID, Watchlist: req.Watchlist,
		})
		state.setOutcome(outcome)
	}()

	writeJSON(w, http.StatusAccepted, startRunResponse{RunID: runID, Status: string(domain.StatusRunning)})
}

type runResponse struct {
	RunID      string             `json:"run_id"`
	Status     domain.RunStatus   `json:"status"`
	Candidates []domain.Candidate `json:"candidates,omitempty"`
	Selected   []domain.Candidate `json:"selected,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	state, ok := s.jobs.get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	status, outcome := state.snapshot()
	writeJSON(w, http.StatusOK, runResponse{
		RunID: runID, Status: status, Candidates: outcome.Candidates, Selected: outcome.Selected,
		Error: outcome.Run.ErrorMessage,
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	state, ok := s.jobs.get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	state.mu.Lock()
	cancel := state.cancel
	state.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "cancel_requested"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, []RunSummary{})
		return
	}
	runs, err := s.store.ListRuns(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
