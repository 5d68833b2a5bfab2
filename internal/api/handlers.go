package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wesm/glider/internal/analysis"
	"github.com/wesm/glider/internal/gmail"
	"github.com/wesm/glider/internal/oauth"
	"github.com/wesm/glider/internal/scheduler"
	"github.com/wesm/glider/internal/sync"
)

const (
	defaultDashboardLimit = 50
	maxDashboardLimit     = 500

	// maxTokenBody bounds an imported token document.
	maxTokenBody = 64 << 10
)

// StatsResponse represents database statistics.
type StatsResponse struct {
	TotalOwners   int64 `json:"total_owners"`
	TotalEmails   int64 `json:"total_emails"`
	TotalAnalyses int64 `json:"total_analyses"`
	DatabaseSize  int64 `json:"database_size_bytes"`
}

// AnalysisStatusResponse reports how much mail is waiting for analysis.
type AnalysisStatusResponse struct {
	UnanalyzedCount int  `json:"unanalyzedCount"`
	Running         bool `json:"running"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool                    `json:"running"`
	Owners  []scheduler.OwnerStatus `json:"owners"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// classify maps a pipeline error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case oauth.IsCredentialError(err):
		return http.StatusUnauthorized, "credential_error"
	case errors.Is(err, analysis.ErrAnalysisInProgress):
		return http.StatusConflict, "analysis_in_progress"
	case analysis.IsRateLimited(err), analysis.IsOverloaded(err), gmail.IsRateLimited(err):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeOpError logs err and writes the classified response.
func (s *Server) writeOpError(w http.ResponseWriter, op, owner string, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "owner", owner, "error", err)
	} else {
		s.logger.Warn(op+" failed", "owner", owner, "error", err)
	}
	writeError(w, status, code, err.Error())
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+"_unavailable", what+" not configured")
}

// ownerParam returns the {owner} path segment, writing a 400 when empty.
func ownerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := chi.URLParam(r, "owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing_owner", "Owner is required")
		return "", false
	}
	return owner, true
}

// handleStats returns database statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		unavailable(w, "store")
		return
	}
	stats, err := s.deps.Store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		TotalOwners:   stats.OwnerCount,
		TotalEmails:   stats.EmailCount,
		TotalAnalyses: stats.AnalysisCount,
		DatabaseSize:  stats.DatabaseSize,
	})
}

// handleListOwners returns owners that have a stored credential.
func (s *Server) handleListOwners(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		unavailable(w, "store")
		return
	}
	owners, err := s.deps.Store.ListOwners(r.Context())
	if err != nil {
		s.logger.Error("failed to list owners", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list owners")
		return
	}
	if owners == nil {
		owners = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"owners": owners})
}

// handleIngest returns cached mail or fetches a fresh page.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	if s.deps.Ingester == nil {
		unavailable(w, "ingest")
		return
	}

	q := r.URL.Query()
	refresh, _ := strconv.ParseBool(q.Get("refresh"))
	res, err := s.deps.Ingester.Ingest(r.Context(), owner, sync.IngestOptions{
		Refresh:   refresh,
		PageToken: q.Get("pageToken"),
	})
	if err != nil {
		s.writeOpError(w, "ingest", owner, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRunAnalysis analyzes the owner's pending mail.
func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	if s.deps.Analyzer == nil {
		unavailable(w, "analysis")
		return
	}

	summary, err := s.deps.Analyzer.RunAnalysis(r.Context(), owner)
	if err != nil {
		s.writeOpError(w, "analysis", owner, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleAnalysisStatus reports the number of emails waiting for analysis.
func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	if s.deps.Analyzer == nil {
		unavailable(w, "analysis")
		return
	}

	n, err := s.deps.Analyzer.UnanalyzedCount(r.Context(), owner)
	if err != nil {
		s.writeOpError(w, "analysis status", owner, err)
		return
	}
	resp := AnalysisStatusResponse{UnanalyzedCount: n}
	if rs, ok := s.deps.Analyzer.(interface{ IsRunning(string) bool }); ok {
		resp.Running = rs.IsRunning(owner)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDashboard returns recent emails with their analyses.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	if s.deps.Store == nil {
		unavailable(w, "store")
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultDashboardLimit
	}
	limit = min(limit, maxDashboardLimit)

	dash, err := s.deps.Store.Dashboard(r.Context(), owner, limit)
	if err != nil {
		s.writeOpError(w, "dashboard", owner, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// handleImportToken stores an OAuth token document as the owner's
// credential.
func (s *Server) handleImportToken(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	if s.deps.Store == nil {
		unavailable(w, "store")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTokenBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}
	creds, err := oauth.ParseToken(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token", err.Error())
		return
	}
	if err := s.deps.Store.SaveCredential(r.Context(), owner, *creds); err != nil {
		s.logger.Error("failed to save credential", "owner", owner, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to save credential")
		return
	}

	s.logger.Info("credential imported via API", "owner", owner)
	writeJSON(w, http.StatusCreated, map[string]any{
		"owner":  owner,
		"expiry": creds.Expiry,
	})
}

// handleTriggerSync starts a scheduled ingest and analysis run now.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}
	if s.deps.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}

	if err := s.deps.Scheduler.TriggerSync(owner); err != nil {
		status, code := http.StatusInternalServerError, "sync_error"
		switch {
		case errors.Is(err, scheduler.ErrNotScheduled):
			status, code = http.StatusNotFound, "not_scheduled"
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			status, code = http.StatusConflict, "sync_in_progress"
		case errors.Is(err, scheduler.ErrStopped):
			status, code = http.StatusServiceUnavailable, "scheduler_stopped"
		}
		s.logger.Warn("failed to trigger sync", "owner", owner, "error", err)
		writeError(w, status, code, err.Error())
		return
	}

	s.logger.Info("sync triggered via API", "owner", owner)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Sync started for " + owner,
	})
}

// handleSchedulerStatus returns the scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		unavailable(w, "scheduler")
		return
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.deps.Scheduler.IsRunning(),
		Owners:  s.deps.Scheduler.Status(),
	})
}
