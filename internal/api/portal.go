package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/bulles-portal/internal/results"
)

// dataResponse is the envelope used by the front end for successful reads.
type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
		"version":   s.version,
	})
}

// handleProfile returns the caller's account, re-read from the roster.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.roster.FindByID(r.Context(), claims.Subject)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: user})
}

// handleResults returns the caller's report for ?trimester=N. A missing or
// unparsable trimester falls back to the first one.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	trimester := parseTrimester(r.URL.Query().Get("trimester"))

	report, err := s.roster.FindResultsFor(r.Context(), claims.Subject, trimester)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: report})
}

// handleAnalytics returns the class summary. Admin only.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	trimester := parseTrimester(r.URL.Query().Get("trimester"))

	summary, err := s.roster.Analytics(r.Context(), trimester, s.sessions.Active())
	if err != nil {
		s.logger.Error("analytics failed", "error", err)
		s.writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: summary})
}

// parseTrimester reads a trimester number. A missing, zero or unparsable
// value means the first trimester; out-of-range values fall through to the
// store, which reports them as not found.
func parseTrimester(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n == 0 {
		return results.FirstTrimester
	}
	return n
}
