package api

import (
	"bytes"
	"net/http"
	"strings"

	"loan-appraiser/internal/appraisal/search"
	apperrors "loan-appraiser/internal/common/errors"
)

const exportFilename = "approved_loans.csv"

type deleteApprovedRequest struct {
	TrackingIDs []string `json:"trackingIds"`
}

func (s *Server) handleListApproved(w http.ResponseWriter, r *http.Request) {
	loans, err := s.reports.ListApproved(r.Context())
	if err != nil {
		s.writeError(w, apperrors.NewQueryExecutionFailedError("list_approved", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(loans),
		"loans": loans,
	})
}

// handleExportApproved buffers the CSV so a failed query still answers with a JSON error.
func (s *Server) handleExportApproved(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	n, err := s.reports.ExportApprovedCSV(r.Context(), &buf)
	if err != nil {
		s.writeError(w, apperrors.NewQueryExecutionFailedError("export_approved", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("export write failed", map[string]interface{}{"rows": n, "error": err.Error()})
	}
}

func (s *Server) handleDeleteApproved(w http.ResponseWriter, r *http.Request) {
	var req deleteApprovedRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	ids := make([]string, 0, len(req.TrackingIDs))
	for _, id := range req.TrackingIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		s.writeError(w, apperrors.NewInvalidRequestError("trackingIds must list at least one application"))
		return
	}

	deleted, err := s.reports.DeleteApproved(r.Context(), ids)
	if err != nil {
		s.writeError(w, apperrors.NewQueryExecutionFailedError("delete_approved", err))
		return
	}
	s.logger.Info("approved loans deleted", map[string]interface{}{
		"requested": len(ids),
		"deleted":   deleted,
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.reports.Dashboard(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		s.writeError(w, apperrors.NewQueryExecutionFailedError("dashboard", err))
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.search.Search(r.Context(), search.Query{
		Text:     q.Get("q"),
		LoanType: q.Get("loanType"),
		Status:   q.Get("status"),
		From:     queryInt(r, "from", 0),
		Size:     queryInt(r, "size", 20),
	})
	if err != nil {
		s.writeError(w, apperrors.NewQueryExecutionFailedError("search", err))
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
