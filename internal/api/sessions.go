package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/render"
	"loan-appraiser/internal/appraisal/session"
	"loan-appraiser/internal/appraisal/submission"
	"loan-appraiser/internal/appraisal/wizard"
	apperrors "loan-appraiser/internal/common/errors"
)

type startSessionRequest struct {
	LoanType string `json:"loanType"`
}

type valuesRequest struct {
	Values map[string]any `json:"values"`
}

type sessionResponse struct {
	SessionID string       `json:"sessionId"`
	State     wizard.State `json:"state"`
	View      render.View  `json:"view"`
}

type transitionResponse struct {
	SessionID string            `json:"sessionId"`
	Result    wizard.StepResult `json:"result"`
	View      render.View       `json:"view"`
}

type submitResponse struct {
	SessionID string             `json:"sessionId"`
	Outcome   submission.Outcome `json:"outcome"`
}

// ==========================
// Loan Types
// ==========================

func (s *Server) handleLoanTypes(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"loanTypes": loantype.Types()})
}

func (s *Server) handleLoanTypeSteps(w http.ResponseWriter, r *http.Request) {
	lt, err := parseLoanType(chi.URLParam(r, "type"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	steps, err := loantype.RulesFor(lt)
	if err != nil {
		s.writeError(w, apperrors.NewUnknownLoanTypeError(string(lt)))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"loanType": lt,
		"label":    lt.Label(),
		"steps":    steps,
	})
}

func (s *Server) handleLoanTypeSchema(w http.ResponseWriter, r *http.Request) {
	lt, err := parseLoanType(chi.URLParam(r, "type"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	schema, err := submission.PayloadSchema(lt)
	if err != nil {
		s.writeError(w, apperrors.NewUnknownLoanTypeError(string(lt)))
		return
	}
	s.writeJSON(w, http.StatusOK, schema)
}

// ==========================
// Sessions
// ==========================

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	lt, err := parseLoanType(req.LoanType)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, c, err := s.sessions.Start(r.Context(), lt)
	if err != nil {
		s.writeError(w, apperrors.NewSessionStoreFailedError(err))
		return
	}
	s.writeSession(w, http.StatusCreated, id, c)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.controller(w, r)
	if !ok {
		return
	}
	s.writeSession(w, http.StatusOK, id, c)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Discard(r.Context(), id); err != nil && !errors.Is(err, session.ErrNotFound) {
		s.writeError(w, apperrors.NewSessionStoreFailedError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNext validates the current step. An invalid step answers 422 with the
// unchanged position and the per-field messages; a submission in flight answers 409.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.controller(w, r)
	if !ok {
		return
	}
	var req valuesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	fields.RestoreFiles(req.Values)

	res := c.Next(req.Values)
	if res.Submitting {
		s.writeError(w, apperrors.NewSubmissionInProgressError())
		return
	}
	if !res.Valid {
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":     apperrors.NewStepValidationError(res.Step.Key, res.Errors).Message,
			"code":      apperrors.ErrCodeStepValidationFailed,
			"errors":    res.Errors,
			"sessionId": id,
			"result":    res,
		})
		return
	}
	s.persist(r, id, c)
	s.writeTransition(w, id, c, res)
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.controller(w, r)
	if !ok {
		return
	}
	var req valuesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	fields.RestoreFiles(req.Values)

	res := c.Prev(req.Values)
	if res.Submitting {
		s.writeError(w, apperrors.NewSubmissionInProgressError())
		return
	}
	s.persist(r, id, c)
	s.writeTransition(w, id, c, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.controller(w, r)
	if !ok {
		return
	}
	c.Reset()
	s.persist(r, id, c)
	s.writeSession(w, http.StatusOK, id, c)
}

func (s *Server) handleRenderStep(w http.ResponseWriter, r *http.Request) {
	_, c, ok := s.controller(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, apperrors.NewInvalidRequestError("step index must be an integer"))
		return
	}
	view, err := render.Render(index, c.LoanType(), c.State().Values)
	if err != nil {
		s.writeError(w, apperrors.NewInvalidRequestError(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// handleSubmit submits from the review step. A rejected submission answers 502 with
// the outcome so the applicant sees the collaborator's message and can retry.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, c, ok := s.controller(w, r)
	if !ok {
		return
	}

	outcome, err := c.Submit(r.Context())
	switch {
	case err == nil:
		s.persist(r, id, c)
		s.writeJSON(w, http.StatusOK, submitResponse{SessionID: id, Outcome: outcome})
	case errors.Is(err, submission.ErrSubmissionFailed):
		s.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":     outcome.Message,
			"code":      apperrors.ErrCodeSubmissionFailed,
			"sessionId": id,
			"outcome":   outcome,
		})
	case errors.Is(err, wizard.ErrNotOnReviewStep):
		st := c.State()
		s.writeError(w, apperrors.NewNotOnReviewStepError(st.CurrentStep+1, st.TotalSteps))
	case errors.Is(err, wizard.ErrSubmissionAborted):
		s.writeError(w, apperrors.NewSubmissionAbortedError())
	case errors.Is(err, wizard.ErrSubmissionInProgress):
		s.writeError(w, apperrors.NewSubmissionInProgressError())
	case errors.Is(err, wizard.ErrAlreadySubmitted):
		s.writeError(w, apperrors.NewAlreadySubmittedError(c.State().TrackingID))
	default:
		s.writeError(w, apperrors.NewInternalError(err))
	}
}

// controller resolves the {id} path parameter, writing the error response itself
// when the session cannot be loaded.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) (string, *wizard.Controller, bool) {
	id := chi.URLParam(r, "id")
	c, err := s.sessions.Get(r.Context(), id)
	switch {
	case err == nil:
		return id, c, true
	case errors.Is(err, session.ErrNotFound), errors.Is(err, wizard.ErrInvalidSnapshot), errors.Is(err, loantype.ErrUnknownLoanType):
		s.writeError(w, apperrors.NewSessionNotFoundError(id))
	default:
		s.writeError(w, apperrors.NewSessionStoreFailedError(err))
	}
	return "", nil, false
}

func (s *Server) persist(r *http.Request, id string, c *wizard.Controller) {
	if err := s.sessions.Persist(r.Context(), id, c); err != nil {
		s.logger.Warn("session not persisted", map[string]interface{}{
			"sessionId": id,
			"error":     err.Error(),
		})
	}
}

func (s *Server) writeSession(w http.ResponseWriter, status int, id string, c *wizard.Controller) {
	st := c.State()
	view, err := render.Render(st.CurrentStep, st.LoanType, st.Values)
	if err != nil {
		s.writeError(w, apperrors.NewInternalError(err))
		return
	}
	s.writeJSON(w, status, sessionResponse{SessionID: id, State: st, View: view})
}

func (s *Server) writeTransition(w http.ResponseWriter, id string, c *wizard.Controller, res wizard.StepResult) {
	view, err := render.Render(res.CurrentStep, c.LoanType(), c.State().Values)
	if err != nil {
		s.writeError(w, apperrors.NewInternalError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, transitionResponse{SessionID: id, Result: res, View: view})
}

func parseLoanType(raw string) (loantype.LoanType, error) {
	lt, err := loantype.Parse(raw)
	if err != nil {
		return "", apperrors.NewUnknownLoanTypeError(raw)
	}
	return lt, nil
}
