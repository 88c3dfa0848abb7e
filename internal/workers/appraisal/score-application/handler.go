package scoreapplication

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/repository"
	"loan-appraiser/internal/appraisal/scoring"
	apperrors "loan-appraiser/internal/common/errors"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/common/metrics"
	"loan-appraiser/internal/models"
)

const TaskType = "score-application"

// Store is the part of the application repository the worker needs.
type Store interface {
	GetApplication(ctx context.Context, trackingID string) (*models.Application, error)
	SaveDecision(ctx context.Context, trackingID string, res scoring.Result) (*models.Decision, error)
}

type Handler struct {
	config *Config
	store  Store
	scorer *scoring.Scorer
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(cfg *Config, store Store, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: cfg,
		store:  store,
		scorer: scoring.New(cfg.Appraisal),
		errors: apperrors.NewErrorHandler(l),
		logger: l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// Execute scores the stored application and records the decision.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	app, err := h.store.GetApplication(ctx, input.TrackingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(input.TrackingID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}

	res, err := h.scorer.Appraise(loantype.LoanType(app.LoanType), scoringValues(app))
	if err != nil {
		return nil, apperrors.NewScoringFailedError(err.Error())
	}

	d, err := h.store.SaveDecision(ctx, app.TrackingID, res)
	if err != nil {
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}
	metrics.AppraisalDecisions.WithLabelValues(app.LoanType, string(res.Decision)).Inc()

	h.logger.Info("application scored", map[string]interface{}{
		"trackingId": app.TrackingID,
		"score":      res.Score,
		"decision":   res.Decision,
	})

	return &Output{
		TrackingID:     app.TrackingID,
		DecisionID:     d.ID,
		Status:         repository.StatusFor(res.Decision),
		Decision:       string(res.Decision),
		Score:          res.Score,
		Scored:         res.Scored,
		Reasons:        d.Reasons,
		MonthlyPayment: d.MonthlyPayment,
		DTIRatio:       res.DTIRatio,
	}, nil
}

// scoringValues merges uploaded documents into the field values so document
// criteria see them.
func scoringValues(app *models.Application) map[string]any {
	values := make(map[string]any, len(app.Fields)+len(app.Files))
	for k, v := range app.Fields {
		values[k] = v
	}
	for k, v := range app.Files {
		values[k] = v
	}
	return values
}

func parseInput(job entities.Job) (*Input, error) {
	vars, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, apperrors.NewInvalidRequestError("parse variables: " + err.Error())
	}

	result, err := inputSchema.Validate(vars)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidRequestError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, apperrors.NewInvalidRequestError("parse input: " + err.Error())
	}
	return &input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.AsStandardError(err).Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}
