package indexapplication

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"loan-appraiser/internal/appraisal/intake"
	"loan-appraiser/internal/appraisal/repository"
	"loan-appraiser/internal/appraisal/search"
	apperrors "loan-appraiser/internal/common/errors"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/common/metrics"
	"loan-appraiser/internal/models"
)

const TaskType = "index-application"

type ApplicationReader interface {
	GetApplication(ctx context.Context, trackingID string) (*models.Application, error)
}

type Indexer interface {
	Put(ctx context.Context, doc search.Document) error
	Name() string
}

type Handler struct {
	config  *Config
	store   ApplicationReader
	indexer Indexer
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, store ApplicationReader, indexer Indexer, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  cfg,
		store:   store,
		indexer: indexer,
		errors:  apperrors.NewErrorHandler(l),
		logger:  l,
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

// Execute refreshes the search document with the application's current state
// and the decision carried by the process.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	app, err := h.store.GetApplication(ctx, input.TrackingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(input.TrackingID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}

	doc := intake.ToDocument(*app)
	if input.Status != "" {
		doc.Status = input.Status
	}
	if input.Score != nil {
		doc.Score = input.Score
	}
	doc.Decision = input.Decision
	doc.Reasons = input.Reasons

	if err := h.indexer.Put(ctx, doc); err != nil {
		return nil, apperrors.NewIndexingFailedError(h.indexer.Name(), err)
	}

	return &Output{Indexed: true, IndexName: h.indexer.Name()}, nil
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
