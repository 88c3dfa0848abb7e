// internal/appraisal/submission/submission.go
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/common/metrics"
)

var (
	ErrSubmissionFailed = errors.New("SUBMISSION_FAILED")
	ErrNoTrackingID     = errors.New("SUBMISSION_MISSING_TRACKING_ID")
)

const defaultFailureMessage = "An unexpected error occurred during submission. Please check the network."

// Payload is what crosses into the submission collaborator.
type Payload struct {
	LoanType loantype.LoanType         `json:"loan_type"`
	Fields   map[string]any            `json:"fields"`
	Files    map[string]fields.FileRef `json:"files,omitempty"`
}

// Receipt is the collaborator's acknowledgement.
type Receipt struct {
	TrackingID string `json:"tracking_id"`
}

// Submitter transmits a payload: the remote API client and the local intake both implement it.
type Submitter interface {
	SubmitApplication(ctx context.Context, p Payload) (Receipt, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, p Payload) (Receipt, error)

func (f SubmitterFunc) SubmitApplication(ctx context.Context, p Payload) (Receipt, error) {
	return f(ctx, p)
}

// Outcome is the result presented to the user.
type Outcome struct {
	Success    bool   `json:"success"`
	TrackingID string `json:"trackingId,omitempty"`
	Message    string `json:"message"`
}

// MessageError lets a collaborator supply the banner text for a failure.
type MessageError interface {
	error
	UserMessage() string
}

// Recorder receives one event per submission attempt.
type Recorder interface {
	RecordSubmission(ctx context.Context, loanType, outcome string)
}

type Handler struct {
	submitter Submitter
	tracer    trace.Tracer
	recorder  Recorder
	logger    logger.Logger
}

type Option func(*Handler)

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(h *Handler) { h.tracer = t }
}

func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

func NewHandler(s Submitter, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		submitter: s,
		tracer:    otel.Tracer("loan-appraiser/submission"),
		logger:    log.WithFields(map[string]interface{}{"component": "submission"}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// BuildPayload splits accumulated values into scalar fields and staged files.
// Empty values are dropped.
func BuildPayload(values map[string]any, lt loantype.LoanType) Payload {
	p := Payload{
		LoanType: lt,
		Fields:   make(map[string]any, len(values)),
		Files:    make(map[string]fields.FileRef),
	}
	for k, v := range values {
		switch x := v.(type) {
		case nil:
		case fields.FileRef:
			if x.Name != "" {
				p.Files[k] = x
			}
		case *fields.FileRef:
			if x != nil && x.Name != "" {
				p.Files[k] = *x
			}
		default:
			p.Fields[k] = v
		}
	}
	return p
}

// Submit hands the values to the collaborator. It never validates: the wizard gates entry.
func (h *Handler) Submit(ctx context.Context, values map[string]any, lt loantype.LoanType) Outcome {
	ctx, span := h.tracer.Start(ctx, "appraisal.submit", trace.WithAttributes(
		attribute.String("loan.type", string(lt)),
		attribute.Int("loan.fields", len(values)),
	))
	defer span.End()

	start := time.Now()
	payload := BuildPayload(values, lt)
	receipt, err := h.submitter.SubmitApplication(ctx, payload)
	metrics.SubmissionDuration.WithLabelValues(string(lt)).Observe(time.Since(start).Seconds())

	if err == nil && receipt.TrackingID == "" {
		err = ErrNoTrackingID
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.SubmissionsTotal.WithLabelValues(string(lt), "failure").Inc()
		h.record(ctx, lt, "failure")
		h.logger.Error("Submission failed", map[string]interface{}{
			"loanType": string(lt),
			"error":    err.Error(),
		})
		return Outcome{Success: false, Message: failureMessage(err)}
	}

	span.SetAttributes(attribute.String("loan.tracking_id", receipt.TrackingID))
	metrics.SubmissionsTotal.WithLabelValues(string(lt), "success").Inc()
	h.record(ctx, lt, "success")
	h.logger.Info("Application submitted", map[string]interface{}{
		"loanType":   string(lt),
		"trackingId": receipt.TrackingID,
	})

	name, _ := values["applicant_name"].(string)
	return Outcome{
		Success:    true,
		TrackingID: receipt.TrackingID,
		Message:    fmt.Sprintf("Loan appraisal request for %s (%s) submitted successfully!", name, lt.Label()),
	}
}

func (h *Handler) record(ctx context.Context, lt loantype.LoanType, outcome string) {
	if h.recorder != nil {
		h.recorder.RecordSubmission(ctx, string(lt), outcome)
	}
}

func failureMessage(err error) string {
	var me MessageError
	if errors.As(err, &me) && me.UserMessage() != "" {
		return me.UserMessage()
	}
	if errors.Is(err, context.Canceled) {
		return "Submission was cancelled."
	}
	return defaultFailureMessage
}
