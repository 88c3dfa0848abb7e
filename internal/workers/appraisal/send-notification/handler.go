package sendnotification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/render"
	"loan-appraiser/internal/appraisal/repository"
	"loan-appraiser/internal/common/aws"
	apperrors "loan-appraiser/internal/common/errors"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/common/metrics"
	"loan-appraiser/internal/models"
)

const TaskType = "send-notification"

type EmailSender interface {
	Send(ctx context.Context, e aws.Email) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

type Store interface {
	GetApplication(ctx context.Context, trackingID string) (*models.Application, error)
	RecordNotification(ctx context.Context, n *models.Notification) error
}

type Handler struct {
	config    *Config
	store     Store
	email     EmailSender
	sms       SMSSender
	templates map[string]models.NotificationTemplate
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
	now       func() time.Time
}

// NewHandler wires the senders. A nil sender disables its channel.
func NewHandler(cfg *Config, store Store, email EmailSender, sms SMSSender, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    cfg,
		store:     store,
		email:     email,
		sms:       sms,
		templates: loadTemplates(),
		errors:    apperrors.NewErrorHandler(l),
		logger:    l,
		now:       func() time.Time { return time.Now().UTC() },
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

// Execute emails the applicant the decision and texts the loan officer when the
// application was referred to the board. Only an email failure fails the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	app, err := h.store.GetApplication(ctx, input.TrackingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(input.TrackingID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}

	decision := input.Decision
	if decision == "" {
		decision = app.Status
	}
	notificationType := "decision_" + decision
	tmpl, ok := h.templates[notificationType]
	if !ok {
		return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("template not found for type: %s", notificationType))
	}

	score := input.Score
	if score == nil {
		score = app.Score
	}
	data := map[string]interface{}{
		"trackingId":    app.TrackingID,
		"applicantName": app.ApplicantName,
		"loanType":      loantype.LoanType(app.LoanType).Label(),
		"loanAmount":    render.FormatAmount(app.LoanAmount),
	}
	if score != nil {
		data["score"] = render.FormatAmount(*score)
	}

	out := &Output{
		NotificationID: uuid.New().String(),
		Status:         StatusDisabled,
		Channels:       []string{},
		SentAt:         h.now().Format(time.RFC3339),
	}

	if h.config.EmailEnabled && h.email != nil && app.ApplicantEmail != "" {
		msgID, err := h.email.Send(ctx, aws.Email{
			To:      []string{app.ApplicantEmail},
			Subject: renderTemplate(tmpl.Subject, data),
			Text:    renderTemplate(tmpl.Body, data),
			HTML:    renderTemplate(tmpl.HTMLBody, data),
		})
		h.record(ctx, app.TrackingID, app.ApplicantEmail, notificationType, ChannelEmail, msgID, err)
		if err != nil {
			return nil, apperrors.NewNotificationSendFailedError(ChannelEmail, err)
		}
		out.Channels = append(out.Channels, ChannelEmail)
	}

	if h.config.SMSEnabled && h.sms != nil && h.config.OfficerPhone != "" && tmpl.SMS != "" {
		msgID, err := h.sms.SendSMS(ctx, h.config.OfficerPhone, renderTemplate(tmpl.SMS, data))
		h.record(ctx, app.TrackingID, h.config.OfficerPhone, notificationType, ChannelSMS, msgID, err)
		if err != nil {
			h.logger.Error("SMS send failed", map[string]interface{}{
				"error":      err.Error(),
				"trackingId": app.TrackingID,
			})
			if len(out.Channels) == 0 {
				out.Status = StatusFailed
			}
		} else {
			out.Channels = append(out.Channels, ChannelSMS)
		}
	}

	if len(out.Channels) > 0 {
		out.Status = StatusSent
	}
	return out, nil
}

func (h *Handler) record(ctx context.Context, trackingID, recipient, notificationType, channel, msgID string, sendErr error) {
	n := &models.Notification{
		TrackingID: trackingID,
		Recipient:  recipient,
		Type:       notificationType,
		Channel:    channel,
		Status:     StatusSent,
		MessageID:  msgID,
	}
	if sendErr != nil {
		n.Status = StatusFailed
		n.Payload = map[string]interface{}{"error": sendErr.Error()}
	} else {
		sentAt := h.now()
		n.SentAt = &sentAt
	}
	if err := h.store.RecordNotification(ctx, n); err != nil {
		h.logger.Warn("notification not recorded", map[string]interface{}{
			"error":      err.Error(),
			"trackingId": trackingID,
			"channel":    channel,
		})
	}
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

// renderTemplate substitutes {{key}} placeholders and drops any left unresolved.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}

func loadTemplates() map[string]models.NotificationTemplate {
	return map[string]models.NotificationTemplate{
		TypeDecisionApproved: {
			Type:     TypeDecisionApproved,
			Subject:  "Your {{loanType}} application {{trackingId}} was approved",
			Body:     "Dear {{applicantName}}, your application {{trackingId}} for {{loanAmount}} XAF was approved with a score of {{score}}%. A loan officer will contact you to arrange disbursement.",
			HTMLBody: "<p>Dear {{applicantName}},</p><p>Your application <strong>{{trackingId}}</strong> for {{loanAmount}} XAF was approved with a score of {{score}}%.</p>",
		},
		TypeDecisionBoardReview: {
			Type:     TypeDecisionBoardReview,
			Subject:  "Your {{loanType}} application {{trackingId}} is under board review",
			Body:     "Dear {{applicantName}}, your application {{trackingId}} for {{loanAmount}} XAF has been referred to the credit committee. We will inform you of the outcome.",
			HTMLBody: "<p>Dear {{applicantName}},</p><p>Your application <strong>{{trackingId}}</strong> has been referred to the credit committee.</p>",
			SMS:      "Board review: {{applicantName}} {{loanType}} {{loanAmount}} XAF ({{trackingId}}), score {{score}}%.",
		},
		TypeDecisionRejected: {
			Type:     TypeDecisionRejected,
			Subject:  "Update on your {{loanType}} application {{trackingId}}",
			Body:     "Dear {{applicantName}}, we are unable to approve application {{trackingId}} at this time. Please visit a branch to discuss the appraisal.",
			HTMLBody: "<p>Dear {{applicantName}},</p><p>We are unable to approve application <strong>{{trackingId}}</strong> at this time.</p>",
		},
	}
}
