// Package intake is the in-process submission collaborator: it records the
// application, starts the appraisal workflow and indexes the application for search.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/search"
	"loan-appraiser/internal/appraisal/submission"
	"loan-appraiser/internal/appraisal/validator"
	apperrors "loan-appraiser/internal/common/errors"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/models"
)

const discardTimeout = 5 * time.Second

const invalidPayloadMessage = "The application could not be accepted because some required information is missing or invalid."

// Store persists applications.
type Store interface {
	CreateApplication(ctx context.Context, app *models.Application) error
	SetProcessInstance(ctx context.Context, trackingID string, key int64) error
	DiscardApplication(ctx context.Context, trackingID string) error
}

// ProcessStarter starts the back-office appraisal workflow.
type ProcessStarter interface {
	StartAppraisal(ctx context.Context, vars map[string]interface{}) (int64, error)
}

// Indexer receives the searchable view of an application.
type Indexer interface {
	Put(ctx context.Context, doc search.Document) error
}

// Error is an intake failure carrying the text shown to the applicant.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string       { return e.Err.Error() }
func (e *Error) Unwrap() error       { return e.Err }
func (e *Error) UserMessage() string { return e.Message }

type Service struct {
	store   Store
	starter ProcessStarter
	indexer Indexer
	logger  logger.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Service)

// WithProcessStarter enables the workflow start. Without it the application is only recorded.
func WithProcessStarter(p ProcessStarter) Option {
	return func(s *Service) { s.starter = p }
}

// WithIndexer enables search indexing.
func WithIndexer(ix Indexer) Option {
	return func(s *Service) { s.indexer = ix }
}

func New(store Store, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "intake"}),
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.newID = func() string { return NewTrackingID(s.now()) }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewTrackingID returns an id of the form LA-20250314-1A2B3C4D.
func NewTrackingID(at time.Time) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("LA-%s-%s", at.Format("20060102"), strings.ToUpper(id[:8]))
}

// SubmitApplication implements submission.Submitter. The application is recorded and
// the appraisal workflow started; when the start fails the record is discarded again so
// a retried submission leaves no orphan behind. Process linking and indexing then run
// concurrently and are only logged on failure.
func (s *Service) SubmitApplication(ctx context.Context, p submission.Payload) (submission.Receipt, error) {
	if err := submission.CheckPayload(p); err != nil {
		return submission.Receipt{}, &Error{Err: err, Message: invalidPayloadMessage}
	}

	app := ToApplication(s.newID(), p)
	app.SubmittedAt = s.now()
	if err := s.store.CreateApplication(ctx, &app); err != nil {
		return submission.Receipt{}, apperrors.NewDatabaseInsertFailedError(err)
	}

	var processKey int64
	if s.starter != nil {
		key, err := s.starter.StartAppraisal(ctx, ProcessVariables(app))
		if err != nil {
			s.logger.Error("appraisal process not started", map[string]interface{}{
				"trackingId": app.TrackingID,
				"error":      err.Error(),
			})
			s.discard(app.TrackingID)
			var stdErr *apperrors.StandardError
			if errors.As(err, &stdErr) {
				return submission.Receipt{}, stdErr
			}
			return submission.Receipt{}, apperrors.NewProcessStartFailedError("loan-appraisal", err)
		}
		processKey = key
	}

	var g errgroup.Group
	if s.starter != nil {
		g.Go(func() error {
			if err := s.store.SetProcessInstance(ctx, app.TrackingID, processKey); err != nil {
				s.logger.Warn("process instance not linked", map[string]interface{}{
					"trackingId":         app.TrackingID,
					"processInstanceKey": processKey,
					"error":              err.Error(),
				})
			}
			return nil
		})
	}
	if s.indexer != nil {
		g.Go(func() error {
			if err := s.indexer.Put(ctx, ToDocument(app)); err != nil {
				s.logger.Warn("application not indexed", map[string]interface{}{
					"trackingId": app.TrackingID,
					"error":      err.Error(),
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("application accepted", map[string]interface{}{
		"trackingId": app.TrackingID,
		"loanType":   app.LoanType,
	})
	return submission.Receipt{TrackingID: app.TrackingID}, nil
}

// discard removes a record whose workflow never started. The request context may
// already be cancelled, so it runs on its own deadline.
func (s *Service) discard(trackingID string) {
	ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
	defer cancel()
	if err := s.store.DiscardApplication(ctx, trackingID); err != nil {
		s.logger.Error("orphaned application not discarded", map[string]interface{}{
			"trackingId": trackingID,
			"error":      err.Error(),
		})
	}
}

// ToApplication extracts the persisted columns from p.
func ToApplication(trackingID string, p submission.Payload) models.Application {
	app := models.Application{
		TrackingID:     trackingID,
		LoanType:       string(p.LoanType),
		ApplicantName:  str(p.Fields["applicant_name"]),
		ApplicantEmail: str(p.Fields["applicant_email"]),
		AccountNumber:  str(p.Fields["account_number"]),
		LoanAmount:     num(p.Fields["loan_amount"]),
		InterestRate:   num(p.Fields["annual_interest_rate_percent"]),
		TermYears:      num(p.Fields["loan_term_years"]),
		SavingsBalance: SavingsBalance(p.Fields),
		Fields:         p.Fields,
		Status:         models.StatusSubmitted,
	}
	if len(p.Files) > 0 {
		app.Files = make(map[string]interface{}, len(p.Files))
		for k, f := range p.Files {
			app.Files[k] = f
		}
	}
	return app
}

// SavingsBalance returns the first numeric savings balance among values, if any.
func SavingsBalance(values map[string]any) *float64 {
	for _, name := range fields.Names() {
		if !strings.HasPrefix(name, "savings_balance") {
			continue
		}
		f, ok := fields.Get(name)
		if !ok || f.Type != fields.TypeNumber || validator.IsEmpty(values[name]) {
			continue
		}
		if v, err := validator.ToFloat(values[name]); err == nil {
			return &v
		}
	}
	return nil
}

// ProcessVariables are the workflow's starting variables.
func ProcessVariables(app models.Application) map[string]interface{} {
	return map[string]interface{}{
		"trackingId":     app.TrackingID,
		"loanType":       app.LoanType,
		"applicantName":  app.ApplicantName,
		"applicantEmail": app.ApplicantEmail,
		"loanAmount":     app.LoanAmount,
		"values":         app.Fields,
	}
}

// ToDocument is the search view of app.
func ToDocument(app models.Application) search.Document {
	doc := search.Document{
		TrackingID:    app.TrackingID,
		LoanType:      app.LoanType,
		LoanTypeLabel: loantype.LoanType(app.LoanType).Label(),
		ApplicantName: app.ApplicantName,
		AccountNumber: app.AccountNumber,
		LoanAmount:    app.LoanAmount,
		Status:        app.Status,
		Score:         app.Score,
		SubmittedAt:   app.SubmittedAt,
		UpdatedAt:     app.SubmittedAt,
	}
	if !app.UpdatedAt.IsZero() {
		doc.UpdatedAt = app.UpdatedAt
	}
	return doc
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func num(v any) float64 {
	if validator.IsEmpty(v) {
		return 0
	}
	f, err := validator.ToFloat(v)
	if err != nil {
		return 0
	}
	return f
}
