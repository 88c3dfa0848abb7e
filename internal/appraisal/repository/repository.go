// Package repository persists submitted applications, their scoring decisions and
// the approved-loans report in Postgres.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"loan-appraiser/internal/appraisal/scoring"
	"loan-appraiser/internal/common/database"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/models"
)

var (
	ErrNotFound     = errors.New("APPLICATION_NOT_FOUND")
	ErrInsertFailed = errors.New("DATABASE_INSERT_FAILED")
	ErrQueryFailed  = errors.New("QUERY_EXECUTION_FAILED")
)

// Schema creates the tables the repository reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS applications (
	tracking_id                  TEXT PRIMARY KEY,
	loan_type                    TEXT NOT NULL,
	applicant_name               TEXT NOT NULL,
	applicant_email              TEXT,
	account_number               TEXT,
	loan_amount                  NUMERIC(15,2) NOT NULL,
	annual_interest_rate_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
	loan_term_years              NUMERIC(6,2) NOT NULL DEFAULT 0,
	savings_balance              NUMERIC(15,2),
	fields                       JSONB NOT NULL DEFAULT '{}',
	files                        JSONB NOT NULL DEFAULT '{}',
	status                       TEXT NOT NULL,
	score                        NUMERIC(5,2),
	process_instance_key         BIGINT,
	submitted_at                 TIMESTAMPTZ NOT NULL,
	updated_at                   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS applications_status_submitted_idx ON applications (status, submitted_at DESC);

CREATE TABLE IF NOT EXISTS decisions (
	id              TEXT PRIMARY KEY,
	tracking_id     TEXT NOT NULL REFERENCES applications (tracking_id) ON DELETE CASCADE,
	score           NUMERIC(5,2) NOT NULL,
	decision        TEXT NOT NULL,
	reasons         JSONB NOT NULL DEFAULT '[]',
	monthly_payment NUMERIC(15,2) NOT NULL DEFAULT 0,
	dti_ratio       NUMERIC(8,4) NOT NULL DEFAULT 0,
	scored          BOOLEAN NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	tracking_id TEXT NOT NULL REFERENCES applications (tracking_id) ON DELETE CASCADE,
	recipient   TEXT NOT NULL,
	type        TEXT NOT NULL,
	channel     TEXT NOT NULL,
	status      TEXT NOT NULL,
	message_id  TEXT,
	payload     JSONB NOT NULL DEFAULT '{}',
	sent_at     TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            BIGSERIAL PRIMARY KEY,
	event_type    TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	details       JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL
);
`

type Repository struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func New(db *sql.DB, log logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "repository"}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Migrate applies Schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrQueryFailed, err)
	}
	return nil
}

// CreateApplication inserts app with status submitted. The audit entry is best effort.
func (r *Repository) CreateApplication(ctx context.Context, app *models.Application) error {
	fieldsJSON, err := json.Marshal(nonNil(app.Fields))
	if err != nil {
		return fmt.Errorf("%w: marshal fields: %v", ErrInsertFailed, err)
	}
	filesJSON, err := json.Marshal(nonNil(app.Files))
	if err != nil {
		return fmt.Errorf("%w: marshal files: %v", ErrInsertFailed, err)
	}

	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = r.now()
	}
	app.UpdatedAt = app.SubmittedAt
	if app.Status == "" {
		app.Status = models.StatusSubmitted
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO applications (
			tracking_id, loan_type, applicant_name, applicant_email, account_number,
			loan_amount, annual_interest_rate_percent, loan_term_years, savings_balance,
			fields, files, status, submitted_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		app.TrackingID,
		app.LoanType,
		app.ApplicantName,
		nullString(app.ApplicantEmail),
		nullString(app.AccountNumber),
		app.LoanAmount,
		app.InterestRate,
		app.TermYears,
		nullFloat(app.SavingsBalance),
		fieldsJSON,
		filesJSON,
		app.Status,
		app.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert application: %v", ErrInsertFailed, err)
	}

	r.audit(ctx, "application_created", app.TrackingID, map[string]interface{}{
		"loanType":   app.LoanType,
		"loanAmount": app.LoanAmount,
	})

	r.logger.Info("application record created", map[string]interface{}{
		"trackingId": app.TrackingID,
		"loanType":   app.LoanType,
	})
	return nil
}

// GetApplication loads one application by tracking id.
func (r *Repository) GetApplication(ctx context.Context, trackingID string) (*models.Application, error) {
	var (
		app            models.Application
		email, account sql.NullString
		savings, score sql.NullFloat64
		processKey     sql.NullInt64
		fieldsJSON     []byte
		filesJSON      []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT tracking_id, loan_type, applicant_name, applicant_email, account_number,
			loan_amount, annual_interest_rate_percent, loan_term_years, savings_balance,
			fields, files, status, score, process_instance_key, submitted_at, updated_at
		FROM applications WHERE tracking_id = $1`, trackingID).Scan(
		&app.TrackingID, &app.LoanType, &app.ApplicantName, &email, &account,
		&app.LoanAmount, &app.InterestRate, &app.TermYears, &savings,
		&fieldsJSON, &filesJSON, &app.Status, &score, &processKey, &app.SubmittedAt, &app.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, trackingID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get application: %v", ErrQueryFailed, err)
	}

	app.ApplicantEmail = email.String
	app.AccountNumber = account.String
	app.SavingsBalance = floatPtr(savings)
	app.Score = floatPtr(score)
	app.ProcessInstanceKey = processKey.Int64
	if err := json.Unmarshal(fieldsJSON, &app.Fields); err != nil {
		return nil, fmt.Errorf("%w: decode fields: %v", ErrQueryFailed, err)
	}
	if len(filesJSON) > 0 {
		if err := json.Unmarshal(filesJSON, &app.Files); err != nil {
			return nil, fmt.Errorf("%w: decode files: %v", ErrQueryFailed, err)
		}
	}
	return &app, nil
}

// SetProcessInstance links the application to its workflow instance.
func (r *Repository) SetProcessInstance(ctx context.Context, trackingID string, key int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE applications SET process_instance_key = $2, updated_at = $3 WHERE tracking_id = $1`,
		trackingID, key, r.now())
	if err != nil {
		return fmt.Errorf("%w: set process instance: %v", ErrQueryFailed, err)
	}
	return expectOne(res, trackingID)
}

// DiscardApplication deletes an application that is still in the submitted state,
// which is how intake withdraws a record whose workflow could not be started.
func (r *Repository) DiscardApplication(ctx context.Context, trackingID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM applications WHERE tracking_id = $1 AND status = $2`,
		trackingID, models.StatusSubmitted)
	if err != nil {
		return fmt.Errorf("%w: discard application: %v", ErrQueryFailed, err)
	}
	if err := expectOne(res, trackingID); err != nil {
		return err
	}
	r.audit(ctx, "application_discarded", trackingID, map[string]interface{}{
		"reason": "process_start_failed",
	})
	return nil
}

// SaveDecision records res and moves the application to the matching status in one transaction.
func (r *Repository) SaveDecision(ctx context.Context, trackingID string, res scoring.Result) (*models.Decision, error) {
	reasons := res.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal reasons: %v", ErrInsertFailed, err)
	}

	d := &models.Decision{
		ID:             uuid.New().String(),
		TrackingID:     trackingID,
		Score:          res.Score,
		Decision:       string(res.Decision),
		Reasons:        reasons,
		MonthlyPayment: round2(res.MonthlyPayment),
		DTIRatio:       res.DTIRatio,
		Scored:         res.Scored,
		CreatedAt:      r.now(),
	}

	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decisions (id, tracking_id, score, decision, reasons, monthly_payment, dti_ratio, scored, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			d.ID, d.TrackingID, d.Score, d.Decision, reasonsJSON, d.MonthlyPayment, d.DTIRatio, d.Scored, d.CreatedAt,
		); err != nil {
			return fmt.Errorf("%w: insert decision: %v", ErrInsertFailed, err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE applications SET status = $2, score = $3, updated_at = $4 WHERE tracking_id = $1`,
			trackingID, StatusFor(res.Decision), d.Score, d.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: update status: %v", ErrInsertFailed, err)
		}
		return expectOne(result, trackingID)
	})
	if err != nil {
		return nil, err
	}

	r.audit(ctx, "application_appraised", trackingID, map[string]interface{}{
		"score":    d.Score,
		"decision": d.Decision,
	})
	return d, nil
}

// StatusFor maps a scoring decision onto an application status.
func StatusFor(d scoring.Decision) string {
	switch d {
	case scoring.DecisionApproved:
		return models.StatusApproved
	case scoring.DecisionRejected:
		return models.StatusRejected
	default:
		return models.StatusBoardReview
	}
}

// ListApproved returns approved loans, newest first, numbered from 1.
func (r *Repository) ListApproved(ctx context.Context) ([]models.ApprovedLoan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tracking_id, account_number, applicant_name, loan_type,
			loan_amount, annual_interest_rate_percent, loan_term_years, savings_balance, submitted_at
		FROM applications
		WHERE status = $1
		ORDER BY submitted_at DESC`, models.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("%w: list approved: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	loans := []models.ApprovedLoan{}
	for rows.Next() {
		var (
			l       models.ApprovedLoan
			account sql.NullString
			savings sql.NullFloat64
			rate    float64
		)
		if err := rows.Scan(&l.TrackingID, &account, &l.ApplicantName, &l.LoanType,
			&l.LoanAmount, &rate, &l.DurationYears, &savings, &l.SubmittedAt); err != nil {
			return nil, fmt.Errorf("%w: scan approved: %v", ErrQueryFailed, err)
		}
		l.SerialNumber = len(loans) + 1
		l.AccountNumber = account.String
		l.SavingsBalance = floatPtr(savings)
		l.MonthlyInstallment = round2(scoring.MonthlyPayment(l.LoanAmount, rate, l.DurationYears))
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate approved: %v", ErrQueryFailed, err)
	}
	return loans, nil
}

// DeleteApproved removes the approved applications among trackingIDs and reports how many went.
// Ids that are not approved are left alone.
func (r *Repository) DeleteApproved(ctx context.Context, trackingIDs []string) (int64, error) {
	if len(trackingIDs) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM applications WHERE status = $1 AND tracking_id = ANY($2)`,
		models.StatusApproved, pq.Array(trackingIDs))
	if err != nil {
		return 0, fmt.Errorf("%w: delete approved: %v", ErrQueryFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ErrQueryFailed, err)
	}
	r.logger.Info("approved loans deleted", map[string]interface{}{
		"requested": len(trackingIDs),
		"deleted":   n,
	})
	return n, nil
}

// Dashboard returns the approved count and the latest applications.
func (r *Repository) Dashboard(ctx context.Context, limit int) (*models.Dashboard, error) {
	if limit <= 0 {
		limit = 5
	}
	out := &models.Dashboard{Recent: []models.ApplicationSummary{}}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE status = $1`, models.StatusApproved,
	).Scan(&out.TotalApproved); err != nil {
		return nil, fmt.Errorf("%w: count approved: %v", ErrQueryFailed, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT tracking_id, applicant_name, loan_type, loan_amount, status, score, submitted_at
		FROM applications
		ORDER BY submitted_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent applications: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s     models.ApplicationSummary
			score sql.NullFloat64
		)
		if err := rows.Scan(&s.TrackingID, &s.ApplicantName, &s.LoanType, &s.LoanAmount,
			&s.Status, &score, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("%w: scan recent: %v", ErrQueryFailed, err)
		}
		s.Score = floatPtr(score)
		out.Recent = append(out.Recent, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate recent: %v", ErrQueryFailed, err)
	}
	return out, nil
}

// RecordNotification stores n. ID and CreatedAt are filled when empty.
func (r *Repository) RecordNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	payload, err := json.Marshal(nonNil(n.Payload))
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", ErrInsertFailed, err)
	}

	var sentAt sql.NullTime
	if n.SentAt != nil {
		sentAt = sql.NullTime{Time: *n.SentAt, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, tracking_id, recipient, type, channel, status, message_id, payload, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.TrackingID, n.Recipient, n.Type, n.Channel, n.Status, nullString(n.MessageID), payload, sentAt, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert notification: %v", ErrInsertFailed, err)
	}
	return nil
}

func (r *Repository) audit(ctx context.Context, event, trackingID string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event, "application", trackingID, detailsJSON, r.now())
	if err != nil {
		r.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":      err.Error(),
			"trackingId": trackingID,
		})
	}
}

func expectOne(res sql.Result, trackingID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrQueryFailed, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, trackingID)
	}
	return nil
}

func nonNil(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
