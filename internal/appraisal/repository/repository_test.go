package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/scoring"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := New(db, logger.NewTestLogger(t))
	r.now = func() time.Time { return fixedNow }
	return r, mock
}

func floatP(v float64) *float64 { return &v }

func approvedColumns() []string {
	return []string{"tracking_id", "account_number", "applicant_name", "loan_type",
		"loan_amount", "annual_interest_rate_percent", "loan_term_years", "savings_balance", "submitted_at"}
}

// ==========================
// Application Tests
// ==========================

func TestRepository_CreateApplication(t *testing.T) {
	r, mock := newTestRepository(t)

	mock.ExpectExec(`INSERT INTO applications`).
		WithArgs(
			"LA-001",
			"salary",
			"Jane Doe",
			nil, // no email
			"ACC-77",
			1500000.0,
			12.0,
			2.0,
			nil, // no savings balance
			[]byte(`{"applicant_name":"Jane Doe"}`),
			[]byte(`{}`),
			models.StatusSubmitted,
			fixedNow,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("application_created", "application", "LA-001", sqlmock.AnyArg(), fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	app := &models.Application{
		TrackingID:    "LA-001",
		LoanType:      "salary",
		ApplicantName: "Jane Doe",
		AccountNumber: "ACC-77",
		LoanAmount:    1500000,
		InterestRate:  12,
		TermYears:     2,
		Fields:        map[string]interface{}{"applicant_name": "Jane Doe"},
	}
	require.NoError(t, r.CreateApplication(context.Background(), app))

	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.Equal(t, fixedNow, app.SubmittedAt)
	assert.Equal(t, fixedNow, app.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateApplication_AuditFailureIsNotFatal(t *testing.T) {
	r, mock := newTestRepository(t)

	mock.ExpectExec(`INSERT INTO applications`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(errors.New("audit table locked"))

	err := r.CreateApplication(context.Background(), &models.Application{TrackingID: "LA-002", LoanType: "mortgage"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateApplication_InsertError(t *testing.T) {
	r, mock := newTestRepository(t)

	mock.ExpectExec(`INSERT INTO applications`).WillReturnError(errors.New("duplicate key"))

	err := r.CreateApplication(context.Background(), &models.Application{TrackingID: "LA-003"})
	assert.ErrorIs(t, err, ErrInsertFailed)
	assert.Contains(t, err.Error(), "duplicate key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetApplication(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(mock sqlmock.Sqlmock)
		validate func(t *testing.T, app *models.Application, err error)
	}{
		{
			name: "found",
			setup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{
					"tracking_id", "loan_type", "applicant_name", "applicant_email", "account_number",
					"loan_amount", "annual_interest_rate_percent", "loan_term_years", "savings_balance",
					"fields", "files", "status", "score", "process_instance_key", "submitted_at", "updated_at",
				}).AddRow(
					"LA-001", "within_savings", "Jane Doe", "jane@example.com", nil,
					500000.0, 10.0, 1.0, 900000.0,
					[]byte(`{"loan_amount":"500000"}`), []byte(`{}`), models.StatusApproved, 100.0, int64(42), fixedNow, fixedNow,
				)
				mock.ExpectQuery(`SELECT (.+) FROM applications WHERE tracking_id = \$1`).
					WithArgs("LA-001").WillReturnRows(rows)
			},
			validate: func(t *testing.T, app *models.Application, err error) {
				require.NoError(t, err)
				assert.Equal(t, "jane@example.com", app.ApplicantEmail)
				assert.Empty(t, app.AccountNumber)
				require.NotNil(t, app.SavingsBalance)
				assert.Equal(t, 900000.0, *app.SavingsBalance)
				require.NotNil(t, app.Score)
				assert.Equal(t, 100.0, *app.Score)
				assert.Equal(t, int64(42), app.ProcessInstanceKey)
				assert.Equal(t, "500000", app.Fields["loan_amount"])
			},
		},
		{
			name: "not found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM applications`).WithArgs("LA-404").WillReturnError(sql.ErrNoRows)
			},
			validate: func(t *testing.T, app *models.Application, err error) {
				assert.Nil(t, app)
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name: "query failure",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM applications`).WillReturnError(errors.New("connection reset"))
			},
			validate: func(t *testing.T, app *models.Application, err error) {
				assert.ErrorIs(t, err, ErrQueryFailed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newTestRepository(t)
			tt.setup(mock)

			id := "LA-001"
			if tt.name == "not found" {
				id = "LA-404"
			}
			app, err := r.GetApplication(context.Background(), id)
			tt.validate(t, app, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_SetProcessInstance(t *testing.T) {
	r, mock := newTestRepository(t)

	mock.ExpectExec(`UPDATE applications SET process_instance_key`).
		WithArgs("LA-001", int64(2251799813685249), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE applications SET process_instance_key`).
		WithArgs("LA-404", int64(1), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, r.SetProcessInstance(context.Background(), "LA-001", 2251799813685249))
	assert.ErrorIs(t, r.SetProcessInstance(context.Background(), "LA-404", 1), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DiscardApplication(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(mock sqlmock.Sqlmock)
		validate func(t *testing.T, err error)
	}{
		{
			name: "submitted record is removed and audited",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM applications WHERE tracking_id = \$1 AND status = \$2`).
					WithArgs("LA-001", models.StatusSubmitted).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`INSERT INTO audit_log`).
					WithArgs("application_discarded", "application", "LA-001", sqlmock.AnyArg(), fixedNow).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			validate: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "scored record is left alone",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM applications`).
					WithArgs("LA-001", models.StatusSubmitted).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			validate: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name: "database error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM applications`).WillReturnError(errors.New("connection reset"))
			},
			validate: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrQueryFailed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newTestRepository(t)
			tt.setup(mock)
			tt.validate(t, r.DiscardApplication(context.Background(), "LA-001"))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_RecordNotification(t *testing.T) {
	r, mock := newTestRepository(t)
	sent := fixedNow.Add(time.Minute)

	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(sqlmock.AnyArg(), "LA-001", "jane@example.com", "decision_approved", "email", "sent",
			sql.NullString{String: "msg-1", Valid: true}, []byte(`{}`), sql.NullTime{Time: sent, Valid: true}, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnError(errors.New("foreign key violation"))

	n := &models.Notification{
		TrackingID: "LA-001",
		Recipient:  "jane@example.com",
		Type:       "decision_approved",
		Channel:    "email",
		Status:     "sent",
		MessageID:  "msg-1",
		SentAt:     &sent,
	}
	require.NoError(t, r.RecordNotification(context.Background(), n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, fixedNow, n.CreatedAt)

	err := r.RecordNotification(context.Background(), &models.Notification{TrackingID: "LA-404"})
	assert.ErrorIs(t, err, ErrInsertFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Decision Tests
// ==========================

func TestRepository_SaveDecision(t *testing.T) {
	r, mock := newTestRepository(t)

	res := scoring.Result{
		LoanType:       loantype.Mortgage,
		Score:          100,
		Decision:       scoring.DecisionApproved,
		Reasons:        []string{"✔ Full KYC"},
		MonthlyPayment: 222444.4567,
		DTIRatio:       0.25,
		Scored:         true,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO decisions`).
		WithArgs(sqlmock.AnyArg(), "LA-001", 100.0, "approved", []byte(`["✔ Full KYC"]`), 222444.46, 0.25, true, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE applications SET status`).
		WithArgs("LA-001", models.StatusApproved, 100.0, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("application_appraised", "application", "LA-001", sqlmock.AnyArg(), fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	d, err := r.SaveDecision(context.Background(), "LA-001", res)
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, 222444.46, d.MonthlyPayment)
	assert.Equal(t, "approved", d.Decision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SaveDecision_RollsBackOnMissingApplication(t *testing.T) {
	r, mock := newTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO decisions`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE applications SET status`).
		WithArgs("LA-404", models.StatusBoardReview, 0.0, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := r.SaveDecision(context.Background(), "LA-404", scoring.Result{Decision: scoring.DecisionBoardReview})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, models.StatusApproved, StatusFor(scoring.DecisionApproved))
	assert.Equal(t, models.StatusBoardReview, StatusFor(scoring.DecisionBoardReview))
	assert.Equal(t, models.StatusRejected, StatusFor(scoring.DecisionRejected))
}

// ==========================
// Approved Loans Tests
// ==========================

func TestRepository_ListApproved(t *testing.T) {
	r, mock := newTestRepository(t)

	rows := sqlmock.NewRows(approvedColumns()).
		AddRow("LA-002", "ACC-2", "Paul Biya", "salary", 1200000.0, 12.0, 1.0, 150000.0, fixedNow).
		AddRow("LA-001", nil, "Jane Doe", "within_savings", 600000.0, 0.0, 2.0, nil, fixedNow.Add(-time.Hour))
	mock.ExpectQuery(`SELECT (.+) FROM applications\s+WHERE status = \$1\s+ORDER BY submitted_at DESC`).
		WithArgs(models.StatusApproved).
		WillReturnRows(rows)

	loans, err := r.ListApproved(context.Background())
	require.NoError(t, err)
	require.Len(t, loans, 2)

	assert.Equal(t, 1, loans[0].SerialNumber)
	assert.Equal(t, "ACC-2", loans[0].AccountNumber)
	assert.InDelta(t, 106618.55, loans[0].MonthlyInstallment, 0.01)
	require.NotNil(t, loans[0].SavingsBalance)

	assert.Equal(t, 2, loans[1].SerialNumber)
	assert.Empty(t, loans[1].AccountNumber)
	assert.Nil(t, loans[1].SavingsBalance)
	assert.Equal(t, 25000.0, loans[1].MonthlyInstallment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListApproved_Empty(t *testing.T) {
	r, mock := newTestRepository(t)
	mock.ExpectQuery(`SELECT (.+) FROM applications`).WillReturnRows(sqlmock.NewRows(approvedColumns()))

	loans, err := r.ListApproved(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, loans)
	assert.Empty(t, loans)
}

func TestRepository_ExportApprovedCSV(t *testing.T) {
	r, mock := newTestRepository(t)

	rows := sqlmock.NewRows(approvedColumns()).
		AddRow("LA-002", "ACC-2", "Paul Biya", "salary", 1200000.0, 12.0, 1.0, 150000.0, fixedNow).
		AddRow("LA-001", "", "Jane Doe", "within_savings", 600000.0, 0.0, 2.0, nil, fixedNow)
	mock.ExpectQuery(`SELECT (.+) FROM applications`).WillReturnRows(rows)

	var buf bytes.Buffer
	n, err := r.ExportApprovedCSV(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ApprovedCSVHeader, records[0])
	assert.Equal(t, []string{"1", "ACC-2", "Paul Biya", "1200000", "1", "150000", "106618.55"}, records[1])
	assert.Equal(t, []string{"2", "N/A", "Jane Doe", "600000", "2", "N/A", "25000.00"}, records[2])
}

func TestRepository_ExportApprovedCSV_QueryError(t *testing.T) {
	r, mock := newTestRepository(t)
	mock.ExpectQuery(`SELECT (.+) FROM applications`).WillReturnError(errors.New("timeout"))

	var buf bytes.Buffer
	_, err := r.ExportApprovedCSV(context.Background(), &buf)
	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.Zero(t, buf.Len())
}

func TestRepository_DeleteApproved(t *testing.T) {
	tests := []struct {
		name     string
		ids      []string
		setup    func(mock sqlmock.Sqlmock)
		validate func(t *testing.T, n int64, err error)
	}{
		{
			name: "deletes approved only",
			ids:  []string{"LA-001", "LA-002"},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM applications WHERE status = \$1 AND tracking_id = ANY\(\$2\)`).
					WithArgs(models.StatusApproved, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			validate: func(t *testing.T, n int64, err error) {
				require.NoError(t, err)
				assert.Equal(t, int64(1), n)
			},
		},
		{
			name:  "no ids is a no-op",
			ids:   nil,
			setup: func(mock sqlmock.Sqlmock) {},
			validate: func(t *testing.T, n int64, err error) {
				require.NoError(t, err)
				assert.Zero(t, n)
			},
		},
		{
			name: "database error",
			ids:  []string{"LA-001"},
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM applications`).WillReturnError(errors.New("deadlock"))
			},
			validate: func(t *testing.T, n int64, err error) {
				assert.ErrorIs(t, err, ErrQueryFailed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newTestRepository(t)
			tt.setup(mock)

			n, err := r.DeleteApproved(context.Background(), tt.ids)
			tt.validate(t, n, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_Dashboard(t *testing.T) {
	r, mock := newTestRepository(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM applications WHERE status = \$1`).
		WithArgs(models.StatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT (.+) FROM applications\s+ORDER BY submitted_at DESC\s+LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"tracking_id", "applicant_name", "loan_type", "loan_amount", "status", "score", "submitted_at"}).
			AddRow("LA-009", "Jane Doe", "mortgage", 2000000.0, models.StatusSubmitted, nil, fixedNow).
			AddRow("LA-008", "Paul Biya", "salary", 900000.0, models.StatusApproved, 100.0, fixedNow))

	d, err := r.Dashboard(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 7, d.TotalApproved)
	require.Len(t, d.Recent, 2)
	assert.Nil(t, d.Recent[0].Score)
	require.NotNil(t, d.Recent[1].Score)
	assert.Equal(t, 100.0, *d.Recent[1].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteApprovedCSV_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteApprovedCSV(&buf, nil))
	assert.Equal(t,
		"S/N,Account Number,Name of Member,Loan Amount (XAF),Duration (Years),Savings Balance (XAF),Monthly Installment (XAF)\n",
		buf.String())
}

func TestWriteApprovedCSV_WholeFrancs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteApprovedCSV(&buf, []models.ApprovedLoan{{
		SerialNumber: 1, ApplicantName: "A, B", LoanAmount: 1000000.4, DurationYears: 1.5,
		SavingsBalance: floatP(250000.6), MonthlyInstallment: 58000,
	}}))
	assert.Contains(t, buf.String(), `1,N/A,"A, B",1000000,1.5,250001,58000.00`)
}
