package submission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/common/logger"
)

type userError struct{ msg string }

func (e userError) Error() string       { return "api: " + e.msg }
func (e userError) UserMessage() string { return e.msg }

func TestBuildPayload(t *testing.T) {
	doc := fields.FileRef{Name: "deed.pdf", ContentType: "application/pdf", Size: 2048}
	values := map[string]any{
		"applicant_name":      "Jane Doe",
		"loan_amount":         5_000_000.0,
		"title_deed_document": doc,
		"empty_file":          fields.FileRef{},
		"ptr_file":            &fields.FileRef{Name: "plan.png"},
		"nil_value":           nil,
	}

	p := BuildPayload(values, loantype.Mortgage)

	assert.Equal(t, loantype.Mortgage, p.LoanType)
	assert.Equal(t, map[string]any{"applicant_name": "Jane Doe", "loan_amount": 5_000_000.0}, p.Fields)
	require.Len(t, p.Files, 2)
	assert.Equal(t, doc, p.Files["title_deed_document"])
	assert.Equal(t, "plan.png", p.Files["ptr_file"].Name)
}

func TestHandler_Submit(t *testing.T) {
	values := map[string]any{"applicant_name": "Jane Doe", "loan_amount": 1000.0}

	tests := []struct {
		name      string
		submitter SubmitterFunc
		ctx       func() context.Context
		validate  func(t *testing.T, out Outcome)
	}{
		{
			name: "success",
			submitter: func(ctx context.Context, p Payload) (Receipt, error) {
				assert.Equal(t, loantype.Salary, p.LoanType)
				assert.Equal(t, "Jane Doe", p.Fields["applicant_name"])
				return Receipt{TrackingID: "LA-2024-0001"}, nil
			},
			validate: func(t *testing.T, out Outcome) {
				assert.True(t, out.Success)
				assert.Equal(t, "LA-2024-0001", out.TrackingID)
				assert.Equal(t, "Loan appraisal request for Jane Doe (Salary-Backed Loan) submitted successfully!", out.Message)
			},
		},
		{
			name: "collaborator message surfaces",
			submitter: func(ctx context.Context, p Payload) (Receipt, error) {
				return Receipt{}, userError{msg: "Branch code is not recognised."}
			},
			validate: func(t *testing.T, out Outcome) {
				assert.False(t, out.Success)
				assert.Empty(t, out.TrackingID)
				assert.Equal(t, "Branch code is not recognised.", out.Message)
			},
		},
		{
			name: "generic failure",
			submitter: func(ctx context.Context, p Payload) (Receipt, error) {
				return Receipt{}, errors.New("dial tcp: connection refused")
			},
			validate: func(t *testing.T, out Outcome) {
				assert.False(t, out.Success)
				assert.Equal(t, defaultFailureMessage, out.Message)
			},
		},
		{
			name: "missing tracking id is a failure",
			submitter: func(ctx context.Context, p Payload) (Receipt, error) {
				return Receipt{}, nil
			},
			validate: func(t *testing.T, out Outcome) {
				assert.False(t, out.Success)
				assert.Equal(t, defaultFailureMessage, out.Message)
			},
		},
		{
			name: "cancelled",
			submitter: func(ctx context.Context, p Payload) (Receipt, error) {
				<-ctx.Done()
				return Receipt{}, ctx.Err()
			},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			validate: func(t *testing.T, out Outcome) {
				assert.False(t, out.Success)
				assert.Equal(t, "Submission was cancelled.", out.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}
			h := NewHandler(tt.submitter, logger.NewTestLogger(t))
			tt.validate(t, h.Submit(ctx, values, loantype.Salary))
		})
	}
}

func TestHandler_Submit_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	failing := SubmitterFunc(func(ctx context.Context, p Payload) (Receipt, error) {
		return Receipt{}, errors.New("boom")
	})
	h := NewHandler(failing, logger.NewNoOpLogger(), WithTracer(tp.Tracer("test")))
	h.Submit(context.Background(), map[string]any{}, loantype.Express)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "appraisal.submit", spans[0].Name())
	assert.Equal(t, "Error", spans[0].Status().Code.String())
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

type recorded struct{ loanType, outcome string }

type stubRecorder struct{ events []recorded }

func (r *stubRecorder) RecordSubmission(_ context.Context, loanType, outcome string) {
	r.events = append(r.events, recorded{loanType, outcome})
}

func TestHandler_Submit_Records(t *testing.T) {
	rec := &stubRecorder{}
	ok := SubmitterFunc(func(context.Context, Payload) (Receipt, error) {
		return Receipt{TrackingID: "LA-1"}, nil
	})
	failing := SubmitterFunc(func(context.Context, Payload) (Receipt, error) {
		return Receipt{}, errors.New("boom")
	})

	NewHandler(ok, logger.NewNoOpLogger(), WithRecorder(rec)).Submit(context.Background(), map[string]any{}, loantype.Salary)
	NewHandler(failing, logger.NewNoOpLogger(), WithRecorder(rec)).Submit(context.Background(), map[string]any{}, loantype.Express)

	assert.Equal(t, []recorded{
		{string(loantype.Salary), "success"},
		{string(loantype.Express), "failure"},
	}, rec.events)
}

func completeFields(t *testing.T, lt loantype.LoanType) map[string]any {
	t.Helper()
	steps, err := loantype.RulesFor(lt)
	require.NoError(t, err)

	out := map[string]any{}
	for _, step := range steps {
		for _, f := range step.Fields {
			switch f.Type {
			case fields.TypeFile:
			case fields.TypeNumber:
				out[f.Name] = 1000.0
			case fields.TypeCheckbox:
				out[f.Name] = true
			case fields.TypeSelect:
				out[f.Name] = f.Options[0]
			case fields.TypeEmail:
				out[f.Name] = "jane@example.com"
			case fields.TypeDate:
				out[f.Name] = "2024-01-15"
			default:
				out[f.Name] = "text"
			}
		}
	}
	return out
}

func TestCheckPayload(t *testing.T) {
	values := completeFields(t, loantype.AboveSavings)
	values["loan_amount"] = "250000"
	assert.NoError(t, CheckPayload(BuildPayload(values, loantype.AboveSavings)))

	values["marital_status"] = "Complicated"
	err := CheckPayload(BuildPayload(values, loantype.AboveSavings))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Contains(t, err.Error(), "marital_status")

	delete(values, "applicant_name")
	values["marital_status"] = "Married"
	err = CheckPayload(BuildPayload(values, loantype.AboveSavings))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Contains(t, err.Error(), "applicant_name")

	err = CheckPayload(Payload{LoanType: "payday-loan", Fields: map[string]any{}})
	assert.ErrorIs(t, err, loantype.ErrUnknownLoanType)
}
