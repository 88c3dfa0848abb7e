package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/submission"
	"loan-appraiser/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func applicantValues() map[string]any {
	return map[string]any{
		"applicant_name":                 "A. Ngu",
		"loan_amount":                    20000000,
		"annual_interest_rate_percent":   8,
		"loan_term_years":                15,
		"borrower_gross_monthly_income":  900000,
		"existing_monthly_debt_payments": 50000,
		"account_number":                 "ACC123",
		"date_of_loan":                   "2024-01-10",
		"loan_purpose":                   "business",
	}
}

func kycValues() map[string]any {
	return map[string]any{
		"identity_card_number":    "CM-000123",
		"place_of_birth":          "Bamenda",
		"date_of_birth":           "1985-05-02",
		"current_address":         "12 Commercial Avenue, Bamenda, Cameroon",
		"marital_status":          "Married",
		"profession":              "Trader",
		"duration_with_mfi_years": 6,
		"num_loans_other_mfi":     0,
		"current_location":        "Bamenda",
	}
}

func mortgageValues() map[string]any {
	return map[string]any{
		"land_title_document_check":        true,
		"power_of_attorney_document_check": false,
		"no_existing_npl_check":            true,
	}
}

func newMortgage(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewTestLogger(t))}, opts...)
	c, err := New(loantype.Mortgage, opts...)
	require.NoError(t, err)
	return c
}

func advanceToReview(t *testing.T, c *Controller) {
	t.Helper()
	for _, v := range []map[string]any{applicantValues(), kycValues(), mortgageValues()} {
		res := c.Next(v)
		require.True(t, res.Valid, "%v", res.Errors)
	}
	require.Equal(t, c.TotalSteps()-1, c.State().CurrentStep)
}

type stubHandler struct {
	mu      sync.Mutex
	calls   int
	outcome submission.Outcome
	values  map[string]any
}

func (s *stubHandler) Submit(_ context.Context, values map[string]any, _ loantype.LoanType) submission.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.values = values
	return s.outcome
}

// ==========================
// Construction Tests
// ==========================

func TestNew_UnknownLoanTypeIsFatal(t *testing.T) {
	c, err := New("nonexistent-loan")
	assert.Nil(t, c)
	assert.ErrorIs(t, err, loantype.ErrUnknownLoanType)
}

func TestNew_StartsOnFirstStep(t *testing.T) {
	c := newMortgage(t)
	s := c.State()
	assert.Equal(t, 0, s.CurrentStep)
	assert.Equal(t, 4, s.TotalSteps)
	assert.Empty(t, s.Values)
	assert.Equal(t, loantype.Mortgage, c.LoanType())
}

// ==========================
// Next / Prev Tests
// ==========================

func TestNext_MortgageScenario(t *testing.T) {
	c := newMortgage(t)

	res := c.Next(applicantValues())
	require.True(t, res.Valid, "%v", res.Errors)
	assert.Equal(t, 1, res.CurrentStep)
	assert.Equal(t, "kyc", res.Step.Key)
	assert.Equal(t, "A. Ngu", c.State().Values["applicant_name"])
}

func TestNext_FailureDoesNotAdvanceOrMerge(t *testing.T) {
	c := newMortgage(t)

	values := applicantValues()
	delete(values, "applicant_name")

	res := c.Next(values)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "applicant_name")
	assert.Equal(t, 0, res.CurrentStep)
	assert.Empty(t, c.State().Values, "no partial merge on failure")
}

func TestNext_CheckboxGate(t *testing.T) {
	c := newMortgage(t)
	require.True(t, c.Next(applicantValues()).Valid)
	require.True(t, c.Next(kycValues()).Valid)

	values := mortgageValues()
	values["land_title_document_check"] = false

	res := c.Next(values)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "land_title_document_check")
	assert.Equal(t, 2, res.CurrentStep)
	assert.NotContains(t, c.State().Values, "no_existing_npl_check")
}

func TestNext_IgnoresFieldsOfOtherSteps(t *testing.T) {
	c := newMortgage(t)
	values := applicantValues()
	values["land_title_document_check"] = true
	values["savingsBalance"] = 10

	require.True(t, c.Next(values).Valid)
	state := c.State()
	assert.NotContains(t, state.Values, "land_title_document_check")
	assert.NotContains(t, state.Values, "savingsBalance")
}

func TestNext_CapsAtReviewStep(t *testing.T) {
	c := newMortgage(t)
	advanceToReview(t, c)

	res := c.Next(nil)
	assert.True(t, res.Valid)
	assert.Equal(t, 3, res.CurrentStep)
	assert.True(t, res.Step.IsReview())
}

func TestPrev_MergesWithoutValidating(t *testing.T) {
	c := newMortgage(t)
	require.True(t, c.Next(applicantValues()).Valid)

	res := c.Prev(map[string]any{"identity_card_number": "", "place_of_birth": "Buea"})
	assert.True(t, res.Valid)
	assert.Equal(t, 0, res.CurrentStep)

	state := c.State()
	assert.Equal(t, "Buea", state.Values["place_of_birth"])
	assert.Equal(t, "A. Ngu", state.Values["applicant_name"], "earlier values are kept")
}

func TestPrev_FloorsAtZero(t *testing.T) {
	c := newMortgage(t)
	res := c.Prev(nil)
	assert.Equal(t, 0, res.CurrentStep)
	res = c.Prev(nil)
	assert.Equal(t, 0, res.CurrentStep)
}

func TestPrev_KeepsLaterStepValues(t *testing.T) {
	c := newMortgage(t)
	advanceToReview(t, c)

	for want := 2; want >= 0; want-- {
		res := c.Prev(nil)
		assert.Equal(t, want, res.CurrentStep)
	}
	state := c.State()
	assert.Equal(t, true, state.Values["land_title_document_check"])
	assert.Equal(t, "Trader", state.Values["profession"])
}

func TestPrevThenNext_IsIdempotent(t *testing.T) {
	c := newMortgage(t)
	require.True(t, c.Next(applicantValues()).Valid)
	require.True(t, c.Next(kycValues()).Valid)
	before := c.State()

	c.Prev(mortgageValues())
	res := c.Next(kycValues())
	require.True(t, res.Valid)

	after := c.State()
	assert.Equal(t, before.CurrentStep, after.CurrentStep)
	for k, v := range before.Values {
		assert.Equal(t, v, after.Values[k], k)
	}
}

func TestNext_RevisitedStepUsesAccumulatedValues(t *testing.T) {
	c := newMortgage(t)
	require.True(t, c.Next(applicantValues()).Valid)
	c.Prev(nil)

	res := c.Next(map[string]any{"loan_amount": 25000000})
	require.True(t, res.Valid, "%v", res.Errors)
	assert.Equal(t, 25000000, c.State().Values["loan_amount"])
}

// ==========================
// Submit Tests
// ==========================

func TestSubmit_RejectedBeforeReview(t *testing.T) {
	stub := &stubHandler{outcome: submission.Outcome{Success: true, TrackingID: "T-1"}}
	c := newMortgage(t, WithSubmitter(stub))
	require.True(t, c.Next(applicantValues()).Valid)

	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotOnReviewStep)
	assert.Equal(t, 0, stub.calls)
	assert.Equal(t, 1, c.State().CurrentStep)
}

func TestSubmit_Success(t *testing.T) {
	stub := &stubHandler{outcome: submission.Outcome{Success: true, TrackingID: "T-1", Message: "ok"}}
	c := newMortgage(t, WithSubmitter(stub))
	advanceToReview(t, c)

	out, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T-1", out.TrackingID)
	assert.Equal(t, "A. Ngu", stub.values["applicant_name"])

	state := c.State()
	assert.True(t, state.Submitted)
	assert.Equal(t, "T-1", state.TrackingID)
	assert.Empty(t, state.Values)

	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, 1, stub.calls)

	res := c.Next(applicantValues())
	assert.True(t, res.Submitted)
}

func TestSubmit_FailurePreservesState(t *testing.T) {
	stub := &stubHandler{outcome: submission.Outcome{Success: false, Message: "gateway down"}}
	c := newMortgage(t, WithSubmitter(stub))
	advanceToReview(t, c)
	before := c.State()

	out, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, submission.ErrSubmissionFailed)
	assert.False(t, out.Success)
	assert.Equal(t, "gateway down", out.Message)

	after := c.State()
	assert.False(t, after.Submitted)
	assert.Equal(t, before, after)

	stub.outcome = submission.Outcome{Success: true, TrackingID: "T-2"}
	out, err = c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T-2", out.TrackingID)
}

func TestSubmit_NoSubmitter(t *testing.T) {
	c := newMortgage(t)
	advanceToReview(t, c)
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoSubmitter)
}

func TestSubmit_ReentrancyGuard(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	handler := submission.NewHandler(submission.SubmitterFunc(
		func(ctx context.Context, _ submission.Payload) (submission.Receipt, error) {
			close(entered)
			<-release
			return submission.Receipt{TrackingID: "T-9"}, nil
		}), logger.NewNoOpLogger())

	c := newMortgage(t, WithSubmitter(handler))
	advanceToReview(t, c)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()

	<-entered
	assert.True(t, c.Submitting())
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.Submitting())
}

func TestSubmit_CloseAbortsInFlightCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	handler := submission.NewHandler(submission.SubmitterFunc(
		func(ctx context.Context, _ submission.Payload) (submission.Receipt, error) {
			close(entered)
			<-ctx.Done()
			return submission.Receipt{}, ctx.Err()
		}), logger.NewNoOpLogger())

	c := newMortgage(t, WithSubmitter(handler))
	advanceToReview(t, c)

	done := make(chan struct{})
	var out submission.Outcome
	var err error
	go func() {
		defer close(done)
		out, err = c.Submit(context.Background())
	}()

	<-entered
	c.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission was not aborted")
	}
	assert.ErrorIs(t, err, submission.ErrSubmissionFailed)
	assert.Equal(t, "Submission was cancelled.", out.Message)
	assert.False(t, c.State().Submitted)
}

func TestSubmit_ResetDropsLateOutcome(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	handler := submission.NewHandler(submission.SubmitterFunc(
		func(context.Context, submission.Payload) (submission.Receipt, error) {
			close(entered)
			<-release
			return submission.Receipt{TrackingID: "LA-OLD"}, nil
		}), logger.NewNoOpLogger())

	c := newMortgage(t, WithSubmitter(handler))
	advanceToReview(t, c)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-entered

	c.Reset()
	assert.False(t, c.Submitting())

	close(release)
	assert.ErrorIs(t, <-done, ErrSubmissionAborted)

	state := c.State()
	assert.Equal(t, 0, state.CurrentStep)
	assert.False(t, state.Submitted)
	assert.Empty(t, state.TrackingID)
	assert.Empty(t, state.Values)

	res := c.Next(applicantValues())
	require.True(t, res.Valid, "%v", res.Errors)
	assert.Equal(t, 1, res.CurrentStep)
}

func TestSubmit_TransitionsBlockedInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	handler := submission.NewHandler(submission.SubmitterFunc(
		func(context.Context, submission.Payload) (submission.Receipt, error) {
			close(entered)
			<-release
			return submission.Receipt{TrackingID: "T-3"}, nil
		}), logger.NewNoOpLogger())

	c := newMortgage(t, WithSubmitter(handler))
	advanceToReview(t, c)
	review := c.State()

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-entered

	prev := c.Prev(nil)
	assert.True(t, prev.Submitting)
	assert.False(t, prev.Valid)
	next := c.Next(nil)
	assert.True(t, next.Submitting)
	assert.Equal(t, review, c.State())

	close(release)
	require.NoError(t, <-done)
	state := c.State()
	assert.True(t, state.Submitted)
	assert.Equal(t, "T-3", state.TrackingID)
	assert.Equal(t, review.CurrentStep, state.CurrentStep)
}

func TestSubmit_HonoursCallerContext(t *testing.T) {
	handler := submission.NewHandler(submission.SubmitterFunc(
		func(ctx context.Context, _ submission.Payload) (submission.Receipt, error) {
			return submission.Receipt{}, ctx.Err()
		}), logger.NewNoOpLogger())

	c := newMortgage(t, WithSubmitter(handler))
	advanceToReview(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Submit(ctx)
	assert.True(t, errors.Is(err, submission.ErrSubmissionFailed))
}

// ==========================
// Snapshot Tests
// ==========================

func TestRestore_RoundTrip(t *testing.T) {
	c := newMortgage(t)
	require.True(t, c.Next(applicantValues()).Valid)
	require.True(t, c.Next(kycValues()).Valid)

	restored, err := Restore(c.State())
	require.NoError(t, err)
	assert.Equal(t, c.State(), restored.State())
}

func TestRestore_RejectsBadSnapshot(t *testing.T) {
	_, err := Restore(State{LoanType: loantype.Mortgage, CurrentStep: 9})
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	_, err = Restore(State{LoanType: "nonexistent-loan"})
	assert.ErrorIs(t, err, loantype.ErrUnknownLoanType)
}

func TestState_VersionTracksChanges(t *testing.T) {
	c := newMortgage(t)
	assert.Equal(t, int64(0), c.State().Version)

	require.False(t, c.Next(nil).Valid)
	assert.Equal(t, int64(0), c.State().Version, "rejected step leaves the version")

	require.True(t, c.Next(applicantValues()).Valid)
	assert.Equal(t, int64(1), c.State().Version)
	c.Prev(nil)
	assert.Equal(t, int64(2), c.State().Version)
	c.Reset()
	assert.Equal(t, int64(3), c.State().Version)

	restored, err := Restore(c.State())
	require.NoError(t, err)
	assert.Equal(t, int64(3), restored.State().Version)
}

func TestReset(t *testing.T) {
	c := newMortgage(t)
	advanceToReview(t, c)

	c.Reset()
	s := c.State()
	assert.Equal(t, 0, s.CurrentStep)
	assert.Empty(t, s.Values)
}
