// internal/appraisal/wizard/wizard.go
// Package wizard drives one appraisal session through the steps of its loan type:
// validate forward, merge backward, submit from the review step.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/submission"
	"loan-appraiser/internal/appraisal/validator"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/common/metrics"
)

var (
	ErrNotOnReviewStep      = errors.New("NOT_ON_REVIEW_STEP")
	ErrSubmissionInProgress = errors.New("SUBMISSION_IN_PROGRESS")
	ErrAlreadySubmitted     = errors.New("ALREADY_SUBMITTED")
	ErrNoSubmitter          = errors.New("NO_SUBMITTER_CONFIGURED")
	ErrInvalidSnapshot      = errors.New("INVALID_WIZARD_SNAPSHOT")
	ErrSubmissionAborted    = errors.New("SUBMISSION_ABORTED")
)

// SubmissionHandler turns accumulated values into an outcome.
type SubmissionHandler interface {
	Submit(ctx context.Context, values map[string]any, lt loantype.LoanType) submission.Outcome
}

// State is a snapshot of a session, suitable for session storage. Version grows with
// every change of position, values or submission status.
type State struct {
	LoanType    loantype.LoanType `json:"loanType"`
	CurrentStep int               `json:"currentStep"`
	TotalSteps  int               `json:"totalSteps"`
	Values      map[string]any    `json:"values"`
	Submitted   bool              `json:"submitted"`
	TrackingID  string            `json:"trackingId,omitempty"`
	Version     int64             `json:"version"`
}

// StepResult reports a transition.
type StepResult struct {
	Valid       bool                    `json:"valid"`
	Errors      map[string]string       `json:"errors,omitempty"`
	CurrentStep int                     `json:"currentStep"`
	TotalSteps  int                     `json:"totalSteps"`
	Step        loantype.StepDefinition `json:"step"`
	Submitted   bool                    `json:"submitted,omitempty"`
	Submitting  bool                    `json:"submitting,omitempty"`
}

type Controller struct {
	mu sync.Mutex

	loanType loantype.LoanType
	steps    []loantype.StepDefinition
	current  int
	values   map[string]any

	submitting bool
	submitted  bool
	trackingID string
	cancel     context.CancelFunc
	generation uint64
	version    int64

	submitter SubmissionHandler
	logger    logger.Logger
}

type Option func(*Controller)

func WithSubmitter(s SubmissionHandler) Option {
	return func(c *Controller) { c.submitter = s }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New starts a session for lt. An unregistered loan type is fatal: no controller is built.
func New(lt loantype.LoanType, opts ...Option) (*Controller, error) {
	c, err := build(lt, opts)
	if err != nil {
		return nil, err
	}
	metrics.WizardSessionsStarted.WithLabelValues(string(lt)).Inc()
	return c, nil
}

func build(lt loantype.LoanType, opts []Option) (*Controller, error) {
	steps, err := loantype.RulesFor(lt)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		loanType: lt,
		steps:    steps,
		values:   make(map[string]any),
		logger:   logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"loanType": string(lt)})
	return c, nil
}

// Restore rebuilds a controller from a snapshot.
func Restore(s State, opts ...Option) (*Controller, error) {
	c, err := build(s.LoanType, opts)
	if err != nil {
		return nil, err
	}
	if s.CurrentStep < 0 || s.CurrentStep >= len(c.steps) {
		return nil, fmt.Errorf("%w: step %d outside [0,%d)", ErrInvalidSnapshot, s.CurrentStep, len(c.steps))
	}
	c.current = s.CurrentStep
	for k, v := range s.Values {
		c.values[k] = v
	}
	fields.RestoreFiles(c.values)
	c.submitted = s.Submitted
	c.trackingID = s.TrackingID
	c.version = s.Version
	return c, nil
}

func (c *Controller) LoanType() loantype.LoanType { return c.loanType }

func (c *Controller) TotalSteps() int { return len(c.steps) }

// Steps returns the step definitions of the session.
func (c *Controller) Steps() []loantype.StepDefinition {
	return append([]loantype.StepDefinition(nil), c.steps...)
}

// State returns a copy of the session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	values := make(map[string]any, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	return State{
		LoanType:    c.loanType,
		CurrentStep: c.current,
		TotalSteps:  len(c.steps),
		Values:      values,
		Submitted:   c.submitted,
		TrackingID:  c.trackingID,
		Version:     c.version,
	}
}

// Next validates the current step against the accumulated values overlaid with values.
// On success the step's fields are merged and the index advances, capped at the review step.
// On failure nothing is merged. While a submission is in flight nothing changes and the
// result reports Submitting.
func (c *Controller) Next(values map[string]any) StepResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitted {
		return c.result(true, nil)
	}
	if c.submitting {
		return c.result(false, nil)
	}

	step := c.steps[c.current]
	view := c.stepView(step, values)
	res := validator.Validate(step, view)
	if !res.Valid {
		metrics.WizardTransitions.WithLabelValues(string(c.loanType), "next", "invalid").Inc()
		metrics.WizardValidationFailures.WithLabelValues(string(c.loanType), step.Key).Inc()
		c.logger.Debug("Step validation failed", map[string]interface{}{
			"step":   step.Key,
			"fields": res.Fields(step),
		})
		return c.result(false, res.Errors)
	}

	for k, v := range view {
		c.values[k] = v
	}
	if c.current < len(c.steps)-1 {
		c.current++
	}
	c.version++
	metrics.WizardTransitions.WithLabelValues(string(c.loanType), "next", "ok").Inc()
	return c.result(true, nil)
}

// Prev merges the step's in-progress values without validating and steps back, floored at 0.
func (c *Controller) Prev(values map[string]any) StepResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitted {
		return c.result(true, nil)
	}
	if c.submitting {
		return c.result(false, nil)
	}

	step := c.steps[c.current]
	for _, f := range step.Fields {
		if v, ok := values[f.Name]; ok {
			c.values[f.Name] = v
		}
	}
	if c.current > 0 {
		c.current--
	}
	c.version++
	metrics.WizardTransitions.WithLabelValues(string(c.loanType), "prev", "ok").Inc()
	return c.result(true, nil)
}

// stepView returns the step's own fields from the accumulated values overlaid with incoming.
func (c *Controller) stepView(step loantype.StepDefinition, incoming map[string]any) map[string]any {
	view := make(map[string]any, len(step.Fields))
	for _, f := range step.Fields {
		if v, ok := c.values[f.Name]; ok {
			view[f.Name] = v
		}
		if v, ok := incoming[f.Name]; ok {
			view[f.Name] = v
		}
	}
	return view
}

func (c *Controller) result(valid bool, errs map[string]string) StepResult {
	return StepResult{
		Valid:       valid,
		Errors:      errs,
		CurrentStep: c.current,
		TotalSteps:  len(c.steps),
		Step:        c.steps[c.current],
		Submitted:   c.submitted,
		Submitting:  c.submitting,
	}
}

// Submit hands the accumulated values to the submission handler. It is only allowed on
// the review step, and only one submission may be in flight. A failed submission keeps
// the state so it can be retried; a successful one discards the values. An outcome that
// arrives after Reset belongs to the discarded session and is dropped with ErrSubmissionAborted.
func (c *Controller) Submit(ctx context.Context) (submission.Outcome, error) {
	c.mu.Lock()
	switch {
	case c.submitted:
		c.mu.Unlock()
		return submission.Outcome{}, ErrAlreadySubmitted
	case c.submitting:
		c.mu.Unlock()
		return submission.Outcome{}, ErrSubmissionInProgress
	case c.current != len(c.steps)-1:
		c.mu.Unlock()
		return submission.Outcome{}, fmt.Errorf("%w: on step %d of %d", ErrNotOnReviewStep, c.current+1, len(c.steps))
	case c.submitter == nil:
		c.mu.Unlock()
		return submission.Outcome{}, ErrNoSubmitter
	}

	review := c.steps[c.current]
	if res := validator.Validate(review, c.values); !res.Valid {
		c.mu.Unlock()
		return submission.Outcome{}, fmt.Errorf("review step rejected values: %v", res.Errors)
	}

	values := c.snapshot().Values
	ctx, cancel := context.WithCancel(ctx)
	c.submitting = true
	c.cancel = cancel
	gen := c.generation
	c.mu.Unlock()

	c.logger.Info("Submitting application", map[string]interface{}{"fields": len(values)})
	outcome := c.submitter.Submit(ctx, values, c.loanType)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.logger.Warn("Dropping outcome of a reset session", map[string]interface{}{
			"success":    outcome.Success,
			"trackingId": outcome.TrackingID,
		})
		return outcome, ErrSubmissionAborted
	}
	c.submitting = false
	c.cancel = nil

	if !outcome.Success {
		return outcome, fmt.Errorf("%w: %s", submission.ErrSubmissionFailed, outcome.Message)
	}
	c.submitted = true
	c.trackingID = outcome.TrackingID
	c.values = make(map[string]any)
	c.version++
	return outcome, nil
}

// Submitting reports whether a submission is in flight.
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Reset discards the accumulated values and returns to the first step.
// An in-flight submission is cancelled and its outcome will not be applied.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.submitting = false
	c.version++
	c.values = make(map[string]any)
	c.current = 0
	c.submitted = false
	c.trackingID = ""
}

// Close aborts an in-flight submission. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}
