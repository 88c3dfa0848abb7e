package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Wizard metrics
var (
	WizardSessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appraisal_wizard_sessions_started_total",
			Help: "Total number of wizard sessions started per loan type",
		},
		[]string{"loan_type"},
	)

	WizardTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appraisal_wizard_transitions_total",
			Help: "Wizard step transitions by direction and result",
		},
		[]string{"loan_type", "direction", "result"},
	)

	WizardValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appraisal_wizard_validation_failures_total",
			Help: "Field validation failures per step",
		},
		[]string{"loan_type", "step"},
	)
)

// Submission metrics
var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appraisal_submissions_total",
			Help: "Total number of application submissions by outcome",
		},
		[]string{"loan_type", "outcome"},
	)

	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appraisal_submission_duration_seconds",
			Help:    "Duration of the submission call in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"loan_type"},
	)

	AppraisalDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appraisal_decisions_total",
			Help: "Scoring decisions by loan type",
		},
		[]string{"loan_type", "decision"},
	)
)

// Worker metrics
var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)
