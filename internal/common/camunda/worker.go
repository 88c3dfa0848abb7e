// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"loan-appraiser/internal/common/config"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/common/metrics"
)

// JobRecorder receives the duration of every handled job.
type JobRecorder interface {
	RecordJob(ctx context.Context, taskType string, d time.Duration)
}

// WorkerManager opens job workers and closes them together on shutdown.
type WorkerManager struct {
	client   zbc.Client
	workers  map[string]worker.JobWorker
	recorder JobRecorder
	logger   logger.Logger
}

type ManagerOption func(*WorkerManager)

func WithJobRecorder(r JobRecorder) ManagerOption {
	return func(m *WorkerManager) { m.recorder = r }
}

func NewWorkerManager(client zbc.Client, log logger.Logger, opts ...ManagerOption) *WorkerManager {
	m := &WorkerManager{
		client:  client,
		workers: make(map[string]worker.JobWorker),
		logger:  log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register opens a worker for taskType unless wcfg disables it, and reports whether it did.
func (m *WorkerManager) Register(taskType string, wcfg config.WorkerConfig, handler worker.JobHandler) bool {
	if !wcfg.Enabled {
		m.logger.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return false
	}
	if wcfg.MaxJobsActive <= 0 {
		wcfg.MaxJobsActive = 5
	}
	if wcfg.Timeout <= 0 {
		wcfg.Timeout = 30000
	}

	m.workers[taskType] = m.client.NewJobWorker().
		JobType(taskType).
		Handler(m.wrap(taskType, handler)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	m.logger.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return true
}

// Count returns the number of open workers.
func (m *WorkerManager) Count() int { return len(m.workers) }

// Close stops every worker, waiting for in-flight jobs.
func (m *WorkerManager) Close() {
	for taskType, w := range m.workers {
		m.logger.Info("stopping worker", map[string]interface{}{"taskType": taskType})
		w.Close()
		w.AwaitClose()
	}
	m.workers = make(map[string]worker.JobWorker)
}

func (m *WorkerManager) wrap(taskType string, handler worker.JobHandler) worker.JobHandler {
	h := Instrument(taskType, handler)
	if m.recorder == nil {
		return h
	}
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		h(client, job)
		m.recorder.RecordJob(context.Background(), taskType, time.Since(start))
	}
}

// Instrument records the active-job gauge and duration around handler.
func Instrument(taskType string, handler worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		defer func() {
			metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
		}()
		handler(client, job)
	}
}
