package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries constant labels applied to all pipeline metrics.
type Config struct {
	ServiceName string
	Environment string
}

// PipelineMetrics captures pipeline job health signals.
type PipelineMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobErrors      *prometheus.CounterVec
	recordsTotal   *prometheus.CounterVec
	batchFinalized *prometheus.CounterVec
	entriesPosted  *prometheus.CounterVec
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton pipeline metrics registry using config labels.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fleetops"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &PipelineMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fleetops_pipeline_job_runs_total",
			Help:        "Pipeline job executions by job and result.",
			ConstLabels: constLabels,
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "fleetops_pipeline_job_duration_seconds",
			Help:        "Pipeline job wall-clock duration.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fleetops_pipeline_job_errors_total",
			Help:        "Record-level errors observed inside pipeline jobs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fleetops_pipeline_records_total",
			Help:        "Transaction records handled by job and outcome.",
			ConstLabels: constLabels,
		}, []string{"job", "outcome"}),
		batchFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fleetops_import_batches_total",
			Help:        "Import batches finalized by source and status.",
			ConstLabels: constLabels,
		}, []string{"source", "status"}),
		entriesPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fleetops_ledger_entries_posted_total",
			Help:        "Ledger entries inserted by source type.",
			ConstLabels: constLabels,
		}, []string{"source_type"}),
	}

	for _, c := range []prometheus.Collector{
		m.jobRuns, m.jobDuration, m.jobErrors, m.recordsTotal, m.batchFinalized, m.entriesPosted,
	} {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return m
}

// ObserveJobRun records one job execution.
func (m *PipelineMetrics) ObserveJobRun(job string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobError counts a record-level error inside a job.
func (m *PipelineMetrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}

// AddRecords counts handled records for a job outcome (posted, skipped, failed, duplicate).
func (m *PipelineMetrics) AddRecords(job, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsTotal.WithLabelValues(job, outcome).Add(float64(n))
}

// IncBatchFinalized counts one finalized import batch.
func (m *PipelineMetrics) IncBatchFinalized(source, status string) {
	if m == nil {
		return
	}
	m.batchFinalized.WithLabelValues(source, status).Inc()
}

// IncEntryPosted counts one inserted ledger entry.
func (m *PipelineMetrics) IncEntryPosted(sourceType string) {
	if m == nil {
		return
	}
	m.entriesPosted.WithLabelValues(sourceType).Inc()
}
