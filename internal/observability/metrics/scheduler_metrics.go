package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Deferred/error reason labels for scheduler jobs.
const (
	SchedulerJobReasonDeadlineExceeded = "deadline_exceeded"
	SchedulerJobReasonCanceled         = "canceled"
	SchedulerJobReasonConflict         = "conflict"
	SchedulerJobReasonUnknown          = "unknown"
)

// SchedulerMetrics instruments generation and reminder jobs.
type SchedulerMetrics struct {
	cfg Config

	jobRuns          *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	jobTimeouts      *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	rulesProcessed   *prometheus.CounterVec
	ruleErrors       *prometheus.CounterVec
	rulesExhausted   *prometheus.CounterVec
	instancesCreated *prometheus.CounterVec
	remindersSent    *prometheus.CounterVec
}

var (
	schedulerMu       sync.Mutex
	schedulerInstance *SchedulerMetrics
)

// SchedulerWithConfig initializes the scheduler metrics singleton. Safe to
// call more than once; the first configuration wins.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMu.Lock()
	defer schedulerMu.Unlock()
	if schedulerInstance != nil {
		return schedulerInstance
	}
	schedulerInstance = newSchedulerMetrics(cfg.withDefaults())
	return schedulerInstance
}

// Scheduler returns the metrics singleton, initializing it with defaults
// when no explicit configuration was provided.
func Scheduler() *SchedulerMetrics {
	schedulerMu.Lock()
	defer schedulerMu.Unlock()
	if schedulerInstance == nil {
		schedulerInstance = newSchedulerMetrics(Config{}.withDefaults())
	}
	return schedulerInstance
}

// ResetSchedulerMetricsForTest drops the singleton so tests can re-register
// against a swapped prometheus registry.
func ResetSchedulerMetricsForTest() {
	schedulerMu.Lock()
	defer schedulerMu.Unlock()
	schedulerInstance = nil
}

func newSchedulerMetrics(cfg Config) *SchedulerMetrics {
	m := &SchedulerMetrics{
		cfg: cfg,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "financeiro_scheduler_job_runs_total",
			Help: "Scheduler job invocations.",
		}, []string{"service", "env", "job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "financeiro_scheduler_job_errors_total",
			Help: "Scheduler job failures by reason.",
		}, []string{"service", "env", "job", "reason"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "financeiro_scheduler_job_timeouts_total",
			Help: "Scheduler jobs that hit their soft deadline.",
		}, []string{"service", "env", "job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "financeiro_scheduler_job_duration_seconds",
			Help:    "Scheduler job wall time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "env", "job"}),
		rulesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "financeiro_generation_rules_processed_total",
			Help: "Recurrence rules visited by generation passes.",
		}, []string{"service", "env"}),
		ruleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "financeiro_generation_rule_errors_total",
			Help: "Recurrence rules skipped due to errors.",
		}, []string{"service", "env"}),
		rulesExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "financeiro_generation_rules_exhausted_total",
			Help: "Recurrence rules deactivated after reaching a bound.",
		}, []string{"service", "env"}),
		instancesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "financeiro_generation_instances_created_total",
			Help: "Transactions materialized from recurrence rules.",
		}, []string{"service", "env"}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "financeiro_reminders_sent_total",
			Help: "Due/overdue reminder emails dispatched.",
		}, []string{"service", "env"}),
	}
	prometheus.DefaultRegisterer.MustRegister(
		m.jobRuns,
		m.jobErrors,
		m.jobTimeouts,
		m.jobDuration,
		m.rulesProcessed,
		m.ruleErrors,
		m.rulesExhausted,
		m.instancesCreated,
		m.remindersSent,
	)
	return m
}

func (m *SchedulerMetrics) labels(job string) []string {
	return []string{m.cfg.ServiceName, m.cfg.Environment, job}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(m.labels(job)...).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	m.jobErrors.WithLabelValues(m.cfg.ServiceName, m.cfg.Environment, job, ClassifySchedulerJobReason(err)).Inc()
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	m.jobTimeouts.WithLabelValues(m.labels(job)...).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(m.labels(job)...).Observe(d.Seconds())
}

func (m *SchedulerMetrics) AddRulesProcessed(n int) {
	if n > 0 {
		m.rulesProcessed.WithLabelValues(m.cfg.ServiceName, m.cfg.Environment).Add(float64(n))
	}
}

func (m *SchedulerMetrics) IncRuleError() {
	m.ruleErrors.WithLabelValues(m.cfg.ServiceName, m.cfg.Environment).Inc()
}

func (m *SchedulerMetrics) IncRuleExhausted() {
	m.rulesExhausted.WithLabelValues(m.cfg.ServiceName, m.cfg.Environment).Inc()
}

func (m *SchedulerMetrics) AddInstancesCreated(n int) {
	if n > 0 {
		m.instancesCreated.WithLabelValues(m.cfg.ServiceName, m.cfg.Environment).Add(float64(n))
	}
}

func (m *SchedulerMetrics) AddRemindersSent(n int) {
	if n > 0 {
		m.remindersSent.WithLabelValues(m.cfg.ServiceName, m.cfg.Environment).Add(float64(n))
	}
}

// ClassifySchedulerJobReason buckets job errors into stable label values.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return SchedulerJobReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return SchedulerJobReasonCanceled
	default:
		return SchedulerJobReasonUnknown
	}
}
