// Package metrics exposes prometheus instrumentation for the engine's
// background jobs and billing pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics captures scheduler health signals.
type SchedulerMetrics struct {
	jobRuns             *prometheus.CounterVec
	jobErrors           *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	periodsMaterialized prometheus.Counter
	periodsOverdue      prometheus.Counter
	invoicesGenerated   *prometheus.CounterVec
	runLoopLag          prometheus.Histogram
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_scheduler_job_runs_total",
			Help: "Scheduler job executions by job name.",
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_scheduler_job_errors_total",
			Help: "Scheduler job failures by job name.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cadence_scheduler_job_duration_seconds",
			Help:    "Scheduler job wall time by job name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		periodsMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cadence_periods_materialized_total",
			Help: "Billing periods created by backfill.",
		}),
		periodsOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cadence_periods_overdue_total",
			Help: "Periods flipped to overdue.",
		}),
		invoicesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_invoices_generated_total",
			Help: "Invoices generated by source kind.",
		}, []string{"source"}),
		runLoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cadence_scheduler_run_loop_lag_seconds",
			Help:    "Delay between the scheduled and actual start of a run.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.jobRuns, m.jobErrors, m.jobDuration,
		m.periodsMaterialized, m.periodsOverdue,
		m.invoicesGenerated, m.runLoopLag,
	} {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string) {
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) AddPeriodsMaterialized(n int) {
	if n > 0 {
		m.periodsMaterialized.Add(float64(n))
	}
}

func (m *SchedulerMetrics) AddPeriodsOverdue(n int) {
	if n > 0 {
		m.periodsOverdue.Add(float64(n))
	}
}

func (m *SchedulerMetrics) IncInvoiceGenerated(source string) {
	m.invoicesGenerated.WithLabelValues(source).Inc()
}

func (m *SchedulerMetrics) ObserveRunLoopLag(lag time.Duration) {
	m.runLoopLag.Observe(lag.Seconds())
}
