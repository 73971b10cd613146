// Package jobmetrics instruments the ledger background jobs: integrity
// verification and inventory reconciliation.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"

	defaultLedger = "default"
)

// Metrics counts ledger job runs and the defects they find.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	anomalies   *prometheus.CounterVec
}

var (
	sharedOnce    sync.Once
	sharedMetrics *Metrics
)

// NewMetrics registers the job collectors on registerer. A nil registerer
// returns the process-wide instance registered on the default registry, so
// every job in a worker reports into the same series.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	sharedOnce.Do(func() { sharedMetrics = register(prometheus.DefaultRegisterer) })
	return sharedMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "books_jobs_total",
			Help: "Ledger job runs by task type and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "books_jobs_failures_total",
			Help: "Ledger job runs that returned an error, by task type.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "books_job_duration_seconds",
			Help:    "Wall time of ledger job runs, by task type.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "books_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run, by task type.",
		}, []string{"job"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "books_ledger_anomalies_total",
			Help: "Ledger defects found by background checks, by kind and ledger.",
		}, []string{"kind", "ledger"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.anomalies)
	return m
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of the task type job. It is safe on a nil
// receiver; the returned tracker then records nothing.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of the run and hands err back to the caller.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, statusFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, statusSuccess).Inc()
	m.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	return nil
}

// AddAnomalies counts count defects of kind found in ledgerID. Zero counts
// leave no series behind.
func (m *Metrics) AddAnomalies(kind, ledgerID string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if ledgerID == "" {
		ledgerID = defaultLedger
	}
	m.anomalies.WithLabelValues(kind, ledgerID).Add(float64(count))
}
