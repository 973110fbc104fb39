// Package jobmetrics holds the Prometheus collectors shared by the ledger
// worker and the API process.
package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics groups the job collectors.
type Metrics struct {
	runs         *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
	anomalies    *prometheus.CounterVec
	rolloverStep *prometheus.CounterVec
	now          func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer shares
// one set registered on the default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() { defaultMetrics = register(prometheus.DefaultRegisterer) })
	return defaultMetrics
}

func register(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Ledger job executions by task type and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_failures_total",
			Help: "Failed ledger job executions by task type.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Ledger job execution time.",
			Buckets: []float64{0.05, 0.25, 1, 5, 30, 120, 600, 1800},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_jobs_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run by task type.",
		}, []string{"job"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_gl_anomalies_total",
			Help: "Ledger integrity findings by kind and organization.",
		}, []string{"kind", "org"}),
		rolloverStep: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_gl_rollover_failures_total",
			Help: "Failed rollovers by the step that failed.",
		}, []string{"step"}),
		now: time.Now,
	}
	reg.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.anomalies, m.rolloverStep)
	return m
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err != nil {
		m.runs.WithLabelValues(t.job, statusFailure).Inc()
		m.failures.WithLabelValues(t.job).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, statusSuccess).Inc()
	m.lastSuccess.WithLabelValues(t.job).Set(float64(m.now().Unix()))
	return nil
}

// AddAnomalies counts count integrity findings of kind for orgID.
func (m *Metrics) AddAnomalies(kind string, orgID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.anomalies.WithLabelValues(kind, strconv.FormatInt(max(orgID, 0), 10)).Add(float64(count))
}

// RolloverFailed counts a rollover that failed at step.
func (m *Metrics) RolloverFailed(step int) {
	if m == nil {
		return
	}
	m.rolloverStep.WithLabelValues(strconv.Itoa(step)).Inc()
}
