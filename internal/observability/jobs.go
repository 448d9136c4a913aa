package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics exposes Prometheus collectors for background tasks.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	defaultJobOnce    sync.Once
	defaultJobMetrics *JobMetrics
)

// NewJobMetrics registers the job collectors against registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewJobMetrics(registerer prometheus.Registerer) *JobMetrics {
	if registerer == nil {
		defaultJobOnce.Do(func() {
			defaultJobMetrics = buildJobMetrics(prometheus.DefaultRegisterer)
		})
		return defaultJobMetrics
	}
	return buildJobMetrics(registerer)
}

func buildJobMetrics(registerer prometheus.Registerer) *JobMetrics {
	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carriernest_job_runs_total",
			Help: "Background task executions by task type and outcome.",
		}, []string{"task", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carriernest_job_duration_seconds",
			Help:    "Background task execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
	}
	registerer.MustRegister(m.runs, m.duration)
	return m
}

// Tracker instruments a single task run.
type Tracker struct {
	metrics *JobMetrics
	task    string
	start   time.Time
}

// Track starts a tracker for task.
func (m *JobMetrics) Track(task string) *Tracker {
	return &Tracker{metrics: m, task: task, start: time.Now()}
}

// End records the outcome and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.task == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.runs.WithLabelValues(t.task, status).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}
