// Package metrics exposes rule processing outcomes as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const namespace = "jfrkeeper"

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

type Metrics struct {
	activations *prometheus.CounterVec
	archives    *prometheus.CounterVec
	pruned      *prometheus.CounterVec
	jobRuns     *prometheus.CounterVec
	jobs        prometheus.Gauge

	QueueDepth      prometheus.Gauge
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_activations_total",
			Help:      "Rule activations on targets by outcome.",
		}, []string{"rule", "result"}),
		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Recording archival attempts by outcome.",
		}, []string{"rule", "result"}),
		pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_pruned_total",
			Help:      "Archived recordings removed by retention.",
		}, []string{"rule"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_job_runs_total",
			Help:      "Scheduled job executions by outcome.",
		}, []string{"rule", "result"}),
		jobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_jobs",
			Help:      "Currently scheduled archival jobs.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_depth",
			Help:      "Tasks waiting for a free worker.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latencies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}
}

func (m *Metrics) Register(registerer prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.activations, m.archives, m.pruned, m.jobRuns, m.jobs, m.QueueDepth, m.RequestDuration,
	} {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

func (m *Metrics) ActivationFinished(ruleName string, err error) {
	m.activations.WithLabelValues(ruleName, result(err)).Inc()
}

func (m *Metrics) ArchiveFinished(ruleName string, err error) {
	m.archives.WithLabelValues(ruleName, result(err)).Inc()
}

func (m *Metrics) ArchivePruned(ruleName string) {
	m.pruned.WithLabelValues(ruleName).Inc()
}

func (m *Metrics) ScheduledJobs(count int) {
	m.jobs.Set(float64(count))
}

func (m *Metrics) JobSucceeded(key domain.JobKey) {
	m.jobRuns.WithLabelValues(key.RuleName, resultSuccess).Inc()
}

func (m *Metrics) JobFailed(key domain.JobKey) {
	m.jobRuns.WithLabelValues(key.RuleName, resultFailure).Inc()
}
