package metricsfx

import (
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yurykabanov/jfrkeeper/pkg/metrics"
	"github.com/yurykabanov/jfrkeeper/pkg/rules"
	"github.com/yurykabanov/jfrkeeper/pkg/scheduler"
)

func Metrics() (*metrics.Metrics, *prometheus.Registry, rules.Metrics, scheduler.Metrics, error) {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New()
	if err := m.Register(registry); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "Unable to register metrics")
	}

	return m, registry, m, m, nil
}

func RegisterMetricsHandler(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
