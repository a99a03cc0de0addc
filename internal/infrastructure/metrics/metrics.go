// Package metrics exposes Prometheus collectors for quota, sweep and auth activity.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-identity-quota/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "identity_quota"

type Metrics struct {
	registry       *prometheus.Registry
	quotaDecisions *prometheus.CounterVec
	sweepDeleted   *prometheus.CounterVec
	sweepFailures  *prometheus.CounterVec
	authOutcomes   *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota check outcomes by subscription level.",
		}, []string{"level", "decision"}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Records removed by expiry sweeps.",
		}, []string{"job"}),
		sweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Sweep passes that returned an error.",
		}, []string{"job"}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Auth operations by result kind.",
		}, []string{"op", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.quotaDecisions,
		m.sweepDeleted,
		m.sweepFailures,
		m.authOutcomes,
	)
	return m
}

func (m *Metrics) QuotaDecision(level int, d domain.Decision) {
	m.quotaDecisions.WithLabelValues(strconv.Itoa(level), d.String()).Inc()
}

func (m *Metrics) Swept(job string, deleted int, err error) {
	if err != nil {
		m.sweepFailures.WithLabelValues(job).Inc()
		return
	}
	m.sweepDeleted.WithLabelValues(job).Add(float64(deleted))
}

// AuthOutcome counts op with result "ok" or the error kind.
func (m *Metrics) AuthOutcome(op string, err error) {
	result := "ok"
	if err != nil {
		result = domain.KindOf(err)
	}
	m.authOutcomes.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
