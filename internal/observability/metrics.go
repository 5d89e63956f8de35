package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	OptimisticOps    *prometheus.CounterVec
	FeedSnapshots    prometheus.Counter
	FeedSubscribers  prometheus.Gauge
	SweepReactivated prometheus.Counter
	NotifyFailures   prometheus.Counter
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Workflow transitions by action and result.",
		}, []string{"action", "result"}),
		OptimisticOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_ops_total",
			Help:      "Optimistic store mutations by outcome.",
		}, []string{"outcome"}),
		FeedSnapshots: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_snapshots_total",
			Help:      "Full task snapshots applied to the store.",
		}),
		FeedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_subscribers",
			Help:      "Active feed subscription handles.",
		}),
		SweepReactivated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_reactivated_total",
			Help:      "Paused tasks returned to pending by the reactivation sweep.",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Best-effort notification or activity-log failures (swallowed).",
		}),
	}
}

func (m *Metrics) ObserveTransition(action, result string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveOptimistic(outcome string) {
	if m == nil {
		return
	}
	m.OptimisticOps.WithLabelValues(outcome).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
