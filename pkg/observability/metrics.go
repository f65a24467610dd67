package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service-level prometheus collectors.
type Metrics struct {
	HTTPDuration *prometheus.HistogramVec

	SavesTotal     *prometheus.CounterVec
	ConflictsTotal *prometheus.CounterVec
	RestoresTotal  *prometheus.CounterVec

	HistoryAppends prometheus.Counter
}

// NewMetrics registers and returns the service metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stash",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		SavesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "entity_saves_total",
			Help:      "Entity writes by content type and action.",
		}, []string{"content_type", "action"}),

		ConflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "save_conflicts_total",
			Help:      "Saves rejected by the concurrency token check.",
		}, []string{"content_type"}),

		RestoresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "restores_total",
			Help:      "Version restores by content type.",
		}, []string{"content_type"}),

		HistoryAppends: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stash",
			Name:      "history_appends_total",
			Help:      "History entries appended.",
		}),
	}
}
