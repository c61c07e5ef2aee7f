package livesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Subscription kinds used as metric labels.
const (
	KindUser        = "user"
	KindInspections = "inspections"
)

type Metrics struct {
	LiveSubscriptions *prometheus.GaugeVec
	Snapshots         *prometheus.CounterVec
	StaleCallbacks    *prometheus.CounterVec
	RetentionDeletes  prometheus.Counter
	RetentionFailures prometheus.Counter
}

// NewMetrics registers the sync metrics with reg. A nil reg keeps them
// unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LiveSubscriptions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vehiclecheck",
			Subsystem: "livesync",
			Name:      "live_subscriptions",
			Help:      "Remote live subscriptions currently open.",
		}, []string{"kind"}),
		Snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vehiclecheck",
			Subsystem: "livesync",
			Name:      "snapshots_total",
			Help:      "Snapshots delivered to callbacks.",
		}, []string{"kind"}),
		StaleCallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vehiclecheck",
			Subsystem: "livesync",
			Name:      "stale_callbacks_total",
			Help:      "Snapshots dropped because their subscription was already replaced.",
		}, []string{"kind"}),
		RetentionDeletes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vehiclecheck",
			Subsystem: "livesync",
			Name:      "retention_deletes_total",
			Help:      "Inspections deleted by retention pruning.",
		}),
		RetentionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vehiclecheck",
			Subsystem: "livesync",
			Name:      "retention_delete_failures_total",
			Help:      "Retention deletes that failed.",
		}),
	}
}
