package grpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	OpenWatches  prometheus.Gauge
	WatchSnaps   prometheus.Counter
	PolicyDenied *prometheus.CounterVec
}

// NewMetrics registers the RPC metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vehiclecheck",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "RPCs handled, by method and status code.",
		}, []string{"method", "code"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vehiclecheck",
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "Unary RPC latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		OpenWatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "vehiclecheck",
			Subsystem: "grpc",
			Name:      "open_watches",
			Help:      "Watch streams currently open.",
		}),
		WatchSnaps: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vehiclecheck",
			Subsystem: "grpc",
			Name:      "watch_snapshots_total",
			Help:      "Snapshots sent on Watch streams.",
		}),
		PolicyDenied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vehiclecheck",
			Subsystem: "grpc",
			Name:      "policy_denied_total",
			Help:      "Document writes rejected because the caller does not own them.",
		}, []string{"collection"}),
	}
}
