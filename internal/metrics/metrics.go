package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rumorwatch"

// Metrics holds the Prometheus collectors for the review workflow and the
// broadcast fan-out.
type Metrics struct {
	Reviews              *prometheus.CounterVec
	PointsAwarded        prometheus.Counter
	ReportsSubmitted     prometheus.Counter
	FanoutRuns           *prometheus.CounterVec
	FanoutNotifications  *prometheus.CounterVec
	FanoutDuration       prometheus.Histogram
	TriggerQueueDepth    prometheus.Gauge
	TriggerHandlerErrors *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Reviews: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "review",
				Name:      "total",
				Help:      "Report reviews by decision and outcome",
			},
			[]string{"decision", "outcome"},
		),
		PointsAwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "points_awarded_total",
			Help:      "Points credited to submitters",
		}),
		ReportsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "submitted_total",
			Help:      "Reports submitted by users",
		}),
		FanoutRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fanout",
				Name:      "runs_total",
				Help:      "Broadcast fan-out runs by outcome (complete, partial, lost, skipped)",
			},
			[]string{"outcome"},
		),
		FanoutNotifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fanout",
				Name:      "notifications_total",
				Help:      "Broadcast notifications by result (delivered, failed, retried)",
			},
			[]string{"result"},
		),
		FanoutDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a fan-out run",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		TriggerQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "queue_depth",
			Help:      "Report changes waiting for trigger handlers",
		}),
		TriggerHandlerErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "trigger",
				Name:      "handler_errors_total",
				Help:      "Trigger handler invocations that returned an error",
			},
			[]string{"handler"},
		),
	}
}
