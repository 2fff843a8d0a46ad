package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_webhook_events_total",
			Help: "Webhook events received by event type and classifier decision",
		},
		[]string{"type", "decision"}, // alert|ignore
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_deliveries_total",
			Help: "Per-recipient delivery attempts by notifier and result",
		},
		[]string{"notifier", "result"}, // sent|failed|unavailable
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alerts_dispatch_duration_seconds",
			Help:    "Wall time of one dispatch across all recipients",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"}, // succeeded|partial_failure|transport_unavailable
	)

	StatusChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_status_checks_total",
			Help: "Delivery status polls by notifier and reported status",
		},
		[]string{"notifier", "status"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alerts_notifier_breaker_state",
			Help: "Circuit breaker state per notifier (0 closed, 1 open, 2 half-open)",
		},
		[]string{"notifier"},
	)
)

// MustRegister registers all collectors; collectors already present in r are
// skipped so the server and tests can share the default registry.
func MustRegister(r prometheus.Registerer) {
	for _, c := range []prometheus.Collector{
		EventsTotal,
		DeliveriesTotal,
		DispatchDuration,
		StatusChecksTotal,
		BreakerState,
	} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}
