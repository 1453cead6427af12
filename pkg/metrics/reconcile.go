package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reconciliation counters. Registered once at package load; the HTTP
// middleware metrics above go through the gin integration instead.
var (
	WebhookProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "reconcile",
		Name:      "webhook_processed_total",
		Help:      "Webhook events handled successfully, partitioned by event type.",
	}, []string{"event_type"})

	WebhookFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "reconcile",
		Name:      "webhook_failed_total",
		Help:      "Webhook events whose handler failed, partitioned by event type.",
	}, []string{"event_type"})

	WebhookDuplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "reconcile",
		Name:      "webhook_duplicate_total",
		Help:      "Redelivered webhook events suppressed by the event_id uniqueness constraint.",
	}, []string{"provider"})

	SweepDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "reconcile",
		Name:      "sweep_deleted_total",
		Help:      "Rows removed by retention sweeps, partitioned by sweep name.",
	}, []string{"sweep"})
)

func init() {
	prometheus.MustRegister(WebhookProcessed, WebhookFailures, WebhookDuplicates, SweepDeleted)
}
