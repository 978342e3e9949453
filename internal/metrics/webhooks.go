package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(webhookEventsTotal)
}

var webhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Processor webhook deliveries by event kind and outcome (applied/duplicate/unmatched/rejected/error).",
	},
	[]string{"kind", "outcome"},
)

const (
	WebhookApplied   = "applied"
	WebhookDuplicate = "duplicate"
	WebhookUnmatched = "unmatched"
	WebhookRejected  = "rejected"
	WebhookError     = "error"
)

func IncWebhook(kind, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(kind), outcome).Inc()
}
