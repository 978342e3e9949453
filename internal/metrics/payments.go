package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		refundsTotal,
		retriesTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by type and status (initiated/succeeded/failed/canceled/refunded).",
		},
		[]string{"type", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of successful payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_refunded_amount_total",
			Help: "The total refunded amount, labeled by currency.",
		},
		[]string{"currency"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_retries_total",
			Help: "New intents created by retrying a failed payment.",
		},
	)
)

func IncPayment(paymentType, status string) {
	paymentsTotal.WithLabelValues(norm(paymentType), norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount decimal.Decimal) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(amount.InexactFloat64())
}

func AddRefund(currency string, amount decimal.Decimal) {
	refundsTotal.WithLabelValues(norm(currency)).Add(amount.InexactFloat64())
}

func IncRetry() {
	retriesTotal.Inc()
}
