package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentPollsTotal,
		paymentSessionDuration,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sessions_total",
			Help: "Payment sessions by status reached (initiated/succeeded/failed/cancelled/timed_out).",
		},
		[]string{"status"},
	)

	// outcome: pending|tentative_success|confirmed|unconfirmed|failed|cancelled|error|late
	paymentPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_polls_total",
			Help: "Transaction status polls by outcome.",
		},
		[]string{"outcome"},
	)

	paymentSessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_session_duration_seconds",
			Help:    "Time from initiation to the session's final status.",
			Buckets: []float64{5, 15, 30, 60, 90, 120, 180, 210, 240},
		},
		[]string{"status"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func IncPaymentPoll(outcome string) {
	paymentPollsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObservePaymentSession(status string, seconds float64) {
	paymentSessionDuration.WithLabelValues(norm(status)).Observe(seconds)
}
