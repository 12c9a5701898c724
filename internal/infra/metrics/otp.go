package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		otpRequestsTotal,
		otpVerificationsTotal,
	)
}

var (
	// result: issued|rate_limited|rejected|error
	otpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_requests_total",
			Help: "OTP issue requests by purpose and result.",
		},
		[]string{"purpose", "result"},
	)

	// result: ok|invalid_code|expired|consumed|error
	otpVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification attempts by result.",
		},
		[]string{"result"},
	)
)

func IncOTPRequest(purpose, result string) {
	otpRequestsTotal.WithLabelValues(norm(purpose), norm(result)).Inc()
}

func IncOTPVerification(result string) {
	otpVerificationsTotal.WithLabelValues(norm(result)).Inc()
}
