package metrics

import (
	"nextchapter-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionTransitionsTotal,
		subscriptionTier,
		notificationsTotal,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Reconciled subscription transitions by kind.",
		},
		[]string{"kind"},
	)

	subscriptionTier = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscription_tier",
			Help: "1 for the tier/status of the last reconciled snapshot, 0 otherwise.",
		},
		[]string{"tier", "status"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications shown by kind.",
		},
		[]string{"kind"},
	)
)

func IncTransition(kind model.Transition) {
	subscriptionTransitionsTotal.WithLabelValues(string(kind)).Inc()
}

// SetSnapshot flags the current tier/status pair.
func SetSnapshot(s model.SubscriptionSnapshot) {
	subscriptionTier.Reset()
	subscriptionTier.WithLabelValues(string(s.Tier), string(s.Status)).Set(1)
}

func IncNotification(kind model.NotificationKind) {
	notificationsTotal.WithLabelValues(string(kind)).Inc()
}
