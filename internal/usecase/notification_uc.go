package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nextchapter-billing/internal/countdown"
	"nextchapter-billing/internal/domain/model"
	"nextchapter-billing/internal/infra/metrics"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// NotificationChange is published when a notification is shown or cleared.
type NotificationChange struct {
	Notification model.Notification
	Visible      bool
}

// NotificationUseCase owns the single visible notification and its TTL.
type NotificationUseCase interface {
	// Enqueue replaces whatever is visible; there is no backlog.
	Enqueue(n model.Notification) model.Notification
	Dismiss()
	Current() (model.Notification, bool)
	Subscribe(fn func(NotificationChange)) (unsubscribe func())
}

type notificationUC struct {
	clock countdown.Clock
	ttl   time.Duration
	timer *countdown.Countdown
	log   *zerolog.Logger

	mu        sync.Mutex
	current   *model.Notification
	listeners observers[NotificationChange]
}

func NewNotificationUseCase(clock countdown.Clock, ttl time.Duration, logger *zerolog.Logger) *notificationUC {
	if clock == nil {
		clock = countdown.RealClock{}
	}
	if ttl <= 0 {
		ttl = model.DefaultNotificationTTL
	}
	compLog := logger.With().Str("component", "NotificationUC").Logger()
	return &notificationUC{
		clock: clock,
		ttl:   ttl,
		timer: countdown.New(clock),
		log:   &compLog,
	}
}

func (n *notificationUC) Enqueue(note model.Notification) model.Notification {
	now := n.clock.Now()
	if note.ID == "" {
		note.ID = model.NewULID(now)
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	if note.TTL <= 0 {
		note.TTL = n.ttl
	}

	n.mu.Lock()
	shown := note
	n.current = &shown
	id := note.ID
	// Start never runs callbacks inline, so holding mu here is safe.
	n.timer.Start(note.TTL, nil, func() { n.expire(id) })
	n.mu.Unlock()

	metrics.IncNotification(note.Kind)
	n.log.Debug().Str("id", note.ID).Str("kind", string(note.Kind)).Str("title", note.Title).Msg("notification shown")
	n.listeners.emit(NotificationChange{Notification: note, Visible: true})
	return note
}

// expire clears the notification only if it is still the one whose TTL ran out.
func (n *notificationUC) expire(id string) {
	n.mu.Lock()
	if n.current == nil || n.current.ID != id {
		n.mu.Unlock()
		return
	}
	cleared := *n.current
	n.current = nil
	n.mu.Unlock()

	n.listeners.emit(NotificationChange{Notification: cleared, Visible: false})
}

func (n *notificationUC) Dismiss() {
	n.mu.Lock()
	n.timer.Cancel()
	cur := n.current
	n.current = nil
	n.mu.Unlock()

	if cur != nil {
		n.listeners.emit(NotificationChange{Notification: *cur, Visible: false})
	}
}

func (n *notificationUC) Current() (model.Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return model.Notification{}, false
	}
	return *n.current, true
}

func (n *notificationUC) Subscribe(fn func(NotificationChange)) func() {
	return n.listeners.add(fn)
}

// NotifyOnTransition turns reconciled transitions into user-facing notifications.
// Only the transition itself notifies, so repeated fetches of an already
// active tier stay silent.
func NotifyOnTransition(n NotificationUseCase, clock countdown.Clock, logger *zerolog.Logger) func(model.TransitionEvent) {
	if clock == nil {
		clock = countdown.RealClock{}
	}
	return func(ev model.TransitionEvent) {
		switch ev.Kind {
		case model.TransitionUpgraded:
			n.Enqueue(model.Notification{
				Kind:    model.NotificationSuccess,
				Title:   "Subscription Activated!",
				Message: fmt.Sprintf("Your %s subscription is now active!", ev.Next.DisplayName(clock.Now())),
			})
		case model.TransitionExpired:
			n.Enqueue(model.Notification{
				Kind:    model.NotificationError,
				Title:   "Subscription expired",
				Message: "Your premium access has ended. Renew to keep your benefits.",
			})
		case model.TransitionDowngraded:
			logger.Info().
				Str("from", string(ev.Previous.Tier)).
				Str("to", string(ev.Next.Tier)).
				Msg("subscription downgraded")
		}
	}
}
