package model

import (
	"math"
	"strings"
	"time"
)

// Tier is a subscription level. Tiers are ordered free < premium < vip.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

var tierRank = map[Tier]int{
	TierFree:    0,
	TierPremium: 1,
	TierVIP:     2,
}

// Rank orders tiers; unknown tiers rank with free.
func (t Tier) Rank() int { return tierRank[t] }

// ParseTier normalises backend tier names. Unknown values map to free.
func ParseTier(s string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierRank[t]; ok {
		return t
	}
	return TierFree
}

type SubscriptionStatus string

const (
	SubscriptionStatusNone    SubscriptionStatus = "none"
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

// ParseSubscriptionStatus maps backend wording ("inactive", "" ...) onto the canonical set.
func ParseSubscriptionStatus(s string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return SubscriptionStatusActive
	case "expired":
		return SubscriptionStatusExpired
	default:
		return SubscriptionStatusNone
	}
}

// SubscriptionSnapshot is the authoritative subscription state as last fetched.
// Snapshots are values: they are replaced, never mutated.
type SubscriptionSnapshot struct {
	Tier           Tier               `json:"tier"`
	Status         SubscriptionStatus `json:"status"`
	ExpiresAt      *time.Time         `json:"expires_at,omitempty"`
	DailyLikesUsed int                `json:"daily_likes_used"`
	FetchedAt      time.Time          `json:"fetched_at"`
}

// FreeSnapshot is the baseline assumed when nothing better is known.
func FreeSnapshot(now time.Time) SubscriptionSnapshot {
	return SubscriptionSnapshot{Tier: TierFree, Status: SubscriptionStatusNone, FetchedAt: now}
}

// Grants reports whether the snapshot gives active access to at least tier t.
func (s SubscriptionSnapshot) Grants(t Tier) bool {
	return s.Status == SubscriptionStatusActive && s.Tier.Rank() >= t.Rank()
}

// Equivalent compares the fields that carry meaning, ignoring FetchedAt.
func (s SubscriptionSnapshot) Equivalent(o SubscriptionSnapshot) bool {
	if s.Tier != o.Tier || s.Status != o.Status || s.DailyLikesUsed != o.DailyLikesUsed {
		return false
	}
	switch {
	case s.ExpiresAt == nil && o.ExpiresAt == nil:
		return true
	case s.ExpiresAt == nil || o.ExpiresAt == nil:
		return false
	default:
		return s.ExpiresAt.Equal(*o.ExpiresAt)
	}
}

// DisplayName derives Daily/Weekly/Monthly from the time left until expiry.
func (s SubscriptionSnapshot) DisplayName(now time.Time) string {
	if s.ExpiresAt == nil {
		if s.Tier == TierVIP {
			return "VIP"
		}
		return "Premium"
	}
	days := int(math.Ceil(s.ExpiresAt.Sub(now).Hours() / 24))
	switch {
	case days <= 1:
		return "Daily"
	case days <= 7:
		return "Weekly"
	default:
		return "Monthly"
	}
}

// Transition classifies the change between two consecutive snapshots.
type Transition string

const (
	TransitionNoChange   Transition = "no_change"
	TransitionUpgraded   Transition = "upgraded"
	TransitionDowngraded Transition = "downgraded"
	TransitionExpired    Transition = "expired"
)

// TransitionEvent is published when a reconciliation detects a meaningful change.
type TransitionEvent struct {
	Kind     Transition
	Previous SubscriptionSnapshot
	Next     SubscriptionSnapshot
}
