//go:build !integration

package model_test

import (
	"errors"
	"testing"
	"time"

	"nextchapter-billing/internal/domain"
	"nextchapter-billing/internal/domain/model"
)

func TestCanonicalGatewayStatus(t *testing.T) {
	cases := map[string]model.GatewayOutcome{
		"success":    model.GatewayTentativeSuccess,
		"Completed":  model.GatewayTentativeSuccess,
		" PAID ":     model.GatewayTentativeSuccess,
		"failed":     model.GatewayFailed,
		"Cancelled":  model.GatewayCancelled,
		"canceled":   model.GatewayPending,
		"pending":    model.GatewayPending,
		"processing": model.GatewayPending,
		"":           model.GatewayPending,
	}
	for raw, want := range cases {
		if got := model.CanonicalGatewayStatus(raw); got != want {
			t.Errorf("%q: want %s, got %s", raw, want, got)
		}
	}
}

func TestPaymentStatus_Terminal(t *testing.T) {
	for _, s := range []model.PaymentStatus{model.PaymentStatusSucceeded, model.PaymentStatusFailed, model.PaymentStatusCancelled, model.PaymentStatusTimedOut} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []model.PaymentStatus{model.PaymentStatusInitiated, model.PaymentStatusAwaitingExternalAction, model.PaymentStatusPolling} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestSubscriptionSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	t.Run("display name from days to expiry", func(t *testing.T) {
		cases := []struct {
			left time.Duration
			want string
		}{
			{20 * time.Hour, "Daily"},
			{24 * time.Hour, "Daily"},
			{25 * time.Hour, "Weekly"},
			{7 * 24 * time.Hour, "Weekly"},
			{8 * 24 * time.Hour, "Monthly"},
			{30 * 24 * time.Hour, "Monthly"},
		}
		for _, tc := range cases {
			s := model.SubscriptionSnapshot{Tier: model.TierPremium, Status: model.SubscriptionStatusActive, ExpiresAt: at(tc.left)}
			if got := s.DisplayName(now); got != tc.want {
				t.Errorf("%s left: want %s, got %s", tc.left, tc.want, got)
			}
		}
		if got := (model.SubscriptionSnapshot{Tier: model.TierVIP}).DisplayName(now); got != "VIP" {
			t.Errorf("want VIP without expiry, got %s", got)
		}
	})

	t.Run("grants", func(t *testing.T) {
		active := model.SubscriptionSnapshot{Tier: model.TierVIP, Status: model.SubscriptionStatusActive}
		if !active.Grants(model.TierPremium) || !active.Grants(model.TierVIP) {
			t.Error("active vip grants premium and vip")
		}
		expired := model.SubscriptionSnapshot{Tier: model.TierVIP, Status: model.SubscriptionStatusExpired}
		if expired.Grants(model.TierPremium) {
			t.Error("expired subscription grants nothing")
		}
	})

	t.Run("equivalent ignores fetch time", func(t *testing.T) {
		a := model.SubscriptionSnapshot{Tier: model.TierPremium, Status: model.SubscriptionStatusActive, ExpiresAt: at(time.Hour), FetchedAt: now}
		b := a
		b.FetchedAt = now.Add(time.Minute)
		b.ExpiresAt = at(time.Hour)
		if !a.Equivalent(b) {
			t.Error("same content should be equivalent")
		}
		b.ExpiresAt = at(2 * time.Hour)
		if a.Equivalent(b) {
			t.Error("different expiry should not be equivalent")
		}
		b.ExpiresAt = nil
		if a.Equivalent(b) {
			t.Error("nil vs set expiry should not be equivalent")
		}
	})

	t.Run("parsing backend wording", func(t *testing.T) {
		if model.ParseTier(" Premium ") != model.TierPremium || model.ParseTier("gold") != model.TierFree {
			t.Error("unexpected tier parsing")
		}
		if model.ParseSubscriptionStatus("inactive") != model.SubscriptionStatusNone ||
			model.ParseSubscriptionStatus("EXPIRED") != model.SubscriptionStatusExpired ||
			model.ParseSubscriptionStatus("active") != model.SubscriptionStatusActive {
			t.Error("unexpected status parsing")
		}
	})
}

func TestPlanCatalog(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := model.NewPlanCatalog(model.DefaultPlans())
		if err != nil {
			t.Fatalf("NewPlanCatalog: %v", err)
		}
		list := c.List()
		if len(list) != 3 || list[0].ID != "daily" || list[2].ID != "monthly" {
			t.Fatalf("unexpected order %+v", list)
		}
		weekly, err := c.Get("weekly")
		if err != nil || weekly.Amount != 10000 || weekly.Currency != "MWK" {
			t.Fatalf("unexpected weekly plan %+v err=%v", weekly, err)
		}
		if !weekly.Accepts(model.PaymentMethodCard) || weekly.Accepts("cash") {
			t.Error("unexpected method acceptance")
		}
		if _, err := c.Get("yearly"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects invalid plans", func(t *testing.T) {
		bad := [][]model.SubscriptionPlan{
			{{ID: "x", Name: "X", Tier: model.TierFree, DurationDays: 1, Amount: 1, Currency: "MWK"}},
			{{ID: "x", Name: "X", Tier: model.TierPremium, DurationDays: 0, Amount: 1, Currency: "MWK"}},
			{{ID: "x", Name: "X", Tier: model.TierPremium, DurationDays: 1, Amount: 1, Currency: "MWK", Methods: []model.PaymentMethod{"cash"}}},
			append(model.DefaultPlans(), model.DefaultPlans()[0]),
		}
		for i, plans := range bad {
			if _, err := model.NewPlanCatalog(plans); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("case %d: want ErrInvalidArgument, got %v", i, err)
			}
		}
	})
}

func TestOTPChallenge_Live(t *testing.T) {
	now := time.Now()
	ch := model.OTPChallenge{ExpiresAt: now.Add(time.Second)}
	if !ch.Live(now) {
		t.Error("challenge should be live before expiry")
	}
	if ch.Live(now.Add(time.Second)) {
		t.Error("challenge should not be live at expiry")
	}
	ch.Consumed = true
	if ch.Live(now) {
		t.Error("consumed challenge is not live")
	}
}

func TestNewULID_Sortable(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := model.NewULID(ts)
	for i := 0; i < 100; i++ {
		next := model.NewULID(ts)
		if next <= prev {
			t.Fatalf("ULIDs must increase within the same millisecond: %s <= %s", next, prev)
		}
		prev = next
	}
}
