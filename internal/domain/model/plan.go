package model

import (
	"nextchapter-billing/internal/domain"
)

// SubscriptionPlan is a purchasable offer. Several plans may grant the same tier.
type SubscriptionPlan struct {
	ID           string          `yaml:"id" json:"id"`
	Name         string          `yaml:"name" json:"name"`
	Tier         Tier            `yaml:"tier" json:"tier"`
	DurationDays int             `yaml:"duration_days" json:"duration_days"`
	Amount       int64           `yaml:"amount" json:"amount"` // minor-less units of Currency, e.g. MWK
	Currency     string          `yaml:"currency" json:"currency"`
	Methods      []PaymentMethod `yaml:"methods" json:"methods"`
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == "" }

// Accepts reports whether the plan can be paid with m. An empty method list accepts all.
func (p *SubscriptionPlan) Accepts(m PaymentMethod) bool {
	if !m.Valid() {
		return false
	}
	if len(p.Methods) == 0 {
		return true
	}
	for _, allowed := range p.Methods {
		if allowed == m {
			return true
		}
	}
	return false
}

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(id, name string, tier Tier, durationDays int, amount int64, currency string, methods ...PaymentMethod) (*SubscriptionPlan, error) {
	if id == "" || name == "" || durationDays <= 0 || amount <= 0 || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	if tier.Rank() == 0 {
		return nil, domain.ErrInvalidArgument
	}
	for _, m := range methods {
		if !m.Valid() {
			return nil, domain.ErrInvalidArgument
		}
	}
	return &SubscriptionPlan{
		ID:           id,
		Name:         name,
		Tier:         tier,
		DurationDays: durationDays,
		Amount:       amount,
		Currency:     currency,
		Methods:      methods,
	}, nil
}

// DefaultPlans is the MWK catalog the mobile app ships with.
func DefaultPlans() []SubscriptionPlan {
	both := []PaymentMethod{PaymentMethodMobileMoney, PaymentMethodCard}
	return []SubscriptionPlan{
		{ID: "daily", Name: "Daily", Tier: TierPremium, DurationDays: 1, Amount: 2500, Currency: "MWK", Methods: both},
		{ID: "weekly", Name: "Weekly", Tier: TierPremium, DurationDays: 7, Amount: 10000, Currency: "MWK", Methods: both},
		{ID: "monthly", Name: "Monthly", Tier: TierPremium, DurationDays: 30, Amount: 15000, Currency: "MWK", Methods: both},
	}
}

// PlanCatalog looks plans up by ID.
type PlanCatalog struct {
	byID  map[string]SubscriptionPlan
	order []string
}

func NewPlanCatalog(plans []SubscriptionPlan) (*PlanCatalog, error) {
	c := &PlanCatalog{byID: make(map[string]SubscriptionPlan, len(plans))}
	for _, p := range plans {
		if _, err := NewSubscriptionPlan(p.ID, p.Name, p.Tier, p.DurationDays, p.Amount, p.Currency, p.Methods...); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, domain.ErrInvalidArgument
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

func (c *PlanCatalog) Get(id string) (SubscriptionPlan, error) {
	p, ok := c.byID[id]
	if !ok {
		return SubscriptionPlan{}, domain.ErrNotFound
	}
	return p, nil
}

func (c *PlanCatalog) List() []SubscriptionPlan {
	out := make([]SubscriptionPlan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
