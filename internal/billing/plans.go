package billing

import (
	"fmt"
	"strings"

	"github.com/PortNumber53/readflash/backend/internal/models"
)

const (
	PlanBasic   = "basic"
	PlanPremium = "premium"

	// BasicTierMaxAmount is the highest unit amount, in minor units, that
	// still maps to the basic tier.
	BasicTierMaxAmount = 699
)

// TierForAmount maps a recurring price amount to a tier.
func TierForAmount(amount int64) models.Tier {
	if amount <= BasicTierMaxAmount {
		return models.TierBasic
	}
	return models.TierPremium
}

// Catalog is the static plan selector to price mapping.
type Catalog struct {
	plans map[string]models.Plan
}

// NewCatalog builds the two purchasable plans around the configured price ids.
func NewCatalog(basicPriceID, premiumPriceID string) Catalog {
	return Catalog{plans: map[string]models.Plan{
		PlanBasic: {
			Selector:    PlanBasic,
			Name:        "Plano Leitura Imediata",
			Tier:        models.TierBasic,
			PriceID:     basicPriceID,
			AmountCents: 599,
			Currency:    "brl",
		},
		PlanPremium: {
			Selector:    PlanPremium,
			Name:        "Plano Premium - Leitura + Download",
			Tier:        models.TierPremium,
			PriceID:     premiumPriceID,
			AmountCents: 999,
			Currency:    "brl",
		},
	}}
}

// Lookup resolves a selector. Unknown selectors fail with ErrUnknownPlan and
// known ones without a price id with ErrPlanNotPriced.
func (c Catalog) Lookup(selector string) (models.Plan, error) {
	plan, ok := c.plans[strings.ToLower(strings.TrimSpace(selector))]
	if !ok {
		return models.Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, selector)
	}
	if plan.PriceID == "" {
		return models.Plan{}, fmt.Errorf("%w: %q", ErrPlanNotPriced, plan.Selector)
	}
	return plan, nil
}

// Plans lists the catalog, cheapest first.
func (c Catalog) Plans() []models.Plan {
	out := make([]models.Plan, 0, len(c.plans))
	for _, key := range []string{PlanBasic, PlanPremium} {
		if plan, ok := c.plans[key]; ok {
			out = append(out, plan)
		}
	}
	return out
}
