package domain

import (
	"sort"
	"time"
)

// ProductPricing is the slice of a product record the engine reads and writes:
// the immutable base price plus the two derived fields. AttributedCampaigns
// lists the campaign IDs currently contributing to PromotionalPrice, so
// removing one campaign never wipes a discount still owed to another.
type ProductPricing struct {
	ProductID           string    `json:"product_id"`
	BasePrice           int64     `json:"base_price"`
	PromotionalPrice    *int64    `json:"promotional_price,omitempty"`
	AttributedCampaigns []string  `json:"attributed_campaigns"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// EffectivePrice is the price actually charged: the promotional price when
// present, the base price otherwise.
func (p *ProductPricing) EffectivePrice() int64 {
	if p.PromotionalPrice != nil {
		return *p.PromotionalPrice
	}
	return p.BasePrice
}

// PricingDecision is the outcome of conflict resolution for one product.
type PricingDecision struct {
	PromotionalPrice    *int64
	AttributedCampaigns []string
}

// DiscountedPrice computes the candidate price for one discount applied to
// base. Percentage values are basis points (2000 = 20%). The result is
// clamped at zero. Unknown discount types leave the price unchanged.
func DiscountedPrice(base int64, discountType string, value int64) int64 {
	var candidate int64
	switch discountType {
	case DiscountTypePercentage:
		candidate = base - base*value/MaxPercentageBasisPoints
	case DiscountTypeFixed:
		candidate = base - value
	default:
		return base
	}
	if candidate < 0 {
		return 0
	}
	return candidate
}

// ResolvePricing decides the single effective promotional price for a product
// given every campaign simultaneously eligible for it. Non-stackable
// campaigns compete winner-take-all; stackable campaigns then compound on the
// running price. An empty eligible set yields no promotional price and no
// attribution.
func ResolvePricing(base int64, eligible []Campaign) PricingDecision {
	if len(eligible) == 0 {
		return PricingDecision{AttributedCampaigns: []string{}}
	}

	var stackable, exclusive []Campaign
	for _, c := range eligible {
		if c.Stackable {
			stackable = append(stackable, c)
		} else {
			exclusive = append(exclusive, c)
		}
	}

	running := base
	attributed := make([]string, 0, len(stackable)+1)

	if len(exclusive) > 0 {
		winner := bestNonStackable(base, exclusive)
		running = DiscountedPrice(base, winner.DiscountType, winner.DiscountValue)
		attributed = append(attributed, winner.ID)
	}

	// Compound stackable discounts in a deterministic order so repeated
	// resolution of the same set always lands on the same price.
	sort.Slice(stackable, func(i, j int) bool {
		if !stackable[i].CreatedAt.Equal(stackable[j].CreatedAt) {
			return stackable[i].CreatedAt.Before(stackable[j].CreatedAt)
		}
		return stackable[i].ID < stackable[j].ID
	})
	for _, c := range stackable {
		running = DiscountedPrice(running, c.DiscountType, c.DiscountValue)
		attributed = append(attributed, c.ID)
	}

	return PricingDecision{PromotionalPrice: &running, AttributedCampaigns: attributed}
}

// bestNonStackable selects the winner among competing non-stackable
// campaigns: the one yielding the lowest candidate price. Ties go to the
// earliest-created campaign, then the lowest ID. The winner-take-all policy
// lives in this one function so it can be swapped without touching the
// resolver.
func bestNonStackable(base int64, candidates []Campaign) Campaign {
	winner := candidates[0]
	winnerPrice := DiscountedPrice(base, winner.DiscountType, winner.DiscountValue)

	for _, c := range candidates[1:] {
		price := DiscountedPrice(base, c.DiscountType, c.DiscountValue)
		switch {
		case price < winnerPrice:
			winner, winnerPrice = c, price
		case price == winnerPrice:
			if c.CreatedAt.Before(winner.CreatedAt) ||
				(c.CreatedAt.Equal(winner.CreatedAt) && c.ID < winner.ID) {
				winner = c
			}
		}
	}

	return winner
}
