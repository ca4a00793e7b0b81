package pricing

import (
	"math"

	"storecore/internal/model"
)

// Quote is the result of pricing one unit for one customer.
//
// When a tier's disclose flag is false the discount is silent: the customer
// is charged FinalPrice but OriginalPrice is reported equal to FinalPrice
// and HasDiscount is false, so the discount never appears in any response
// built from this quote.
type Quote struct {
	OriginalPrice   float64 `json:"originalPrice"`
	FinalPrice      float64 `json:"finalPrice"`
	DiscountPercent float64 `json:"discountPercent"`
	TierName        string  `json:"tierName,omitempty"`
	HasDiscount     bool    `json:"hasDiscount"`
}

// Round2 rounds to 2 decimal places, half-up. Every price the system emits
// goes through this one rule; batch and single-item pricing must agree to
// the cent.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// Engine computes effective unit prices from a base price, an optional
// per-unit override and an optional customer discount tier. It is pure and
// safe for concurrent use.
type Engine struct{}

// NewEngine creates a pricing engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Quote prices a single unit. The override, when set, supersedes the base
// price; an override of zero is a real price, not an absent one. A nil,
// inactive or zero-percent tier yields no discount.
func (e *Engine) Quote(basePrice float64, override model.PriceOverride, tier *model.Tier) Quote {
	effective := basePrice
	if v, ok := override.Value(); ok {
		effective = v
	}
	effective = Round2(effective)

	if !tier.Applies() {
		return Quote{
			OriginalPrice: effective,
			FinalPrice:    effective,
		}
	}

	final := Round2(effective - effective*tier.DiscountPercent/100)

	if !tier.Disclose {
		// Silent discount: charge the discounted price, report it as the
		// regular one.
		return Quote{
			OriginalPrice: final,
			FinalPrice:    final,
		}
	}

	return Quote{
		OriginalPrice:   effective,
		FinalPrice:      final,
		DiscountPercent: tier.DiscountPercent,
		TierName:        tier.Name,
		HasDiscount:     true,
	}
}

// QuoteUnit prices a unit against its parent product's base price.
func (e *Engine) QuoteUnit(unit *model.Unit, product *model.Product, tier *model.Tier) Quote {
	return e.Quote(product.BasePrice, unit.PriceOverride, tier)
}

// BatchInput is one entry of a batch pricing request. Tier may differ per
// entry; nil means no tier applies to that entry.
type BatchInput struct {
	BasePrice float64
	Override  model.PriceOverride
	Tier      *model.Tier
}

// QuoteBatch prices N inputs, preserving input order. Results are identical
// to N single Quote calls.
func (e *Engine) QuoteBatch(inputs []BatchInput) []Quote {
	quotes := make([]Quote, len(inputs))
	for i, in := range inputs {
		quotes[i] = e.Quote(in.BasePrice, in.Override, in.Tier)
	}
	return quotes
}
