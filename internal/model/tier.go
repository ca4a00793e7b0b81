package model

// Tier is a named customer segment with an associated discount percentage.
// Disclose controls whether the discount is shown to the customer or applied
// silently (charged, but reported as the regular price).
type Tier struct {
	Name            string  `json:"name" db:"name"`
	DiscountPercent float64 `json:"discountPercent" db:"discount_percent"`
	Active          bool    `json:"active" db:"active"`
	Disclose        bool    `json:"disclose" db:"disclose"`
}

// Applies reports whether the tier actually discounts anything.
func (t *Tier) Applies() bool {
	return t != nil && t.Active && t.DiscountPercent > 0
}
