package model

import "time"

// PriceOverride distinguishes "no override set" from "override explicitly
// set to a value" (including zero). A bare nullable float makes those two
// cases collapse under coalescing, which is exactly the bug this type exists
// to prevent.
type PriceOverride struct {
	value float64
	set   bool
}

// NoOverride returns the absent override.
func NoOverride() PriceOverride {
	return PriceOverride{}
}

// OverrideOf returns an explicit override, zero included.
func OverrideOf(v float64) PriceOverride {
	return PriceOverride{value: v, set: true}
}

// OverrideFromPtr maps a nullable database column to an override.
func OverrideFromPtr(p *float64) PriceOverride {
	if p == nil {
		return NoOverride()
	}
	return OverrideOf(*p)
}

// Value returns the override value and whether it is set.
func (o PriceOverride) Value() (float64, bool) {
	return o.value, o.set
}

// IsSet reports whether an override is present.
func (o PriceOverride) IsSet() bool {
	return o.set
}

// Ptr maps the override back to a nullable database column.
func (o PriceOverride) Ptr() *float64 {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

// Unit represents a unit-of-sale (SKU): the smallest purchasable inventory
// record. Stock is mutated only through the stock ledger's atomic primitives.
type Unit struct {
	Code              string            `json:"code" db:"code"`
	ProductID         string            `json:"productId" db:"product_id"`
	PriceOverride     PriceOverride     `json:"-"`
	Stock             int               `json:"stock" db:"stock"`
	Active            bool              `json:"active" db:"active"`
	Attributes        map[string]string `json:"attributes,omitempty" db:"attributes"`
	LowStockThreshold *int              `json:"lowStockThreshold,omitempty" db:"low_stock_threshold"`
	CreatedAt         time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time         `json:"updatedAt" db:"updated_at"`
}

// EffectivePrice returns the unit's price given its product's base price:
// the override when set, the base price otherwise.
func (u *Unit) EffectivePrice(basePrice float64) float64 {
	if v, ok := u.PriceOverride.Value(); ok {
		return v
	}
	return basePrice
}
