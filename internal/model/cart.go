package model

import (
	"time"

	"github.com/google/uuid"
)

// CartStatus is the lifecycle state of a cart.
type CartStatus string

const (
	CartStatusActive     CartStatus = "active"
	CartStatusAbandoned  CartStatus = "abandoned"
	CartStatusCheckedOut CartStatus = "checked_out"
	CartStatusMerged     CartStatus = "merged"
)

// Terminal reports whether the cart can no longer be mutated.
func (s CartStatus) Terminal() bool {
	return s == CartStatusCheckedOut || s == CartStatusMerged
}

// CartTotals are aggregates derived purely from the cart's line items.
// They are never mutated independently of the lines.
type CartTotals struct {
	Subtotal float64 `json:"subtotal" db:"subtotal"`
	Shipping float64 `json:"shipping" db:"shipping"`
	Tax      float64 `json:"tax" db:"tax"`
	Discount float64 `json:"discount" db:"discount"`
	Total    float64 `json:"total" db:"total"`
}

// CartItem is one line of a cart. Price and stock fields are last-known
// values for display only; every recalculation refreshes them from the
// live unit, product and tier.
type CartItem struct {
	ID              uuid.UUID `json:"id" db:"id"`
	CartID          uuid.UUID `json:"-" db:"cart_id"`
	ProductID       string    `json:"productId" db:"product_id"`
	UnitCode        string    `json:"unitCode" db:"unit_code"`
	Quantity        int       `json:"quantity" db:"quantity"`
	UnitPrice       float64   `json:"unitPrice" db:"unit_price"`
	OriginalPrice   float64   `json:"originalPrice" db:"original_price"`
	DiscountPercent float64   `json:"discountPercent" db:"discount_percent"`
	TierName        *string   `json:"tierName,omitempty" db:"tier_name"`
	Subtotal        float64   `json:"subtotal" db:"subtotal"`
	AvailableStock  int       `json:"availableStock" db:"available_stock"`
	Position        int       `json:"-" db:"position"`
}

// Cart is owned by either an authenticated user or an anonymous session,
// never both.
type Cart struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    *string    `json:"userId,omitempty" db:"user_id"`
	SessionID *string    `json:"sessionId,omitempty" db:"session_id"`
	Status    CartStatus `json:"status" db:"status"`
	PromoCode *string    `json:"promoCode,omitempty" db:"promo_code"`
	Items     []CartItem `json:"items"`
	Totals    CartTotals `json:"totals"`
	ExpiresAt time.Time  `json:"expiresAt" db:"expires_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// StockState classifies a cart line against live stock.
type StockState string

const (
	StockStateOK              StockState = "ok"
	StockStateNeedsAdjustment StockState = "needs_adjustment"
	StockStateOut             StockState = "out_of_stock"
)

// StockCheck is the result of validating one cart line against live stock.
type StockCheck struct {
	ItemID    uuid.UUID  `json:"itemId"`
	UnitCode  string     `json:"unitCode"`
	Requested int        `json:"requested"`
	Available int        `json:"available"`
	State     StockState `json:"state"`
}
