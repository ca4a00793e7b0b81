package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the state of an order in its lifecycle state machine.
type OrderStatus string

const (
	OrderStatusCreated         OrderStatus = "created"
	OrderStatusStockReserved   OrderStatus = "stock_reserved"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusFulfilling      OrderStatus = "fulfilling"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRefundInitiated OrderStatus = "refund_initiated"
	OrderStatusRefunded        OrderStatus = "refunded"
)

// orderTransitions is the full set of permitted state changes.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:         {OrderStatusStockReserved, OrderStatusCancelled},
	OrderStatusStockReserved:   {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:            {OrderStatusFulfilling, OrderStatusRefundInitiated},
	OrderStatusFulfilling:      {OrderStatusCompleted},
	OrderStatusRefundInitiated: {OrderStatusRefunded},
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable reports whether stock has not yet been paid for and the order
// may still be cancelled with a plain stock release.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusCreated || s == OrderStatusStockReserved
}

// Order is an immutable snapshot of a checked-out cart. Its line items are
// decoupled from live product and unit state; cart operations never touch an
// order after creation. Version is an optimistic counter guarding concurrent
// status transitions.
type Order struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	UserID     *string     `json:"userId,omitempty" db:"user_id"`
	Status     OrderStatus `json:"status" db:"status"`
	PaymentRef *string     `json:"paymentRef,omitempty" db:"payment_ref"`
	Subtotal   float64     `json:"subtotal" db:"subtotal"`
	Shipping   float64     `json:"shipping" db:"shipping"`
	Tax        float64     `json:"tax" db:"tax"`
	Discount   float64     `json:"discount" db:"discount"`
	Total      float64     `json:"total" db:"total"`
	Version    int         `json:"version" db:"version"`
	CreatedAt  time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time   `json:"updatedAt" db:"updated_at"`
}

// OrderItem is one snapshotted line of an order.
type OrderItem struct {
	ID          uuid.UUID `json:"-" db:"id"`
	OrderID     uuid.UUID `json:"-" db:"order_id"`
	ProductID   string    `json:"productId" db:"product_id"`
	ProductName string    `json:"productName" db:"product_name"`
	UnitCode    string    `json:"unitCode" db:"unit_code"`
	UnitPrice   float64   `json:"unitPrice" db:"unit_price"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Subtotal    float64   `json:"subtotal" db:"subtotal"`
}
