package service

import (
	"context"
	"encoding/json"

	"storecore/internal/model"

	"github.com/google/uuid"
)

// CartOwner identifies who a cart belongs to: an authenticated user or an
// anonymous session, never both.
type CartOwner struct {
	UserID    string
	SessionID string
}

// CartService owns the shopping-cart aggregate. Every read re-derives the
// cart from live unit, product and tier data; line fields are display
// caches, not sources of truth.
type CartService interface {
	// GetOrCreate returns the owner's active cart, creating an empty one if
	// none exists.
	GetOrCreate(ctx context.Context, owner CartOwner) (*model.Cart, error)

	// Get retrieves a cart by ID, or nil when it does not exist.
	Get(ctx context.Context, cartID uuid.UUID) (*model.Cart, error)

	// AddItem adds qty of a unit to the cart, merging into an existing line
	// for the same (product, unit) pair.
	AddItem(ctx context.Context, cartID uuid.UUID, productID, unitCode string, qty int) (*model.Cart, error)

	// UpdateQuantity changes a line's quantity after re-validating live stock.
	UpdateQuantity(ctx context.Context, cartID, lineID uuid.UUID, qty int) (*model.Cart, error)

	// RemoveItem removes a line.
	RemoveItem(ctx context.Context, cartID, lineID uuid.UUID) (*model.Cart, error)

	// Clear removes every line.
	Clear(ctx context.Context, cartID uuid.UUID) (*model.Cart, error)

	// Recalculate refreshes every line's price and stock from the source of
	// truth and re-derives the totals.
	Recalculate(ctx context.Context, cartID uuid.UUID) (*model.Cart, error)

	// ValidateStock classifies each line against live stock.
	ValidateStock(ctx context.Context, cartID uuid.UUID) ([]model.StockCheck, error)

	// AdjustQuantities clamps short lines down to available stock, drops
	// out-of-stock lines and recalculates.
	AdjustQuantities(ctx context.Context, cartID uuid.UUID) (*model.Cart, error)

	// Merge folds a guest cart into the user's cart. It degrades per line on
	// stock shortage and always marks the guest cart merged.
	Merge(ctx context.Context, guestCartID uuid.UUID, userID string) (*model.Cart, error)

	// ApplyPromo validates and attaches a promo code to the cart.
	ApplyPromo(ctx context.Context, cartID uuid.UUID, code string) (*model.Cart, error)

	// RemovePromo detaches the cart's promo code.
	RemovePromo(ctx context.Context, cartID uuid.UUID) (*model.Cart, error)

	// AbandonExpired sweeps active carts past their expiry.
	AbandonExpired(ctx context.Context) (int64, error)
}

// OrderResult is an order with its snapshot lines.
type OrderResult struct {
	Order model.Order       `json:"order"`
	Items []model.OrderItem `json:"items"`
}

// OrderService drives the order commit workflow: snapshotting a cart into an
// immutable order with stock reserved in the same transaction, and the
// status transitions that follow.
type OrderService interface {
	// Create snapshots the cart into an order and reserves stock, atomically.
	// A stock shortage returns a StockConflictError naming the failing units
	// and persists nothing.
	Create(ctx context.Context, cartID uuid.UUID, paymentIntent string) (*OrderResult, error)

	// GetByID retrieves an order with its items, or nil when it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*OrderResult, error)

	// Cancel releases reserved stock and cancels the order. Permitted only
	// before payment.
	Cancel(ctx context.Context, orderID uuid.UUID) (*model.Order, error)

	// MarkPaid records the payment confirmation. Idempotent: confirming an
	// already-paid order is a no-op.
	MarkPaid(ctx context.Context, orderID uuid.UUID, paymentRef string) error

	// StartFulfillment moves a paid order into fulfillment. Idempotent.
	StartFulfillment(ctx context.Context, orderID uuid.UUID) error

	// Complete finishes fulfillment.
	Complete(ctx context.Context, orderID uuid.UUID) error

	// InitiateRefund starts the refund flow for a paid order.
	InitiateRefund(ctx context.Context, orderID uuid.UUID) error

	// CompleteRefund finishes the refund and releases stock.
	CompleteRefund(ctx context.Context, orderID uuid.UUID) error
}

// WebhookService is the idempotency gate for payment provider notifications.
type WebhookService interface {
	// Receive verifies, deduplicates and applies one provider event. A
	// replay of an already-processed event returns a DuplicateEventError,
	// which callers treat as success.
	Receive(ctx context.Context, provider, eventID string, payload json.RawMessage, signature string) error

	// PurgeExpired deletes processed events older than the retention window.
	PurgeExpired(ctx context.Context) (int64, error)
}
