package repository

import (
	"context"
	"encoding/json"
	"time"

	"storecore/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UnitRepository defines read access to units-of-sale. Stock mutation is
// not here: it belongs exclusively to the stock ledger's atomic primitives.
type UnitRepository interface {
	// GetByCode retrieves a unit, or nil when it does not exist.
	GetByCode(ctx context.Context, code string) (*model.Unit, error)

	// GetByCodes retrieves multiple units keyed by code. Missing codes are
	// absent from the map, not an error.
	GetByCodes(ctx context.Context, codes []string) (map[string]model.Unit, error)
}

// ProductRepository defines read access to products.
type ProductRepository interface {
	// GetAll retrieves products with pagination support.
	GetAll(ctx context.Context, limit, offset int) ([]model.Product, error)

	// GetByID retrieves a single product, or nil when it does not exist.
	GetByID(ctx context.Context, id string) (*model.Product, error)

	// GetByIDs retrieves multiple products keyed by ID.
	GetByIDs(ctx context.Context, ids []string) (map[string]model.Product, error)
}

// TierRepository defines read access to customer discount tiers.
type TierRepository interface {
	// GetByName retrieves a tier, or nil when it does not exist.
	GetByName(ctx context.Context, name string) (*model.Tier, error)

	// GetForUser resolves the tier assigned to a customer, or nil when the
	// customer has none.
	GetForUser(ctx context.Context, userID string) (*model.Tier, error)
}

// CartRepository defines persistence for carts and their lines.
type CartRepository interface {
	// GetByID retrieves a cart with its lines, or nil when it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Cart, error)

	// GetActiveByUser retrieves the user's active cart, or nil.
	GetActiveByUser(ctx context.Context, userID string) (*model.Cart, error)

	// GetActiveBySession retrieves the session's active cart, or nil.
	GetActiveBySession(ctx context.Context, sessionID string) (*model.Cart, error)

	// Create inserts a new empty cart.
	Create(ctx context.Context, cart *model.Cart) error

	// Save persists the cart's totals, promo code and expiry, and replaces
	// its lines, in one transaction.
	Save(ctx context.Context, cart *model.Cart) error

	// SetStatus updates the cart's lifecycle status.
	SetStatus(ctx context.Context, id uuid.UUID, status model.CartStatus) error

	// AbandonExpired marks active carts past their expiry as abandoned and
	// returns how many were swept.
	AbandonExpired(ctx context.Context, now time.Time) (int64, error)
}

// OrderRepository defines persistence for orders. Order creation happens
// inside a caller-owned transaction so stock reservation and the order row
// commit or fail together.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// CreateOrder inserts a new order within the provided transaction.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateOrderItems inserts the order's snapshot lines within the
	// provided transaction.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// GetByID retrieves an order by its ID along with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error)

	// TransitionStatus moves an order from one status to another with an
	// optimistic version check. It returns a TransactionAbortError when the
	// row was concurrently modified. paymentRef, when non-nil, is recorded.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, version int, paymentRef *string) error
}

// WebhookEventRepository defines the webhook idempotency ledger.
type WebhookEventRepository interface {
	// Insert records a received event. When the (provider, eventID) pair
	// already exists, inserted is false and existing holds the prior record.
	Insert(ctx context.Context, provider, eventID string, payload json.RawMessage) (inserted bool, existing *model.WebhookEvent, err error)

	// MarkProcessed flips the event to the processed state.
	MarkProcessed(ctx context.Context, provider, eventID string) error

	// PurgeProcessedBefore deletes processed events received before cutoff.
	// The retention cutoff must exceed the provider's redelivery window.
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
