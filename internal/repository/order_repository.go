package repository

import (
	"context"
	"fmt"

	"storecore/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CreateOrder inserts a new order within the provided transaction.
func (r *orderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	query := `
		INSERT INTO orders (id, user_id, status, payment_ref, subtotal, shipping, tax, discount, total, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := tx.Exec(ctx, query,
		order.ID, order.UserID, order.Status, order.PaymentRef,
		order.Subtotal, order.Shipping, order.Tax, order.Discount, order.Total,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Msg("order created")

	return nil
}

// CreateOrderItems inserts the order's snapshot lines within the provided
// transaction.
func (r *orderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (id, order_id, product_id, product_name, unit_code, unit_price, quantity, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query,
			item.ID, item.OrderID, item.ProductID, item.ProductName,
			item.UnitCode, item.UnitPrice, item.Quantity, item.Subtotal,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		_, err := results.Exec()
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", items[i].OrderID.String()).
				Str("unit_code", items[i].UnitCode).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(items)).
		Msg("order items created")

	return nil
}

const orderColumns = `id, user_id, status, payment_ref, subtotal, shipping, tax, discount, total, version, created_at, updated_at`

// GetByID retrieves an order by its ID along with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	orderQuery := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order model.Order
	err := r.pool.QueryRow(ctx, orderQuery, id).Scan(
		&order.ID, &order.UserID, &order.Status, &order.PaymentRef,
		&order.Subtotal, &order.Shipping, &order.Tax, &order.Discount, &order.Total,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			r.logger.Debug().Str("order_id", id.String()).Msg("order not found")
			return nil, nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order")
		return nil, nil, fmt.Errorf("failed to query order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, product_name, unit_code, unit_price, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, itemsQuery, id)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order items")
		return nil, nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.UnitCode, &item.UnitPrice, &item.Quantity, &item.Subtotal,
		)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return nil, nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order item rows")
		return nil, nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return &order, items, nil
}

// TransitionStatus moves an order between states with an optimistic version
// check. Zero rows affected means the order changed underneath the caller;
// that surfaces as a TransactionAbortError so the whole operation can be
// retried against fresh state.
func (r *orderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, version int, paymentRef *string) error {
	query := `
		UPDATE orders
		SET status = $2, payment_ref = COALESCE($3, payment_ref), version = version + 1, updated_at = now()
		WHERE id = $1 AND status = $4 AND version = $5
	`

	tag, err := r.pool.Exec(ctx, query, id, to, paymentRef, from, version)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", id.String()).
			Str("to", string(to)).
			Msg("failed to transition order status")
		return fmt.Errorf("failed to transition order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.TransactionAbortError{
			Op:  fmt.Sprintf("order transition %s -> %s", from, to),
			Err: fmt.Errorf("order %s modified concurrently", id),
		}
	}

	r.logger.Info().
		Str("order_id", id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("order status transitioned")

	return nil
}
