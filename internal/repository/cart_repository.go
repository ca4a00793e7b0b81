package repository

import (
	"context"
	"fmt"
	"time"

	"storecore/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// cartRepository implements the CartRepository interface using PostgreSQL.
type cartRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewCartRepository creates a new PostgreSQL-backed cart repository.
func NewCartRepository(pool *pgxpool.Pool, logger zerolog.Logger) CartRepository {
	return &cartRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "cart").Logger(),
	}
}

const cartColumns = `id, user_id, session_id, status, promo_code, subtotal, shipping, tax, discount, total, expires_at, created_at, updated_at`

// GetByID retrieves a cart with its lines.
func (r *cartRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Cart, error) {
	return r.getOne(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
}

// GetActiveByUser retrieves the user's active cart.
func (r *cartRepository) GetActiveByUser(ctx context.Context, userID string) (*model.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, userID, model.CartStatusActive)
}

// GetActiveBySession retrieves the session's active cart.
func (r *cartRepository) GetActiveBySession(ctx context.Context, sessionID string) (*model.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE session_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, sessionID, model.CartStatusActive)
}

func (r *cartRepository) getOne(ctx context.Context, query string, args ...any) (*model.Cart, error) {
	var c model.Cart
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&c.ID, &c.UserID, &c.SessionID, &c.Status, &c.PromoCode,
		&c.Totals.Subtotal, &c.Totals.Shipping, &c.Totals.Tax, &c.Totals.Discount, &c.Totals.Total,
		&c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to query cart")
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}

	items, err := r.getItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items

	return &c, nil
}

func (r *cartRepository) getItems(ctx context.Context, cartID uuid.UUID) ([]model.CartItem, error) {
	query := `
		SELECT id, cart_id, product_id, unit_code, quantity, unit_price, original_price,
		       discount_percent, tier_name, subtotal, available_stock, position
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query, cartID)
	if err != nil {
		r.logger.Error().Err(err).Str("cart_id", cartID.String()).Msg("failed to query cart items")
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var item model.CartItem
		err := rows.Scan(
			&item.ID, &item.CartID, &item.ProductID, &item.UnitCode, &item.Quantity,
			&item.UnitPrice, &item.OriginalPrice, &item.DiscountPercent, &item.TierName,
			&item.Subtotal, &item.AvailableStock, &item.Position,
		)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan cart item row")
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating cart item rows")
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return items, nil
}

// Create inserts a new empty cart.
func (r *cartRepository) Create(ctx context.Context, cart *model.Cart) error {
	query := `
		INSERT INTO carts (id, user_id, session_id, status, promo_code, subtotal, shipping, tax, discount, total, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.pool.Exec(ctx, query,
		cart.ID, cart.UserID, cart.SessionID, cart.Status, cart.PromoCode,
		cart.Totals.Subtotal, cart.Totals.Shipping, cart.Totals.Tax, cart.Totals.Discount, cart.Totals.Total,
		cart.ExpiresAt, cart.CreatedAt, cart.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("cart_id", cart.ID.String()).Msg("failed to create cart")
		return fmt.Errorf("failed to create cart: %w", err)
	}

	r.logger.Debug().Str("cart_id", cart.ID.String()).Msg("cart created")
	return nil
}

// Save persists the cart's totals, promo code, status and expiry, and
// replaces its lines, in one transaction. Totals arrive already derived
// from the lines; nothing here computes them.
func (r *cartRepository) Save(ctx context.Context, cart *model.Cart) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin cart save")
		return fmt.Errorf("failed to begin cart save: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := `
		UPDATE carts
		SET status = $2, promo_code = $3, subtotal = $4, shipping = $5, tax = $6,
		    discount = $7, total = $8, expires_at = $9, updated_at = now()
		WHERE id = $1
	`

	_, err = tx.Exec(ctx, updateQuery,
		cart.ID, cart.Status, cart.PromoCode,
		cart.Totals.Subtotal, cart.Totals.Shipping, cart.Totals.Tax, cart.Totals.Discount, cart.Totals.Total,
		cart.ExpiresAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("cart_id", cart.ID.String()).Msg("failed to update cart")
		return fmt.Errorf("failed to update cart: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
		r.logger.Error().Err(err).Str("cart_id", cart.ID.String()).Msg("failed to clear cart items")
		return fmt.Errorf("failed to clear cart items: %w", err)
	}

	if len(cart.Items) > 0 {
		insertQuery := `
			INSERT INTO cart_items (id, cart_id, product_id, unit_code, quantity, unit_price, original_price,
			                        discount_percent, tier_name, subtotal, available_stock, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`

		batch := &pgx.Batch{}
		for _, item := range cart.Items {
			batch.Queue(insertQuery,
				item.ID, item.CartID, item.ProductID, item.UnitCode, item.Quantity,
				item.UnitPrice, item.OriginalPrice, item.DiscountPercent, item.TierName,
				item.Subtotal, item.AvailableStock, item.Position,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < len(cart.Items); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				r.logger.Error().
					Err(err).
					Str("cart_id", cart.ID.String()).
					Str("unit_code", cart.Items[i].UnitCode).
					Msg("failed to insert cart item")
				return fmt.Errorf("failed to insert cart item: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to finish cart item batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error().Err(err).Str("cart_id", cart.ID.String()).Msg("failed to commit cart save")
		return fmt.Errorf("failed to commit cart save: %w", err)
	}

	return nil
}

// SetStatus updates the cart's lifecycle status.
func (r *cartRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.CartStatus) error {
	query := `UPDATE carts SET status = $2, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		r.logger.Error().Err(err).Str("cart_id", id.String()).Msg("failed to set cart status")
		return fmt.Errorf("failed to set cart status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError("cart", id.String())
	}

	return nil
}

// AbandonExpired marks active carts past their expiry as abandoned.
func (r *cartRepository) AbandonExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE carts SET status = $1, updated_at = now() WHERE status = $2 AND expires_at < $3`

	tag, err := r.pool.Exec(ctx, query, model.CartStatusAbandoned, model.CartStatusActive, now)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to abandon expired carts")
		return 0, fmt.Errorf("failed to abandon expired carts: %w", err)
	}

	return tag.RowsAffected(), nil
}
