package stock

import (
	"context"
	"fmt"

	"storecore/internal/job"
	"storecore/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Enqueuer schedules fire-and-forget side-effect jobs. Satisfied by
// *job.Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, p job.Payload) error
}

// BulkItem is one entry of a bulk stock mutation.
type BulkItem struct {
	UnitCode string `json:"unitCode"`
	Quantity int    `json:"quantity"`
}

// Mutation describes the state of one unit after a successful mutation.
// Threshold is the resolved low-stock threshold: the unit's own, falling
// back to its product's, falling back to the store default.
type Mutation struct {
	UnitCode  string
	ProductID string
	Stock     int
	Threshold int
}

// BulkResult reports the outcome of a bulk mutation. On failure no unit
// changed and FailedUnits names every unit that could not satisfy its
// requested quantity.
type BulkResult struct {
	Success     bool       `json:"success"`
	FailedUnits []string   `json:"failedUnits,omitempty"`
	Mutations   []Mutation `json:"-"`
}

// Ledger owns atomic, race-free mutation of inventory counters. Every
// mutation path goes through a conditional UPDATE; nothing in this package
// reads a quantity, computes in memory and writes it back. Two concurrent
// decrements racing for the last item are serialized by the row update:
// exactly one succeeds, the other gets a StockConflictError.
type Ledger interface {
	// Get returns the unit's current state, or nil when it does not exist.
	Get(ctx context.Context, unitCode string) (*model.Unit, error)

	// Decrement atomically reduces stock only if enough remains. It returns
	// a *model.StockConflictError when stock is insufficient; callers must
	// branch on that, not retry blindly.
	Decrement(ctx context.Context, unitCode string, qty int) (*Mutation, error)

	// Increment atomically increases stock unconditionally (restock or
	// reservation release).
	Increment(ctx context.Context, unitCode string, qty int) (*Mutation, error)

	// BulkDecrement decrements every item inside one transaction. If any
	// unit cannot satisfy its quantity, no unit changes.
	BulkDecrement(ctx context.Context, items []BulkItem) (*BulkResult, error)

	// BulkIncrement increments every item inside one transaction. Used to
	// release reservations on cancel or refund.
	BulkIncrement(ctx context.Context, items []BulkItem) error

	// TxBulkDecrement runs the bulk decrement inside the caller's
	// transaction so order persistence and stock reservation commit or fail
	// together. The caller owns commit and rollback; side effects belong
	// after its commit via FinishMutations.
	TxBulkDecrement(ctx context.Context, tx pgx.Tx, items []BulkItem) (*BulkResult, error)

	// FinishMutations applies the post-commit side effects for mutations
	// performed in a caller-owned transaction: product aggregate recompute
	// and low-stock alerts. Best-effort; it never fails the caller.
	FinishMutations(ctx context.Context, mutations []Mutation)
}

type ledger struct {
	pool           *pgxpool.Pool
	enqueuer       Enqueuer
	storeThreshold int
	logger         zerolog.Logger
}

// NewLedger creates a PostgreSQL-backed stock ledger. enqueuer may be nil,
// disabling back-in-stock and low-stock jobs (used by admin tooling).
// storeThreshold is the store-wide low-stock default behind the per-unit and
// per-product thresholds.
func NewLedger(pool *pgxpool.Pool, enqueuer Enqueuer, storeThreshold int, logger zerolog.Logger) Ledger {
	return &ledger{
		pool:           pool,
		enqueuer:       enqueuer,
		storeThreshold: storeThreshold,
		logger:         logger.With().Str("component", "stock-ledger").Logger(),
	}
}

// Get returns the unit's current state.
func (l *ledger) Get(ctx context.Context, unitCode string) (*model.Unit, error) {
	query := `
		SELECT code, product_id, price_override, stock, active, attributes, low_stock_threshold, created_at, updated_at
		FROM units
		WHERE code = $1
	`

	var u model.Unit
	var override *float64
	err := l.pool.QueryRow(ctx, query, unitCode).Scan(
		&u.Code, &u.ProductID, &override, &u.Stock, &u.Active,
		&u.Attributes, &u.LowStockThreshold, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		l.logger.Error().Err(err).Str("unit_code", unitCode).Msg("failed to query unit")
		return nil, fmt.Errorf("failed to query unit: %w", err)
	}
	u.PriceOverride = model.OverrideFromPtr(override)

	return &u, nil
}

// Decrement atomically reduces stock only if enough remains.
func (l *ledger) Decrement(ctx context.Context, unitCode string, qty int) (*Mutation, error) {
	if qty < 1 {
		return nil, model.NewValidationError("quantity", "must be at least 1")
	}

	m, err := decrementOne(ctx, l.pool, unitCode, qty, l.storeThreshold)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if err := l.classifyFailure(ctx, unitCode); err != nil {
			return nil, err
		}
		return nil, &model.StockConflictError{Units: []string{unitCode}}
	}

	l.FinishMutations(ctx, []Mutation{*m})

	return m, nil
}

// Increment atomically increases stock unconditionally.
func (l *ledger) Increment(ctx context.Context, unitCode string, qty int) (*Mutation, error) {
	if qty < 1 {
		return nil, model.NewValidationError("quantity", "must be at least 1")
	}

	m, err := incrementOne(ctx, l.pool, unitCode, qty, l.storeThreshold)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, model.NewNotFoundError("unit", unitCode)
	}

	l.notifyRestock(ctx, m, qty)
	l.recomputeProductStock(ctx, m.ProductID)

	return m, nil
}

// BulkDecrement decrements every item inside one transaction, all or
// nothing.
func (l *ledger) BulkDecrement(ctx context.Context, items []BulkItem) (*BulkResult, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin bulk decrement: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := l.TxBulkDecrement(ctx, tx, items)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		// Rolled back by the deferred call; nothing changed.
		return result, nil
	}

	if err := tx.Commit(ctx); err != nil {
		l.logger.Error().Err(err).Msg("failed to commit bulk decrement")
		return nil, &model.TransactionAbortError{Op: "bulk decrement", Err: err}
	}

	l.FinishMutations(ctx, result.Mutations)

	return result, nil
}

// TxBulkDecrement runs the bulk decrement inside the caller's transaction.
func (l *ledger) TxBulkDecrement(ctx context.Context, tx pgx.Tx, items []BulkItem) (*BulkResult, error) {
	if len(items) == 0 {
		return nil, model.NewValidationError("items", "must contain at least one unit")
	}

	result := &BulkResult{Success: true}
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, model.NewValidationError("quantity", "must be at least 1")
		}

		m, err := decrementOne(ctx, tx, item.UnitCode, item.Quantity, l.storeThreshold)
		if err != nil {
			return nil, err
		}
		if m == nil {
			// A zero-row conditional update does not poison the transaction,
			// so keep collecting failures; the caller rolls back.
			result.Success = false
			result.FailedUnits = append(result.FailedUnits, item.UnitCode)
			continue
		}
		result.Mutations = append(result.Mutations, *m)
	}

	if !result.Success {
		result.Mutations = nil
	}

	return result, nil
}

// BulkIncrement increments every item inside one transaction.
func (l *ledger) BulkIncrement(ctx context.Context, items []BulkItem) error {
	if len(items) == 0 {
		return model.NewValidationError("items", "must contain at least one unit")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin bulk increment: %w", err)
	}
	defer tx.Rollback(ctx)

	mutations := make([]Mutation, 0, len(items))
	quantities := make([]int, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return model.NewValidationError("quantity", "must be at least 1")
		}

		m, err := incrementOne(ctx, tx, item.UnitCode, item.Quantity, l.storeThreshold)
		if err != nil {
			return err
		}
		if m == nil {
			return model.NewNotFoundError("unit", item.UnitCode)
		}
		mutations = append(mutations, *m)
		quantities = append(quantities, item.Quantity)
	}

	if err := tx.Commit(ctx); err != nil {
		l.logger.Error().Err(err).Msg("failed to commit bulk increment")
		return &model.TransactionAbortError{Op: "bulk increment", Err: err}
	}

	for i := range mutations {
		l.notifyRestock(ctx, &mutations[i], quantities[i])
		l.recomputeProductStock(ctx, mutations[i].ProductID)
	}

	return nil
}

// FinishMutations applies post-commit side effects for decrements.
func (l *ledger) FinishMutations(ctx context.Context, mutations []Mutation) {
	for i := range mutations {
		m := &mutations[i]
		l.recomputeProductStock(ctx, m.ProductID)

		if l.enqueuer != nil && m.Stock <= m.Threshold {
			err := l.enqueuer.Enqueue(ctx, job.LowStockAlert{
				UnitCode:  m.UnitCode,
				Stock:     m.Stock,
				Threshold: m.Threshold,
			})
			if err != nil {
				l.logger.Warn().
					Err(err).
					Str("unit_code", m.UnitCode).
					Msg("failed to enqueue low-stock alert")
			}
		}
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// decrementOne performs the conditional atomic decrement. It returns nil
// (and no error) when the condition failed: missing unit or insufficient
// stock. The COALESCE resolves the low-stock threshold unit first, product
// second, store default last.
func decrementOne(ctx context.Context, q querier, unitCode string, qty, storeThreshold int) (*Mutation, error) {
	query := `
		UPDATE units u
		SET stock = u.stock - $2, updated_at = now()
		FROM products p
		WHERE u.code = $1
		  AND p.id = u.product_id
		  AND u.stock >= $2
		RETURNING u.stock, u.product_id, COALESCE(u.low_stock_threshold, p.low_stock_threshold, $3)
	`

	m := Mutation{UnitCode: unitCode}
	err := q.QueryRow(ctx, query, unitCode, qty, storeThreshold).Scan(&m.Stock, &m.ProductID, &m.Threshold)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decrement unit %s: %w", unitCode, err)
	}

	return &m, nil
}

// incrementOne performs the unconditional atomic increment. It returns nil
// when the unit does not exist.
func incrementOne(ctx context.Context, q querier, unitCode string, qty, storeThreshold int) (*Mutation, error) {
	query := `
		UPDATE units u
		SET stock = u.stock + $2, updated_at = now()
		FROM products p
		WHERE u.code = $1
		  AND p.id = u.product_id
		RETURNING u.stock, u.product_id, COALESCE(u.low_stock_threshold, p.low_stock_threshold, $3)
	`

	m := Mutation{UnitCode: unitCode}
	err := q.QueryRow(ctx, query, unitCode, qty, storeThreshold).Scan(&m.Stock, &m.ProductID, &m.Threshold)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to increment unit %s: %w", unitCode, err)
	}

	return &m, nil
}

// classifyFailure distinguishes a missing unit from an out-of-stock one
// after a failed conditional decrement.
func (l *ledger) classifyFailure(ctx context.Context, unitCode string) error {
	var exists bool
	err := l.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM units WHERE code = $1)`, unitCode).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check unit %s: %w", unitCode, err)
	}
	if !exists {
		return model.NewNotFoundError("unit", unitCode)
	}
	return nil
}

// notifyRestock schedules a back-in-stock notification when an increment
// crossed from zero to positive stock. Fire and forget.
func (l *ledger) notifyRestock(ctx context.Context, m *Mutation, qty int) {
	if l.enqueuer == nil {
		return
	}
	if m.Stock-qty != 0 || m.Stock <= 0 {
		return
	}

	err := l.enqueuer.Enqueue(ctx, job.BackInStock{UnitCode: m.UnitCode, Stock: m.Stock})
	if err != nil {
		l.logger.Warn().
			Err(err).
			Str("unit_code", m.UnitCode).
			Msg("failed to enqueue back-in-stock notification")
	}
}

// recomputeProductStock refreshes the parent product's denormalized stock
// counter. Best-effort: failure is logged and never propagated, so it can
// never fail or roll back the stock mutation it follows.
func (l *ledger) recomputeProductStock(ctx context.Context, productID string) {
	query := `
		UPDATE products
		SET total_stock = (
			SELECT COALESCE(SUM(stock), 0) FROM units WHERE product_id = $1
		)
		WHERE id = $1
	`

	if _, err := l.pool.Exec(ctx, query, productID); err != nil {
		l.logger.Warn().
			Err(err).
			Str("product_id", productID).
			Msg("failed to recompute product stock aggregate")
	}
}
