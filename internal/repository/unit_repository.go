package repository

import (
	"context"
	"fmt"

	"storecore/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// unitRepository implements the UnitRepository interface using PostgreSQL.
type unitRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewUnitRepository creates a new PostgreSQL-backed unit repository.
func NewUnitRepository(pool *pgxpool.Pool, logger zerolog.Logger) UnitRepository {
	return &unitRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "unit").Logger(),
	}
}

const unitColumns = `code, product_id, price_override, stock, active, attributes, low_stock_threshold, created_at, updated_at`

// GetByCode retrieves a single unit by its code.
func (r *unitRepository) GetByCode(ctx context.Context, code string) (*model.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE code = $1`

	var u model.Unit
	var override *float64
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&u.Code, &u.ProductID, &override, &u.Stock, &u.Active,
		&u.Attributes, &u.LowStockThreshold, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			r.logger.Debug().Str("unit_code", code).Msg("unit not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("unit_code", code).Msg("failed to query unit")
		return nil, fmt.Errorf("failed to query unit: %w", err)
	}
	u.PriceOverride = model.OverrideFromPtr(override)

	return &u, nil
}

// GetByCodes retrieves multiple units by their codes.
func (r *unitRepository) GetByCodes(ctx context.Context, codes []string) (map[string]model.Unit, error) {
	if len(codes) == 0 {
		return map[string]model.Unit{}, nil
	}

	query := `SELECT ` + unitColumns + ` FROM units WHERE code = ANY($1)`

	rows, err := r.pool.Query(ctx, query, codes)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(codes)).Msg("failed to query units by codes")
		return nil, fmt.Errorf("failed to query units by codes: %w", err)
	}
	defer rows.Close()

	units := make(map[string]model.Unit, len(codes))
	for rows.Next() {
		var u model.Unit
		var override *float64
		err := rows.Scan(
			&u.Code, &u.ProductID, &override, &u.Stock, &u.Active,
			&u.Attributes, &u.LowStockThreshold, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan unit row")
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		u.PriceOverride = model.OverrideFromPtr(override)
		units[u.Code] = u
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating unit rows")
		return nil, fmt.Errorf("error iterating units: %w", err)
	}

	return units, nil
}
