package repository

import (
	"context"
	"fmt"

	"storecore/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// tierRepository implements the TierRepository interface using PostgreSQL.
type tierRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewTierRepository creates a new PostgreSQL-backed tier repository.
func NewTierRepository(pool *pgxpool.Pool, logger zerolog.Logger) TierRepository {
	return &tierRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "tier").Logger(),
	}
}

// GetByName retrieves a tier by its name.
func (r *tierRepository) GetByName(ctx context.Context, name string) (*model.Tier, error) {
	query := `SELECT name, discount_percent, active, disclose FROM tiers WHERE name = $1`

	var t model.Tier
	err := r.pool.QueryRow(ctx, query, name).Scan(&t.Name, &t.DiscountPercent, &t.Active, &t.Disclose)
	if err != nil {
		if err == pgx.ErrNoRows {
			r.logger.Debug().Str("tier", name).Msg("tier not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("tier", name).Msg("failed to query tier")
		return nil, fmt.Errorf("failed to query tier: %w", err)
	}

	return &t, nil
}

// GetForUser resolves the tier assigned to a customer.
func (r *tierRepository) GetForUser(ctx context.Context, userID string) (*model.Tier, error) {
	query := `
		SELECT t.name, t.discount_percent, t.active, t.disclose
		FROM customers c
		JOIN tiers t ON t.name = c.tier_name
		WHERE c.id = $1
	`

	var t model.Tier
	err := r.pool.QueryRow(ctx, query, userID).Scan(&t.Name, &t.DiscountPercent, &t.Active, &t.Disclose)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("user_id", userID).Msg("failed to resolve user tier")
		return nil, fmt.Errorf("failed to resolve user tier: %w", err)
	}

	return &t, nil
}
