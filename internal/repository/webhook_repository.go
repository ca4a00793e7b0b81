package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storecore/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// webhookEventRepository implements the WebhookEventRepository interface
// using PostgreSQL. The UNIQUE (provider, event_id) constraint is what makes
// the idempotency gate race-free: concurrent deliveries of the same event
// collapse onto one ledger row.
type webhookEventRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewWebhookEventRepository creates a new PostgreSQL-backed webhook event
// repository.
func NewWebhookEventRepository(pool *pgxpool.Pool, logger zerolog.Logger) WebhookEventRepository {
	return &webhookEventRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "webhook-event").Logger(),
	}
}

// Insert records a received event, or reports the existing record on replay.
func (r *webhookEventRepository) Insert(ctx context.Context, provider, eventID string, payload json.RawMessage) (bool, *model.WebhookEvent, error) {
	insertQuery := `
		INSERT INTO webhook_events (provider, event_id, state, payload, received_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (provider, event_id) DO NOTHING
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, insertQuery, provider, eventID, model.WebhookStateReceived, payload).Scan(&id)
	if err == nil {
		return true, nil, nil
	}
	if err != pgx.ErrNoRows {
		r.logger.Error().
			Err(err).
			Str("provider", provider).
			Str("event_id", eventID).
			Msg("failed to insert webhook event")
		return false, nil, fmt.Errorf("failed to insert webhook event: %w", err)
	}

	// Conflict: the event was seen before. Fetch its state.
	selectQuery := `
		SELECT id, provider, event_id, state, payload, received_at, processed_at
		FROM webhook_events
		WHERE provider = $1 AND event_id = $2
	`

	var e model.WebhookEvent
	err = r.pool.QueryRow(ctx, selectQuery, provider, eventID).Scan(
		&e.ID, &e.Provider, &e.EventID, &e.State, &e.Payload, &e.ReceivedAt, &e.ProcessedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("provider", provider).
			Str("event_id", eventID).
			Msg("failed to fetch existing webhook event")
		return false, nil, fmt.Errorf("failed to fetch existing webhook event: %w", err)
	}

	return false, &e, nil
}

// MarkProcessed flips the event to the processed state.
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, provider, eventID string) error {
	query := `
		UPDATE webhook_events
		SET state = $3, processed_at = now()
		WHERE provider = $1 AND event_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, provider, eventID, model.WebhookStateProcessed)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("provider", provider).
			Str("event_id", eventID).
			Msg("failed to mark webhook event processed")
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError("webhook event", eventID)
	}

	return nil
}

// PurgeProcessedBefore deletes processed events received before cutoff.
func (r *webhookEventRepository) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM webhook_events WHERE state = $1 AND received_at < $2`

	tag, err := r.pool.Exec(ctx, query, model.WebhookStateProcessed, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to purge webhook events")
		return 0, fmt.Errorf("failed to purge webhook events: %w", err)
	}

	return tag.RowsAffected(), nil
}
