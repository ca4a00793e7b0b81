package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"storecore/internal/config"
	"storecore/internal/model"
	"storecore/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type webhookService struct {
	eventRepo repository.WebhookEventRepository
	orders    OrderService
	secrets   map[string]string
	retention time.Duration
	logger    zerolog.Logger
}

// NewWebhookService creates the webhook idempotency gate.
func NewWebhookService(
	eventRepo repository.WebhookEventRepository,
	orders OrderService,
	cfg config.WebhookConfig,
	logger zerolog.Logger,
) WebhookService {
	return &webhookService{
		eventRepo: eventRepo,
		orders:    orders,
		secrets:   cfg.Secrets,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		logger:    logger.With().Str("service", "webhook").Logger(),
	}
}

// Receive verifies, deduplicates and applies one provider event.
//
// The ledger insert happens before the side effect, so a crash mid-apply
// leaves a row in the received state; the provider's redelivery then finds
// that row and runs the side effect again, which every handler tolerates.
// A replay of an already-processed event returns a DuplicateEventError
// without touching any order.
func (s *webhookService) Receive(ctx context.Context, provider, eventID string, payload json.RawMessage, signature string) error {
	secret, ok := s.secrets[provider]
	if !ok {
		return model.NewNotFoundError("webhook provider", provider)
	}
	if eventID == "" {
		return model.NewValidationError("eventId", "is required")
	}

	if !verifySignature(secret, payload, signature) {
		s.logger.Warn().
			Str("provider", provider).
			Str("event_id", eventID).
			Msg("webhook signature rejected")
		return model.ErrInvalidSignature
	}

	inserted, existing, err := s.eventRepo.Insert(ctx, provider, eventID, payload)
	if err != nil {
		return err
	}
	if !inserted && existing.State == model.WebhookStateProcessed {
		s.logger.Info().
			Str("provider", provider).
			Str("event_id", eventID).
			Msg("duplicate webhook event ignored")
		return &model.DuplicateEventError{Provider: provider, EventID: eventID}
	}

	if err := s.apply(ctx, provider, eventID, payload); err != nil {
		return err
	}

	if err := s.eventRepo.MarkProcessed(ctx, provider, eventID); err != nil {
		// The side effect ran; redelivery will re-run it (idempotently) and
		// mark the row then.
		s.logger.Warn().
			Err(err).
			Str("provider", provider).
			Str("event_id", eventID).
			Msg("failed to mark webhook event processed")
		return err
	}

	return nil
}

// apply routes the notification to the order workflow it concerns.
func (s *webhookService) apply(ctx context.Context, provider, eventID string, payload json.RawMessage) error {
	var n model.PaymentNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return model.NewValidationError("payload", "malformed payment notification")
	}

	orderID, err := uuid.Parse(n.OrderID)
	if err != nil {
		return model.NewValidationError("orderId", "must be a valid UUID")
	}

	logger := s.logger.With().
		Str("provider", provider).
		Str("event_id", eventID).
		Str("order_id", n.OrderID).
		Str("event_type", n.EventType).
		Logger()

	switch n.EventType {
	case "payment.succeeded":
		err = s.orders.MarkPaid(ctx, orderID, n.PaymentRef)
	case "payment.failed":
		_, err = s.orders.Cancel(ctx, orderID)
		// A failed payment for an order that already moved on is stale
		// provider noise, not an error.
		var invalid *model.InvalidTransitionError
		if errors.As(err, &invalid) {
			logger.Info().Str("status", string(invalid.From)).Msg("ignoring stale payment failure")
			err = nil
		}
	case "payment.refunded":
		err = s.orders.CompleteRefund(ctx, orderID)
	default:
		// Providers emit far more event kinds than we act on; record and move on.
		logger.Info().Msg("unhandled webhook event type")
		return nil
	}

	if err != nil {
		logger.Error().Err(err).Msg("failed to apply webhook event")
		return err
	}

	logger.Info().Msg("webhook event applied")

	return nil
}

// PurgeExpired deletes processed events older than the retention window.
func (s *webhookService) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := s.eventRepo.PurgeProcessedBefore(ctx, time.Now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info().Int64("count", purged).Msg("webhook ledger purged")
	}
	return purged, nil
}

// verifySignature checks the hex HMAC-SHA256 of the raw body, with or
// without the conventional "sha256=" prefix, in constant time.
func verifySignature(secret string, payload []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return hmac.Equal(provided, mac.Sum(nil))
}
