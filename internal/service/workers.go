package service

import (
	"context"
	"errors"

	"storecore/internal/job"
	"storecore/internal/model"

	"github.com/rs/zerolog"
)

// JobHandler wires job payloads to the services that act on them. Every
// method tolerates redelivery: payloads can arrive more than once.
type JobHandler struct {
	orders   OrderService
	carts    CartService
	webhooks WebhookService
	logger   zerolog.Logger
}

// NewJobHandler creates the background job handler.
func NewJobHandler(orders OrderService, carts CartService, webhooks WebhookService, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		orders:   orders,
		carts:    carts,
		webhooks: webhooks,
		logger:   logger.With().Str("component", "job-handler").Logger(),
	}
}

// HandleOrderConfirmation sends the order confirmation notification. An
// order that no longer exists is a stale job, not a failure.
func (h *JobHandler) HandleOrderConfirmation(ctx context.Context, p job.OrderConfirmation) error {
	result, err := h.orders.GetByID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if result == nil {
		h.logger.Warn().
			Str("order_id", p.OrderID.String()).
			Msg("order gone, dropping confirmation")
		return nil
	}

	// Notification delivery is a logging stub; rendering and transport live
	// outside this service.
	h.logger.Info().
		Str("order_id", p.OrderID.String()).
		Float64("total", result.Order.Total).
		Int("items", len(result.Items)).
		Msg("order confirmation sent")

	return nil
}

// HandleFulfillmentStart moves a paid order into fulfillment. Redelivery
// after the transition already happened lands on the service's no-op path.
func (h *JobHandler) HandleFulfillmentStart(ctx context.Context, p job.FulfillmentStart) error {
	err := h.orders.StartFulfillment(ctx, p.OrderID)

	var invalid *model.InvalidTransitionError
	if errors.As(err, &invalid) {
		// The order left the paid state through another path (refund); the
		// job has nothing left to do.
		h.logger.Info().
			Str("order_id", p.OrderID.String()).
			Str("status", string(invalid.From)).
			Msg("skipping fulfillment for order no longer payable")
		return nil
	}

	return err
}

// HandleLowStockAlert notifies purchasing about a unit at or below its
// threshold.
func (h *JobHandler) HandleLowStockAlert(ctx context.Context, p job.LowStockAlert) error {
	h.logger.Warn().
		Str("unit_code", p.UnitCode).
		Int("stock", p.Stock).
		Int("threshold", p.Threshold).
		Msg("low stock alert")
	return nil
}

// HandleBackInStock notifies subscribers that a unit is available again.
func (h *JobHandler) HandleBackInStock(ctx context.Context, p job.BackInStock) error {
	h.logger.Info().
		Str("unit_code", p.UnitCode).
		Int("stock", p.Stock).
		Msg("back in stock")
	return nil
}

// HandleCartSweep marks expired active carts abandoned.
func (h *JobHandler) HandleCartSweep(ctx context.Context, p job.CartSweep) error {
	_, err := h.carts.AbandonExpired(ctx)
	return err
}

// HandleWebhookLedgerPurge deletes processed webhook events past retention.
func (h *JobHandler) HandleWebhookLedgerPurge(ctx context.Context, p job.WebhookLedgerPurge) error {
	_, err := h.webhooks.PurgeExpired(ctx)
	return err
}
