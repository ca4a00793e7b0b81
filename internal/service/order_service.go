package service

import (
	"context"
	"fmt"
	"time"

	"storecore/internal/config"
	"storecore/internal/job"
	"storecore/internal/model"
	"storecore/internal/pricing"
	"storecore/internal/repository"
	"storecore/internal/stock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Enqueuer schedules fire-and-forget side-effect jobs. Satisfied by
// *job.Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, p job.Payload) error
}

type orderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	unitRepo    repository.UnitRepository
	productRepo repository.ProductRepository
	tierRepo    repository.TierRepository
	ledger      stock.Ledger
	engine      *pricing.Engine
	enqueuer    Enqueuer
	checkout    config.CheckoutConfig
	logger      zerolog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	unitRepo repository.UnitRepository,
	productRepo repository.ProductRepository,
	tierRepo repository.TierRepository,
	ledger stock.Ledger,
	engine *pricing.Engine,
	enqueuer Enqueuer,
	checkout config.CheckoutConfig,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		unitRepo:    unitRepo,
		productRepo: productRepo,
		tierRepo:    tierRepo,
		ledger:      ledger,
		engine:      engine,
		enqueuer:    enqueuer,
		checkout:    checkout,
		logger:      logger.With().Str("service", "order").Logger(),
	}
}

// Create snapshots the cart into an immutable order and reserves stock in
// the same transaction. On any stock shortage the whole transaction rolls
// back and a StockConflictError names every failing unit.
func (s *orderService) Create(ctx context.Context, cartID uuid.UUID, paymentIntent string) (*OrderResult, error) {
	cart, err := s.cartRepo.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, model.NewNotFoundError("cart", cartID.String())
	}
	if cart.Status != model.CartStatusActive {
		return nil, model.ErrCartNotActive
	}
	if len(cart.Items) == 0 {
		return nil, model.NewValidationError("cart", "cannot check out an empty cart")
	}

	order, items, bulk, err := s.snapshot(ctx, cart, paymentIntent)
	if err != nil {
		return nil, err
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := s.ledger.TxBulkDecrement(ctx, tx, bulk)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		// Rolled back by the deferred call; nothing persisted.
		s.logger.Info().
			Str("cart_id", cartID.String()).
			Strs("failed_units", result.FailedUnits).
			Msg("order rejected on stock conflict")
		return nil, &model.StockConflictError{Units: result.FailedUnits}
	}

	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := s.orderRepo.CreateOrderItems(ctx, tx, items); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID.String()).Msg("failed to commit order")
		return nil, &model.TransactionAbortError{Op: "order creation", Err: err}
	}

	// The order exists now; everything below is best-effort follow-up.
	s.ledger.FinishMutations(ctx, result.Mutations)

	if err := s.enqueuer.Enqueue(ctx, job.OrderConfirmation{OrderID: order.ID}); err != nil {
		s.logger.Warn().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to enqueue order confirmation")
	}

	if err := s.cartRepo.SetStatus(ctx, cart.ID, model.CartStatusCheckedOut); err != nil {
		s.logger.Warn().
			Err(err).
			Str("cart_id", cart.ID.String()).
			Msg("failed to mark cart checked out")
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("cart_id", cart.ID.String()).
		Float64("total", order.Total).
		Int("items", len(items)).
		Msg("order created")

	return &OrderResult{Order: *order, Items: items}, nil
}

// snapshot prices the cart's lines fresh and builds the order, its items and
// the stock reservation request. Line prices come from the live catalogue,
// not the cart's cached display values.
func (s *orderService) snapshot(ctx context.Context, cart *model.Cart, paymentIntent string) (*model.Order, []model.OrderItem, []stock.BulkItem, error) {
	codes := make([]string, 0, len(cart.Items))
	productIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		codes = append(codes, item.UnitCode)
		productIDs = append(productIDs, item.ProductID)
	}

	units, err := s.unitRepo.GetByCodes(ctx, codes)
	if err != nil {
		return nil, nil, nil, err
	}
	products, err := s.productRepo.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, nil, nil, err
	}

	var tier *model.Tier
	if cart.UserID != nil {
		tier, err = s.tierRepo.GetForUser(ctx, *cart.UserID)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	orderID := uuid.New()
	items := make([]model.OrderItem, 0, len(cart.Items))
	bulk := make([]stock.BulkItem, 0, len(cart.Items))
	var missing []string
	subtotal := 0.0

	for _, line := range cart.Items {
		u, uok := units[line.UnitCode]
		p, pok := products[line.ProductID]
		if !uok || !pok || !u.Active {
			missing = append(missing, line.UnitCode)
			continue
		}

		quote := s.engine.QuoteUnit(&u, &p, tier)
		lineSubtotal := pricing.Round2(quote.FinalPrice * float64(line.Quantity))
		subtotal += lineSubtotal

		items = append(items, model.OrderItem{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitCode:    u.Code,
			UnitPrice:   quote.FinalPrice,
			Quantity:    line.Quantity,
			Subtotal:    lineSubtotal,
		})
		bulk = append(bulk, stock.BulkItem{UnitCode: u.Code, Quantity: line.Quantity})
	}

	if len(missing) > 0 {
		return nil, nil, nil, &model.StockConflictError{Units: missing}
	}

	subtotal = pricing.Round2(subtotal)

	shipping := 0.0
	if subtotal < s.checkout.FreeShippingThreshold {
		shipping = s.checkout.FlatShippingFee
	}

	discount := 0.0
	if cart.PromoCode != nil {
		discount = pricing.Round2(subtotal * s.checkout.PromoDiscountPercent / 100)
	}

	total := pricing.Round2(subtotal + shipping - discount)
	if total < 0 {
		total = 0
	}

	now := time.Now()
	order := &model.Order{
		ID:        orderID,
		UserID:    cart.UserID,
		Status:    model.OrderStatusStockReserved,
		Subtotal:  subtotal,
		Shipping:  shipping,
		Discount:  discount,
		Total:     total,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if paymentIntent != "" {
		order.PaymentRef = &paymentIntent
	}

	return order, items, bulk, nil
}

// GetByID retrieves an order with its items.
func (s *orderService) GetByID(ctx context.Context, id uuid.UUID) (*OrderResult, error) {
	order, items, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}
	return &OrderResult{Order: *order, Items: items}, nil
}

// Cancel cancels an unpaid order and releases its reserved stock. The
// optimistic transition runs first so a concurrent payment or cancel cannot
// release the same reservation twice.
func (s *orderService) Cancel(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order, items, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.NewNotFoundError("order", orderID.String())
	}
	if !order.Status.Cancellable() {
		return nil, &model.InvalidTransitionError{From: order.Status, To: model.OrderStatusCancelled}
	}

	err = s.orderRepo.TransitionStatus(ctx, orderID, order.Status, model.OrderStatusCancelled, order.Version, nil)
	if err != nil {
		return nil, err
	}

	if order.Status == model.OrderStatusStockReserved {
		if err := s.releaseStock(ctx, orderID, items); err != nil {
			return nil, err
		}
	}

	order.Status = model.OrderStatusCancelled
	order.Version++

	s.logger.Info().Str("order_id", orderID.String()).Msg("order cancelled")

	return order, nil
}

// MarkPaid records a payment confirmation. Confirming an already-paid order
// is a no-op, but the fulfillment job is re-enqueued either way so a crash
// between the transition and the enqueue cannot lose it.
func (s *orderService) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	order, _, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return model.NewNotFoundError("order", orderID.String())
	}

	if order.Status != model.OrderStatusPaid {
		if !order.Status.CanTransitionTo(model.OrderStatusPaid) {
			return &model.InvalidTransitionError{From: order.Status, To: model.OrderStatusPaid}
		}

		var ref *string
		if paymentRef != "" {
			ref = &paymentRef
		}
		err = s.orderRepo.TransitionStatus(ctx, orderID, order.Status, model.OrderStatusPaid, order.Version, ref)
		if err != nil {
			return err
		}

		s.logger.Info().Str("order_id", orderID.String()).Msg("order paid")
	}

	if err := s.enqueuer.Enqueue(ctx, job.FulfillmentStart{OrderID: orderID}); err != nil {
		return fmt.Errorf("failed to enqueue fulfillment: %w", err)
	}

	return nil
}

// StartFulfillment moves a paid order into fulfillment. An order already in
// or past fulfillment is a no-op, keeping redelivered jobs harmless.
func (s *orderService) StartFulfillment(ctx context.Context, orderID uuid.UUID) error {
	order, _, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return model.NewNotFoundError("order", orderID.String())
	}
	if order.Status == model.OrderStatusFulfilling || order.Status == model.OrderStatusCompleted {
		return nil
	}
	if !order.Status.CanTransitionTo(model.OrderStatusFulfilling) {
		return &model.InvalidTransitionError{From: order.Status, To: model.OrderStatusFulfilling}
	}

	return s.orderRepo.TransitionStatus(ctx, orderID, order.Status, model.OrderStatusFulfilling, order.Version, nil)
}

// Complete finishes fulfillment.
func (s *orderService) Complete(ctx context.Context, orderID uuid.UUID) error {
	return s.transition(ctx, orderID, model.OrderStatusCompleted)
}

// InitiateRefund starts the refund flow for a paid order.
func (s *orderService) InitiateRefund(ctx context.Context, orderID uuid.UUID) error {
	return s.transition(ctx, orderID, model.OrderStatusRefundInitiated)
}

// CompleteRefund finishes the refund and returns the stock to inventory.
func (s *orderService) CompleteRefund(ctx context.Context, orderID uuid.UUID) error {
	order, items, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return model.NewNotFoundError("order", orderID.String())
	}
	if !order.Status.CanTransitionTo(model.OrderStatusRefunded) {
		return &model.InvalidTransitionError{From: order.Status, To: model.OrderStatusRefunded}
	}

	err = s.orderRepo.TransitionStatus(ctx, orderID, order.Status, model.OrderStatusRefunded, order.Version, nil)
	if err != nil {
		return err
	}

	if err := s.releaseStock(ctx, orderID, items); err != nil {
		return err
	}

	s.logger.Info().Str("order_id", orderID.String()).Msg("order refunded")

	return nil
}

// transition applies a plain optimistic state change with no side effects.
func (s *orderService) transition(ctx context.Context, orderID uuid.UUID, to model.OrderStatus) error {
	order, _, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return model.NewNotFoundError("order", orderID.String())
	}
	if !order.Status.CanTransitionTo(to) {
		return &model.InvalidTransitionError{From: order.Status, To: to}
	}

	return s.orderRepo.TransitionStatus(ctx, orderID, order.Status, to, order.Version, nil)
}

// releaseStock returns an order's reserved quantities to inventory. The
// order has already left the releasing state, so a failure here needs
// operator attention rather than a retry of the transition.
func (s *orderService) releaseStock(ctx context.Context, orderID uuid.UUID, items []model.OrderItem) error {
	bulk := make([]stock.BulkItem, 0, len(items))
	for _, item := range items {
		bulk = append(bulk, stock.BulkItem{UnitCode: item.UnitCode, Quantity: item.Quantity})
	}
	if len(bulk) == 0 {
		return nil
	}

	if err := s.ledger.BulkIncrement(ctx, bulk); err != nil {
		s.logger.Error().
			Err(err).
			Str("order_id", orderID.String()).
			Msg("failed to release reserved stock")
		return fmt.Errorf("failed to release stock for order %s: %w", orderID, err)
	}

	return nil
}
