package service

import (
	"context"
	"fmt"
	"time"

	"storecore/internal/config"
	"storecore/internal/model"
	"storecore/internal/pricing"
	"storecore/internal/promo"
	"storecore/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type cartService struct {
	cartRepo    repository.CartRepository
	unitRepo    repository.UnitRepository
	productRepo repository.ProductRepository
	tierRepo    repository.TierRepository
	engine      *pricing.Engine
	promoValid  promo.Validator
	checkout    config.CheckoutConfig
	logger      zerolog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(
	cartRepo repository.CartRepository,
	unitRepo repository.UnitRepository,
	productRepo repository.ProductRepository,
	tierRepo repository.TierRepository,
	engine *pricing.Engine,
	promoValid promo.Validator,
	checkout config.CheckoutConfig,
	logger zerolog.Logger,
) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		unitRepo:    unitRepo,
		productRepo: productRepo,
		tierRepo:    tierRepo,
		engine:      engine,
		promoValid:  promoValid,
		checkout:    checkout,
		logger:      logger.With().Str("service", "cart").Logger(),
	}
}

// GetOrCreate returns the owner's active cart, creating one if none exists.
func (s *cartService) GetOrCreate(ctx context.Context, owner CartOwner) (*model.Cart, error) {
	if (owner.UserID == "") == (owner.SessionID == "") {
		return nil, model.NewValidationError("owner", "exactly one of userId or sessionId is required")
	}

	var (
		cart *model.Cart
		err  error
	)
	if owner.UserID != "" {
		cart, err = s.cartRepo.GetActiveByUser(ctx, owner.UserID)
	} else {
		cart, err = s.cartRepo.GetActiveBySession(ctx, owner.SessionID)
	}
	if err != nil {
		return nil, err
	}
	if cart != nil {
		return cart, nil
	}

	now := time.Now()
	cart = &model.Cart{
		ID:        uuid.New(),
		Status:    model.CartStatusActive,
		ExpiresAt: now.Add(s.cartTTL()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if owner.UserID != "" {
		cart.UserID = &owner.UserID
	} else {
		cart.SessionID = &owner.SessionID
	}

	if err := s.cartRepo.Create(ctx, cart); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("cart_id", cart.ID.String()).
		Msg("cart created")

	return cart, nil
}

// Get retrieves a cart by ID.
func (s *cartService) Get(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	return s.cartRepo.GetByID(ctx, cartID)
}

// AddItem adds a unit to the cart, merging into an existing line for the
// same (product, unit) pair.
func (s *cartService) AddItem(ctx context.Context, cartID uuid.UUID, productID, unitCode string, qty int) (*model.Cart, error) {
	if qty < 1 {
		return nil, model.NewValidationError("quantity", "must be at least 1")
	}
	if unitCode == "" {
		return nil, model.NewValidationError("unitCode", "is required")
	}

	cart, err := s.mustActiveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	unit, err := s.unitRepo.GetByCode(ctx, unitCode)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, model.NewNotFoundError("unit", unitCode)
	}
	if !unit.Active {
		return nil, model.NewValidationError("unitCode", "unit is not available")
	}
	if unit.ProductID != productID {
		return nil, model.NewValidationError("productId", "unit does not belong to product")
	}

	requested := qty
	var line *model.CartItem
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID && cart.Items[i].UnitCode == unitCode {
			line = &cart.Items[i]
			requested += line.Quantity
			break
		}
	}

	if unit.Stock < requested {
		return nil, &model.StockConflictError{Units: []string{unitCode}}
	}

	if line != nil {
		line.Quantity = requested
	} else {
		cart.Items = append(cart.Items, model.CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: productID,
			UnitCode:  unitCode,
			Quantity:  qty,
		})
	}

	return s.recalculateAndSave(ctx, cart)
}

// UpdateQuantity changes a line's quantity after re-validating live stock.
func (s *cartService) UpdateQuantity(ctx context.Context, cartID, lineID uuid.UUID, qty int) (*model.Cart, error) {
	if qty < 1 {
		return nil, model.NewValidationError("quantity", "must be at least 1")
	}

	cart, err := s.mustActiveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	line := findLine(cart, lineID)
	if line == nil {
		return nil, model.NewNotFoundError("cart item", lineID.String())
	}

	unit, err := s.unitRepo.GetByCode(ctx, line.UnitCode)
	if err != nil {
		return nil, err
	}
	if unit == nil || !unit.Active {
		return nil, model.NewNotFoundError("unit", line.UnitCode)
	}
	if unit.Stock < qty {
		return nil, &model.StockConflictError{Units: []string{line.UnitCode}}
	}

	line.Quantity = qty

	return s.recalculateAndSave(ctx, cart)
}

// RemoveItem removes a line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cartID, lineID uuid.UUID) (*model.Cart, error) {
	cart, err := s.mustActiveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	kept := cart.Items[:0]
	found := false
	for _, item := range cart.Items {
		if item.ID == lineID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return nil, model.NewNotFoundError("cart item", lineID.String())
	}
	cart.Items = kept

	return s.recalculateAndSave(ctx, cart)
}

// Clear removes every line from the cart.
func (s *cartService) Clear(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	cart, err := s.mustActiveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	cart.Items = nil

	return s.recalculateAndSave(ctx, cart)
}

// Recalculate refreshes prices and stock from the source of truth.
func (s *cartService) Recalculate(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	cart, err := s.mustActiveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	return s.recalculateAndSave(ctx, cart)
}

// ValidateStock classifies each cart line against live stock.
func (s *cartService) ValidateStock(ctx context.Context, cartID uuid.UUID) ([]model.StockCheck, error) {
	cart, err := s.cartRepo.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, model.NewNotFoundError("cart", cartID.String())
	}

	units, err := s.liveUnits(ctx, cart)
	if err != nil {
		return nil, err
	}

	checks := make([]model.StockCheck, 0, len(cart.Items))
	for _, item := range cart.Items {
		check := model.StockCheck{
			ItemID:    item.ID,
			UnitCode:  item.UnitCode,
			Requested: item.Quantity,
		}

		u, ok := units[item.UnitCode]
		if ok && u.Active {
			check.Available = u.Stock
		}

		switch {
		case check.Available >= check.Requested:
			check.State = model.StockStateOK
		case check.Available > 0:
			check.State = model.StockStateNeedsAdjustment
		default:
			check.State = model.StockStateOut
		}

		checks = append(checks, check)
	}

	return checks, nil
}

// AdjustQuantities clamps short lines down to available stock, removes
// out-of-stock lines and recalculates.
func (s *cartService) AdjustQuantities(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	cart, err := s.mustActiveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	units, err := s.liveUnits(ctx, cart)
	if err != nil {
		return nil, err
	}

	kept := cart.Items[:0]
	for _, item := range cart.Items {
		u, ok := units[item.UnitCode]
		if !ok || !u.Active || u.Stock < 1 {
			s.logger.Info().
				Str("cart_id", cart.ID.String()).
				Str("unit_code", item.UnitCode).
				Msg("removing out-of-stock cart line")
			continue
		}
		if item.Quantity > u.Stock {
			s.logger.Info().
				Str("cart_id", cart.ID.String()).
				Str("unit_code", item.UnitCode).
				Int("from", item.Quantity).
				Int("to", u.Stock).
				Msg("clamping cart line to available stock")
			item.Quantity = u.Stock
		}
		kept = append(kept, item)
	}
	cart.Items = kept

	return s.recalculateAndSave(ctx, cart)
}

// Merge folds a guest cart into the user's cart. Lines merge per (product,
// unit) pair, quantities capped at live stock; lines whose unit vanished or
// has no stock are skipped. The guest cart is always marked merged.
func (s *cartService) Merge(ctx context.Context, guestCartID uuid.UUID, userID string) (*model.Cart, error) {
	if userID == "" {
		return nil, model.NewValidationError("userId", "is required")
	}

	guest, err := s.cartRepo.GetByID(ctx, guestCartID)
	if err != nil {
		return nil, err
	}
	if guest == nil {
		return nil, model.NewNotFoundError("cart", guestCartID.String())
	}
	if guest.Status != model.CartStatusActive {
		return nil, model.ErrCartNotActive
	}

	target, err := s.GetOrCreate(ctx, CartOwner{UserID: userID})
	if err != nil {
		return nil, err
	}

	units, err := s.liveUnits(ctx, guest)
	if err != nil {
		return nil, err
	}

	for _, g := range guest.Items {
		u, ok := units[g.UnitCode]
		if !ok || !u.Active || u.Stock < 1 {
			s.logger.Info().
				Str("guest_cart_id", guest.ID.String()).
				Str("unit_code", g.UnitCode).
				Msg("skipping unavailable line during merge")
			continue
		}

		var line *model.CartItem
		for i := range target.Items {
			if target.Items[i].ProductID == g.ProductID && target.Items[i].UnitCode == g.UnitCode {
				line = &target.Items[i]
				break
			}
		}

		if line != nil {
			merged := line.Quantity + g.Quantity
			if merged > u.Stock {
				merged = u.Stock
			}
			line.Quantity = merged
		} else {
			qty := g.Quantity
			if qty > u.Stock {
				qty = u.Stock
			}
			target.Items = append(target.Items, model.CartItem{
				ID:        uuid.New(),
				CartID:    target.ID,
				ProductID: g.ProductID,
				UnitCode:  g.UnitCode,
				Quantity:  qty,
			})
		}
	}

	target, err = s.recalculateAndSave(ctx, target)
	if err != nil {
		return nil, err
	}

	if err := s.cartRepo.SetStatus(ctx, guest.ID, model.CartStatusMerged); err != nil {
		return nil, fmt.Errorf("failed to mark guest cart merged: %w", err)
	}

	s.logger.Info().
		Str("guest_cart_id", guest.ID.String()).
		Str("cart_id", target.ID.String()).
		Msg("guest cart merged")

	return target, nil
}

// ApplyPromo validates and attaches a promo code to the cart.
func (s *cartService) ApplyPromo(ctx context.Context, cartID uuid.UUID, code string) (*model.Cart, error) {
	cart, err := s.mustActiveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if err := s.promoValid.Validate(ctx, code); err != nil {
		return nil, err
	}

	cart.PromoCode = &code

	return s.recalculateAndSave(ctx, cart)
}

// RemovePromo detaches the cart's promo code.
func (s *cartService) RemovePromo(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	cart, err := s.mustActiveCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	cart.PromoCode = nil

	return s.recalculateAndSave(ctx, cart)
}

// AbandonExpired sweeps active carts past their expiry.
func (s *cartService) AbandonExpired(ctx context.Context) (int64, error) {
	swept, err := s.cartRepo.AbandonExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.logger.Info().Int64("count", swept).Msg("expired carts abandoned")
	}
	return swept, nil
}

// mustActiveCart loads a cart and rejects terminal or abandoned ones.
func (s *cartService) mustActiveCart(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
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
	return cart, nil
}

// liveUnits fetches the current unit rows for every line of a cart.
func (s *cartService) liveUnits(ctx context.Context, cart *model.Cart) (map[string]model.Unit, error) {
	if len(cart.Items) == 0 {
		return map[string]model.Unit{}, nil
	}
	codes := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		codes = append(codes, item.UnitCode)
	}
	return s.unitRepo.GetByCodes(ctx, codes)
}

// recalculateAndSave reprices every line from live unit, product and tier
// data, re-derives the totals, extends the expiry and persists the cart.
func (s *cartService) recalculateAndSave(ctx context.Context, cart *model.Cart) (*model.Cart, error) {
	units, err := s.liveUnits(ctx, cart)
	if err != nil {
		return nil, err
	}

	productIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products := map[string]model.Product{}
	if len(productIDs) > 0 {
		products, err = s.productRepo.GetByIDs(ctx, productIDs)
		if err != nil {
			return nil, err
		}
	}

	var tier *model.Tier
	if cart.UserID != nil {
		tier, err = s.tierRepo.GetForUser(ctx, *cart.UserID)
		if err != nil {
			return nil, err
		}
	}

	subtotal := 0.0
	for i := range cart.Items {
		item := &cart.Items[i]
		item.Position = i

		u, uok := units[item.UnitCode]
		p, pok := products[item.ProductID]
		if !uok || !pok || !u.Active {
			// The line survives with zero availability; the customer resolves
			// it through validate-stock or adjust.
			item.AvailableStock = 0
			item.Subtotal = pricing.Round2(item.UnitPrice * float64(item.Quantity))
			subtotal += item.Subtotal
			continue
		}

		quote := s.engine.QuoteUnit(&u, &p, tier)
		item.UnitPrice = quote.FinalPrice
		item.OriginalPrice = quote.OriginalPrice
		item.DiscountPercent = quote.DiscountPercent
		item.TierName = nil
		if quote.HasDiscount {
			name := quote.TierName
			item.TierName = &name
		}
		item.Subtotal = pricing.Round2(quote.FinalPrice * float64(item.Quantity))
		item.AvailableStock = u.Stock

		subtotal += item.Subtotal
	}

	cart.Totals = s.deriveTotals(ctx, cart, pricing.Round2(subtotal))
	cart.ExpiresAt = time.Now().Add(s.cartTTL())

	if err := s.cartRepo.Save(ctx, cart); err != nil {
		return nil, err
	}

	return cart, nil
}

// deriveTotals computes the cart aggregates from the line subtotal. Prices
// are tax-inclusive, so tax is reported as zero rather than added on top.
func (s *cartService) deriveTotals(ctx context.Context, cart *model.Cart, subtotal float64) model.CartTotals {
	totals := model.CartTotals{Subtotal: subtotal}

	if len(cart.Items) > 0 && subtotal < s.checkout.FreeShippingThreshold {
		totals.Shipping = s.checkout.FlatShippingFee
	}

	if cart.PromoCode != nil {
		if err := s.promoValid.Validate(ctx, *cart.PromoCode); err != nil {
			s.logger.Warn().
				Str("cart_id", cart.ID.String()).
				Str("promo_code", *cart.PromoCode).
				Msg("promo code no longer valid, dropping")
			cart.PromoCode = nil
		} else {
			totals.Discount = pricing.Round2(subtotal * s.checkout.PromoDiscountPercent / 100)
		}
	}

	total := pricing.Round2(totals.Subtotal + totals.Shipping + totals.Tax - totals.Discount)
	if total < 0 {
		total = 0
	}
	totals.Total = total

	return totals
}

func (s *cartService) cartTTL() time.Duration {
	return time.Duration(s.checkout.CartTTLHours) * time.Hour
}

func findLine(cart *model.Cart, lineID uuid.UUID) *model.CartItem {
	for i := range cart.Items {
		if cart.Items[i].ID == lineID {
			return &cart.Items[i]
		}
	}
	return nil
}
