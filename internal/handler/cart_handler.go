package handler

import (
	"net/http"

	"storecore/internal/model"
	"storecore/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CartHandler handles cart-related HTTP requests.
type CartHandler struct {
	service service.CartService
	logger  zerolog.Logger
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(service service.CartService, logger zerolog.Logger) *CartHandler {
	return &CartHandler{
		service: service,
		logger:  logger.With().Str("handler", "cart").Logger(),
	}
}

type createCartRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	UnitCode  string `json:"unitCode"`
	Quantity  int    `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type mergeRequest struct {
	UserID string `json:"userId"`
}

type promoRequest struct {
	Code string `json:"code"`
}

// GetOrCreate handles POST /api/carts requests.
func (h *CartHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	cart, err := h.service.GetOrCreate(r.Context(), service.CartOwner{
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// GetByID handles GET /api/carts/{id} requests.
func (h *CartHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.Get(r.Context(), cartID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if cart == nil {
		writeError(w, http.StatusNotFound, "cart not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// AddItem handles POST /api/carts/{id}/items requests.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	cart, err := h.service.AddItem(r.Context(), cartID, req.ProductID, req.UnitCode, req.Quantity)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// UpdateItem handles PUT /api/carts/{id}/items/{lineId} requests.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	cart, err := h.service.UpdateQuantity(r.Context(), cartID, lineID, req.Quantity)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// RemoveItem handles DELETE /api/carts/{id}/items/{lineId} requests.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	lineID, ok := h.lineID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.RemoveItem(r.Context(), cartID, lineID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// Clear handles DELETE /api/carts/{id}/items requests.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.Clear(r.Context(), cartID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// Recalculate handles POST /api/carts/{id}/recalculate requests.
func (h *CartHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.Recalculate(r.Context(), cartID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// ValidateStock handles GET /api/carts/{id}/stock requests.
func (h *CartHandler) ValidateStock(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	checks, err := h.service.ValidateStock(r.Context(), cartID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]model.StockCheck{"items": checks})
}

// AdjustQuantities handles POST /api/carts/{id}/adjust requests.
func (h *CartHandler) AdjustQuantities(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.AdjustQuantities(r.Context(), cartID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// Merge handles POST /api/carts/{id}/merge requests. The path cart is the
// guest cart being folded into the user's cart.
func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	guestCartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	var req mergeRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	cart, err := h.service.Merge(r.Context(), guestCartID, req.UserID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// ApplyPromo handles POST /api/carts/{id}/promo requests.
func (h *CartHandler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	var req promoRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	cart, err := h.service.ApplyPromo(r.Context(), cartID, req.Code)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

// RemovePromo handles DELETE /api/carts/{id}/promo requests.
func (h *CartHandler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}

	cart, err := h.service.RemovePromo(r.Context(), cartID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) cartID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cart ID format", h.logger)
		return uuid.Nil, false
	}
	return id, true
}

func (h *CartHandler) lineID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("lineId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cart item ID format", h.logger)
		return uuid.Nil, false
	}
	return id, true
}
