package handler

import (
	"net/http"

	"storecore/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	service service.OrderService
	logger  zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(service service.OrderService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger.With().Str("handler", "order").Logger(),
	}
}

type createOrderRequest struct {
	CartID        string `json:"cartId"`
	PaymentIntent string `json:"paymentIntent"`
}

// Create handles POST /api/orders requests.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	cartID, err := uuid.Parse(req.CartID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cart ID format", h.logger)
		return
	}

	result, err := h.service.Create(r.Context(), cartID, req.PaymentIntent)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetByID handles GET /api/orders/{id} requests.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	result, err := h.service.GetByID(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "order not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Cancel handles POST /api/orders/{id}/cancel requests.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.Cancel(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// InitiateRefund handles POST /api/orders/{id}/refund requests.
func (h *OrderHandler) InitiateRefund(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	if err := h.service.InitiateRefund(r.Context(), orderID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refund_initiated"})
}

// Complete handles POST /api/orders/{id}/complete requests.
func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	if err := h.service.Complete(r.Context(), orderID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *OrderHandler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID format", h.logger)
		return uuid.Nil, false
	}
	return id, true
}
