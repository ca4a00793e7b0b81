package handler

import (
	"net/http"

	"storecore/internal/stock"

	"github.com/rs/zerolog"
)

// StockHandler exposes the stock ledger for admin tooling: unit inspection,
// restock and manual reservation adjustments.
type StockHandler struct {
	ledger stock.Ledger
	logger zerolog.Logger
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(ledger stock.Ledger, logger zerolog.Logger) *StockHandler {
	return &StockHandler{
		ledger: ledger,
		logger: logger.With().Str("handler", "stock").Logger(),
	}
}

type stockMutationRequest struct {
	Quantity int `json:"quantity"`
}

type bulkStockRequest struct {
	Items []stock.BulkItem `json:"items"`
}

// Get handles GET /api/stock/{unitCode} requests.
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	unit, err := h.ledger.Get(r.Context(), r.PathValue("unitCode"))
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if unit == nil {
		writeError(w, http.StatusNotFound, "unit not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, unit)
}

// Increment handles POST /api/stock/{unitCode}/increment requests (restock).
func (h *StockHandler) Increment(w http.ResponseWriter, r *http.Request) {
	var req stockMutationRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	m, err := h.ledger.Increment(r.Context(), r.PathValue("unitCode"), req.Quantity)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"stock": m.Stock})
}

// Decrement handles POST /api/stock/{unitCode}/decrement requests. A 409
// with the unit code means stock was insufficient; nothing changed.
func (h *StockHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	var req stockMutationRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	m, err := h.ledger.Decrement(r.Context(), r.PathValue("unitCode"), req.Quantity)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"stock": m.Stock})
}

// BulkDecrement handles POST /api/stock/bulk-decrement requests. All items
// succeed or none do.
func (h *StockHandler) BulkDecrement(w http.ResponseWriter, r *http.Request) {
	var req bulkStockRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	result, err := h.ledger.BulkDecrement(r.Context(), req.Items)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusConflict, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
