package handler

import (
	"net/http"
	"strconv"

	"storecore/internal/repository"

	"github.com/rs/zerolog"
)

// ProductHandler handles read-only catalogue requests.
type ProductHandler struct {
	products repository.ProductRepository
	logger   zerolog.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(products repository.ProductRepository, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		logger:   logger.With().Str("handler", "product").Logger(),
	}
}

// GetAll handles GET /api/products requests with limit/offset pagination.
func (h *ProductHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	products, err := h.products.GetAll(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

// GetByID handles GET /api/products/{id} requests.
func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	product, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if product == nil {
		writeError(w, http.StatusNotFound, "product not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
