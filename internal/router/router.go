package router

import (
	"net/http"

	"storecore/internal/handler"
	"storecore/internal/middleware"

	"github.com/rs/zerolog"
)

// New creates the HTTP router with all routes and middleware configured.
func New(
	productHandler *handler.ProductHandler,
	cartHandler *handler.CartHandler,
	orderHandler *handler.OrderHandler,
	stockHandler *handler.StockHandler,
	webhookHandler *handler.WebhookHandler,
	apiKey string,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no authentication required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	// Catalogue
	mux.HandleFunc("GET /api/products", productHandler.GetAll)
	mux.HandleFunc("GET /api/products/{id}", productHandler.GetByID)

	// Carts
	mux.HandleFunc("POST /api/carts", cartHandler.GetOrCreate)
	mux.HandleFunc("GET /api/carts/{id}", cartHandler.GetByID)
	mux.HandleFunc("POST /api/carts/{id}/items", cartHandler.AddItem)
	mux.HandleFunc("DELETE /api/carts/{id}/items", cartHandler.Clear)
	mux.HandleFunc("PUT /api/carts/{id}/items/{lineId}", cartHandler.UpdateItem)
	mux.HandleFunc("DELETE /api/carts/{id}/items/{lineId}", cartHandler.RemoveItem)
	mux.HandleFunc("POST /api/carts/{id}/recalculate", cartHandler.Recalculate)
	mux.HandleFunc("GET /api/carts/{id}/stock", cartHandler.ValidateStock)
	mux.HandleFunc("POST /api/carts/{id}/adjust", cartHandler.AdjustQuantities)
	mux.HandleFunc("POST /api/carts/{id}/merge", cartHandler.Merge)
	mux.HandleFunc("POST /api/carts/{id}/promo", cartHandler.ApplyPromo)
	mux.HandleFunc("DELETE /api/carts/{id}/promo", cartHandler.RemovePromo)

	// Orders
	mux.HandleFunc("POST /api/orders", orderHandler.Create)
	mux.HandleFunc("GET /api/orders/{id}", orderHandler.GetByID)
	mux.HandleFunc("POST /api/orders/{id}/cancel", orderHandler.Cancel)
	mux.HandleFunc("POST /api/orders/{id}/refund", orderHandler.InitiateRefund)
	mux.HandleFunc("POST /api/orders/{id}/complete", orderHandler.Complete)

	// Stock ledger (admin tooling)
	mux.HandleFunc("GET /api/stock/{unitCode}", stockHandler.Get)
	mux.HandleFunc("POST /api/stock/{unitCode}/increment", stockHandler.Increment)
	mux.HandleFunc("POST /api/stock/{unitCode}/decrement", stockHandler.Decrement)
	mux.HandleFunc("POST /api/stock/bulk-decrement", stockHandler.BulkDecrement)

	// Payment provider callbacks (HMAC-authenticated, no API key)
	mux.HandleFunc("POST /webhooks/{provider}", webhookHandler.Receive)

	// Apply middleware in order: Recovery -> Logging -> CORS -> APIKeyAuth
	var h http.Handler = mux
	h = middleware.APIKeyAuth(apiKey, logger)(h)
	h = middleware.CORS(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Recovery(logger)(h)

	return h
}
