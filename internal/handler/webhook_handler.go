package handler

import (
	"errors"
	"io"
	"net/http"

	"storecore/internal/model"
	"storecore/internal/service"

	"github.com/rs/zerolog"
)

// maxWebhookBody caps webhook payload size at 1 MiB.
const maxWebhookBody = 1 << 20

// WebhookHandler is the HTTP entry point for payment provider callbacks.
type WebhookHandler struct {
	service service.WebhookService
	logger  zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service service.WebhookService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logger.With().Str("handler", "webhook").Logger(),
	}
}

// Receive handles POST /webhooks/{provider} requests. The raw body is
// verified against the X-Signature header; X-Event-ID carries the
// provider's unique event identifier. Replays of already-processed events
// are acknowledged with 200 so the provider stops redelivering.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", h.logger)
		return
	}

	eventID := r.Header.Get("X-Event-ID")
	signature := r.Header.Get("X-Signature")

	err = h.service.Receive(r.Context(), provider, eventID, body, signature)

	var dup *model.DuplicateEventError
	if errors.As(err, &dup) {
		// Already applied; acknowledge so the provider stops retrying.
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
