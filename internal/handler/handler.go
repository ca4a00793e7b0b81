package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"storecore/internal/model"

	"github.com/rs/zerolog"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string   `json:"error"`
	Code  string   `json:"code,omitempty"`
	Units []string `json:"units,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string, logger zerolog.Logger) {
	logger.Error().Str("error", message).Int("status", status).Msg("handler error")
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError maps the error taxonomy to HTTP. This is the only place
// domain errors meet status codes; services below never see HTTP.
func writeDomainError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	var (
		validation *model.ValidationError
		notFound   *model.NotFoundError
		conflict   *model.StockConflictError
		transition *model.InvalidTransitionError
		abort      *model.TransactionAbortError
		domain     *model.DomainError
	)

	resp := ErrorResponse{Error: err.Error(), Code: model.ErrCodeInternalError}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		resp.Code = model.ErrCodeValidation
	case errors.As(err, &notFound):
		status = http.StatusNotFound
		resp.Code = model.ErrCodeNotFound
	case errors.As(err, &conflict):
		status = http.StatusConflict
		resp.Code = model.ErrCodeStockConflict
		resp.Units = conflict.Units
	case errors.As(err, &transition):
		status = http.StatusConflict
		resp.Code = model.ErrCodeInvalidTransition
	case errors.As(err, &abort):
		status = http.StatusConflict
		resp.Code = model.ErrCodeTransactionAbort
	case errors.Is(err, model.ErrCartNotActive):
		status = http.StatusConflict
		resp.Code = model.ErrCodeValidation
	case errors.As(err, &domain):
		resp.Code = domain.Code
		switch domain.Code {
		case model.ErrCodeInvalidSignature:
			status = http.StatusUnauthorized
		default:
			status = http.StatusBadRequest
		}
	default:
		// Internal errors keep their detail in the logs, not the response.
		resp.Error = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("handler error")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	writeJSON(w, status, resp)
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
