package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"furniture-store/internal/cart"
	"furniture-store/internal/checkout"
	"furniture-store/internal/model"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code.
func writeError(w http.ResponseWriter, r *http.Request, status int, resp model.ErrorResponse, logger zerolog.Logger) {
	resp.CorrelationID = chimw.GetReqID(r.Context())

	ev := logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Str("error", resp.Error).Str("message", resp.Message).Int("status", status).
		Str("request_id", resp.CorrelationID).Msg("handler error")

	writeJSON(w, status, resp)
}

// writeDomainError maps err onto a status code and error body.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, r, status, resp, logger)
}

func errorResponse(err error) (int, model.ErrorResponse) {
	var (
		validation   *checkout.ValidationError
		unreconciled *checkout.UnreconciledError
		exceeded     *cart.QuantityExceededError
		domain       *model.DomainError
	)

	switch {
	case errors.As(err, &unreconciled):
		return http.StatusAccepted, model.ErrorResponse{
			Error:     model.ErrCodeSucceededUnreconciled,
			Message:   fmt.Sprintf("Payment received. Contact support with reference %s.", unreconciled.Reference),
			Reference: unreconciled.Reference,
		}
	case errors.As(err, &validation):
		return http.StatusBadRequest, model.ErrorResponse{
			Error:         model.ErrCodeValidation,
			Message:       model.ErrValidation.Message,
			MissingFields: validation.Fields,
		}
	case errors.As(err, &exceeded):
		return http.StatusConflict, model.ErrorResponse{
			Error:   model.ErrCodeQuantityExceeded,
			Message: fmt.Sprintf("%s. %d unit(s) were not added.", model.ErrQuantityExceeded.Message, exceeded.Rejected),
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, model.ErrorResponse{Error: model.ErrCodeInternalError, Message: "The request timed out"}
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, model.ErrorResponse{Error: model.ErrCodeInternalError, Message: "The request was cancelled"}
	case errors.As(err, &domain):
		return domainStatus(domain), model.ErrorResponse{Error: domain.Code, Message: domain.Message}
	}

	return http.StatusInternalServerError, model.ErrorResponse{
		Error:   model.ErrCodeInternalError,
		Message: "An unexpected error occurred",
	}
}

func domainStatus(e *model.DomainError) int {
	switch e {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrUnauthorised:
		return http.StatusUnauthorized
	case model.ErrCardDeclined:
		return http.StatusPaymentRequired
	case model.ErrLineNotFound, model.ErrProductNotFound, model.ErrOrderNotFound:
		return http.StatusNotFound
	case model.ErrQuantityExceeded, model.ErrCheckoutInFlight, model.ErrInvalidTransition:
		return http.StatusConflict
	case model.ErrInvalidQuantity:
		return http.StatusUnprocessableEntity
	case model.ErrIntentCreationFailed, model.ErrGatewayError:
		return http.StatusBadGateway
	case model.ErrOrderCreationFailed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeJSON reads the request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, logger zerolog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrorResponse{
			Error:   model.ErrCodeInvalidJSON,
			Message: "invalid request body",
		}, logger)
		return false
	}
	return true
}
