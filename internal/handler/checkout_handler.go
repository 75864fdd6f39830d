package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"furniture-store/internal/checkout"
	"furniture-store/internal/middleware"
	"furniture-store/internal/model"
	"furniture-store/internal/payment"
	"furniture-store/internal/receipt"
)

// Checkout is the orchestrator surface the handler uses.
type Checkout interface {
	Submit(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	InFlight(sessionID string) bool
	State(sessionID string) checkout.State
}

// CheckoutHandler handles checkout HTTP requests.
type CheckoutHandler struct {
	checkout Checkout
	logger   zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(c Checkout, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: c,
		logger:   logger.With().Str("handler", "checkout").Logger(),
	}
}

type checkoutRequest struct {
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
	PaymentMethodID string                `json:"paymentMethodId,omitempty"`
}

// CheckoutResponse is returned after an order is placed.
type CheckoutResponse struct {
	OrderID uuid.UUID    `json:"orderId"`
	Receipt receipt.View `json:"receipt"`
}

// CheckoutStatus exposes whether submit should be enabled.
type CheckoutStatus struct {
	State    checkout.State `json:"state"`
	InFlight bool           `json:"inFlight"`
}

// Submit handles POST /api/checkout requests.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body checkoutRequest
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	req := checkout.Request{
		SessionID:       middleware.CustomerID(r.Context()),
		ShippingAddress: body.ShippingAddress,
		PaymentMethod:   model.PaymentMethod(body.PaymentMethod),
	}
	if body.PaymentMethodID != "" {
		req.Card = &payment.CardDetails{PaymentMethodID: body.PaymentMethodID}
	}

	res, err := h.checkout.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutResponse{
		OrderID: res.Order.ID,
		Receipt: receipt.Build(&res.Order),
	})
}

// Status handles GET /api/checkout/status requests.
func (h *CheckoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.CustomerID(r.Context())
	writeJSON(w, http.StatusOK, CheckoutStatus{
		State:    h.checkout.State(sessionID),
		InFlight: h.checkout.InFlight(sessionID),
	})
}
