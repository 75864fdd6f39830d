package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"furniture-store/internal/history"
	"furniture-store/internal/middleware"
	"furniture-store/internal/model"
	"furniture-store/internal/receipt"
	"furniture-store/internal/service"
)

// OrderHandler handles order history HTTP requests.
type OrderHandler struct {
	service  service.OrderService
	pageSize int
	logger   zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(service service.OrderService, pageSize int, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		pageSize: pageSize,
		logger:   logger.With().Str("handler", "order").Logger(),
	}
}

// OrderPage is one page of the customer's order history.
type OrderPage struct {
	Items      []receipt.View `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalItems int            `json:"totalItems"`
	TotalPages int            `json:"totalPages"`
	Filter     string         `json:"filter"`
}

// List handles GET /api/orders?status=&page= requests.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), middleware.CustomerID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	view := history.NewView(orders, h.pageSize)
	if err := view.SetFilter(r.URL.Query().Get("status")); err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	n := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err = strconv.Atoi(raw); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrorResponse{
				Error:   model.ErrCodeValidation,
				Message: "page must be a number",
			}, h.logger)
			return
		}
	}

	page := view.Page(n)
	items := make([]receipt.View, len(page.Items))
	for i := range page.Items {
		items[i] = receipt.Build(&page.Items[i])
	}

	writeJSON(w, http.StatusOK, OrderPage{
		Items:      items,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
		Filter:     page.Filter,
	})
}

// Get handles GET /api/orders/{orderNumber} requests.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "orderNumber")

	order, err := h.service.GetByOrderNumber(r.Context(), middleware.CustomerID(r.Context()), number)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, receipt.Build(order))
}
