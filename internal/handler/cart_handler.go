package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"furniture-store/internal/cart"
	"furniture-store/internal/catalog"
	"furniture-store/internal/middleware"
	"furniture-store/internal/model"
	"furniture-store/internal/pricing"
)

const eventKeepAlive = 20 * time.Second

// CartHandler handles cart HTTP requests for the authenticated customer.
type CartHandler struct {
	carts   cart.Service
	catalog catalog.Catalog
	pricer  *pricing.Calculator
	logger  zerolog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(carts cart.Service, cat catalog.Catalog, pricer *pricing.Calculator, logger zerolog.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		catalog: cat,
		pricer:  pricer,
		logger:  logger.With().Str("handler", "cart").Logger(),
		closing: make(chan struct{}),
	}
}

// Close ends every open event stream. http.Server.Shutdown waits for connections to go
// idle, which an open stream never does, so it is registered as a shutdown hook.
func (h *CartHandler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// CartView is the cart with its current pricing.
type CartView struct {
	Items      []model.CartLine      `json:"items"`
	Pricing    model.PricingSnapshot `json:"pricing"`
	TotalUnits int                   `json:"totalUnits"`
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) view(lines []model.CartLine) CartView {
	if lines == nil {
		lines = []model.CartLine{}
	}
	return CartView{
		Items:      lines,
		Pricing:    h.pricer.Price(lines),
		TotalUnits: model.TotalUnits(lines),
	}
}

// Get handles GET /api/cart requests.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.Lines(r.Context(), middleware.CustomerID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.view(lines))
}

// AddItem handles POST /api/cart/items requests. Name and unit price come from the
// price book, never from the client.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.ProductID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrorResponse{
			Error:         model.ErrCodeValidation,
			Message:       "productId is required",
			MissingFields: []string{"productId"},
		}, h.logger)
		return
	}

	product, err := h.catalog.Lookup(r.Context(), req.ProductID)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	sessionID := middleware.CustomerID(r.Context())
	_, err = h.carts.Add(r.Context(), sessionID, model.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
		Size:      req.Size,
		Color:     req.Color,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	lines, err := h.carts.Lines(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.view(lines))
}

// UpdateItem handles PUT /api/cart/items requests.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	sessionID := middleware.CustomerID(r.Context())
	key := model.LineKey{ProductID: req.ProductID, Size: req.Size, Color: req.Color}
	if err := h.carts.SetQuantity(r.Context(), sessionID, key, req.Quantity); err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	lines, err := h.carts.Lines(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.view(lines))
}

// RemoveItem handles DELETE /api/cart/items?productId=&size=&color= requests.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := model.LineKey{ProductID: q.Get("productId"), Size: q.Get("size"), Color: q.Get("color")}

	sessionID := middleware.CustomerID(r.Context())
	if err := h.carts.Remove(r.Context(), sessionID, key); err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	lines, err := h.carts.Lines(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.view(lines))
}

// Events handles GET /api/cart/events, streaming the cart as server-sent events. The
// current cart is sent first, then one event per change until the client disconnects or
// the handler is closed.
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := middleware.CustomerID(ctx)

	changes, cancel, err := h.carts.Subscribe(ctx, sessionID)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}
	defer cancel()

	lines, err := h.carts.Lines(ctx, sessionID)
	if err != nil {
		writeDomainError(w, r, err, h.logger)
		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug().Err(err).Msg("write deadline not adjustable for event stream")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.sendEvent(w, rc, h.view(lines)); err != nil {
		return
	}

	keepAlive := time.NewTicker(eventKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			if err := h.sendEvent(w, rc, h.view(ev.Lines)); err != nil {
				h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("cart event stream closed")
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *CartHandler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, v CartView) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
