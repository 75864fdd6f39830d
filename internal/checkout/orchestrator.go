// Package checkout turns a session's cart into an order, charging the card first when
// the shopper pays by card.
package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"furniture-store/internal/model"
	"furniture-store/internal/payment"
	"furniture-store/internal/pricing"
	"furniture-store/internal/reconcile"
)

// State is the last observed step of a session's checkout.
type State string

const (
	StateIdle                  State = "idle"
	StateValidating            State = "validating"
	StateCardFlow              State = "card_flow"
	StateDirectFlow            State = "direct_flow"
	StateSucceeded             State = "succeeded"
	StateSucceededUnreconciled State = "succeeded_unreconciled"
	StateFailed                State = "failed"
)

// Carts is the part of the cart service checkout needs.
type Carts interface {
	Lines(ctx context.Context, sessionID string) ([]model.CartLine, error)
	Clear(ctx context.Context, sessionID string) error
}

// Orders creates orders.
type Orders interface {
	CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.OrderConfirmation, error)
}

// Request is one checkout submission. SessionID is the authenticated customer id.
type Request struct {
	SessionID       string
	ShippingAddress model.ShippingAddress
	PaymentMethod   model.PaymentMethod
	Card            *payment.CardDetails
}

// Result is a placed order as the shopper sees it right after checkout.
type Result struct {
	Order model.Order
}

// Config holds checkout settings.
type Config struct {
	Currency     string
	OrderTimeout time.Duration
}

// flight is one session's running checkout. Callers attach to it before the cart is read,
// so a duplicate never acts on a cart it read on its own.
type flight struct {
	id          uint64
	ready       chan struct{} // closed once lines and fingerprint are set
	lines       []model.CartLine
	readErr     error
	fingerprint string

	// ctx is cancelled once every attached caller's context is done.
	ctx    context.Context
	cancel context.CancelFunc

	callers  int
	live     int
	finished bool
	result   *Result
	err      error
}

// Orchestrator runs checkouts. It is safe for concurrent use.
type Orchestrator struct {
	carts    Carts
	gateway  payment.Gateway
	orders   Orders
	reporter reconcile.Reporter
	pricer   *pricing.Calculator
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	nextID   uint64
	inflight map[string]*flight
	states   map[string]State
}

// NewOrchestrator creates a checkout orchestrator.
func NewOrchestrator(
	carts Carts,
	gateway payment.Gateway,
	orders Orders,
	reporter reconcile.Reporter,
	pricer *pricing.Calculator,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 30 * time.Second
	}
	return &Orchestrator{
		carts:    carts,
		gateway:  gateway,
		orders:   orders,
		reporter: reporter,
		pricer:   pricer,
		cfg:      cfg,
		logger:   logger.With().Str("component", "checkout").Logger(),
		now:      time.Now,
		inflight: make(map[string]*flight),
		states:   make(map[string]State),
	}
}

// Submit runs one checkout for req.SessionID. Identical submissions that overlap share a
// single run and its result. A different submission while one is running is refused
// with model.ErrCheckoutInFlight. The shared run is cancelled only once every caller
// attached to it has gone.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.SessionID == "" {
		return nil, model.ErrUnauthorised
	}

	f, leader, stop := o.attach(ctx, req.SessionID)
	defer o.release(req.SessionID, f, stop)

	if leader {
		f.lines, f.readErr = o.carts.Lines(f.ctx, req.SessionID)
		if f.readErr == nil {
			f.fingerprint, f.readErr = fingerprint(f.lines, req)
		}
		close(f.ready)
	} else {
		select {
		case <-f.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.readErr != nil {
		return nil, fmt.Errorf("failed to read cart: %w", f.readErr)
	}

	// Duplicates are compared against the cart the running checkout read.
	fp, err := fingerprint(f.lines, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint checkout: %w", err)
	}
	if fp != f.fingerprint {
		o.logger.Warn().Str("session_id", req.SessionID).Msg("checkout refused, another submission is in flight")
		return nil, model.ErrCheckoutInFlight
	}

	key := fmt.Sprintf("%s:%s:%d", req.SessionID, fp, f.id)
	v, err, shared := o.group.Do(key, func() (interface{}, error) {
		return o.runOnce(f, req)
	})
	if shared {
		o.logger.Debug().Str("session_id", req.SessionID).Msg("duplicate checkout joined the running one")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// InFlight reports whether a checkout is running for the session.
func (o *Orchestrator) InFlight(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[sessionID]
	return ok
}

// State returns the session's last observed checkout state.
func (o *Orchestrator) State(sessionID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.states[sessionID]; ok {
		return s
	}
	return StateIdle
}

// attach joins the session's flight, starting one when none is running. The returned
// stop func detaches ctx from the flight's cancellation.
func (o *Orchestrator) attach(ctx context.Context, sessionID string) (*flight, bool, func() bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.inflight[sessionID]
	if !ok {
		o.nextID++
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{id: o.nextID, ready: make(chan struct{}), ctx: runCtx, cancel: cancel}
		o.inflight[sessionID] = f
	}
	f.callers++

	if ctx.Err() != nil {
		if f.live == 0 {
			f.cancel()
		}
		return f, !ok, func() bool { return false }
	}

	f.live++
	stop := context.AfterFunc(ctx, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		f.live--
		if f.live <= 0 {
			f.cancel()
		}
	})
	return f, !ok, stop
}

func (o *Orchestrator) release(sessionID string, f *flight, stop func() bool) {
	stop()

	o.mu.Lock()
	defer o.mu.Unlock()

	f.callers--
	if f.callers <= 0 {
		f.cancel()
		if o.inflight[sessionID] == f {
			delete(o.inflight, sessionID)
		}
	}
}

// runOnce runs the flight's checkout the first time it is called and returns the stored
// outcome afterwards, so a caller that reaches it late never starts a second charge.
func (o *Orchestrator) runOnce(f *flight, req Request) (*Result, error) {
	o.mu.Lock()
	if f.finished {
		res, err := f.result, f.err
		o.mu.Unlock()
		return res, err
	}
	o.mu.Unlock()

	res, err := o.run(f.ctx, req, f.lines)

	o.mu.Lock()
	f.finished, f.result, f.err = true, res, err
	o.mu.Unlock()
	return res, err
}

func (o *Orchestrator) setState(sessionID string, s State) {
	o.mu.Lock()
	o.states[sessionID] = s
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, req Request, lines []model.CartLine) (*Result, error) {
	o.setState(req.SessionID, StateValidating)

	if err := validate(lines, req); err != nil {
		o.setState(req.SessionID, StateIdle)
		return nil, err
	}

	snapshot := o.pricer.Price(lines)
	draft := model.CreateOrderRequest{
		CustomerID:      req.SessionID,
		Items:           model.CloneLines(lines),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Subtotal:        snapshot.Subtotal,
		ShippingCost:    snapshot.ShippingCost,
		Total:           snapshot.Total,
	}

	if req.PaymentMethod.RequiresGateway() {
		return o.cardFlow(ctx, req, draft)
	}
	return o.directFlow(ctx, req, draft)
}

func (o *Orchestrator) cardFlow(ctx context.Context, req Request, draft model.CreateOrderRequest) (*Result, error) {
	log := o.logger.With().Str("session_id", req.SessionID).Str("payment_method", string(draft.PaymentMethod)).Logger()
	o.setState(req.SessionID, StateCardFlow)

	if err := ctx.Err(); err != nil {
		return nil, o.fail(req.SessionID, err)
	}

	intent, err := o.gateway.CreateIntent(ctx, pricing.MinorUnits(draft.Total), o.cfg.Currency, intentMetadata(draft))
	if err != nil {
		log.Error().Err(err).Msg("payment intent creation failed")
		return nil, o.fail(req.SessionID, fmt.Errorf("%w: %v", model.ErrIntentCreationFailed, err))
	}

	if err := ctx.Err(); err != nil {
		return nil, o.fail(req.SessionID, err)
	}

	billing := payment.BillingDetails{
		Name:    req.ShippingAddress.FullName(),
		Email:   req.ShippingAddress.Email,
		Phone:   req.ShippingAddress.Phone,
		Address: req.ShippingAddress,
	}
	conf, err := o.gateway.Confirm(ctx, intent.ClientSecret, *req.Card, billing)
	if err != nil {
		if errors.Is(err, model.ErrCardDeclined) {
			log.Info().Err(err).Str("intent_id", intent.ID).Msg("card declined")
			return nil, o.fail(req.SessionID, err)
		}
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("payment confirmation failed")
		return nil, o.fail(req.SessionID, fmt.Errorf("%w: %v", model.ErrGatewayError, err))
	}
	if conf.Status != payment.StatusSucceeded {
		log.Info().Str("intent_id", intent.ID).Str("status", string(conf.Status)).Msg("payment not captured")
		return nil, o.fail(req.SessionID, fmt.Errorf("%w: payment status %s", model.ErrCardDeclined, conf.Status))
	}

	// Captured. Order creation no longer follows the request context.
	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.OrderTimeout)
	defer cancel()

	draft.PaymentReference = conf.Reference
	order, err := o.orders.CreateOrder(orderCtx, draft)
	if err != nil {
		// orderCtx may be the reason creation failed.
		reportCtx, cancelReport := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.OrderTimeout)
		defer cancelReport()

		o.reporter.ReportUnreconciled(reportCtx, model.UnreconciledPayment{
			CustomerID:       req.SessionID,
			PaymentReference: conf.Reference,
			Amount:           draft.Total,
			Currency:         o.cfg.Currency,
			Snapshot:         draft,
			Failure:          err.Error(),
		})
		o.setState(req.SessionID, StateSucceededUnreconciled)
		return nil, &UnreconciledError{Reference: conf.Reference, Cause: err}
	}

	return o.succeed(orderCtx, req.SessionID, draft, order), nil
}

func (o *Orchestrator) directFlow(ctx context.Context, req Request, draft model.CreateOrderRequest) (*Result, error) {
	o.setState(req.SessionID, StateDirectFlow)

	if err := ctx.Err(); err != nil {
		return nil, o.fail(req.SessionID, err)
	}

	draft.PaymentReference = model.SynthesizeReference(draft.PaymentMethod, o.now())
	order, err := o.orders.CreateOrder(ctx, draft)
	if err != nil {
		o.logger.Error().Err(err).
			Str("session_id", req.SessionID).
			Str("payment_reference", draft.PaymentReference).
			Msg("order creation failed")
		return nil, o.fail(req.SessionID, fmt.Errorf("%w: %v", model.ErrOrderCreationFailed, err))
	}

	return o.succeed(ctx, req.SessionID, draft, order), nil
}

func (o *Orchestrator) succeed(ctx context.Context, sessionID string, draft model.CreateOrderRequest, conf *model.OrderConfirmation) *Result {
	if err := o.carts.Clear(ctx, sessionID); err != nil {
		o.logger.Warn().Err(err).Str("session_id", sessionID).Str("order_number", conf.OrderNumber).Msg("order placed but cart not cleared")
	}
	o.setState(sessionID, StateSucceeded)

	o.logger.Info().
		Str("session_id", sessionID).
		Str("order_number", conf.OrderNumber).
		Str("payment_reference", draft.PaymentReference).
		Str("total", draft.Total.StringFixed(2)).
		Msg("checkout succeeded")

	return &Result{Order: model.Order{
		ID:              conf.OrderID,
		CustomerID:      sessionID,
		OrderNumber:     conf.OrderNumber,
		Items:           draft.Items,
		ShippingAddress: draft.ShippingAddress,
		PaymentInfo: model.PaymentInfo{
			Method:           draft.PaymentMethod,
			GatewayReference: draft.PaymentReference,
			PaymentStatus:    draft.PaymentMethod.InitialPaymentStatus(),
		},
		Subtotal:     draft.Subtotal,
		ShippingCost: draft.ShippingCost,
		Total:        draft.Total,
		OrderStatus:  model.OrderStatusPending,
		CreatedAt:    conf.CreatedAt,
		UpdatedAt:    conf.CreatedAt,
	}}
}

func (o *Orchestrator) fail(sessionID string, err error) error {
	o.setState(sessionID, StateFailed)
	return err
}

// validate returns the offending fields in form order: cart, address fields, payment.
func validate(lines []model.CartLine, req Request) error {
	var fields []string
	if len(lines) == 0 {
		fields = append(fields, "cart")
	}
	fields = append(fields, req.ShippingAddress.MissingFields()...)
	if !req.PaymentMethod.Valid() {
		fields = append(fields, "paymentMethod")
	} else if req.PaymentMethod.RequiresGateway() && (req.Card == nil || req.Card.PaymentMethodID == "") {
		fields = append(fields, "paymentMethodId")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// maxMetadataValue is the gateway's limit on a single metadata value.
const maxMetadataValue = 500

// intentMetadata tags the intent with enough of the draft order to rebuild it by hand.
func intentMetadata(draft model.CreateOrderRequest) map[string]string {
	items := make([]string, 0, len(draft.Items))
	for _, l := range draft.Items {
		items = append(items, fmt.Sprintf("%s x%d", l.Key(), l.Quantity))
	}

	addr := draft.ShippingAddress
	return map[string]string{
		"customer_id":   draft.CustomerID,
		"item_count":    strconv.Itoa(model.TotalUnits(draft.Items)),
		"items":         clip(strings.Join(items, ";"), maxMetadataValue),
		"subtotal":      draft.Subtotal.StringFixed(2),
		"shipping_cost": draft.ShippingCost.StringFixed(2),
		"total":         draft.Total.StringFixed(2),
		"ship_name":     clip(addr.FullName(), maxMetadataValue),
		"ship_street":   clip(addr.StreetAddress, maxMetadataValue),
		"ship_city":     clip(addr.City, maxMetadataValue),
		"ship_province": clip(addr.Province, maxMetadataValue),
		"ship_zip":      clip(addr.ZipCode, maxMetadataValue),
		"ship_country":  clip(addr.Country, maxMetadataValue),
		"phone":         clip(addr.Phone, maxMetadataValue),
		"email":         clip(addr.Email, maxMetadataValue),
	}
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// fingerprint identifies a submission by everything that would change what is charged or shipped.
func fingerprint(lines []model.CartLine, req Request) (string, error) {
	payload := struct {
		Lines   []model.CartLine      `json:"lines"`
		Address model.ShippingAddress `json:"address"`
		Method  model.PaymentMethod   `json:"method"`
		Card    string                `json:"card,omitempty"`
	}{Lines: lines, Address: req.ShippingAddress, Method: req.PaymentMethod}
	if req.Card != nil {
		payload.Card = req.Card.PaymentMethodID
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8]), nil
}
