package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"furniture-store/internal/events"
	"furniture-store/internal/model"
	"furniture-store/internal/repository"
)

// orderService implements OrderService.
type orderService struct {
	orderRepo repository.OrderRepository
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	publisher events.Publisher,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		publisher: publisher,
		logger:    logger.With().Str("service", "order").Logger(),
		now:       time.Now,
	}
}

// CreateOrder validates req, stores the order and its items in one transaction and
// publishes order.placed.
func (s *orderService) CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.OrderConfirmation, error) {
	if req.CustomerID == "" {
		return nil, model.ErrUnauthorised
	}

	if err := s.validateCreateRequest(req); err != nil {
		s.logger.Warn().Err(err).Str("customer_id", req.CustomerID).Msg("rejected order request")
		return nil, err
	}

	if existing, err := s.orderRepo.GetByReference(ctx, req.CustomerID, req.PaymentReference); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	} else if existing != nil {
		s.logger.Info().
			Str("order_number", existing.OrderNumber).
			Str("payment_reference", req.PaymentReference).
			Msg("order already exists for payment reference")
		return confirmationOf(existing), nil
	}

	now := s.now().UTC()
	id := uuid.New()
	order := &model.Order{
		ID:              id,
		CustomerID:      req.CustomerID,
		OrderNumber:     orderNumber(id),
		Items:           model.CloneLines(req.Items),
		ShippingAddress: req.ShippingAddress,
		PaymentInfo: model.PaymentInfo{
			Method:           req.PaymentMethod,
			GatewayReference: req.PaymentReference,
			PaymentStatus:    req.PaymentMethod.InitialPaymentStatus(),
		},
		Subtotal:     req.Subtotal,
		ShippingCost: req.ShippingCost,
		Total:        req.Total,
		OrderStatus:  model.OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	inserted, err := s.orderRepo.InsertOrder(ctx, tx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if !inserted {
		// Lost a race with a concurrent request for the same reference.
		existing, err := s.orderRepo.GetByReference(ctx, req.CustomerID, req.PaymentReference)
		if err != nil {
			return nil, fmt.Errorf("failed to create order: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("failed to create order: conflicting order for reference %s not found", req.PaymentReference)
		}
		return confirmationOf(existing), nil
	}

	if err := s.orderRepo.InsertOrderItems(ctx, tx, order.ID, order.Items); err != nil {
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	committed = true

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("payment_method", string(order.PaymentInfo.Method)).
		Str("total", order.Total.StringFixed(2)).
		Msg("order created successfully")

	if err := s.publisher.PublishOrderPlaced(ctx, events.NewOrderPlaced(order)); err != nil {
		s.logger.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("order.placed not published")
	}

	return confirmationOf(order), nil
}

func (s *orderService) ListOrders(ctx context.Context, customerID string) ([]model.Order, error) {
	if customerID == "" {
		return nil, model.ErrUnauthorised
	}

	orders, err := s.orderRepo.ListByCustomer(ctx, customerID)
	if err != nil {
		s.logger.Error().Err(err).Str("customer_id", customerID).Msg("failed to list orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *orderService) GetByOrderNumber(ctx context.Context, customerID, orderNumber string) (*model.Order, error) {
	if customerID == "" {
		return nil, model.ErrUnauthorised
	}

	order, err := s.orderRepo.GetByOrderNumber(ctx, customerID, orderNumber)
	if err != nil {
		s.logger.Error().Err(err).Str("order_number", orderNumber).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, update model.StatusUpdate) error {
	if update.OrderStatus == nil && update.PaymentStatus == nil {
		return fmt.Errorf("%w: no status given", model.ErrValidation)
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	order, err := s.orderRepo.LockByID(ctx, tx, update.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if order == nil {
		return model.ErrOrderNotFound
	}

	nextOrder := order.OrderStatus
	if update.OrderStatus != nil && *update.OrderStatus != order.OrderStatus {
		if !order.OrderStatus.CanTransitionTo(*update.OrderStatus) {
			return fmt.Errorf("%w: order %s cannot move from %s to %s",
				model.ErrInvalidTransition, order.OrderNumber, order.OrderStatus, *update.OrderStatus)
		}
		nextOrder = *update.OrderStatus
	}

	nextPayment := order.PaymentInfo.PaymentStatus
	if update.PaymentStatus != nil && *update.PaymentStatus != nextPayment {
		if !nextPayment.CanTransitionTo(*update.PaymentStatus) {
			return fmt.Errorf("%w: payment of %s cannot move from %s to %s",
				model.ErrInvalidTransition, order.OrderNumber, nextPayment, *update.PaymentStatus)
		}
		nextPayment = *update.PaymentStatus
	}

	if nextOrder == order.OrderStatus && nextPayment == order.PaymentInfo.PaymentStatus {
		return nil
	}

	if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, nextOrder, nextPayment); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	committed = true

	s.logger.Info().
		Str("order_number", order.OrderNumber).
		Str("order_status", string(nextOrder)).
		Str("payment_status", string(nextPayment)).
		Msg("order status updated")
	return nil
}

// validateCreateRequest checks the request is internally consistent.
func (s *orderService) validateCreateRequest(req model.CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", model.ErrValidation)
	}

	subtotal := decimal.Zero
	for i, item := range req.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item %d: product ID is required", model.ErrValidation, i)
		}
		if item.Quantity < 1 || item.Quantity > model.MaxLineQuantity {
			return model.ErrInvalidQuantity
		}
		subtotal = subtotal.Add(item.LineTotal())
	}

	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", model.ErrValidation, req.PaymentMethod)
	}
	if req.PaymentReference == "" {
		return fmt.Errorf("%w: payment reference is required", model.ErrValidation)
	}
	if missing := req.ShippingAddress.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", model.ErrValidation, strings.Join(missing, ", "))
	}

	if !subtotal.Equal(req.Subtotal) || !req.Subtotal.Add(req.ShippingCost).Equal(req.Total) {
		return fmt.Errorf("%w: totals do not add up", model.ErrValidation)
	}
	return nil
}

// orderNumber derives the public order number from the order id.
func orderNumber(id uuid.UUID) string {
	return "FS-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

func confirmationOf(o *model.Order) *model.OrderConfirmation {
	return &model.OrderConfirmation{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CreatedAt:   o.CreatedAt,
	}
}
