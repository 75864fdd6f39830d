// Package events publishes order and reconciliation events and consumes fulfillment updates.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"furniture-store/internal/model"
)

// OrderPlaced is published once per created order.
type OrderPlaced struct {
	OrderID       uuid.UUID           `json:"orderId"`
	OrderNumber   string              `json:"orderNumber"`
	CustomerID    string              `json:"customerId"`
	PaymentMethod model.PaymentMethod `json:"paymentMethod"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
	Reference     string              `json:"paymentReference"`
	Total         string              `json:"total"`
	ItemCount     int                 `json:"itemCount"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// NewOrderPlaced builds the event for order.
func NewOrderPlaced(order *model.Order) OrderPlaced {
	return OrderPlaced{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		PaymentMethod: order.PaymentInfo.Method,
		PaymentStatus: order.PaymentInfo.PaymentStatus,
		Reference:     order.PaymentInfo.GatewayReference,
		Total:         order.Total.StringFixed(2),
		ItemCount:     model.TotalUnits(order.Items),
		CreatedAt:     order.CreatedAt,
	}
}

// Publisher emits domain events.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, ev OrderPlaced) error
	PublishUnreconciled(ctx context.Context, p model.UnreconciledPayment) error
	Close() error
}

// nopPublisher is used when Kafka is disabled.
type nopPublisher struct {
	logger zerolog.Logger
}

// NewNopPublisher returns a Publisher that only logs.
func NewNopPublisher(logger zerolog.Logger) Publisher {
	return &nopPublisher{logger: logger.With().Str("component", "event_publisher").Logger()}
}

func (p *nopPublisher) PublishOrderPlaced(_ context.Context, ev OrderPlaced) error {
	p.logger.Debug().Str("order_number", ev.OrderNumber).Msg("event bus disabled, order.placed not published")
	return nil
}

func (p *nopPublisher) PublishUnreconciled(_ context.Context, up model.UnreconciledPayment) error {
	p.logger.Debug().Str("payment_reference", up.PaymentReference).Msg("event bus disabled, payment.unreconciled not published")
	return nil
}

func (p *nopPublisher) Close() error { return nil }
