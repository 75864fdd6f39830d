package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"furniture-store/internal/model"
	"furniture-store/internal/pricing"
)

const orderColumns = `
	id, customer_id, order_number, payment_method, payment_reference, payment_status,
	order_status, shipping_address, subtotal_minor, shipping_minor, total_minor,
	created_at, updated_at`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

func (r *orderRepository) InsertOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error) {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return false, fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT ON CONSTRAINT orders_customer_reference_key DO NOTHING
	`

	tag, err := tx.Exec(ctx, query,
		order.ID,
		order.CustomerID,
		order.OrderNumber,
		order.PaymentInfo.Method,
		order.PaymentInfo.GatewayReference,
		order.PaymentInfo.PaymentStatus,
		order.OrderStatus,
		address,
		pricing.MinorUnits(order.Subtotal),
		pricing.MinorUnits(order.ShippingCost),
		pricing.MinorUnits(order.Total),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to insert order")
		return false, fmt.Errorf("failed to insert order: %w", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Debug().
			Str("customer_id", order.CustomerID).
			Str("payment_reference", order.PaymentInfo.GatewayReference).
			Msg("order for payment reference already exists")
		return false, nil
	}
	return true, nil
}

func (r *orderRepository) InsertOrderItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, items []model.CartLine) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (order_id, position, product_id, name, size, color, unit_price_minor, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	batch := &pgx.Batch{}
	for i, item := range items {
		batch.Queue(query, orderID, i, item.ProductID, item.Name, item.Size, item.Color,
			pricing.MinorUnits(item.UnitPrice), item.Quantity)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := range items {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", orderID.String()).
				Str("product_id", items[i].ProductID).
				Msg("failed to insert order item")
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) GetByReference(ctx context.Context, customerID, reference string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 AND payment_reference = $2`
	return r.getOne(ctx, query, customerID, reference)
}

func (r *orderRepository) GetByOrderNumber(ctx context.Context, customerID, orderNumber string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 AND order_number = $2`
	return r.getOne(ctx, query, customerID, orderNumber)
}

func (r *orderRepository) getOne(ctx context.Context, query string, args ...any) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	if err := r.attachItems(ctx, []*model.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, order_number DESC`

	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		r.logger.Error().Err(err).Str("customer_id", customerID).Msg("failed to query orders")
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order row")
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	out := make([]model.Order, len(orders))
	for i, o := range orders {
		out[i] = *o
	}
	return out, nil
}

func (r *orderRepository) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to lock order")
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, orderStatus model.OrderStatus, paymentStatus model.PaymentStatus) error {
	query := `UPDATE orders SET order_status = $2, payment_status = $3, updated_at = NOW() WHERE id = $1`

	if _, err := tx.Exec(ctx, query, id, orderStatus, paymentStatus); err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to update order status")
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// attachItems loads the items of all orders with one query.
func (r *orderRepository) attachItems(ctx context.Context, orders []*model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*model.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	query := `
		SELECT order_id, product_id, name, size, color, unit_price_minor, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("order_count", len(ids)).Msg("failed to query order items")
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID   uuid.UUID
			line      model.CartLine
			unitMinor int64
		)
		if err := rows.Scan(&orderID, &line.ProductID, &line.Name, &line.Size, &line.Color, &unitMinor, &line.Quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		line.UnitPrice = pricing.FromMinorUnits(unitMinor)
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                             model.Order
		address                       []byte
		subtotal, shipping, totalCost int64
	)

	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.OrderNumber,
		&o.PaymentInfo.Method,
		&o.PaymentInfo.GatewayReference,
		&o.PaymentInfo.PaymentStatus,
		&o.OrderStatus,
		&address,
		&subtotal,
		&shipping,
		&totalCost,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
	}

	o.Subtotal = pricing.FromMinorUnits(subtotal)
	o.ShippingCost = pricing.FromMinorUnits(shipping)
	o.Total = pricing.FromMinorUnits(totalCost)
	return &o, nil
}
