package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"furniture-store/internal/model"
	"furniture-store/internal/pricing"
)

type unreconciledRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewUnreconciledRepository creates a PostgreSQL-backed store for unreconciled payments.
func NewUnreconciledRepository(pool *pgxpool.Pool, logger zerolog.Logger) UnreconciledRepository {
	return &unreconciledRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "unreconciled_payment").Logger(),
	}
}

func (r *unreconciledRepository) Record(ctx context.Context, p *model.UnreconciledPayment) error {
	snapshot, err := json.Marshal(p.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal order snapshot: %w", err)
	}

	query := `
		INSERT INTO unreconciled_payments (id, customer_id, payment_reference, amount_minor, currency, snapshot, failure, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (payment_reference) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.CustomerID,
		p.PaymentReference,
		pricing.MinorUnits(p.Amount),
		p.Currency,
		snapshot,
		p.Failure,
		p.CreatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("payment_reference", p.PaymentReference).Msg("failed to record unreconciled payment")
		return fmt.Errorf("failed to record unreconciled payment: %w", err)
	}
	return nil
}

func (r *unreconciledRepository) ListOpen(ctx context.Context) ([]model.UnreconciledPayment, error) {
	query := `
		SELECT id, customer_id, payment_reference, amount_minor, currency, snapshot, failure, created_at, resolved_at
		FROM unreconciled_payments
		WHERE resolved_at IS NULL
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unreconciled payments: %w", err)
	}
	defer rows.Close()

	var out []model.UnreconciledPayment
	for rows.Next() {
		var (
			p        model.UnreconciledPayment
			amount   int64
			snapshot []byte
		)
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.PaymentReference, &amount, &p.Currency, &snapshot,
			&p.Failure, &p.CreatedAt, &p.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unreconciled payment: %w", err)
		}
		if err := json.Unmarshal(snapshot, &p.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order snapshot: %w", err)
		}
		p.Amount = pricing.FromMinorUnits(amount)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unreconciled payments: %w", err)
	}
	return out, nil
}
