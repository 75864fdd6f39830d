// Package reconcile records captured card payments that have no matching order.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"furniture-store/internal/events"
	"furniture-store/internal/model"
	"furniture-store/internal/repository"
)

// Reporter hands an unreconciled payment to support.
type Reporter interface {
	ReportUnreconciled(ctx context.Context, p model.UnreconciledPayment)
}

type reporter struct {
	repo      repository.UnreconciledRepository
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewReporter creates a reporter that stores, publishes and logs every report.
func NewReporter(repo repository.UnreconciledRepository, publisher events.Publisher, logger zerolog.Logger) Reporter {
	return &reporter{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("component", "reconcile").Logger(),
		now:       time.Now,
	}
}

// ReportUnreconciled never fails. Storage and publishing errors are logged; the
// alert log line is always written.
func (r *reporter) ReportUnreconciled(ctx context.Context, p model.UnreconciledPayment) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now().UTC()
	}

	r.logger.Error().
		Str("alert", "unreconciled_payment").
		Str("payment_reference", p.PaymentReference).
		Str("customer_id", p.CustomerID).
		Str("amount", p.Amount.StringFixed(2)).
		Str("currency", p.Currency).
		Str("failure", p.Failure).
		Msg("payment captured but order not recorded")

	if err := r.repo.Record(ctx, &p); err != nil {
		r.logger.Error().Err(err).Str("payment_reference", p.PaymentReference).Msg("failed to store unreconciled payment")
	}

	if err := r.publisher.PublishUnreconciled(ctx, p); err != nil {
		r.logger.Error().Err(err).Str("payment_reference", p.PaymentReference).Msg("failed to publish unreconciled payment")
	}
}
