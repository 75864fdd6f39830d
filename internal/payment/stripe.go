package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
)

// StripeGateway implements Gateway with Stripe PaymentIntents.
type StripeGateway struct {
	client paymentintent.Client
	logger zerolog.Logger
}

// StripeOptions configures NewStripeGateway.
type StripeOptions struct {
	SecretKey string
	// APIURL overrides the Stripe API base URL, e.g. for stripe-mock.
	APIURL string
}

// NewStripeGateway creates a gateway. Network retries are disabled; every retry is a new
// user-initiated attempt.
func NewStripeGateway(opts StripeOptions, logger zerolog.Logger) *StripeGateway {
	logger = logger.With().Str("component", "stripe_gateway").Logger()

	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &leveledLogger{logger: logger},
	}
	if opts.APIURL != "" {
		cfg.URL = stripe.String(opts.APIURL)
	}

	return &StripeGateway{
		client: paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Key: opts.SecretKey,
		},
		logger: logger,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params:             stripe.Params{Context: ctx},
		Amount:             stripe.Int64(amountMinor),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.client.New(params)
	if err != nil {
		g.logger.Error().Err(err).Int64("amount", amountMinor).Msg("failed to create payment intent")
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	g.logger.Info().Str("intent_id", pi.ID).Int64("amount", pi.Amount).Msg("payment intent created")

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

func (g *StripeGateway) Confirm(ctx context.Context, clientSecret string, card CardDetails, billing BillingDetails) (*Confirmation, error) {
	intentID, err := intentIDFromSecret(clientSecret)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentConfirmParams{
		Params:        stripe.Params{Context: ctx},
		PaymentMethod: stripe.String(card.PaymentMethodID),
		Shipping: &stripe.ShippingDetailsParams{
			Name:  stripe.String(billing.Name),
			Phone: optional(billing.Phone),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(billing.Address.StreetAddress),
				City:       optional(billing.Address.City),
				State:      optional(billing.Address.Province),
				PostalCode: optional(billing.Address.ZipCode),
				Country:    optional(billing.Address.Country),
			},
		},
	}
	params.ReceiptEmail = optional(billing.Email)
	params.SetIdempotencyKey("confirm-" + intentID)

	pi, err := g.client.Confirm(intentID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			g.logger.Info().
				Str("intent_id", intentID).
				Str("decline_code", string(se.DeclineCode)).
				Msg("card declined")
			return nil, &DeclineError{Code: string(se.Code), DeclineCode: string(se.DeclineCode), Message: se.Msg}
		}
		g.logger.Error().Err(err).Str("intent_id", intentID).Msg("failed to confirm payment intent")
		return nil, fmt.Errorf("confirm payment intent: %w", err)
	}

	g.logger.Info().Str("intent_id", pi.ID).Str("status", string(pi.Status)).Msg("payment intent confirmed")

	return &Confirmation{
		Reference: pi.ID,
		Status:    mapStatus(pi.Status),
	}, nil
}

func mapStatus(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return StatusProcessing
	case stripe.PaymentIntentStatusRequiresAction:
		return StatusRequiresAction
	default:
		return StatusFailed
	}
}

// optional omits empty strings from the request.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return stripe.String(s)
}

// intentIDFromSecret extracts "pi_123" from "pi_123_secret_abc".
func intentIDFromSecret(secret string) (string, error) {
	id, _, found := strings.Cut(secret, "_secret_")
	if !found || id == "" {
		return "", fmt.Errorf("malformed client secret")
	}
	return id, nil
}

// leveledLogger routes stripe-go's internal logging into zerolog.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
func (l *leveledLogger) Infof(format string, v ...interface{})  { l.logger.Debug().Msgf(format, v...) }
func (l *leveledLogger) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l *leveledLogger) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
