package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"furniture-store/internal/model"
)

// newStripeStub serves the two PaymentIntent endpoints the gateway uses.
func newStripeStub(t *testing.T, confirm http.HandlerFunc) (*httptest.Server, *[]string) {
	var calls []string
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/payment_intents", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		calls = append(calls, "create")
		assert.Equal(t, "3050000", r.Form.Get("amount"))
		assert.Equal(t, "usd", r.Form.Get("currency"))
		assert.Equal(t, "customer-1", r.Form.Get("metadata[customer_id]"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":3050000,"currency":"usd",` +
			`"client_secret":"pi_123_secret_abc","status":"requires_payment_method"}`))
	})
	mux.HandleFunc("/v1/payment_intents/pi_123/confirm", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "confirm")
		confirm(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestGateway(url string) *StripeGateway {
	return NewStripeGateway(StripeOptions{SecretKey: "sk_test_123", APIURL: url}, zerolog.Nop())
}

func billing() BillingDetails {
	return BillingDetails{
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		Phone: "555-0100",
		Address: model.ShippingAddress{
			StreetAddress: "1 Analytical Way",
			City:          "London",
			ZipCode:       "N1",
			Country:       "GB",
		},
	}
}

func TestStripeGateway_CreateAndConfirm(t *testing.T) {
	srv, calls := newStripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "pm_card_visa", r.Form.Get("payment_method"))
		assert.Equal(t, "ada@example.com", r.Form.Get("receipt_email"))
		assert.Equal(t, "confirm-pi_123", r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded","amount":3050000}`))
	})
	gw := newTestGateway(srv.URL)
	ctx := context.Background()

	intent, err := gw.CreateIntent(ctx, 3050000, "usd", map[string]string{"customer_id": "customer-1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)

	conf, err := gw.Confirm(ctx, intent.ClientSecret, CardDetails{PaymentMethodID: "pm_card_visa"}, billing())
	require.NoError(t, err)
	assert.Equal(t, "pi_123", conf.Reference)
	assert.Equal(t, StatusSucceeded, conf.Status)
	assert.Equal(t, []string{"create", "confirm"}, *calls)
}

func TestStripeGateway_ConfirmDeclined(t *testing.T) {
	srv, _ := newStripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined",` +
			`"decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`))
	})
	gw := newTestGateway(srv.URL)

	_, err := gw.Confirm(context.Background(), "pi_123_secret_abc", CardDetails{PaymentMethodID: "pm_card_visa"}, billing())

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrCardDeclined))
	var de *DeclineError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "insufficient_funds", de.DeclineCode)
}

func TestStripeGateway_ConfirmServerError(t *testing.T) {
	srv, _ := newStripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"Something went wrong"}}`))
	})
	gw := newTestGateway(srv.URL)

	_, err := gw.Confirm(context.Background(), "pi_123_secret_abc", CardDetails{PaymentMethodID: "pm_card_visa"}, billing())

	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrCardDeclined))
}

func TestStripeGateway_ConfirmRequiresAction(t *testing.T) {
	srv, _ := newStripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"requires_action"}`))
	})
	gw := newTestGateway(srv.URL)

	conf, err := gw.Confirm(context.Background(), "pi_123_secret_abc", CardDetails{PaymentMethodID: "pm_card_visa"}, billing())

	require.NoError(t, err)
	assert.Equal(t, StatusRequiresAction, conf.Status)
}

func TestStripeGateway_CreateIntentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Amount must be at least 50 cents"}}`))
	}))
	defer srv.Close()

	_, err := newTestGateway(srv.URL).CreateIntent(context.Background(), 1, "usd", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create payment intent")
}

func TestIntentIDFromSecret(t *testing.T) {
	id, err := intentIDFromSecret("pi_3Abc_secret_xyz")
	require.NoError(t, err)
	assert.Equal(t, "pi_3Abc", id)

	_, err = intentIDFromSecret("garbage")
	assert.Error(t, err)
}
