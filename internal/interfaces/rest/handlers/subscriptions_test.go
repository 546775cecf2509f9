package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSubscriptionBody() map[string]any {
	return map[string]any{
		"amount_cents":   4990,
		"interval":       "month",
		"provider":       "card",
		"card_token":     "tok_visa",
		"customer_name":  "Ana Souza",
		"customer_email": "ana@example.com",
		"metadata":       map[string]string{"plan_id": "pro"},
	}
}

func TestHandleCreateSubscription(t *testing.T) {
	t.Run("creates an active subscription", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/subscriptions", validSubscriptionBody(), true)
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeBody(t, rec)
		assert.NotEmpty(t, body["id"])
		assert.Equal(t, "ACTIVE", body["status"])
		assert.Equal(t, "month", body["interval"])
		assert.NotEmpty(t, body["provider_subscription_id"])
		assert.NotEmpty(t, body["next_billing_date"])
		customer := body["customer"].(map[string]any)
		assert.Equal(t, "Ana Souza", customer["name"])

		require.Len(t, f.card.CreateCalls(), 1)
	})

	t.Run("rejects a provider without recurring support", func(t *testing.T) {
		f := newAPIFixture(t)

		body := validSubscriptionBody()
		body["provider"] = "pix"
		rec := f.do(t, http.MethodPost, "/subscriptions", body, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a bad interval", func(t *testing.T) {
		f := newAPIFixture(t)

		body := validSubscriptionBody()
		body["interval"] = "fortnight"
		rec := f.do(t, http.MethodPost, "/subscriptions", body, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("401 without credentials", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/subscriptions", validSubscriptionBody(), false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandleGetSubscription(t *testing.T) {
	t.Run("returns the merchant's subscription", func(t *testing.T) {
		f := newAPIFixture(t)

		created := f.do(t, http.MethodPost, "/subscriptions", validSubscriptionBody(), true)
		id := decodeBody(t, created)["id"].(string)

		rec := f.do(t, http.MethodGet, "/subscriptions/"+id, nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id, decodeBody(t, rec)["id"])
	})

	t.Run("404 for an unknown subscription", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, "/subscriptions/"+uuid.NewString(), nil, true)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleCancelSubscription(t *testing.T) {
	t.Run("cancels and reports the timestamp", func(t *testing.T) {
		f := newAPIFixture(t)

		created := f.do(t, http.MethodPost, "/subscriptions", validSubscriptionBody(), true)
		id := decodeBody(t, created)["id"].(string)

		rec := f.do(t, http.MethodPost, "/subscriptions/"+id+"/cancel", nil, true)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "CANCELLED", body["status"])
		assert.NotEmpty(t, body["cancelled_at"])
		require.Len(t, f.card.CancelCalls(), 1)
	})

	t.Run("cancelling twice is refused", func(t *testing.T) {
		f := newAPIFixture(t)

		created := f.do(t, http.MethodPost, "/subscriptions", validSubscriptionBody(), true)
		id := decodeBody(t, created)["id"].(string)

		first := f.do(t, http.MethodPost, "/subscriptions/"+id+"/cancel", nil, true)
		require.Equal(t, http.StatusOK, first.Code)

		second := f.do(t, http.MethodPost, "/subscriptions/"+id+"/cancel", nil, true)
		assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	})
}
