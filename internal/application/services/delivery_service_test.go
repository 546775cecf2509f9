package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagware/payment-gateway/internal/crypto"
	"github.com/pagware/payment-gateway/internal/domain"
)

func TestNextRetryDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Minute},
		{2, 5 * time.Minute},
		{3, 15 * time.Minute},
		{4, 30 * time.Minute},
		{5, 1 * time.Hour},
		{6, 2 * time.Hour},
		{7, 4 * time.Hour},
		{8, 8 * time.Hour},
		{9, 12 * time.Hour},
		{10, 24 * time.Hour},
		// Clamped past the end of the schedule.
		{11, 24 * time.Hour},
		{50, 24 * time.Hour},
		{0, 1 * time.Minute},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NextRetryDelay(tc.attempt), "attempt %d", tc.attempt)
	}
}

type deliveryFixture struct {
	service   *DeliveryService
	merchants *MockMerchantRepository
	webhooks  *MockWebhookRepository
	http      *MockHTTPDoer
	encryptor *crypto.Encryptor
	secret    string
}

func newDeliveryFixture(t *testing.T, merchantID uuid.UUID) *deliveryFixture {
	t.Helper()

	merchants := NewMockMerchantRepository()
	webhooks := NewMockWebhookRepository()
	httpDoer := &MockHTTPDoer{
		DoFn: func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		},
	}
	enc := newTestEncryptor(t)
	secret := "whsec_test"

	merchants.webhooks["w"] = &domain.MerchantWebhook{
		ID:              uuid.New(),
		MerchantID:      merchantID,
		EndpointURL:     "https://merchant.example/hooks",
		SecretEncrypted: encryptSecret(t, enc, secret),
		Active:          true,
	}

	return &deliveryFixture{
		service:   NewDeliveryService(merchants, webhooks, enc, httpDoer, newTestLogger()),
		merchants: merchants,
		webhooks:  webhooks,
		http:      httpDoer,
		encryptor: enc,
		secret:    secret,
	}
}

func paidEvent(paymentID uuid.UUID) PaymentEvent {
	now := time.Now().UTC()
	return PaymentEvent{
		EventType:   "payment.paid",
		PaymentID:   paymentID,
		Status:      domain.StatusPaid,
		AmountCents: 12990,
		Method:      domain.MethodPix,
		CreatedAt:   now.Add(-time.Minute),
		PaidAt:      &now,
		Metadata:    map[string]string{"order_id": "ord-77"},
	}
}

func storedDelivery(t *testing.T, f *deliveryFixture) *domain.WebhookDelivery {
	t.Helper()
	require.Len(t, f.webhooks.deliveries, 1)
	for _, d := range f.webhooks.deliveries {
		return d
	}
	return nil
}

func TestDeliveryService_SendToMerchant(t *testing.T) {
	ctx := context.Background()
	merchantID := uuid.New()

	t.Run("signs the payload so the merchant can verify it", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)

		require.NoError(t, f.service.SendToMerchant(ctx, merchantID, paidEvent(uuid.New())))

		reqs := f.http.Requests()
		require.Len(t, reqs, 1)
		req := reqs[0]

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)

		ts, err := strconv.ParseInt(req.Header.Get("X-Timestamp"), 10, 64)
		require.NoError(t, err)
		nonce := req.Header.Get("X-Nonce")
		require.NotEmpty(t, nonce)
		require.NotEmpty(t, req.Header.Get("X-Trace-Id"))

		message := crypto.OutboundMessage(ts, nonce, body)
		assert.True(t, crypto.VerifySignature(f.secret, message, req.Header.Get("X-Signature")))

		var payload struct {
			Event   string `json:"event"`
			Payment struct {
				Status      string `json:"status"`
				AmountCents int64  `json:"amount_cents"`
				Method      string `json:"method"`
			} `json:"payment"`
			Metadata map[string]string `json:"metadata"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "payment.paid", payload.Event)
		assert.Equal(t, "PAID", payload.Payment.Status)
		assert.Equal(t, int64(12990), payload.Payment.AmountCents)
		assert.Equal(t, "pix", payload.Payment.Method)
		assert.Equal(t, "ord-77", payload.Metadata["order_id"])
	})

	t.Run("records a successful first attempt", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)

		require.NoError(t, f.service.SendToMerchant(ctx, merchantID, paidEvent(uuid.New())))

		d := storedDelivery(t, f)
		assert.Equal(t, domain.DeliverySuccess, d.Status)
		assert.Equal(t, 1, d.AttemptCount)
		assert.Nil(t, d.NextRetryAt)
		assert.Nil(t, d.LastError)
	})

	t.Run("schedules the first retry one minute out on failure", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)
		f.http.DoFn = func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusInternalServerError, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		}

		before := time.Now().UTC()
		require.NoError(t, f.service.SendToMerchant(ctx, merchantID, paidEvent(uuid.New())))

		d := storedDelivery(t, f)
		assert.Equal(t, domain.DeliveryFailed, d.Status)
		assert.Equal(t, 1, d.AttemptCount)
		require.NotNil(t, d.LastError)
		assert.Equal(t, "HTTP 500", *d.LastError)
		require.NotNil(t, d.NextRetryAt)
		assert.WithinDuration(t, before.Add(time.Minute), *d.NextRetryAt, 5*time.Second)
	})

	t.Run("transport errors are recorded, not returned", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)
		f.http.DoFn = func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}

		require.NoError(t, f.service.SendToMerchant(ctx, merchantID, paidEvent(uuid.New())))

		d := storedDelivery(t, f)
		assert.Equal(t, domain.DeliveryFailed, d.Status)
		require.NotNil(t, d.LastError)
		assert.Contains(t, *d.LastError, "connection refused")
	})

	t.Run("no active webhook means nothing to deliver", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)

		require.NoError(t, f.service.SendToMerchant(ctx, uuid.New(), paidEvent(uuid.New())))
		assert.Empty(t, f.webhooks.deliveries)
		assert.Empty(t, f.http.Requests())
	})

	t.Run("undecryptable secret fails without scheduling a retry", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)
		f.merchants.webhooks["w"].SecretEncrypted = "not-a-ciphertext"

		require.NoError(t, f.service.SendToMerchant(ctx, merchantID, paidEvent(uuid.New())))

		d := storedDelivery(t, f)
		assert.Equal(t, domain.DeliveryFailed, d.Status)
		assert.Nil(t, d.NextRetryAt)
		assert.Empty(t, f.http.Requests())
	})
}

func TestDeliveryService_Retry(t *testing.T) {
	ctx := context.Background()
	merchantID := uuid.New()

	t.Run("a later attempt backs off per the schedule", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)
		f.http.DoFn = func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		}

		delivery := domain.NewWebhookDelivery(merchantID, uuid.New(), "payment.paid", []byte(`{}`))
		past := time.Now().UTC().Add(-time.Hour)
		delivery.RecordAttempt(false, "HTTP 502", &past)
		require.NoError(t, f.webhooks.CreateDelivery(ctx, delivery))

		before := time.Now().UTC()
		require.NoError(t, f.service.Retry(ctx, delivery))

		assert.Equal(t, 2, delivery.AttemptCount)
		require.NotNil(t, delivery.NextRetryAt)
		// Second failure waits five minutes.
		assert.WithinDuration(t, before.Add(5*time.Minute), *delivery.NextRetryAt, 5*time.Second)
	})

	t.Run("succeeding retry closes the chain", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)

		delivery := domain.NewWebhookDelivery(merchantID, uuid.New(), "payment.paid", []byte(`{}`))
		past := time.Now().UTC().Add(-time.Hour)
		delivery.RecordAttempt(false, "HTTP 500", &past)
		require.NoError(t, f.webhooks.CreateDelivery(ctx, delivery))

		require.NoError(t, f.service.Retry(ctx, delivery))

		assert.Equal(t, domain.DeliverySuccess, delivery.Status)
		assert.Equal(t, 2, delivery.AttemptCount)
		assert.Nil(t, delivery.NextRetryAt)
		assert.Nil(t, delivery.LastError)
	})

	t.Run("deactivated endpoint stops the chain", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)
		f.merchants.webhooks["w"].Active = false

		delivery := domain.NewWebhookDelivery(merchantID, uuid.New(), "payment.paid", []byte(`{}`))
		past := time.Now().UTC().Add(-time.Hour)
		delivery.RecordAttempt(false, "HTTP 500", &past)
		require.NoError(t, f.webhooks.CreateDelivery(ctx, delivery))

		require.NoError(t, f.service.Retry(ctx, delivery))

		assert.Equal(t, domain.DeliveryFailed, delivery.Status)
		assert.Nil(t, delivery.NextRetryAt)
		assert.Empty(t, f.http.Requests())
	})
}

func TestDeliveryService_TestDelivery(t *testing.T) {
	ctx := context.Background()
	merchantID := uuid.New()

	t.Run("returns the result without persisting anything", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)

		result, err := f.service.TestDelivery(ctx, merchantID, "https://merchant.example/hooks")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Empty(t, f.webhooks.deliveries)
	})

	t.Run("works for merchants with no webhook on file", func(t *testing.T) {
		f := newDeliveryFixture(t, merchantID)

		result, err := f.service.TestDelivery(ctx, uuid.New(), "https://elsewhere.example/hooks")
		require.NoError(t, err)
		assert.True(t, result.Success)
	})
}
