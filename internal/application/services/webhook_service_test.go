package services

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/provider"
)

type webhookFixture struct {
	service   *WebhookService
	payments  *MockPaymentRepository
	webhooks  *MockWebhookRepository
	merchants *MockMerchantRepository
	nonces    *MockNonceStore
	audit     *MockAuditSink
	adapter   *MockAdapter
	http      *MockHTTPDoer
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	payments := NewMockPaymentRepository()
	webhooks := NewMockWebhookRepository()
	merchants := NewMockMerchantRepository()
	nonces := NewMockNonceStore()
	auditSink := NewMockAuditSink()
	adapter := &MockAdapter{NameValue: "pix"}
	httpDoer := &MockHTTPDoer{
		DoFn: func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		},
	}

	logger := newTestLogger()
	audit := NewAuditService(auditSink, "test-audit-key")
	delivery := NewDeliveryService(merchants, webhooks, newTestEncryptor(t), httpDoer, logger)

	return &webhookFixture{
		service: NewWebhookService(
			payments, webhooks, provider.NewRegistry(adapter), nonces, audit, delivery, logger,
		),
		payments:  payments,
		webhooks:  webhooks,
		merchants: merchants,
		nonces:    nonces,
		audit:     auditSink,
		adapter:   adapter,
		http:      httpDoer,
	}
}

func inbound(timestamp int64, nonce string) provider.InboundWebhook {
	return provider.InboundWebhook{
		Provider:  "pix",
		Signature: "sig",
		Timestamp: timestamp,
		Nonce:     nonce,
		Method:    http.MethodPost,
		Path:      "/webhooks/pix",
		Body:      []byte(`{"event":"pix.paid"}`),
	}
}

func TestWebhookService_ValidateProviderWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("admits a fresh valid webhook", func(t *testing.T) {
		f := newWebhookFixture(t)

		rejection, err := f.service.ValidateProviderWebhook(ctx, inbound(time.Now().Unix(), "n-1"))
		require.NoError(t, err)
		assert.Equal(t, application.RejectionNone, rejection)
		assert.Empty(t, f.audit.Actions())
	})

	t.Run("accepts timestamps at the skew boundary", func(t *testing.T) {
		f := newWebhookFixture(t)

		// One second of slack on the past side so the service's own clock
		// read cannot push the skew over the limit mid-test.
		for name, ts := range map[string]int64{
			"just inside, past":   time.Now().Unix() - 119,
			"just inside, future": time.Now().Unix() + 120,
		} {
			rejection, err := f.service.ValidateProviderWebhook(ctx, inbound(ts, "n-"+name))
			require.NoError(t, err)
			assert.Equal(t, application.RejectionNone, rejection, name)
		}
	})

	t.Run("rejects timestamps beyond the skew window", func(t *testing.T) {
		f := newWebhookFixture(t)

		for name, ts := range map[string]int64{
			"too old":       time.Now().Unix() - 125,
			"too far ahead": time.Now().Unix() + 125,
		} {
			rejection, err := f.service.ValidateProviderWebhook(ctx, inbound(ts, "n-"+name))
			require.NoError(t, err)
			assert.Equal(t, application.RejectionTimestampSkew, rejection, name)
		}
		assert.Contains(t, f.audit.Actions(), "webhook.rejected.timestamp_skew")
	})

	t.Run("rejects a replayed nonce", func(t *testing.T) {
		f := newWebhookFixture(t)

		first, err := f.service.ValidateProviderWebhook(ctx, inbound(time.Now().Unix(), "n-replay"))
		require.NoError(t, err)
		require.Equal(t, application.RejectionNone, first)

		second, err := f.service.ValidateProviderWebhook(ctx, inbound(time.Now().Unix(), "n-replay"))
		require.NoError(t, err)
		assert.Equal(t, application.RejectionNonceReused, second)
		assert.Contains(t, f.audit.Actions(), "webhook.rejected.nonce_reused")
	})

	t.Run("nonce scopes are per provider", func(t *testing.T) {
		f := newWebhookFixture(t)
		card := &MockAdapter{NameValue: "card"}
		f.service.providers = provider.NewRegistry(f.adapter, card)

		pixIn := inbound(time.Now().Unix(), "shared-nonce")
		cardIn := pixIn
		cardIn.Provider = "card"

		first, err := f.service.ValidateProviderWebhook(ctx, pixIn)
		require.NoError(t, err)
		require.Equal(t, application.RejectionNone, first)

		second, err := f.service.ValidateProviderWebhook(ctx, cardIn)
		require.NoError(t, err)
		assert.Equal(t, application.RejectionNone, second)
	})

	t.Run("rejects an invalid signature without consuming the nonce", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.adapter.ValidateWebhookSignatureFn = func(ctx context.Context, in provider.InboundWebhook) (bool, error) {
			return false, nil
		}

		rejection, err := f.service.ValidateProviderWebhook(ctx, inbound(time.Now().Unix(), "n-bad-sig"))
		require.NoError(t, err)
		assert.Equal(t, application.RejectionInvalidSignature, rejection)
		assert.Contains(t, f.audit.Actions(), "webhook.rejected.invalid_signature")

		// The same nonce must still be admissible once the sender fixes
		// the signature.
		f.adapter.ValidateWebhookSignatureFn = nil
		rejection, err = f.service.ValidateProviderWebhook(ctx, inbound(time.Now().Unix(), "n-bad-sig"))
		require.NoError(t, err)
		assert.Equal(t, application.RejectionNone, rejection)
	})

	t.Run("only one of two racing duplicates is admitted", func(t *testing.T) {
		f := newWebhookFixture(t)
		// Simulate the interleaving where both requests pass IsUnique
		// before either consumes.
		f.nonces.IsUniqueFn = func(ctx context.Context, scope, nonce string) (bool, error) {
			return true, nil
		}

		first, err := f.service.ValidateProviderWebhook(ctx, inbound(time.Now().Unix(), "n-race"))
		require.NoError(t, err)
		second, err := f.service.ValidateProviderWebhook(ctx, inbound(time.Now().Unix(), "n-race"))
		require.NoError(t, err)

		admitted := 0
		for _, r := range []application.Rejection{first, second} {
			if r == application.RejectionNone {
				admitted++
			} else {
				assert.Equal(t, application.RejectionNonceReused, r)
			}
		}
		assert.Equal(t, 1, admitted)
	})

	t.Run("unknown provider is an error, not a rejection", func(t *testing.T) {
		f := newWebhookFixture(t)
		in := inbound(time.Now().Unix(), "n-unknown")
		in.Provider = "stripe"

		_, err := f.service.ValidateProviderWebhook(ctx, in)
		assert.ErrorIs(t, err, provider.ErrUnknownProvider)
	})
}

func TestWebhookService_ProcessProviderWebhook(t *testing.T) {
	ctx := context.Background()

	seedPayment := func(t *testing.T, f *webhookFixture, status domain.PaymentStatus) *domain.Payment {
		t.Helper()
		payment, err := domain.NewPayment(uuid.New(), 5000, domain.MethodPix, "pix", nil, false)
		require.NoError(t, err)
		require.NoError(t, payment.AttachProviderPayment("txid-1"))
		if status != domain.StatusPending {
			require.NoError(t, payment.TransitionTo(status))
		}
		require.NoError(t, f.payments.Create(ctx, payment))
		return payment
	}

	activateWebhook := func(t *testing.T, f *webhookFixture, merchantID uuid.UUID) {
		t.Helper()
		enc := newTestEncryptor(t)
		f.merchants.webhooks["w"] = &domain.MerchantWebhook{
			ID:              uuid.New(),
			MerchantID:      merchantID,
			EndpointURL:     "https://merchant.example/hooks",
			SecretEncrypted: encryptSecret(t, enc, "whsec"),
			Active:          true,
		}
		// The fixture's delivery service must share the encryptor that
		// sealed the secret.
		f.service.delivery = NewDeliveryService(f.merchants, f.webhooks, enc, f.http, newTestLogger())
	}

	event := func(status string) *provider.Event {
		return &provider.Event{
			Provider:          "pix",
			EventType:         "pix.paid",
			ProviderPaymentID: "txid-1",
			Status:            status,
			Payload:           []byte(`{"event":"pix.paid","txid":"txid-1"}`),
		}
	}

	t.Run("applies a mapped transition and notifies the merchant", func(t *testing.T) {
		f := newWebhookFixture(t)
		payment := seedPayment(t, f, domain.StatusPending)
		activateWebhook(t, f, payment.MerchantID)

		require.NoError(t, f.service.ProcessProviderWebhook(ctx, event("paid")))

		stored, err := f.payments.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, stored.Status)
		assert.NotNil(t, stored.PaidAt)

		assert.Contains(t, f.audit.Actions(), "payment.status_changed")
		assert.Len(t, f.http.Requests(), 1)

		received := f.webhooks.Received()
		require.Len(t, received, 1)
		assert.True(t, received[0].Processed)
	})

	t.Run("duplicate event with same status is a processed no-op", func(t *testing.T) {
		f := newWebhookFixture(t)
		payment := seedPayment(t, f, domain.StatusPaid)
		activateWebhook(t, f, payment.MerchantID)
		version := payment.Version

		require.NoError(t, f.service.ProcessProviderWebhook(ctx, event("paid")))

		stored, err := f.payments.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, stored.Status)
		assert.Equal(t, version, stored.Version)
		assert.Empty(t, f.http.Requests())
		assert.NotContains(t, f.audit.Actions(), "payment.status_changed")
	})

	t.Run("refuses to walk back a terminal status", func(t *testing.T) {
		f := newWebhookFixture(t)
		payment := seedPayment(t, f, domain.StatusPaid)
		require.NoError(t, payment.TransitionTo(domain.StatusRefunded))
		activateWebhook(t, f, payment.MerchantID)

		require.NoError(t, f.service.ProcessProviderWebhook(ctx, event("pending")))

		stored, err := f.payments.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunded, stored.Status)
		assert.Empty(t, f.http.Requests())
	})

	t.Run("unrecognized status is ignored", func(t *testing.T) {
		f := newWebhookFixture(t)
		payment := seedPayment(t, f, domain.StatusPending)
		activateWebhook(t, f, payment.MerchantID)

		require.NoError(t, f.service.ProcessProviderWebhook(ctx, event("chargeback_open")))

		stored, err := f.payments.FindByID(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, stored.Status)
		assert.Empty(t, f.http.Requests())
	})

	t.Run("event for an unknown payment is kept and marked processed", func(t *testing.T) {
		f := newWebhookFixture(t)

		require.NoError(t, f.service.ProcessProviderWebhook(ctx, event("paid")))

		received := f.webhooks.Received()
		require.Len(t, received, 1)
		assert.True(t, received[0].Processed)
	})

	t.Run("processing failure leaves the record unprocessed and audits", func(t *testing.T) {
		f := newWebhookFixture(t)
		seedPayment(t, f, domain.StatusPending)
		f.payments.UpdateFn = func(ctx context.Context, payment *domain.Payment) error {
			return domain.ErrConcurrentUpdate
		}

		err := f.service.ProcessProviderWebhook(ctx, event("paid"))
		require.Error(t, err)

		received := f.webhooks.Received()
		require.Len(t, received, 1)
		assert.False(t, received[0].Processed)
		assert.Contains(t, f.audit.Actions(), "webhook.processing_failed")
		// The transition rolled back, so the ledger must not claim it
		// happened.
		assert.NotContains(t, f.audit.Actions(), "payment.status_changed")
	})
}
