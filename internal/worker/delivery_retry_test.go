package worker

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

	"github.com/pagware/payment-gateway/internal/application/services"
	"github.com/pagware/payment-gateway/internal/config"
	"github.com/pagware/payment-gateway/internal/domain"
)

func TestDeliveryRetryWorker_RunOnce(t *testing.T) {
	ctx := context.Background()
	merchantID := uuid.New()
	cfg := config.DeliveryConfig{RetryInterval: time.Minute, MaxAttempts: 11, BatchSize: 100}
	logger := testLogger()

	seedFailedDelivery := func(t *testing.T, webhooks *services.MockWebhookRepository, due bool) *domain.WebhookDelivery {
		t.Helper()
		d := domain.NewWebhookDelivery(merchantID, uuid.New(), "payment.paid", []byte(`{}`))
		retryAt := time.Now().UTC().Add(-time.Minute)
		if !due {
			retryAt = time.Now().UTC().Add(time.Hour)
		}
		d.RecordAttempt(false, "HTTP 500", &retryAt)
		require.NoError(t, webhooks.CreateDelivery(ctx, d))
		return d
	}

	t.Run("due deliveries are retried", func(t *testing.T) {
		f := newRetryFixture(t, merchantID)
		d := seedFailedDelivery(t, f.webhooks, true)

		worker := NewDeliveryRetryWorker(f.webhooks, f.delivery, cfg, logger)
		require.NoError(t, worker.RunOnce(ctx))

		assert.Equal(t, domain.DeliverySuccess, f.webhooks.Delivery(d.ID).Status)
		assert.Len(t, f.http.Requests(), 1)
	})

	t.Run("future retries are left alone", func(t *testing.T) {
		f := newRetryFixture(t, merchantID)
		d := seedFailedDelivery(t, f.webhooks, false)

		worker := NewDeliveryRetryWorker(f.webhooks, f.delivery, cfg, logger)
		require.NoError(t, worker.RunOnce(ctx))

		assert.Equal(t, domain.DeliveryFailed, f.webhooks.Delivery(d.ID).Status)
		assert.Empty(t, f.http.Requests())
	})

	t.Run("exhausted deliveries are not picked up", func(t *testing.T) {
		f := newRetryFixture(t, merchantID)
		d := domain.NewWebhookDelivery(merchantID, uuid.New(), "payment.paid", []byte(`{}`))
		retryAt := time.Now().UTC().Add(-time.Minute)
		for i := 0; i < cfg.MaxAttempts; i++ {
			d.RecordAttempt(false, "HTTP 500", &retryAt)
		}
		require.NoError(t, f.webhooks.CreateDelivery(ctx, d))

		worker := NewDeliveryRetryWorker(f.webhooks, f.delivery, cfg, logger)
		require.NoError(t, worker.RunOnce(ctx))

		assert.Equal(t, cfg.MaxAttempts, f.webhooks.Delivery(d.ID).AttemptCount)
		assert.Empty(t, f.http.Requests())
	})

	t.Run("one failing retry does not block the rest", func(t *testing.T) {
		f := newRetryFixture(t, merchantID)
		first := seedFailedDelivery(t, f.webhooks, true)
		second := seedFailedDelivery(t, f.webhooks, true)

		calls := 0
		f.http.DoFn = func(req *http.Request) (*http.Response, error) {
			calls++
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		}

		worker := NewDeliveryRetryWorker(f.webhooks, f.delivery, cfg, logger)
		require.NoError(t, worker.RunOnce(ctx))

		assert.Equal(t, 2, calls)
		assert.Equal(t, domain.DeliverySuccess, f.webhooks.Delivery(first.ID).Status)
		assert.Equal(t, domain.DeliverySuccess, f.webhooks.Delivery(second.ID).Status)
	})
}
