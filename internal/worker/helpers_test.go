package worker

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pagware/payment-gateway/internal/application/services"
	"github.com/pagware/payment-gateway/internal/crypto"
	"github.com/pagware/payment-gateway/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type retryFixture struct {
	webhooks *services.MockWebhookRepository
	delivery *services.DeliveryService
	http     *services.MockHTTPDoer
}

// newRetryFixture wires a delivery service against a merchant with one
// active webhook endpoint and an HTTP doer that answers 200.
func newRetryFixture(t *testing.T, merchantID uuid.UUID) *retryFixture {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	enc, err := crypto.NewEncryptor(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)

	secretEncrypted, err := enc.Encrypt("whsec_test")
	require.NoError(t, err)

	merchants := services.NewMockMerchantRepository()
	require.NoError(t, merchants.CreateWebhook(t.Context(), &domain.MerchantWebhook{
		ID:              uuid.New(),
		MerchantID:      merchantID,
		EndpointURL:     "https://merchant.example/hooks",
		SecretEncrypted: secretEncrypted,
		Active:          true,
	}))

	webhooks := services.NewMockWebhookRepository()
	httpDoer := &services.MockHTTPDoer{
		DoFn: func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		},
	}

	return &retryFixture{
		webhooks: webhooks,
		delivery: services.NewDeliveryService(merchants, webhooks, enc, httpDoer, testLogger()),
		http:     httpDoer,
	}
}
