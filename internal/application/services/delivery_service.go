package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/crypto"
	"github.com/pagware/payment-gateway/internal/domain"
)

// retryDelayMinutes is the backoff schedule for failed deliveries, indexed
// by attempt count (1-based) and clamped to the last entry.
var retryDelayMinutes = []int{1, 5, 15, 30, 60, 120, 240, 480, 720, 1440}

// NextRetryDelay returns how long to wait after the given attempt number.
func NextRetryDelay(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	if attemptCount > len(retryDelayMinutes) {
		attemptCount = len(retryDelayMinutes)
	}
	return time.Duration(retryDelayMinutes[attemptCount-1]) * time.Minute
}

// PaymentEvent is a state change bound for a merchant endpoint.
type PaymentEvent struct {
	EventType   string
	PaymentID   uuid.UUID
	Status      domain.PaymentStatus
	AmountCents int64
	Method      domain.PaymentMethod
	CreatedAt   time.Time
	PaidAt      *time.Time
	Metadata    map[string]string
}

// DeliveryResult is the synchronous outcome of one HTTP attempt.
type DeliveryResult struct {
	Success        bool
	StatusCode     int
	ResponseTimeMs int64
	ErrorMessage   string
}

// webhookPayload is the outbound wire format. Field names and nesting are
// contract with merchant-side verifiers.
type webhookPayload struct {
	Event    string            `json:"event"`
	Payment  paymentSnapshot   `json:"payment"`
	Metadata map[string]string `json:"metadata"`
}

type paymentSnapshot struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	AmountCents int64      `json:"amount_cents"`
	Method      string     `json:"method"`
	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at"`
}

// DeliveryService signs and posts merchant-bound webhooks, persisting every
// attempt chain. Transport failures are recorded, never propagated.
type DeliveryService struct {
	merchants  application.MerchantRepository
	webhooks   application.WebhookRepository
	encryptor  *crypto.Encryptor
	httpClient application.HTTPDoer
	logger     *slog.Logger
}

func NewDeliveryService(
	merchants application.MerchantRepository,
	webhooks application.WebhookRepository,
	encryptor *crypto.Encryptor,
	httpClient application.HTTPDoer,
	logger *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		merchants:  merchants,
		webhooks:   webhooks,
		encryptor:  encryptor,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SendToMerchant records a pending delivery, performs the first attempt and
// updates the row with the outcome. A merchant without an active webhook
// configuration is not an error.
func (s *DeliveryService) SendToMerchant(ctx context.Context, merchantID uuid.UUID, event PaymentEvent) error {
	webhookCfg, err := s.merchants.FindActiveWebhook(ctx, merchantID)
	if err != nil {
		if errors.Is(err, domain.ErrMerchantWebhookNotFound) {
			return nil
		}
		return fmt.Errorf("load merchant webhook: %w", err)
	}

	payload, err := json.Marshal(webhookPayload{
		Event: event.EventType,
		Payment: paymentSnapshot{
			ID:          event.PaymentID,
			Status:      string(event.Status),
			AmountCents: event.AmountCents,
			Method:      string(event.Method),
			CreatedAt:   event.CreatedAt,
			PaidAt:      event.PaidAt,
		},
		Metadata: event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("serialize webhook payload: %w", err)
	}

	delivery := domain.NewWebhookDelivery(merchantID, event.PaymentID, event.EventType, payload)
	if err := s.webhooks.CreateDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("create delivery record: %w", err)
	}

	return s.attemptAndRecord(ctx, delivery, webhookCfg)
}

// Retry re-attempts a previously failed delivery with a fresh timestamp,
// nonce and signature over the stored payload.
func (s *DeliveryService) Retry(ctx context.Context, delivery *domain.WebhookDelivery) error {
	webhookCfg, err := s.merchants.FindActiveWebhook(ctx, delivery.MerchantID)
	if err != nil {
		if errors.Is(err, domain.ErrMerchantWebhookNotFound) {
			// Endpoint was deactivated since the delivery was queued.
			delivery.RecordAttempt(false, "merchant webhook no longer active", nil)
			return s.webhooks.UpdateDelivery(ctx, delivery)
		}
		return fmt.Errorf("load merchant webhook: %w", err)
	}

	return s.attemptAndRecord(ctx, delivery, webhookCfg)
}

func (s *DeliveryService) attemptAndRecord(ctx context.Context, delivery *domain.WebhookDelivery, webhookCfg *domain.MerchantWebhook) error {
	secret, err := s.encryptor.Decrypt(webhookCfg.SecretEncrypted)
	if err != nil {
		// Data-integrity failure: retrying cannot help until the secret
		// is re-provisioned, so no next attempt is scheduled.
		s.logger.Error("cannot decrypt merchant webhook secret",
			"merchant_id", delivery.MerchantID,
			"delivery_id", delivery.ID,
			"error", err)
		delivery.RecordAttempt(false, "webhook secret unusable", nil)
		return s.webhooks.UpdateDelivery(ctx, delivery)
	}

	result := s.attempt(ctx, webhookCfg.EndpointURL, delivery.Payload, secret)

	if result.Success {
		delivery.RecordAttempt(true, "", nil)
		now := time.Now().UTC()
		webhookCfg.LastSuccessAt = &now
		if err := s.merchants.UpdateWebhook(ctx, webhookCfg); err != nil {
			s.logger.Error("failed to record webhook success time", "merchant_id", delivery.MerchantID, "error", err)
		}
	} else {
		next := time.Now().UTC().Add(NextRetryDelay(delivery.AttemptCount + 1))
		delivery.RecordAttempt(false, result.ErrorMessage, &next)
		s.logger.Warn("webhook delivery failed",
			"delivery_id", delivery.ID,
			"merchant_id", delivery.MerchantID,
			"attempt", delivery.AttemptCount,
			"next_retry_at", next,
			"error", result.ErrorMessage)
	}

	if err := s.webhooks.UpdateDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("update delivery record: %w", err)
	}
	return nil
}

// TestDelivery performs a single signed attempt against the given URL and
// returns the result synchronously. Nothing is persisted and no retry is
// scheduled.
func (s *DeliveryService) TestDelivery(ctx context.Context, merchantID uuid.UUID, endpointURL string) (*DeliveryResult, error) {
	payload, err := json.Marshal(map[string]any{
		"event":     "test.webhook",
		"test":      true,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("serialize test payload: %w", err)
	}

	secret := "test_signature"
	webhookCfg, err := s.merchants.FindActiveWebhook(ctx, merchantID)
	if err == nil {
		decrypted, decErr := s.encryptor.Decrypt(webhookCfg.SecretEncrypted)
		if decErr != nil {
			return nil, decErr
		}
		secret = decrypted
	} else if !errors.Is(err, domain.ErrMerchantWebhookNotFound) {
		return nil, fmt.Errorf("load merchant webhook: %w", err)
	}

	result := s.attempt(ctx, endpointURL, payload, secret)
	return result, nil
}

func (s *DeliveryService) attempt(ctx context.Context, endpointURL string, payload []byte, secret string) *DeliveryResult {
	timestamp := time.Now().Unix()
	nonce := uuid.New().String()
	traceID := uuid.New().String()

	message := crypto.OutboundMessage(timestamp, nonce, payload)
	signature := crypto.ComputeSignature(secret, message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payload))
	if err != nil {
		return &DeliveryResult{Success: false, ErrorMessage: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Trace-Id", traceID)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return &DeliveryResult{
			Success:        false,
			ResponseTimeMs: elapsed,
			ErrorMessage:   err.Error(),
		}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse

	result := &DeliveryResult{
		Success:        resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode:     resp.StatusCode,
		ResponseTimeMs: elapsed,
	}
	if !result.Success {
		result.ErrorMessage = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return result
}
