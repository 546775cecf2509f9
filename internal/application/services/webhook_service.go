package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/provider"
)

const (
	// maxTimestampSkew bounds how far a webhook's claimed timestamp may
	// drift from the gateway clock in either direction.
	maxTimestampSkew = 120 * time.Second
	// providerNonceTTL keeps consumed nonces long past the skew window.
	providerNonceTTL = 24 * time.Hour
)

// WebhookService is the inbound trust boundary: it admits provider
// callbacks (timestamp, nonce, signature) and applies idempotent state
// transitions to the payment ledger.
type WebhookService struct {
	payments  application.PaymentRepository
	webhooks  application.WebhookRepository
	providers *provider.Registry
	nonces    application.NonceStore
	audit     *AuditService
	delivery  *DeliveryService
	logger    *slog.Logger
}

func NewWebhookService(
	payments application.PaymentRepository,
	webhooks application.WebhookRepository,
	providers *provider.Registry,
	nonces application.NonceStore,
	audit *AuditService,
	delivery *DeliveryService,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		payments:  payments,
		webhooks:  webhooks,
		providers: providers,
		nonces:    nonces,
		audit:     audit,
		delivery:  delivery,
		logger:    logger,
	}
}

// ValidateProviderWebhook runs the admission sequence. Each step
// short-circuits with its own audited rejection; errors are reserved for
// infrastructure failures (nonce store or audit trail unreachable).
// On success the nonce is consumed atomically, so a replay racing this
// call cannot also be admitted.
func (s *WebhookService) ValidateProviderWebhook(ctx context.Context, in provider.InboundWebhook) (application.Rejection, error) {
	actor := "provider:" + in.Provider
	scope := "provider:" + in.Provider

	skew := time.Now().Unix() - in.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > maxTimestampSkew {
		if err := s.audit.Log(ctx, AuditEntry{
			Actor:        actor,
			Action:       "webhook.rejected.timestamp_skew",
			ResourceType: "Webhook",
			Changes:      map[string]any{"provider": in.Provider, "skew_seconds": skew, "max_allowed": int(maxTimestampSkew.Seconds())},
		}); err != nil {
			return application.RejectionNone, err
		}
		return application.RejectionTimestampSkew, nil
	}

	unique, err := s.nonces.IsUnique(ctx, scope, in.Nonce)
	if err != nil {
		return application.RejectionNone, fmt.Errorf("nonce uniqueness check: %w", err)
	}
	if !unique {
		if err := s.audit.Log(ctx, AuditEntry{
			Actor:        actor,
			Action:       "webhook.rejected.nonce_reused",
			ResourceType: "Webhook",
			Changes:      map[string]any{"provider": in.Provider, "nonce": in.Nonce},
		}); err != nil {
			return application.RejectionNone, err
		}
		return application.RejectionNonceReused, nil
	}

	adapter, err := s.providers.Get(in.Provider)
	if err != nil {
		return application.RejectionNone, err
	}

	valid, err := adapter.ValidateWebhookSignature(ctx, in)
	if err != nil {
		return application.RejectionNone, fmt.Errorf("signature validation: %w", err)
	}
	if !valid {
		if err := s.audit.Log(ctx, AuditEntry{
			Actor:        actor,
			Action:       "webhook.rejected.invalid_signature",
			ResourceType: "Webhook",
			Changes:      map[string]any{"provider": in.Provider},
		}); err != nil {
			return application.RejectionNone, err
		}
		return application.RejectionInvalidSignature, nil
	}

	consumed, err := s.nonces.CheckAndStore(ctx, scope, in.Nonce, providerNonceTTL)
	if err != nil {
		return application.RejectionNone, fmt.Errorf("consume nonce: %w", err)
	}
	if !consumed {
		// Lost a race against an identical webhook that was admitted first.
		if err := s.audit.Log(ctx, AuditEntry{
			Actor:        actor,
			Action:       "webhook.rejected.nonce_reused",
			ResourceType: "Webhook",
			Changes:      map[string]any{"provider": in.Provider, "nonce": in.Nonce},
		}); err != nil {
			return application.RejectionNone, err
		}
		return application.RejectionNonceReused, nil
	}

	return application.RejectionNone, nil
}

// ProcessProviderWebhook persists the raw event, applies the mapped status
// transition under a row lock if the payment is known, and triggers the
// merchant notification. The WebhookReceived row is marked processed even
// when no payment matches; a processing failure leaves it unprocessed for
// forensic replay and is returned so the transport responds non-2xx.
func (s *WebhookService) ProcessProviderWebhook(ctx context.Context, event *provider.Event) error {
	received := domain.NewWebhookReceived(event.Provider, event.EventType, event.Payload)
	if err := s.webhooks.CreateReceived(ctx, received); err != nil {
		return fmt.Errorf("persist webhook event: %w", err)
	}

	if err := s.process(ctx, event); err != nil {
		if auditErr := s.audit.Log(ctx, AuditEntry{
			Actor:        "provider:" + event.Provider,
			Action:       "webhook.processing_failed",
			ResourceType: "Webhook",
			ResourceID:   &received.ID,
			Changes:      map[string]any{"error": err.Error()},
		}); auditErr != nil {
			s.logger.Error("failed to audit processing failure", "error", auditErr)
		}
		return err
	}

	if err := s.webhooks.MarkProcessed(ctx, received.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	return nil
}

func (s *WebhookService) process(ctx context.Context, event *provider.Event) error {
	if event.ProviderPaymentID == "" {
		return nil
	}

	var (
		outbound   *PaymentEvent
		merchantID uuid.UUID
		transition *AuditEntry
	)
	err := s.payments.WithTx(ctx, func(txRepo application.PaymentRepository) error {
		payment, err := txRepo.FindByProviderPaymentIDForUpdate(ctx, event.ProviderPaymentID)
		if err != nil {
			if errors.Is(err, domain.ErrPaymentNotFound) {
				// Valid: providers emit events for activity the gateway
				// never initiated. The raw record is kept for audit.
				return nil
			}
			return err
		}

		mapped, ok := domain.MapProviderStatus(event.Status)
		if !ok {
			s.logger.Warn("unrecognized provider status",
				"provider", event.Provider,
				"status", event.Status,
				"payment_id", payment.ID)
			return nil
		}

		if mapped == payment.Status {
			return nil
		}

		oldStatus := payment.Status
		if err := payment.TransitionTo(mapped); err != nil {
			// The state machine forbids this move (e.g. a terminal status
			// being walked back). Keep the ledger untouched.
			s.logger.Warn("refusing provider-driven status regression",
				"provider", event.Provider,
				"payment_id", payment.ID,
				"from", oldStatus,
				"to", mapped)
			return nil
		}

		if err := txRepo.Update(ctx, payment); err != nil {
			return err
		}

		// Audited after commit; a rolled-back transition must not
		// leave a trace in the ledger.
		transition = &AuditEntry{
			MerchantID:   &payment.MerchantID,
			Actor:        "provider:" + event.Provider,
			Action:       "payment.status_changed",
			ResourceType: "Payment",
			ResourceID:   &payment.ID,
			Changes:      map[string]string{"old_status": string(oldStatus), "new_status": string(mapped)},
		}

		merchantID = payment.MerchantID
		outbound = &PaymentEvent{
			EventType:   "payment." + strings.ToLower(string(mapped)),
			PaymentID:   payment.ID,
			Status:      payment.Status,
			AmountCents: payment.AmountCents,
			Method:      payment.Method,
			CreatedAt:   payment.CreatedAt,
			PaidAt:      payment.PaidAt,
			Metadata:    payment.Metadata,
		}
		return nil
	})
	if err != nil {
		return err
	}

	if transition != nil {
		if auditErr := s.audit.Log(ctx, *transition); auditErr != nil {
			s.logger.Error("failed to audit status transition",
				"payment_id", transition.ResourceID,
				"error", auditErr)
		}
	}

	if outbound != nil {
		return s.delivery.SendToMerchant(ctx, merchantID, *outbound)
	}
	return nil
}
