package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/provider"
)

// CreateSubscriptionInput is the merchant-facing request to start a
// recurring charge. The card token never touches the ledger; it is handed
// straight to the provider.
type CreateSubscriptionInput struct {
	MerchantID    uuid.UUID         `validate:"required"`
	AmountCents   int64             `validate:"gt=0"`
	Interval      string            `validate:"required,oneof=week month year"`
	Provider      string            `validate:"required"`
	CardToken     string            `validate:"required"`
	CustomerName  string            `validate:"required"`
	CustomerEmail string            `validate:"required,email"`
	Metadata      map[string]string `validate:"-"`
}

// SubscriptionService manages recurring charges. The provider owns the
// billing schedule; this service keeps the local record in step with it.
type SubscriptionService struct {
	subscriptions application.SubscriptionRepository
	providers     *provider.Registry
	audit         *AuditService
	logger        *slog.Logger
}

func NewSubscriptionService(
	subscriptions application.SubscriptionRepository,
	providers *provider.Registry,
	audit *AuditService,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptions: subscriptions,
		providers:     providers,
		audit:         audit,
		logger:        logger,
	}
}

// Create registers the subscription with the provider first; only a
// provider-confirmed subscription is persisted.
func (s *SubscriptionService) Create(ctx context.Context, in CreateSubscriptionInput) (*domain.Subscription, error) {
	sub, err := domain.NewSubscription(
		in.MerchantID,
		in.AmountCents,
		domain.SubscriptionInterval(in.Interval),
		in.Provider,
		in.CustomerName,
		in.CustomerEmail,
		in.Metadata,
	)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}

	adapter, err := s.providers.Get(in.Provider)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}
	billing, ok := adapter.(provider.SubscriptionProvider)
	if !ok {
		return nil, application.NewInvalidInputError(
			fmt.Errorf("provider %s does not support recurring charges", in.Provider))
	}

	created, err := billing.CreateSubscription(ctx, provider.SubscriptionRequest{
		CardToken:     in.CardToken,
		AmountCents:   in.AmountCents,
		Interval:      in.Interval,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
	})
	if err != nil {
		return nil, application.NewProviderRejectedError(err)
	}

	sub.ProviderSubscriptionID = created.ProviderSubscriptionID
	if !created.NextBillingDate.IsZero() {
		next := created.NextBillingDate
		sub.NextBillingDate = &next
	}

	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, application.NewInternalError(fmt.Errorf("persist subscription: %w", err))
	}

	if err := s.audit.Log(ctx, AuditEntry{
		MerchantID:   &sub.MerchantID,
		Actor:        "merchant:" + sub.MerchantID.String(),
		Action:       "subscription.created",
		ResourceType: "Subscription",
		ResourceID:   &sub.ID,
		Changes: map[string]any{
			"amount_cents":             sub.AmountCents,
			"interval":                 string(sub.Interval),
			"provider_subscription_id": sub.ProviderSubscriptionID,
		},
	}); err != nil {
		s.logger.Error("failed to audit subscription creation",
			"subscription_id", sub.ID,
			"error", err)
	}
	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subscriptions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil, application.NewNotFoundError("subscription")
		}
		return nil, application.NewInternalError(fmt.Errorf("load subscription: %w", err))
	}
	return sub, nil
}

// Cancel ends the recurring charge at the provider and marks the local
// record cancelled. A second cancel is an invalid-state error.
func (s *SubscriptionService) Cancel(ctx context.Context, id uuid.UUID, actor string) (*domain.Subscription, error) {
	sub, err := s.subscriptions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil, application.NewNotFoundError("subscription")
		}
		return nil, application.NewInternalError(fmt.Errorf("load subscription: %w", err))
	}

	if sub.Status == domain.SubscriptionCancelled {
		return nil, application.NewInvalidStateError(domain.ErrSubscriptionNotActive)
	}
	oldStatus := sub.Status

	adapter, err := s.providers.Get(sub.Provider)
	if err != nil {
		return nil, application.NewInternalError(fmt.Errorf("resolve provider: %w", err))
	}
	billing, ok := adapter.(provider.SubscriptionProvider)
	if !ok {
		return nil, application.NewInternalError(
			fmt.Errorf("provider %s does not support recurring charges", sub.Provider))
	}
	if err := billing.CancelSubscription(ctx, sub.ProviderSubscriptionID); err != nil {
		return nil, application.NewProviderRejectedError(err)
	}

	if err := sub.Cancel(); err != nil {
		return nil, application.NewInvalidStateError(err)
	}
	if err := s.subscriptions.Update(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			return nil, application.NewInvalidStateError(err)
		}
		return nil, application.NewInternalError(fmt.Errorf("update subscription: %w", err))
	}

	if err := s.audit.Log(ctx, AuditEntry{
		MerchantID:   &sub.MerchantID,
		Actor:        actor,
		Action:       "subscription.cancelled",
		ResourceType: "Subscription",
		ResourceID:   &sub.ID,
		Changes:      map[string]string{"old_status": string(oldStatus), "new_status": string(sub.Status)},
	}); err != nil {
		s.logger.Error("failed to audit subscription cancellation",
			"subscription_id", sub.ID,
			"error", err)
	}
	return sub, nil
}
