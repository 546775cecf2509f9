package application

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pagware/payment-gateway/internal/domain"
)

// PaymentRepository is the port for the payment ledger. Update performs a
// version compare-and-swap; FindByIDForUpdate variants take a row lock and
// are only meaningful inside WithTx.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domain.Payment, error)
	FindByProviderPaymentIDForUpdate(ctx context.Context, providerPaymentID string) (*domain.Payment, error)
	FindCreatedBetween(ctx context.Context, from, to time.Time, limit, offset int) ([]*domain.Payment, error)
	Update(ctx context.Context, payment *domain.Payment) error
	WithTx(ctx context.Context, fn func(txRepo PaymentRepository) error) error
}

// SubscriptionRepository persists recurring charge agreements. Update is a
// version compare-and-swap like the payment ledger.
type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *domain.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	Update(ctx context.Context, subscription *domain.Subscription) error
}

// WebhookRepository persists inbound webhook records and outbound delivery
// attempt chains.
type WebhookRepository interface {
	CreateReceived(ctx context.Context, received *domain.WebhookReceived) error
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	CreateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
	UpdateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
	FindDueDeliveries(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*domain.WebhookDelivery, error)
}

// MerchantRepository is the port for merchant webhook configuration and
// API key material.
type MerchantRepository interface {
	CreateMerchant(ctx context.Context, merchant *domain.Merchant) error
	CreateWebhook(ctx context.Context, webhook *domain.MerchantWebhook) error
	FindActiveWebhook(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantWebhook, error)
	UpdateWebhook(ctx context.Context, webhook *domain.MerchantWebhook) error
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	FindActiveAPIKeys(ctx context.Context, merchantID uuid.UUID) ([]*domain.APIKey, error)
	UpdateAPIKey(ctx context.Context, key *domain.APIKey) error
}

// AuditSink is the append-only audit trail.
type AuditSink interface {
	Append(ctx context.Context, entry *domain.AuditLog) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.AuditLog, error)
	FindCreatedBetween(ctx context.Context, from, to time.Time) ([]*domain.AuditLog, error)
}

// NonceStore is the replay-protection port. CheckAndStore must be atomic
// per (scope, nonce) under concurrent access.
type NonceStore interface {
	IsUnique(ctx context.Context, scope, nonce string) (bool, error)
	Store(ctx context.Context, scope, nonce string, ttl time.Duration) error
	CheckAndStore(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error)
}

// HTTPDoer is the outbound HTTP port for merchant webhook delivery.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
