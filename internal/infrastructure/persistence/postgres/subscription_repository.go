package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/infrastructure/persistence"
)

const subscriptionColumns = `id, merchant_id, amount_cents, billing_interval, status, provider,
		provider_subscription_id, customer_name, customer_email, metadata, version,
		next_billing_date, created_at, updated_at, cancelled_at`

// SubscriptionRepository persists recurring charge agreements. Update uses
// the same version compare-and-swap as the payment ledger.
type SubscriptionRepository struct {
	q persistence.Executor
}

func NewSubscriptionRepository(db *persistence.DB) *SubscriptionRepository {
	return &SubscriptionRepository{q: db.Pool}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	var metadata []byte
	if sub.Metadata != nil {
		var err error
		metadata, err = json.Marshal(sub.Metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize subscription metadata: %w", err)
		}
	}
	_, err := r.q.Exec(ctx, query,
		sub.ID,
		sub.MerchantID,
		sub.AmountCents,
		string(sub.Interval),
		string(sub.Status),
		sub.Provider,
		sub.ProviderSubscriptionID,
		sub.CustomerName,
		sub.CustomerEmail,
		metadata,
		sub.Version,
		sub.NextBillingDate,
		sub.CreatedAt,
		sub.UpdatedAt,
		sub.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	var (
		sub      domain.Subscription
		interval string
		status   string
		metadata []byte
	)
	err := r.q.QueryRow(ctx, query, id).Scan(
		&sub.ID,
		&sub.MerchantID,
		&sub.AmountCents,
		&interval,
		&status,
		&sub.Provider,
		&sub.ProviderSubscriptionID,
		&sub.CustomerName,
		&sub.CustomerEmail,
		&metadata,
		&sub.Version,
		&sub.NextBillingDate,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&sub.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	sub.Interval = domain.SubscriptionInterval(interval)
	sub.Status = domain.SubscriptionStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &sub.Metadata); err != nil {
			return nil, fmt.Errorf("failed to deserialize subscription metadata: %w", err)
		}
	}
	return &sub, nil
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET status = $1, next_billing_date = $2, version = version + 1,
		    updated_at = $3, cancelled_at = $4
		WHERE id = $5 AND version = $6
	`

	tag, err := r.q.Exec(ctx, query,
		string(sub.Status),
		sub.NextBillingDate,
		sub.UpdatedAt,
		sub.CancelledAt,
		sub.ID,
		sub.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	sub.Version++
	return nil
}
