package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/infrastructure/persistence"
)

// WebhookRepository stores raw inbound webhook events and outbound
// delivery attempt chains.
type WebhookRepository struct {
	q persistence.Executor
}

func NewWebhookRepository(db *persistence.DB) *WebhookRepository {
	return &WebhookRepository{q: db.Pool}
}

func (r *WebhookRepository) CreateReceived(ctx context.Context, received *domain.WebhookReceived) error {
	query := `
		INSERT INTO webhooks_received (id, provider, event_type, payload, processed, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.Exec(ctx, query,
		received.ID,
		received.Provider,
		received.EventType,
		received.Payload,
		received.Processed,
		received.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store webhook event: %w", err)
	}
	return nil
}

func (r *WebhookRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	query := `UPDATE webhooks_received SET processed = TRUE, processed_at = $1 WHERE id = $2`
	_, err := r.q.Exec(ctx, query, processedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook processed: %w", err)
	}
	return nil
}

func (r *WebhookRepository) CreateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, merchant_id, payment_id, event_type, payload, status,
			attempt_count, last_error, next_retry_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.q.Exec(ctx, query,
		delivery.ID,
		delivery.MerchantID,
		delivery.PaymentID,
		delivery.EventType,
		delivery.Payload,
		string(delivery.Status),
		delivery.AttemptCount,
		delivery.LastError,
		delivery.NextRetryAt,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery: %w", err)
	}
	return nil
}

func (r *WebhookRepository) UpdateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, attempt_count = $2, last_error = $3, next_retry_at = $4, updated_at = $5
		WHERE id = $6
	`
	_, err := r.q.Exec(ctx, query,
		string(delivery.Status),
		delivery.AttemptCount,
		delivery.LastError,
		delivery.NextRetryAt,
		delivery.UpdatedAt,
		delivery.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	return nil
}

// FindDueDeliveries returns failed deliveries whose retry time has passed
// and that still have attempts left, oldest retry first.
func (r *WebhookRepository) FindDueDeliveries(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*domain.WebhookDelivery, error) {
	query := `
		SELECT id, merchant_id, payment_id, event_type, payload, status,
		       attempt_count, last_error, next_retry_at, created_at, updated_at
		FROM webhook_deliveries
		WHERE status = $1 AND attempt_count < $2 AND next_retry_at IS NOT NULL AND next_retry_at <= $3
		ORDER BY next_retry_at
		LIMIT $4
	`

	rows, err := r.q.Query(ctx, query, string(domain.DeliveryFailed), maxAttempts, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*domain.WebhookDelivery
	for rows.Next() {
		var m WebhookDeliveryModel
		err := rows.Scan(
			&m.ID,
			&m.MerchantID,
			&m.PaymentID,
			&m.EventType,
			&m.Payload,
			&m.Status,
			&m.AttemptCount,
			&m.LastError,
			&m.NextRetryAt,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, &domain.WebhookDelivery{
			ID:           m.ID,
			MerchantID:   m.MerchantID,
			PaymentID:    m.PaymentID,
			EventType:    m.EventType,
			Payload:      m.Payload,
			Status:       domain.DeliveryStatus(m.Status),
			AttemptCount: m.AttemptCount,
			LastError:    m.LastError,
			NextRetryAt:  m.NextRetryAt,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
		})
	}
	return deliveries, rows.Err()
}
