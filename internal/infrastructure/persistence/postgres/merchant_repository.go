package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/infrastructure/persistence"
)

type MerchantRepository struct {
	q persistence.Executor
}

func NewMerchantRepository(db *persistence.DB) *MerchantRepository {
	return &MerchantRepository{q: db.Pool}
}

func (r *MerchantRepository) CreateMerchant(ctx context.Context, merchant *domain.Merchant) error {
	query := `
		INSERT INTO merchants (id, name, email, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.Exec(ctx, query,
		merchant.ID,
		merchant.Name,
		merchant.Email,
		merchant.Active,
		merchant.CreatedAt,
		merchant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create merchant: %w", err)
	}
	return nil
}

func (r *MerchantRepository) CreateWebhook(ctx context.Context, webhook *domain.MerchantWebhook) error {
	query := `
		INSERT INTO merchant_webhooks (
			id, merchant_id, endpoint_url, secret_encrypted, active, last_success_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.Exec(ctx, query,
		webhook.ID,
		webhook.MerchantID,
		webhook.EndpointURL,
		webhook.SecretEncrypted,
		webhook.Active,
		webhook.LastSuccessAt,
		webhook.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create merchant webhook: %w", err)
	}
	return nil
}

func (r *MerchantRepository) FindActiveWebhook(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantWebhook, error) {
	query := `
		SELECT id, merchant_id, endpoint_url, secret_encrypted, active, last_success_at, created_at
		FROM merchant_webhooks
		WHERE merchant_id = $1 AND active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`

	var w domain.MerchantWebhook
	err := r.q.QueryRow(ctx, query, merchantID).Scan(
		&w.ID,
		&w.MerchantID,
		&w.EndpointURL,
		&w.SecretEncrypted,
		&w.Active,
		&w.LastSuccessAt,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMerchantWebhookNotFound
		}
		return nil, fmt.Errorf("failed to load merchant webhook: %w", err)
	}
	return &w, nil
}

func (r *MerchantRepository) UpdateWebhook(ctx context.Context, webhook *domain.MerchantWebhook) error {
	query := `
		UPDATE merchant_webhooks
		SET endpoint_url = $1, secret_encrypted = $2, active = $3, last_success_at = $4
		WHERE id = $5
	`
	_, err := r.q.Exec(ctx, query,
		webhook.EndpointURL,
		webhook.SecretEncrypted,
		webhook.Active,
		webhook.LastSuccessAt,
		webhook.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update merchant webhook: %w", err)
	}
	return nil
}

func (r *MerchantRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `
		INSERT INTO api_keys (
			id, merchant_id, key_id, key_hash, key_secret_encrypted, active, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q.Exec(ctx, query,
		key.ID,
		key.MerchantID,
		key.KeyID,
		key.KeyHash,
		key.KeySecretEncrypted,
		key.Active,
		key.ExpiresAt,
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (r *MerchantRepository) FindActiveAPIKeys(ctx context.Context, merchantID uuid.UUID) ([]*domain.APIKey, error) {
	query := `
		SELECT id, merchant_id, key_id, key_hash, key_secret_encrypted, active, expires_at, created_at
		FROM api_keys
		WHERE merchant_id = $1 AND active = TRUE
		ORDER BY created_at DESC
	`

	rows, err := r.q.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		err := rows.Scan(
			&k.ID,
			&k.MerchantID,
			&k.KeyID,
			&k.KeyHash,
			&k.KeySecretEncrypted,
			&k.Active,
			&k.ExpiresAt,
			&k.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (r *MerchantRepository) UpdateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `UPDATE api_keys SET active = $1, expires_at = $2 WHERE id = $3`
	_, err := r.q.Exec(ctx, query, key.Active, key.ExpiresAt, key.ID)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	return nil
}
