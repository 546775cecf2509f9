package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/crypto"
	"github.com/pagware/payment-gateway/internal/domain"
)

// rotationGrace is how long a rotated-out API key keeps authenticating,
// giving merchants a window to roll credentials without downtime.
const rotationGrace = 30 * 24 * time.Hour

// IssuedAPIKey carries the plaintext secret back to the caller exactly
// once, at issue time. It is never retrievable afterwards.
type IssuedAPIKey struct {
	KeyID     string
	Secret    string
	ExpiresAt *time.Time
}

type MerchantService struct {
	merchants application.MerchantRepository
	encryptor *crypto.Encryptor
	audit     *AuditService
	logger    *slog.Logger
}

func NewMerchantService(
	merchants application.MerchantRepository,
	encryptor *crypto.Encryptor,
	audit *AuditService,
	logger *slog.Logger,
) *MerchantService {
	return &MerchantService{
		merchants: merchants,
		encryptor: encryptor,
		audit:     audit,
		logger:    logger,
	}
}

// Register creates a merchant together with its first API key.
func (s *MerchantService) Register(ctx context.Context, name, email string) (*domain.Merchant, *IssuedAPIKey, error) {
	if name == "" || email == "" {
		return nil, nil, application.NewInvalidInputError(errors.New("merchant name and email are required"))
	}

	now := time.Now().UTC()
	merchant := &domain.Merchant{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.merchants.CreateMerchant(ctx, merchant); err != nil {
		return nil, nil, application.NewInternalError(fmt.Errorf("persist merchant: %w", err))
	}

	issued, err := s.issueKey(ctx, merchant.ID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.audit.Log(ctx, AuditEntry{
		MerchantID:   &merchant.ID,
		Actor:        "system",
		Action:       "merchant.registered",
		ResourceType: "Merchant",
		ResourceID:   &merchant.ID,
		Changes:      map[string]string{"name": name, "email": email},
	}); err != nil {
		return nil, nil, err
	}

	return merchant, issued, nil
}

// ConfigureWebhook registers or replaces the merchant's notification
// endpoint. The signing secret is encrypted before it touches storage.
func (s *MerchantService) ConfigureWebhook(ctx context.Context, merchantID uuid.UUID, endpointURL, secret string) (*domain.MerchantWebhook, error) {
	if endpointURL == "" || secret == "" {
		return nil, application.NewInvalidInputError(errors.New("endpoint URL and secret are required"))
	}

	encrypted, err := s.encryptor.Encrypt(secret)
	if err != nil {
		return nil, application.NewInternalError(fmt.Errorf("encrypt webhook secret: %w", err))
	}

	if existing, err := s.merchants.FindActiveWebhook(ctx, merchantID); err == nil {
		existing.Active = false
		if err := s.merchants.UpdateWebhook(ctx, existing); err != nil {
			return nil, application.NewInternalError(fmt.Errorf("deactivate previous webhook: %w", err))
		}
	}

	webhook := &domain.MerchantWebhook{
		ID:              uuid.New(),
		MerchantID:      merchantID,
		EndpointURL:     endpointURL,
		SecretEncrypted: encrypted,
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.merchants.CreateWebhook(ctx, webhook); err != nil {
		return nil, application.NewInternalError(fmt.Errorf("persist webhook config: %w", err))
	}

	if err := s.audit.Log(ctx, AuditEntry{
		MerchantID:   &merchantID,
		Actor:        "merchant:" + merchantID.String(),
		Action:       "merchant.webhook_configured",
		ResourceType: "MerchantWebhook",
		ResourceID:   &webhook.ID,
		Changes:      map[string]string{"endpoint_url": endpointURL},
	}); err != nil {
		return nil, err
	}
	return webhook, nil
}

// RotateAPIKey issues a fresh key and puts every previously active key on
// the grace clock instead of revoking it outright. Keys already carrying an
// earlier expiry keep it.
func (s *MerchantService) RotateAPIKey(ctx context.Context, merchantID uuid.UUID) (*IssuedAPIKey, error) {
	existing, err := s.merchants.FindActiveAPIKeys(ctx, merchantID)
	if err != nil {
		return nil, application.NewInternalError(fmt.Errorf("load api keys: %w", err))
	}

	graceEnd := time.Now().UTC().Add(rotationGrace)
	for _, key := range existing {
		if key.ExpiresAt == nil {
			expiry := graceEnd
			key.ExpiresAt = &expiry
			if err := s.merchants.UpdateAPIKey(ctx, key); err != nil {
				return nil, application.NewInternalError(fmt.Errorf("expire api key: %w", err))
			}
		}
	}

	issued, err := s.issueKey(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, AuditEntry{
		MerchantID:   &merchantID,
		Actor:        "merchant:" + merchantID.String(),
		Action:       "merchant.api_key_rotated",
		ResourceType: "APIKey",
		Changes: map[string]any{
			"new_key_id":     issued.KeyID,
			"grace_ends_at":  graceEnd,
			"keys_on_notice": len(existing),
		},
	}); err != nil {
		return nil, err
	}
	return issued, nil
}

// VerifyAPIKey authenticates a key ID and secret pair. Keys inside their
// rotation grace window still verify; expired or inactive keys do not.
func (s *MerchantService) VerifyAPIKey(ctx context.Context, merchantID uuid.UUID, keyID, secret string) (bool, error) {
	keys, err := s.merchants.FindActiveAPIKeys(ctx, merchantID)
	if err != nil {
		return false, application.NewInternalError(fmt.Errorf("load api keys: %w", err))
	}

	now := time.Now().UTC()
	for _, key := range keys {
		if key.KeyID != keyID || key.Expired(now) {
			continue
		}
		if s.encryptor.VerifyHash(secret, key.KeyHash) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MerchantService) issueKey(ctx context.Context, merchantID uuid.UUID) (*IssuedAPIKey, error) {
	secret, err := randomToken(32)
	if err != nil {
		return nil, application.NewInternalError(fmt.Errorf("generate key secret: %w", err))
	}
	keyID, err := randomToken(8)
	if err != nil {
		return nil, application.NewInternalError(fmt.Errorf("generate key id: %w", err))
	}
	keyID = "pk_" + keyID

	encrypted, err := s.encryptor.Encrypt(secret)
	if err != nil {
		return nil, application.NewInternalError(fmt.Errorf("encrypt key secret: %w", err))
	}

	key := &domain.APIKey{
		ID:                 uuid.New(),
		MerchantID:         merchantID,
		KeyID:              keyID,
		KeyHash:            s.encryptor.Hash(secret),
		KeySecretEncrypted: encrypted,
		Active:             true,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.merchants.CreateAPIKey(ctx, key); err != nil {
		return nil, application.NewInternalError(fmt.Errorf("persist api key: %w", err))
	}

	return &IssuedAPIKey{KeyID: keyID, Secret: secret}, nil
}

func randomToken(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
