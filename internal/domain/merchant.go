package domain

import (
	"time"

	"github.com/google/uuid"
)

type Merchant struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MerchantWebhook is a merchant's outbound notification endpoint. The
// signing secret is stored AEAD-encrypted and decrypted only at send time.
type MerchantWebhook struct {
	ID              uuid.UUID
	MerchantID      uuid.UUID
	EndpointURL     string
	SecretEncrypted string
	Active          bool
	LastSuccessAt   *time.Time
	CreatedAt       time.Time
}

// APIKey authenticates merchant API traffic. KeyHash is a one-way digest for
// lookups; the secret itself is kept encrypted for signed-request flows.
// A rotated-out key stays active until ExpiresAt passes (grace window).
type APIKey struct {
	ID                 uuid.UUID
	MerchantID         uuid.UUID
	KeyID              string
	KeyHash            string
	KeySecretEncrypted string
	Active             bool
	ExpiresAt          *time.Time
	CreatedAt          time.Time
}

// Expired reports whether the key's grace window has closed.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
