package postgres

import (
	"time"

	"github.com/google/uuid"
)

type PaymentModel struct {
	ID                uuid.UUID
	MerchantID        uuid.UUID
	AmountCents       int64
	Method            string
	Status            string
	Provider          string
	ProviderPaymentID *string
	Metadata          []byte
	IsTest            bool
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
}

type WebhookDeliveryModel struct {
	ID           uuid.UUID
	MerchantID   uuid.UUID
	PaymentID    uuid.UUID
	EventType    string
	Payload      []byte
	Status       string
	AttemptCount int
	LastError    *string
	NextRetryAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
