package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookReceived is the immutable record of a raw inbound provider webhook.
// It is created on receipt and mutated exactly once when processing
// completes; unmatched events are kept for replay audit.
type WebhookReceived struct {
	ID          uuid.UUID
	Provider    string
	EventType   string
	Payload     []byte
	Processed   bool
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

func NewWebhookReceived(provider, eventType string, payload []byte) *WebhookReceived {
	return &WebhookReceived{
		ID:         uuid.New(),
		Provider:   provider,
		EventType:  eventType,
		Payload:    payload,
		Processed:  false,
		ReceivedAt: time.Now().UTC(),
	}
}

// DeliveryStatus is the lifecycle of one outbound merchant notification.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySuccess DeliveryStatus = "SUCCESS"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// WebhookDelivery tracks one merchant-bound notification and its attempt
// chain. Rows are never deleted.
type WebhookDelivery struct {
	ID           uuid.UUID
	MerchantID   uuid.UUID
	PaymentID    uuid.UUID
	EventType    string
	Payload      []byte
	Status       DeliveryStatus
	AttemptCount int
	LastError    *string
	NextRetryAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewWebhookDelivery(merchantID, paymentID uuid.UUID, eventType string, payload []byte) *WebhookDelivery {
	now := time.Now().UTC()
	return &WebhookDelivery{
		ID:         uuid.New(),
		MerchantID: merchantID,
		PaymentID:  paymentID,
		EventType:  eventType,
		Payload:    payload,
		Status:     DeliveryPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// RecordAttempt applies the outcome of one delivery attempt.
func (d *WebhookDelivery) RecordAttempt(success bool, errMsg string, nextRetryAt *time.Time) {
	d.AttemptCount++
	d.UpdatedAt = time.Now().UTC()
	if success {
		d.Status = DeliverySuccess
		d.LastError = nil
		d.NextRetryAt = nil
		return
	}
	d.Status = DeliveryFailed
	if errMsg != "" {
		d.LastError = &errMsg
	}
	d.NextRetryAt = nextRetryAt
}
