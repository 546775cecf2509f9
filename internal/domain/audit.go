package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is an append-only record of one action against the gateway.
// Signature is an HMAC over every other field so tampering is detectable
// after the fact. MerchantID is nil for provider-originated events.
type AuditLog struct {
	ID           uuid.UUID
	MerchantID   *uuid.UUID
	Actor        string
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Changes      []byte
	Signature    string
	CreatedAt    time.Time
}

// ReconciliationReport is the outcome of one reconciliation run. It is
// logged, not persisted; mismatches never auto-correct payment state.
type ReconciliationReport struct {
	Day        time.Time
	Total      int
	Matched    int
	Mismatched int
	Mismatches []ReconciliationMismatch
}

type MismatchType string

const (
	MismatchStatus        MismatchType = "status_mismatch"
	MismatchAmount        MismatchType = "amount_mismatch"
	MismatchRecordMissing MismatchType = "provider_record_missing"
)

type ReconciliationMismatch struct {
	PaymentID      uuid.UUID
	Type           MismatchType
	GatewayStatus  PaymentStatus
	GatewayAmount  int64
	ProviderStatus string
	ProviderAmount int64
}
