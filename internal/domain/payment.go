// Package domain encodes the payment ledger entities and their invariants.
package domain

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the current state of a payment in its lifecycle
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusAuthorized PaymentStatus = "AUTHORIZED"
	StatusPaid       PaymentStatus = "PAID"
	StatusFailed     PaymentStatus = "FAILED"
	StatusRefunded   PaymentStatus = "REFUNDED"
	StatusExpired    PaymentStatus = "EXPIRED"
	StatusCancelled  PaymentStatus = "CANCELLED"
)

// PaymentMethod identifies how the customer pays.
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodPix    PaymentMethod = "pix"
	MethodBoleto PaymentMethod = "boleto"
)

type Payment struct {
	ID          uuid.UUID
	MerchantID  uuid.UUID
	AmountCents int64
	Method      PaymentMethod
	Status      PaymentStatus

	Provider          string
	ProviderPaymentID *string

	Metadata map[string]string
	IsTest   bool

	// Version guards concurrent writers; bumped on every persisted update.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}

func NewPayment(
	merchantID uuid.UUID,
	amountCents int64,
	method PaymentMethod,
	provider string,
	metadata map[string]string,
	isTest bool,
) (*Payment, error) {
	if merchantID == uuid.Nil {
		return nil, errors.New("merchant ID is required")
	}
	if amountCents < 0 {
		return nil, errors.New("amount cannot be negative")
	}
	if method != MethodCard && method != MethodPix && method != MethodBoleto {
		return nil, errors.New("unknown payment method")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}

	now := time.Now().UTC()
	return &Payment{
		ID:          uuid.New(),
		MerchantID:  merchantID,
		AmountCents: amountCents,
		Method:      method,
		Status:      StatusPending,
		Provider:    provider,
		Metadata:    metadata,
		IsTest:      isTest,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TransitionTo moves the payment to the target status if the state machine
// allows it. Moving to Paid stamps PaidAt.
func (p *Payment) TransitionTo(target PaymentStatus) error {
	if err := p.canTransitionTo(target); err != nil {
		return err
	}
	p.Status = target
	p.UpdatedAt = time.Now().UTC()
	if target == StatusPaid && p.PaidAt == nil {
		now := time.Now().UTC()
		p.PaidAt = &now
	}
	return nil
}

func (p *Payment) canTransitionTo(target PaymentStatus) error {
	switch p.Status {
	case StatusPending:
		return p.allow(target, StatusAuthorized, StatusPaid, StatusFailed, StatusExpired, StatusCancelled)
	case StatusAuthorized:
		return p.allow(target, StatusPaid, StatusFailed, StatusCancelled)
	case StatusPaid:
		return p.allow(target, StatusRefunded)
	}
	return ErrInvalidTransition
}

// Helper to check allowed state transitions
func (p *Payment) allow(target PaymentStatus, allowed ...PaymentStatus) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return ErrInvalidTransition
}

// AttachProviderPayment records the provider-assigned identifier. It may be
// set at most once and is never overwritten.
func (p *Payment) AttachProviderPayment(providerPaymentID string) error {
	if providerPaymentID == "" {
		return errors.New("provider payment ID is required")
	}
	if p.ProviderPaymentID != nil {
		return ErrProviderPaymentAlreadySet
	}
	p.ProviderPaymentID = &providerPaymentID
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal reports whether no further transition is possible.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case StatusRefunded, StatusFailed, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// Reconstitute - Special constructor for loading from DB
func Reconstitute(
	id, merchantID uuid.UUID,
	amountCents int64,
	method PaymentMethod,
	status PaymentStatus,
	provider string,
	providerPaymentID *string,
	metadata map[string]string,
	isTest bool,
	version int,
	createdAt, updatedAt time.Time,
	paidAt *time.Time,
) *Payment {
	return &Payment{
		ID:                id,
		MerchantID:        merchantID,
		AmountCents:       amountCents,
		Method:            method,
		Status:            status,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		Metadata:          metadata,
		IsTest:            isTest,
		Version:           version,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
		PaidAt:            paidAt,
	}
}
