package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the current state of a recurring charge.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// SubscriptionInterval is the billing cadence.
type SubscriptionInterval string

const (
	IntervalWeek  SubscriptionInterval = "week"
	IntervalMonth SubscriptionInterval = "month"
	IntervalYear  SubscriptionInterval = "year"
)

// Subscription is a recurring charge agreement. The provider owns the
// billing schedule; ProviderSubscriptionID ties the local record to it.
type Subscription struct {
	ID          uuid.UUID
	MerchantID  uuid.UUID
	AmountCents int64
	Interval    SubscriptionInterval
	Status      SubscriptionStatus

	Provider               string
	ProviderSubscriptionID string

	CustomerName  string
	CustomerEmail string

	Metadata map[string]string

	// Version guards concurrent writers; bumped on every persisted update.
	Version int

	NextBillingDate *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
}

func NewSubscription(
	merchantID uuid.UUID,
	amountCents int64,
	interval SubscriptionInterval,
	provider string,
	customerName string,
	customerEmail string,
	metadata map[string]string,
) (*Subscription, error) {
	if merchantID == uuid.Nil {
		return nil, errors.New("merchant ID is required")
	}
	if amountCents <= 0 {
		return nil, errors.New("amount must be positive")
	}
	if interval != IntervalWeek && interval != IntervalMonth && interval != IntervalYear {
		return nil, errors.New("unknown billing interval")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	if customerName == "" || customerEmail == "" {
		return nil, errors.New("customer name and email are required")
	}

	now := time.Now().UTC()
	return &Subscription{
		ID:            uuid.New(),
		MerchantID:    merchantID,
		AmountCents:   amountCents,
		Interval:      interval,
		Status:        SubscriptionActive,
		Provider:      provider,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Metadata:      metadata,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Cancel ends the agreement. Cancelled is terminal; a second cancel is
// refused so the provider is never asked to cancel twice.
func (s *Subscription) Cancel() error {
	if s.Status == SubscriptionCancelled {
		return ErrSubscriptionNotActive
	}
	now := time.Now().UTC()
	s.Status = SubscriptionCancelled
	s.CancelledAt = &now
	s.UpdatedAt = now
	return nil
}

// MarkPastDue records a missed provider charge. Cancelled subscriptions
// stay cancelled.
func (s *Subscription) MarkPastDue() error {
	if s.Status == SubscriptionCancelled {
		return ErrSubscriptionNotActive
	}
	s.Status = SubscriptionPastDue
	s.UpdatedAt = time.Now().UTC()
	return nil
}
