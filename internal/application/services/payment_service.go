package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/domain"
)

// CreatePaymentInput is the merchant-facing request to open a payment.
type CreatePaymentInput struct {
	MerchantID  uuid.UUID         `validate:"required"`
	AmountCents int64             `validate:"gte=0"`
	Method      string            `validate:"required,oneof=card pix boleto"`
	Provider    string            `validate:"required"`
	Metadata    map[string]string `validate:"-"`
	IsTest      bool              `validate:"-"`
}

type PaymentService struct {
	payments application.PaymentRepository
	audit    *AuditService
	delivery *DeliveryService
	logger   *slog.Logger
}

func NewPaymentService(
	payments application.PaymentRepository,
	audit *AuditService,
	delivery *DeliveryService,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		audit:    audit,
		delivery: delivery,
		logger:   logger,
	}
}

// Create opens a payment in Pending and records the creation in the audit
// trail.
func (s *PaymentService) Create(ctx context.Context, in CreatePaymentInput) (*domain.Payment, error) {
	payment, err := domain.NewPayment(in.MerchantID, in.AmountCents, domain.PaymentMethod(in.Method), in.Provider, in.Metadata, in.IsTest)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, application.NewInternalError(fmt.Errorf("persist payment: %w", err))
	}

	if err := s.audit.Log(ctx, AuditEntry{
		MerchantID:   &payment.MerchantID,
		Actor:        "merchant:" + payment.MerchantID.String(),
		Action:       "payment.created",
		ResourceType: "Payment",
		ResourceID:   &payment.ID,
		Changes: map[string]any{
			"amount_cents": payment.AmountCents,
			"method":       payment.Method,
			"provider":     payment.Provider,
			"is_test":      payment.IsTest,
		},
	}); err != nil {
		return nil, err
	}

	s.logger.Info("payment created",
		"payment_id", payment.ID,
		"merchant_id", payment.MerchantID,
		"method", payment.Method,
		"amount_cents", payment.AmountCents)
	return payment, nil
}

func (s *PaymentService) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, application.NewNotFoundError("payment")
		}
		return nil, application.NewInternalError(fmt.Errorf("load payment: %w", err))
	}
	return payment, nil
}

// AttachProviderPayment binds the provider-side identifier to the payment.
// The binding is write-once; a second attach with any value is rejected.
func (s *PaymentService) AttachProviderPayment(ctx context.Context, paymentID uuid.UUID, providerPaymentID string) (*domain.Payment, error) {
	var attached *domain.Payment
	err := s.payments.WithTx(ctx, func(txRepo application.PaymentRepository) error {
		payment, err := txRepo.FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := payment.AttachProviderPayment(providerPaymentID); err != nil {
			return err
		}
		if err := txRepo.Update(ctx, payment); err != nil {
			return err
		}
		attached = payment
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotFound):
			return nil, application.NewNotFoundError("payment")
		case errors.Is(err, domain.ErrProviderPaymentAlreadySet):
			return nil, application.NewInvalidStateError(err)
		default:
			return nil, application.NewInternalError(fmt.Errorf("attach provider payment: %w", err))
		}
	}
	return attached, nil
}

// Refund moves a Paid payment to Refunded and notifies the merchant. The
// transition only exists from Paid; anything else is an invalid-state error.
func (s *PaymentService) Refund(ctx context.Context, paymentID uuid.UUID, actor string) (*domain.Payment, error) {
	var (
		refunded  *domain.Payment
		outbound  PaymentEvent
		oldStatus domain.PaymentStatus
	)
	err := s.payments.WithTx(ctx, func(txRepo application.PaymentRepository) error {
		payment, err := txRepo.FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}

		oldStatus = payment.Status
		if err := payment.TransitionTo(domain.StatusRefunded); err != nil {
			return err
		}

		if err := txRepo.Update(ctx, payment); err != nil {
			return err
		}

		refunded = payment
		outbound = PaymentEvent{
			EventType:   "payment.refunded",
			PaymentID:   payment.ID,
			Status:      payment.Status,
			AmountCents: payment.AmountCents,
			Method:      payment.Method,
			CreatedAt:   payment.CreatedAt,
			PaidAt:      payment.PaidAt,
			Metadata:    payment.Metadata,
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotFound):
			return nil, application.NewNotFoundError("payment")
		case errors.Is(err, domain.ErrInvalidTransition):
			return nil, application.NewInvalidStateError(err)
		default:
			return nil, application.NewInternalError(fmt.Errorf("refund payment: %w", err))
		}
	}

	// Audited after commit so a rolled-back refund leaves no trace.
	if err := s.audit.Log(ctx, AuditEntry{
		MerchantID:   &refunded.MerchantID,
		Actor:        actor,
		Action:       "payment.refunded",
		ResourceType: "Payment",
		ResourceID:   &refunded.ID,
		Changes:      map[string]string{"old_status": string(oldStatus), "new_status": string(domain.StatusRefunded)},
	}); err != nil {
		s.logger.Error("failed to audit refund",
			"payment_id", refunded.ID,
			"error", err)
	}

	if err := s.delivery.SendToMerchant(ctx, refunded.MerchantID, outbound); err != nil {
		// The refund is committed; delivery has its own retry chain.
		s.logger.Error("failed to notify merchant of refund",
			"payment_id", refunded.ID,
			"error", err)
	}
	return refunded, nil
}
