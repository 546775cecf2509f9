package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/provider"
)

// ReconciliationService compares the gateway ledger against each provider's
// records for one calendar day. It only reports; it never mutates payments.
type ReconciliationService struct {
	payments  application.PaymentRepository
	providers *provider.Registry
	audit     *AuditService
	batchSize int
	logger    *slog.Logger
}

func NewReconciliationService(
	payments application.PaymentRepository,
	providers *provider.Registry,
	audit *AuditService,
	batchSize int,
	logger *slog.Logger,
) *ReconciliationService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ReconciliationService{
		payments:  payments,
		providers: providers,
		audit:     audit,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Reconcile checks every non-test payment created on the given UTC day.
// A payment that never got a provider-side identifier has nothing to check
// against and is counted as matched. Provider fetch failures are logged and
// the payment skipped so one flaky provider cannot sink the whole run.
func (s *ReconciliationService) Reconcile(ctx context.Context, day time.Time) (*domain.ReconciliationReport, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	report := &domain.ReconciliationReport{Day: from}

	for offset := 0; ; offset += s.batchSize {
		batch, err := s.payments.FindCreatedBetween(ctx, from, to, s.batchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list payments for %s: %w", from.Format("2006-01-02"), err)
		}
		if len(batch) == 0 {
			break
		}

		for _, payment := range batch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if payment.IsTest {
				continue
			}
			report.Total++
			s.reconcileOne(ctx, payment, report)
		}

		if len(batch) < s.batchSize {
			break
		}
	}

	if err := s.audit.Log(ctx, AuditEntry{
		Actor:        "system",
		Action:       "reconciliation.completed",
		ResourceType: "ReconciliationReport",
		Changes: map[string]any{
			"day":        from.Format("2006-01-02"),
			"total":      report.Total,
			"matched":    report.Matched,
			"mismatched": report.Mismatched,
		},
	}); err != nil {
		return nil, err
	}

	s.logger.Info("reconciliation run finished",
		"day", from.Format("2006-01-02"),
		"total", report.Total,
		"matched", report.Matched,
		"mismatched", report.Mismatched)
	return report, nil
}

func (s *ReconciliationService) reconcileOne(ctx context.Context, payment *domain.Payment, report *domain.ReconciliationReport) {
	if payment.ProviderPaymentID == nil {
		report.Matched++
		return
	}

	adapter, err := s.providers.Get(payment.Provider)
	if err != nil {
		s.logger.Error("payment references unknown provider",
			"payment_id", payment.ID,
			"provider", payment.Provider)
		return
	}

	remote, err := adapter.FetchPaymentStatus(ctx, *payment.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, provider.ErrRecordNotFound) {
			report.Mismatched++
			report.Mismatches = append(report.Mismatches, domain.ReconciliationMismatch{
				PaymentID:     payment.ID,
				Type:          domain.MismatchRecordMissing,
				GatewayStatus: payment.Status,
				GatewayAmount: payment.AmountCents,
			})
			return
		}
		s.logger.Warn("skipping payment, provider fetch failed",
			"payment_id", payment.ID,
			"provider", payment.Provider,
			"error", err)
		return
	}

	mapped, known := domain.MapProviderStatus(remote.Status)
	statusMatches := known && mapped == payment.Status
	amountMatches := remote.AmountCents == payment.AmountCents

	if statusMatches && amountMatches {
		report.Matched++
		return
	}

	report.Mismatched++
	if !statusMatches {
		report.Mismatches = append(report.Mismatches, domain.ReconciliationMismatch{
			PaymentID:      payment.ID,
			Type:           domain.MismatchStatus,
			GatewayStatus:  payment.Status,
			GatewayAmount:  payment.AmountCents,
			ProviderStatus: remote.Status,
			ProviderAmount: remote.AmountCents,
		})
	}
	if !amountMatches {
		report.Mismatches = append(report.Mismatches, domain.ReconciliationMismatch{
			PaymentID:      payment.ID,
			Type:           domain.MismatchAmount,
			GatewayStatus:  payment.Status,
			GatewayAmount:  payment.AmountCents,
			ProviderStatus: remote.Status,
			ProviderAmount: remote.AmountCents,
		})
	}
}
