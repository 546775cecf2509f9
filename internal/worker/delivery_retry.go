package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/application/services"
	"github.com/pagware/payment-gateway/internal/config"
)

// DeliveryRetryWorker polls for failed merchant webhook deliveries whose
// retry time has come and re-attempts them. Deliveries that exhaust their
// attempts are left in FAILED for manual follow-up.
type DeliveryRetryWorker struct {
	webhooks    application.WebhookRepository
	delivery    *services.DeliveryService
	interval    time.Duration
	maxAttempts int
	batchSize   int
	logger      *slog.Logger
}

func NewDeliveryRetryWorker(
	webhooks application.WebhookRepository,
	delivery *services.DeliveryService,
	cfg config.DeliveryConfig,
	logger *slog.Logger,
) *DeliveryRetryWorker {
	return &DeliveryRetryWorker{
		webhooks:    webhooks,
		delivery:    delivery,
		interval:    cfg.RetryInterval,
		maxAttempts: cfg.MaxAttempts,
		batchSize:   cfg.BatchSize,
		logger:      logger,
	}
}

func (w *DeliveryRetryWorker) Start(ctx context.Context) {
	w.logger.Info("delivery retry worker started",
		"interval", w.interval,
		"max_attempts", w.maxAttempts)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delivery retry worker stopping")
			return
		case <-ticker.C:
			if err := w.processDue(ctx); err != nil {
				w.logger.Error("delivery retry pass failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single retry pass.
func (w *DeliveryRetryWorker) RunOnce(ctx context.Context) error {
	return w.processDue(ctx)
}

func (w *DeliveryRetryWorker) processDue(ctx context.Context) error {
	due, err := w.webhooks.FindDueDeliveries(ctx, time.Now().UTC(), w.maxAttempts, w.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	w.logger.Info("retrying failed deliveries", "count", len(due))
	for _, delivery := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.delivery.Retry(ctx, delivery); err != nil {
			w.logger.Error("retry attempt failed",
				"delivery_id", delivery.ID,
				"error", err)
		}
	}
	return nil
}
