package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/pagware/payment-gateway/internal/application/services"
	"github.com/pagware/payment-gateway/internal/config"
)

// Reconciler runs the daily ledger-versus-provider comparison. Each run
// covers the previous UTC day and fires at the configured wall-clock time.
type Reconciler struct {
	service  *services.ReconciliationService
	runAt    time.Duration // offset from midnight UTC
	cooldown time.Duration
	logger   *slog.Logger
}

func NewReconciler(service *services.ReconciliationService, cfg config.ReconcilerConfig, logger *slog.Logger) *Reconciler {
	var runAt time.Duration
	if cfg.RunAtHour != nil {
		runAt += time.Duration(*cfg.RunAtHour) * time.Hour
	}
	if cfg.RunAtMinute != nil {
		runAt += time.Duration(*cfg.RunAtMinute) * time.Minute
	}
	return &Reconciler{
		service:  service,
		runAt:    runAt,
		cooldown: cfg.Cooldown,
		logger:   logger,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("starting reconciliation scheduler", "run_at_utc", r.runAt, "cooldown", r.cooldown)

	for {
		next := r.NextRun(time.Now().UTC())
		r.logger.Info("next reconciliation scheduled", "at", next)

		if !r.sleepUntil(ctx, next) {
			r.logger.Info("stopping reconciliation scheduler")
			return
		}

		day := time.Now().UTC().AddDate(0, 0, -1)
		if _, err := r.service.Reconcile(ctx, day); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("stopping reconciliation scheduler")
				return
			}
			// Back off and retry the same day rather than skipping it.
			r.logger.Error("reconciliation run failed", "day", day.Format("2006-01-02"), "error", err)
			if !r.sleepUntil(ctx, time.Now().Add(r.cooldown)) {
				r.logger.Info("stopping reconciliation scheduler")
				return
			}
			continue
		}
	}
}

// NextRun returns the next scheduled run strictly after now.
func (r *Reconciler) NextRun(now time.Time) time.Time {
	now = now.UTC()
	next := now.Truncate(24 * time.Hour).Add(r.runAt)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (r *Reconciler) sleepUntil(ctx context.Context, t time.Time) bool {
	timer := time.NewTimer(time.Until(t))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
