package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pagware/payment-gateway/internal/config"
)

func newTestReconciler(hour, minute int) *Reconciler {
	return NewReconciler(nil, config.ReconcilerConfig{
		RunAtHour:   &hour,
		RunAtMinute: &minute,
		Cooldown:    5 * time.Minute,
	}, nil)
}

func TestReconciler_NextRun(t *testing.T) {
	r := newTestReconciler(2, 0)

	t.Run("before the run time, same day", func(t *testing.T) {
		now := time.Date(2025, 3, 10, 1, 30, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC), r.NextRun(now))
	})

	t.Run("after the run time, next day", func(t *testing.T) {
		now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC), r.NextRun(now))
	})

	t.Run("exactly at the run time schedules tomorrow", func(t *testing.T) {
		now := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC), r.NextRun(now))
	})

	t.Run("non-UTC input is normalized", func(t *testing.T) {
		loc := time.FixedZone("BRT", -3*60*60)
		now := time.Date(2025, 3, 10, 22, 30, 0, 0, loc) // 01:30 UTC next day
		assert.Equal(t, time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC), r.NextRun(now))
	})

	t.Run("custom minute offset", func(t *testing.T) {
		r := newTestReconciler(2, 30)
		now := time.Date(2025, 3, 10, 2, 15, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 3, 10, 2, 30, 0, 0, time.UTC), r.NextRun(now))
	})

	t.Run("explicit midnight schedule is honored", func(t *testing.T) {
		r := newTestReconciler(0, 0)
		now := time.Date(2025, 3, 10, 23, 45, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), r.NextRun(now))
	})
}
