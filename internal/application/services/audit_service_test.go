package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagware/payment-gateway/internal/domain"
)

func TestAuditService(t *testing.T) {
	ctx := context.Background()

	t.Run("entries verify after write", func(t *testing.T) {
		sink := NewMockAuditSink()
		service := NewAuditService(sink, "audit-key")

		merchantID := uuid.New()
		resourceID := uuid.New()
		require.NoError(t, service.Log(ctx, AuditEntry{
			MerchantID:   &merchantID,
			Actor:        "merchant:" + merchantID.String(),
			Action:       "payment.created",
			ResourceType: "Payment",
			ResourceID:   &resourceID,
			Changes:      map[string]any{"amount_cents": 1000},
		}))

		entries := sink.Entries()
		require.Len(t, entries, 1)
		assert.NotEmpty(t, entries[0].Signature)

		ok, err := service.VerifyIntegrity(ctx, entries[0].ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("tampering with any signed field is detected", func(t *testing.T) {
		sink := NewMockAuditSink()
		service := NewAuditService(sink, "audit-key")

		resourceID := uuid.New()
		require.NoError(t, service.Log(ctx, AuditEntry{
			Actor:        "system",
			Action:       "payment.refunded",
			ResourceType: "Payment",
			ResourceID:   &resourceID,
			Changes:      map[string]string{"old_status": "PAID", "new_status": "REFUNDED"},
		}))

		entry := sink.Entries()[0]
		tamper := []struct {
			name   string
			mutate func(*domain.AuditLog)
		}{
			{"changes", func(e *domain.AuditLog) { e.Changes = []byte(`{"old_status":"PENDING"}`) }},
			{"actor", func(e *domain.AuditLog) { e.Actor = "attacker" }},
			{"action", func(e *domain.AuditLog) { e.Action = "payment.created" }},
		}
		for _, tc := range tamper {
			t.Run(tc.name, func(t *testing.T) {
				original := *entry
				tc.mutate(entry)

				ok, err := service.VerifyIntegrity(ctx, entry.ID)
				require.NoError(t, err)
				assert.False(t, ok)

				*entry = original
			})
		}
	})

	t.Run("a different signing key fails verification", func(t *testing.T) {
		sink := NewMockAuditSink()
		writer := NewAuditService(sink, "key-a")
		reader := NewAuditService(sink, "key-b")

		require.NoError(t, writer.Log(ctx, AuditEntry{
			Actor:        "system",
			Action:       "reconciliation.completed",
			ResourceType: "ReconciliationReport",
		}))

		ok, err := reader.VerifyIntegrity(ctx, sink.Entries()[0].ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing entry is an error", func(t *testing.T) {
		service := NewAuditService(NewMockAuditSink(), "audit-key")

		_, err := service.VerifyIntegrity(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrAuditLogNotFound)
	})
}

func TestAuditService_Export(t *testing.T) {
	ctx := context.Background()

	t.Run("writes entries in range with signatures", func(t *testing.T) {
		sink := NewMockAuditSink()
		service := NewAuditService(sink, "audit-key")

		merchantID := uuid.New()
		require.NoError(t, service.Log(ctx, AuditEntry{
			MerchantID:   &merchantID,
			Actor:        "merchant:" + merchantID.String(),
			Action:       "payment.created",
			ResourceType: "Payment",
			Changes:      map[string]any{"amount_cents": 1000},
		}))
		require.NoError(t, service.Log(ctx, AuditEntry{
			Actor:        "system",
			Action:       "reconciliation.completed",
			ResourceType: "ReconciliationReport",
		}))
		// Backdated entry that the range must exclude.
		old := sink.Entries()[0]
		stale := *old
		stale.ID = uuid.New()
		stale.CreatedAt = time.Now().UTC().AddDate(0, -2, 0)
		require.NoError(t, sink.Append(ctx, &stale))

		from := time.Now().UTC().AddDate(0, 0, -1)
		to := time.Now().UTC().AddDate(0, 0, 1)
		dir := t.TempDir()

		path, err := service.Export(ctx, from, to, dir)
		require.NoError(t, err)
		assert.Equal(t,
			fmt.Sprintf("audit_logs_%s_%s.json", from.Format("20060102"), to.Format("20060102")),
			filepath.Base(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var exported []map[string]any
		require.NoError(t, json.Unmarshal(data, &exported))
		require.Len(t, exported, 2)
		assert.Equal(t, "payment.created", exported[0]["action"])
		assert.Equal(t, "reconciliation.completed", exported[1]["action"])
		for _, row := range exported {
			assert.NotEmpty(t, row["signature"])
		}
	})

	t.Run("empty range exports an empty list", func(t *testing.T) {
		service := NewAuditService(NewMockAuditSink(), "audit-key")
		dir := t.TempDir()

		path, err := service.Export(ctx, time.Now().UTC().Add(-time.Hour), time.Now().UTC(), dir)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.JSONEq(t, "[]", string(data))
	})
}
