package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/crypto"
	"github.com/pagware/payment-gateway/internal/domain"
)

// AuditEntry is one action to record. Changes is serialized as JSON.
type AuditEntry struct {
	MerchantID   *uuid.UUID
	Actor        string
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Changes      any
}

// AuditService writes the tamper-evident audit trail. Every entry is signed
// with the process-wide audit HMAC key so later mutation of a row is
// detectable by VerifyIntegrity.
type AuditService struct {
	sink    application.AuditSink
	hmacKey string
}

func NewAuditService(sink application.AuditSink, hmacKey string) *AuditService {
	return &AuditService{
		sink:    sink,
		hmacKey: hmacKey,
	}
}

func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	var changes []byte
	if entry.Changes != nil {
		var err error
		changes, err = json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("serialize audit changes: %w", err)
		}
	}

	record := &domain.AuditLog{
		ID:           uuid.New(),
		MerchantID:   entry.MerchantID,
		Actor:        entry.Actor,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Changes:      changes,
		CreatedAt:    time.Now().UTC(),
	}
	record.Signature = crypto.ComputeSignature(s.hmacKey, signatureMessage(record))

	if err := s.sink.Append(ctx, record); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// exportedAuditLog is the on-disk export row. Changes stays raw JSON and
// the signature travels with the entry so exports are independently
// verifiable.
type exportedAuditLog struct {
	ID           uuid.UUID       `json:"id"`
	MerchantID   *uuid.UUID      `json:"merchant_id,omitempty"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty"`
	Changes      json.RawMessage `json:"changes,omitempty"`
	Signature    string          `json:"signature"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Export writes every entry created in [from, to] to a JSON file under
// dir, named audit_logs_{from}_{to}.json. It returns the written path.
func (s *AuditService) Export(ctx context.Context, from, to time.Time, dir string) (string, error) {
	entries, err := s.sink.FindCreatedBetween(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("query audit logs: %w", err)
	}

	exported := make([]exportedAuditLog, len(entries))
	for i, entry := range entries {
		exported[i] = exportedAuditLog{
			ID:           entry.ID,
			MerchantID:   entry.MerchantID,
			Actor:        entry.Actor,
			Action:       entry.Action,
			ResourceType: entry.ResourceType,
			ResourceID:   entry.ResourceID,
			Changes:      entry.Changes,
			Signature:    entry.Signature,
			CreatedAt:    entry.CreatedAt,
		}
	}

	data, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize audit export: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	name := fmt.Sprintf("audit_logs_%s_%s.json", from.Format("20060102"), to.Format("20060102"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write audit export: %w", err)
	}
	return path, nil
}

// VerifyIntegrity recomputes the entry's signature from its stored fields.
// False means the row was altered after it was written.
func (s *AuditService) VerifyIntegrity(ctx context.Context, id uuid.UUID) (bool, error) {
	record, err := s.sink.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return crypto.VerifySignature(s.hmacKey, signatureMessage(record), record.Signature), nil
}

// signatureMessage covers every field except the signature itself. The
// pipe-joined layout is fixed; changing it invalidates existing entries.
func signatureMessage(record *domain.AuditLog) string {
	merchantID := ""
	if record.MerchantID != nil {
		merchantID = record.MerchantID.String()
	}
	resourceID := ""
	if record.ResourceID != nil {
		resourceID = record.ResourceID.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s",
		record.ID,
		merchantID,
		record.Actor,
		record.Action,
		record.ResourceType,
		resourceID,
		record.Changes,
		record.CreatedAt.Format(time.RFC3339Nano),
	)
}
