package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/infrastructure/persistence"
)

// AuditRepository is append-only: rows are inserted and read back for
// integrity checks, never updated or deleted.
type AuditRepository struct {
	q persistence.Executor
}

func NewAuditRepository(db *persistence.DB) *AuditRepository {
	return &AuditRepository{q: db.Pool}
}

func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, merchant_id, actor, action, resource_type, resource_id,
			changes, signature, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q.Exec(ctx, query,
		entry.ID,
		entry.MerchantID,
		entry.Actor,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		entry.Changes,
		entry.Signature,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

func (r *AuditRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.AuditLog, error) {
	query := `
		SELECT id, merchant_id, actor, action, resource_type, resource_id,
		       changes, signature, created_at
		FROM audit_logs WHERE id = $1
	`

	var e domain.AuditLog
	err := r.q.QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.MerchantID,
		&e.Actor,
		&e.Action,
		&e.ResourceType,
		&e.ResourceID,
		&e.Changes,
		&e.Signature,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAuditLogNotFound
		}
		return nil, fmt.Errorf("failed to load audit log: %w", err)
	}
	return &e, nil
}

func (r *AuditRepository) FindCreatedBetween(ctx context.Context, from, to time.Time) ([]*domain.AuditLog, error) {
	query := `
		SELECT id, merchant_id, actor, action, resource_type, resource_id,
		       changes, signature, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at
	`

	rows, err := r.q.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(
			&e.ID,
			&e.MerchantID,
			&e.Actor,
			&e.Action,
			&e.ResourceType,
			&e.ResourceID,
			&e.Changes,
			&e.Signature,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
