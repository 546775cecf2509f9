package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/infrastructure/persistence"
)

const paymentColumns = `id, merchant_id, amount_cents, method, status, provider,
		provider_payment_id, metadata, is_test, version, created_at, updated_at, paid_at`

// PaymentRepository persists payments. Update uses a version
// compare-and-swap so a concurrent writer loses with ErrConcurrentUpdate
// instead of silently overwriting.
type PaymentRepository struct {
	pool *pgxpool.Pool
	q    persistence.Executor
}

func NewPaymentRepository(db *persistence.DB) *PaymentRepository {
	return &PaymentRepository{pool: db.Pool, q: db.Pool}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	p, err := toDBModel(payment)
	if err != nil {
		return fmt.Errorf("failed to serialize payment: %w", err)
	}
	_, err = r.q.Exec(ctx, query,
		p.ID,
		p.MerchantID,
		p.AmountCents,
		p.Method,
		p.Status,
		p.Provider,
		p.ProviderPaymentID,
		p.Metadata,
		p.IsTest,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
		p.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.q.QueryRow(ctx, query, id))
}

// FindByIDForUpdate retrieves a payment with a row-level lock. Only
// meaningful inside WithTx.
func (r *PaymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return scanPayment(r.q.QueryRow(ctx, query, id))
}

func (r *PaymentRepository) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_payment_id = $1`
	return scanPayment(r.q.QueryRow(ctx, query, providerPaymentID))
}

func (r *PaymentRepository) FindByProviderPaymentIDForUpdate(ctx context.Context, providerPaymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_payment_id = $1 FOR UPDATE`
	return scanPayment(r.q.QueryRow(ctx, query, providerPaymentID))
}

// FindCreatedBetween pages through payments created in [from, to), oldest
// first. Used by reconciliation.
func (r *PaymentRepository) FindCreatedBetween(ctx context.Context, from, to time.Time, limit, offset int) ([]*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3 OFFSET $4
	`

	rows, err := r.q.Query(ctx, query, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

// Update writes the payment back, bumping its version. Zero rows affected
// means another writer got there first.
func (r *PaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, provider_payment_id = $2, metadata = $3,
		    version = version + 1, updated_at = $4, paid_at = $5
		WHERE id = $6 AND version = $7
	`

	p, err := toDBModel(payment)
	if err != nil {
		return fmt.Errorf("failed to serialize payment: %w", err)
	}
	tag, err := r.q.Exec(ctx, query,
		p.Status,
		p.ProviderPaymentID,
		p.Metadata,
		p.UpdatedAt,
		p.PaidAt,
		p.ID,
		p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	payment.Version++
	return nil
}

// WithTx runs fn against a transaction-bound copy of the repository.
// The transaction rolls back if fn returns an error.
func (r *PaymentRepository) WithTx(ctx context.Context, fn func(txRepo application.PaymentRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txRepo := &PaymentRepository{pool: r.pool, q: tx}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var m PaymentModel
	err := row.Scan(
		&m.ID,
		&m.MerchantID,
		&m.AmountCents,
		&m.Method,
		&m.Status,
		&m.Provider,
		&m.ProviderPaymentID,
		&m.Metadata,
		&m.IsTest,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return toDomainModel(m)
}
