package postgres

import (
	"encoding/json"

	"github.com/pagware/payment-gateway/internal/domain"
)

// toDomainModel: maps db model to domain entity
func toDomainModel(m PaymentModel) (*domain.Payment, error) {
	var metadata map[string]string
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
			return nil, err
		}
	}
	return domain.Reconstitute(
		m.ID,
		m.MerchantID,
		m.AmountCents,
		domain.PaymentMethod(m.Method),
		domain.PaymentStatus(m.Status),
		m.Provider,
		m.ProviderPaymentID,
		metadata,
		m.IsTest,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
		m.PaidAt,
	), nil
}

// toDBModel: maps domain entity to db model
func toDBModel(p *domain.Payment) (*PaymentModel, error) {
	var metadata []byte
	if p.Metadata != nil {
		var err error
		metadata, err = json.Marshal(p.Metadata)
		if err != nil {
			return nil, err
		}
	}
	return &PaymentModel{
		ID:                p.ID,
		MerchantID:        p.MerchantID,
		AmountCents:       p.AmountCents,
		Method:            string(p.Method),
		Status:            string(p.Status),
		Provider:          p.Provider,
		ProviderPaymentID: p.ProviderPaymentID,
		Metadata:          metadata,
		IsTest:            p.IsTest,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		PaidAt:            p.PaidAt,
	}, nil
}
