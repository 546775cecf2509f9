package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pagware/payment-gateway/internal/config"
	"github.com/pagware/payment-gateway/internal/crypto"
)

const NameBoleto = "boleto"

// BoletoAdapter integrates the boleto settlement partner, which reports the
// charge state under "situation" rather than "status".
type BoletoAdapter struct {
	secret string
	api    *httpClient
}

func NewBoletoAdapter(cfg config.ProviderConfig) *BoletoAdapter {
	return &BoletoAdapter{
		secret: cfg.WebhookSecret,
		api:    newHTTPClient(NameBoleto, cfg),
	}
}

func (a *BoletoAdapter) Name() string { return NameBoleto }

func (a *BoletoAdapter) ValidateWebhookSignature(_ context.Context, in InboundWebhook) (bool, error) {
	message := crypto.InboundMessage(in.Timestamp, in.Nonce, in.Method, in.Path, in.Body)
	return crypto.VerifySignature(a.secret, message, in.Signature), nil
}

type boletoWebhookPayload struct {
	EventType   string `json:"event_type"`
	BoletoID    string `json:"boleto_id"`
	Situation   string `json:"situation"`
	AmountCents int64  `json:"amount_cents"`
}

func (a *BoletoAdapter) ParseEvent(payload []byte) (*Event, error) {
	var p boletoWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("parse boleto webhook: %w", err)
	}

	return &Event{
		Provider:          NameBoleto,
		EventType:         p.EventType,
		ProviderPaymentID: p.BoletoID,
		Status:            p.Situation,
		Payload:           payload,
	}, nil
}

type boletoResponse struct {
	BoletoID    string `json:"boleto_id"`
	Situation   string `json:"situation"`
	AmountCents int64  `json:"amount_cents"`
}

func (a *BoletoAdapter) FetchPaymentStatus(ctx context.Context, providerPaymentID string) (*ProviderPayment, error) {
	resp, err := getJSON[boletoResponse](a.api, ctx, "/v1/boletos/"+providerPaymentID)
	if err != nil {
		return nil, err
	}

	return &ProviderPayment{
		ProviderPaymentID: resp.BoletoID,
		Status:            resp.Situation,
		AmountCents:       resp.AmountCents,
	}, nil
}
