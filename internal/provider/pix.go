package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pagware/payment-gateway/internal/config"
	"github.com/pagware/payment-gateway/internal/crypto"
)

const NamePix = "pix"

// PixAdapter integrates the PIX settlement partner. PIX callbacks identify
// the charge by txid and report value_cents.
type PixAdapter struct {
	secret string
	api    *httpClient
}

func NewPixAdapter(cfg config.ProviderConfig) *PixAdapter {
	return &PixAdapter{
		secret: cfg.WebhookSecret,
		api:    newHTTPClient(NamePix, cfg),
	}
}

func (a *PixAdapter) Name() string { return NamePix }

func (a *PixAdapter) ValidateWebhookSignature(_ context.Context, in InboundWebhook) (bool, error) {
	message := crypto.InboundMessage(in.Timestamp, in.Nonce, in.Method, in.Path, in.Body)
	return crypto.VerifySignature(a.secret, message, in.Signature), nil
}

type pixWebhookPayload struct {
	Event      string `json:"event"`
	Txid       string `json:"txid"`
	Status     string `json:"status"`
	ValueCents int64  `json:"value_cents"`
}

func (a *PixAdapter) ParseEvent(payload []byte) (*Event, error) {
	var p pixWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("parse pix webhook: %w", err)
	}

	return &Event{
		Provider:          NamePix,
		EventType:         p.Event,
		ProviderPaymentID: p.Txid,
		Status:            p.Status,
		Payload:           payload,
	}, nil
}

type pixChargeResponse struct {
	Txid       string `json:"txid"`
	Status     string `json:"status"`
	ValueCents int64  `json:"value_cents"`
}

func (a *PixAdapter) FetchPaymentStatus(ctx context.Context, providerPaymentID string) (*ProviderPayment, error) {
	resp, err := getJSON[pixChargeResponse](a.api, ctx, "/v1/cob/"+providerPaymentID)
	if err != nil {
		return nil, err
	}

	return &ProviderPayment{
		ProviderPaymentID: resp.Txid,
		Status:            resp.Status,
		AmountCents:       resp.ValueCents,
	}, nil
}
