package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagware/payment-gateway/internal/config"
	"github.com/pagware/payment-gateway/internal/crypto"
)

const NameCard = "card"

// CardAdapter integrates the card acquirer. Its webhooks carry a
// transaction_id and an acquirer status string (approved, declined, ...).
type CardAdapter struct {
	secret string
	api    *httpClient
}

func NewCardAdapter(cfg config.ProviderConfig) *CardAdapter {
	return &CardAdapter{
		secret: cfg.WebhookSecret,
		api:    newHTTPClient(NameCard, cfg),
	}
}

func (a *CardAdapter) Name() string { return NameCard }

func (a *CardAdapter) ValidateWebhookSignature(_ context.Context, in InboundWebhook) (bool, error) {
	message := crypto.InboundMessage(in.Timestamp, in.Nonce, in.Method, in.Path, in.Body)
	return crypto.VerifySignature(a.secret, message, in.Signature), nil
}

type cardWebhookPayload struct {
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	AmountCents   int64  `json:"amount_cents"`
}

func (a *CardAdapter) ParseEvent(payload []byte) (*Event, error) {
	var p cardWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("parse card webhook: %w", err)
	}

	return &Event{
		Provider:          NameCard,
		EventType:         p.Type,
		ProviderPaymentID: p.TransactionID,
		Status:            p.Status,
		Payload:           payload,
	}, nil
}

type cardChargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	AmountCents   int64  `json:"amount_cents"`
}

func (a *CardAdapter) FetchPaymentStatus(ctx context.Context, providerPaymentID string) (*ProviderPayment, error) {
	resp, err := getJSON[cardChargeResponse](a.api, ctx, "/v1/charges/"+providerPaymentID)
	if err != nil {
		return nil, err
	}

	return &ProviderPayment{
		ProviderPaymentID: resp.TransactionID,
		Status:            resp.Status,
		AmountCents:       resp.AmountCents,
	}, nil
}

type cardSubscriptionRequest struct {
	CardToken     string `json:"card_token"`
	AmountCents   int64  `json:"amount_cents"`
	Interval      string `json:"interval"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

type cardSubscriptionResponse struct {
	SubscriptionID  string    `json:"subscription_id"`
	Status          string    `json:"status"`
	NextBillingDate time.Time `json:"next_billing_date"`
}

func (a *CardAdapter) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*ProviderSubscription, error) {
	resp, err := postJSON[cardSubscriptionResponse](a.api, ctx, "/v1/subscriptions", cardSubscriptionRequest{
		CardToken:     req.CardToken,
		AmountCents:   req.AmountCents,
		Interval:      req.Interval,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		return nil, err
	}

	return &ProviderSubscription{
		ProviderSubscriptionID: resp.SubscriptionID,
		Status:                 resp.Status,
		NextBillingDate:        resp.NextBillingDate,
	}, nil
}

func (a *CardAdapter) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	_, err := postJSON[cardSubscriptionResponse](a.api, ctx, "/v1/subscriptions/"+providerSubscriptionID+"/cancel", struct{}{})
	return err
}
