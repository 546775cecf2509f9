package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/application/services"
	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/interfaces/rest"
)

type createSubscriptionRequest struct {
	AmountCents   int64             `json:"amount_cents" validate:"gt=0"`
	Interval      string            `json:"interval" validate:"required,oneof=week month year"`
	Provider      string            `json:"provider" validate:"required"`
	CardToken     string            `json:"card_token" validate:"required"`
	CustomerName  string            `json:"customer_name" validate:"required"`
	CustomerEmail string            `json:"customer_email" validate:"required,email"`
	Metadata      map[string]string `json:"metadata"`
}

type subscriptionCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type subscriptionResponse struct {
	ID                     uuid.UUID            `json:"id"`
	MerchantID             uuid.UUID            `json:"merchant_id"`
	AmountCents            int64                `json:"amount_cents"`
	Interval               string               `json:"interval"`
	Status                 string               `json:"status"`
	Provider               string               `json:"provider"`
	ProviderSubscriptionID string               `json:"provider_subscription_id"`
	Customer               subscriptionCustomer `json:"customer"`
	Metadata               map[string]string    `json:"metadata,omitempty"`
	NextBillingDate        *time.Time           `json:"next_billing_date,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	CancelledAt            *time.Time           `json:"cancelled_at,omitempty"`
}

func toSubscriptionResponse(s *domain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                     s.ID,
		MerchantID:             s.MerchantID,
		AmountCents:            s.AmountCents,
		Interval:               string(s.Interval),
		Status:                 string(s.Status),
		Provider:               s.Provider,
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		Customer:               subscriptionCustomer{Name: s.CustomerName, Email: s.CustomerEmail},
		Metadata:               s.Metadata,
		NextBillingDate:        s.NextBillingDate,
		CreatedAt:              s.CreatedAt,
		CancelledAt:            s.CancelledAt,
	}
}

func (h *Handlers) HandleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateMerchant(w, r)
	if !ok {
		return
	}

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteJSON(w, http.StatusBadRequest, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: application.ErrCodeInvalidInput, Message: "invalid JSON body"},
		})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	sub, err := h.subscriptionService.Create(r.Context(), services.CreateSubscriptionInput{
		MerchantID:    merchantID,
		AmountCents:   req.AmountCents,
		Interval:      req.Interval,
		Provider:      req.Provider,
		CardToken:     req.CardToken,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Metadata:      req.Metadata,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (h *Handlers) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateMerchant(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(errors.New("malformed subscription id")), h.logger)
		return
	}

	sub, err := h.subscriptionService.Get(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	// Scoped to the authenticated merchant, same as payments.
	if sub.MerchantID != merchantID {
		rest.WriteError(w, application.NewNotFoundError("subscription"), h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *Handlers) HandleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateMerchant(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(errors.New("malformed subscription id")), h.logger)
		return
	}

	existing, err := h.subscriptionService.Get(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	if existing.MerchantID != merchantID {
		rest.WriteError(w, application.NewNotFoundError("subscription"), h.logger)
		return
	}

	sub, err := h.subscriptionService.Cancel(r.Context(), id, "merchant:"+merchantID.String())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}
