package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/application/services"
	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/interfaces/rest"
)

type createPaymentRequest struct {
	AmountCents int64             `json:"amount_cents"`
	Method      string            `json:"method" validate:"required,oneof=card pix boleto"`
	Provider    string            `json:"provider" validate:"required"`
	Metadata    map[string]string `json:"metadata"`
	IsTest      bool              `json:"is_test"`
}

type paymentResponse struct {
	ID                uuid.UUID         `json:"id"`
	MerchantID        uuid.UUID         `json:"merchant_id"`
	AmountCents       int64             `json:"amount_cents"`
	Method            string            `json:"method"`
	Status            string            `json:"status"`
	Provider          string            `json:"provider"`
	ProviderPaymentID *string           `json:"provider_payment_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	IsTest            bool              `json:"is_test"`
	CreatedAt         time.Time         `json:"created_at"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID,
		MerchantID:        p.MerchantID,
		AmountCents:       p.AmountCents,
		Method:            string(p.Method),
		Status:            string(p.Status),
		Provider:          p.Provider,
		ProviderPaymentID: p.ProviderPaymentID,
		Metadata:          p.Metadata,
		IsTest:            p.IsTest,
		CreatedAt:         p.CreatedAt,
		PaidAt:            p.PaidAt,
	}
}

// authenticateMerchant resolves and verifies the API key headers. It writes
// the failure response itself; callers bail out on !ok.
func (h *Handlers) authenticateMerchant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	merchantID, err := uuid.Parse(r.Header.Get("X-Merchant-Id"))
	if err != nil {
		rest.WriteJSON(w, http.StatusUnauthorized, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: application.ErrCodeUnauthorized, Message: "missing or malformed X-Merchant-Id"},
		})
		return uuid.Nil, false
	}

	keyID := r.Header.Get("X-Api-Key-Id")
	secret := r.Header.Get("X-Api-Key")
	ok, err := h.merchantService.VerifyAPIKey(r.Context(), merchantID, keyID, secret)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return uuid.Nil, false
	}
	if !ok {
		rest.WriteJSON(w, http.StatusUnauthorized, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: application.ErrCodeUnauthorized, Message: "invalid API key"},
		})
		return uuid.Nil, false
	}

	timestamp, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
	if err != nil {
		rest.WriteJSON(w, http.StatusBadRequest, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: application.ErrCodeInvalidInput, Message: "X-Timestamp must be a unix timestamp"},
		})
		return uuid.Nil, false
	}
	rejection, err := h.apiGuard.Admit(r.Context(), merchantID, timestamp, r.Header.Get("X-Nonce"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return uuid.Nil, false
	}
	if rejection.Rejected() {
		status := http.StatusUnauthorized
		if rejection == application.RejectionNonceReused {
			status = http.StatusConflict
		}
		rest.WriteJSON(w, status, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: "REQUEST_REJECTED", Message: string(rejection)},
		})
		return uuid.Nil, false
	}

	return merchantID, true
}

func (h *Handlers) HandleCreatePayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateMerchant(w, r)
	if !ok {
		return
	}

	var req createPaymentRequest
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

	payment, err := h.paymentService.Create(r.Context(), services.CreatePaymentInput{
		MerchantID:  merchantID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Provider:    req.Provider,
		Metadata:    req.Metadata,
		IsTest:      req.IsTest,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *Handlers) HandleGetPayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateMerchant(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(errors.New("malformed payment id")), h.logger)
		return
	}

	payment, err := h.paymentService.Get(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	// Payments are scoped to the authenticated merchant; leaking existence
	// of other merchants' payments is a 404, not a 403.
	if payment.MerchantID != merchantID {
		rest.WriteError(w, application.NewNotFoundError("payment"), h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, toPaymentResponse(payment))
}

type attachProviderPaymentRequest struct {
	ProviderPaymentID string `json:"provider_payment_id" validate:"required"`
}

func (h *Handlers) HandleAttachProviderPayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateMerchant(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(errors.New("malformed payment id")), h.logger)
		return
	}

	var req attachProviderPaymentRequest
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

	existing, err := h.paymentService.Get(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	if existing.MerchantID != merchantID {
		rest.WriteError(w, application.NewNotFoundError("payment"), h.logger)
		return
	}

	payment, err := h.paymentService.AttachProviderPayment(r.Context(), id, req.ProviderPaymentID)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handlers) HandleRefundPayment(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateMerchant(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(errors.New("malformed payment id")), h.logger)
		return
	}

	existing, err := h.paymentService.Get(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	if existing.MerchantID != merchantID {
		rest.WriteError(w, application.NewNotFoundError("payment"), h.logger)
		return
	}

	payment, err := h.paymentService.Refund(r.Context(), id, "merchant:"+merchantID.String())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, toPaymentResponse(payment))
}
