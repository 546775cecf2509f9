package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/interfaces/rest"
)

type registerMerchantRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type issuedKeyResponse struct {
	KeyID     string     `json:"key_id"`
	Secret    string     `json:"secret"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// HandleRegisterMerchant creates a merchant and returns its first API key.
// The secret appears in this response and nowhere else; we only store a hash.
func (h *Handlers) HandleRegisterMerchant(w http.ResponseWriter, r *http.Request) {
	var req registerMerchantRequest
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

	merchant, key, err := h.merchantService.Register(r.Context(), req.Name, req.Email)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":      merchant.ID,
		"name":    merchant.Name,
		"email":   merchant.Email,
		"api_key": issuedKeyResponse{KeyID: key.KeyID, Secret: key.Secret, ExpiresAt: key.ExpiresAt},
	})
}

type configureWebhookRequest struct {
	EndpointURL string `json:"endpoint_url" validate:"required,url"`
	Secret      string `json:"secret" validate:"required,min=16"`
}

func (h *Handlers) HandleConfigureWebhook(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateSelf(w, r)
	if !ok {
		return
	}

	var req configureWebhookRequest
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

	webhook, err := h.merchantService.ConfigureWebhook(r.Context(), merchantID, req.EndpointURL, req.Secret)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":           webhook.ID,
		"endpoint_url": webhook.EndpointURL,
		"active":       webhook.Active,
	})
}

type testWebhookRequest struct {
	EndpointURL string `json:"endpoint_url" validate:"required,url"`
}

func (h *Handlers) HandleTestWebhook(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateSelf(w, r)
	if !ok {
		return
	}

	var req testWebhookRequest
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

	result, err := h.deliveryService.TestDelivery(r.Context(), merchantID, req.EndpointURL)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, map[string]any{
		"success":          result.Success,
		"status_code":      result.StatusCode,
		"response_time_ms": result.ResponseTimeMs,
		"error":            result.ErrorMessage,
	})
}

func (h *Handlers) HandleRotateAPIKey(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.authenticateSelf(w, r)
	if !ok {
		return
	}

	key, err := h.merchantService.RotateAPIKey(r.Context(), merchantID)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, issuedKeyResponse{
		KeyID:     key.KeyID,
		Secret:    key.Secret,
		ExpiresAt: key.ExpiresAt,
	})
}

// authenticateSelf is authenticateMerchant plus a check that the key belongs
// to the merchant named in the path.
func (h *Handlers) authenticateSelf(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	pathID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(errors.New("malformed merchant id")), h.logger)
		return uuid.Nil, false
	}

	merchantID, ok := h.authenticateMerchant(w, r)
	if !ok {
		return uuid.Nil, false
	}
	if merchantID != pathID {
		rest.WriteJSON(w, http.StatusForbidden, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: application.ErrCodeUnauthorized, Message: "key does not belong to this merchant"},
		})
		return uuid.Nil, false
	}
	return merchantID, true
}
