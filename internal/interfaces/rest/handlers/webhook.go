package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/interfaces/rest"
	"github.com/pagware/payment-gateway/internal/provider"
)

// maxWebhookBody caps inbound payload size. Providers send small JSON
// documents; anything larger is abuse.
const maxWebhookBody = 1 << 20

// HandleProviderWebhook is the inbound trust boundary. The response
// deliberately says as little as possible: admitted events get a 200,
// rejected ones a 401/409 with a coarse code, and malformed requests a 400.
func (h *Handlers) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")

	adapter, err := h.providers.Get(providerName)
	if err != nil {
		rest.WriteJSON(w, http.StatusNotFound, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: "UNKNOWN_PROVIDER", Message: "unknown provider"},
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(fmt.Errorf("read body: %w", err)), h.logger)
		return
	}

	timestamp, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
	if err != nil {
		rest.WriteJSON(w, http.StatusBadRequest, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: "INVALID_TIMESTAMP", Message: "X-Timestamp must be a unix timestamp"},
		})
		return
	}

	in := provider.InboundWebhook{
		Provider:  providerName,
		Signature: r.Header.Get("X-Signature"),
		Timestamp: timestamp,
		Nonce:     r.Header.Get("X-Nonce"),
		Method:    r.Method,
		Path:      r.URL.Path,
		Body:      body,
	}

	rejection, err := h.webhookService.ValidateProviderWebhook(r.Context(), in)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	if rejection.Rejected() {
		status := http.StatusUnauthorized
		if rejection == application.RejectionNonceReused {
			status = http.StatusConflict
		}
		h.logger.Warn("webhook rejected",
			"provider", providerName,
			"reason", string(rejection))
		rest.WriteJSON(w, status, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: "WEBHOOK_REJECTED", Message: string(rejection)},
		})
		return
	}

	event, err := adapter.ParseEvent(body)
	if err != nil {
		rest.WriteJSON(w, http.StatusBadRequest, rest.ErrorResponse{
			Error: rest.ErrorDetail{Code: "MALFORMED_PAYLOAD", Message: "could not parse webhook payload"},
		})
		return
	}

	if err := h.webhookService.ProcessProviderWebhook(r.Context(), event); err != nil {
		var svcErr *application.ServiceError
		if !errors.As(err, &svcErr) {
			err = application.NewInternalError(err)
		}
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
