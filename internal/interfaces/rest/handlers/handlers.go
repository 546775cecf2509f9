package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/pagware/payment-gateway/internal/application/services"
	"github.com/pagware/payment-gateway/internal/provider"
)

// Handlers is the HTTP surface of the gateway: provider webhook ingress,
// the merchant-facing payment API and merchant administration.
type Handlers struct {
	webhookService      *services.WebhookService
	paymentService      *services.PaymentService
	subscriptionService *services.SubscriptionService
	merchantService     *services.MerchantService
	deliveryService     *services.DeliveryService
	apiGuard            *services.APIGuard
	providers           *provider.Registry
	validate            *validator.Validate
	logger              *slog.Logger
}

func NewHandlers(
	webhookService *services.WebhookService,
	paymentService *services.PaymentService,
	subscriptionService *services.SubscriptionService,
	merchantService *services.MerchantService,
	deliveryService *services.DeliveryService,
	apiGuard *services.APIGuard,
	providers *provider.Registry,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		webhookService:      webhookService,
		paymentService:      paymentService,
		subscriptionService: subscriptionService,
		merchantService:     merchantService,
		deliveryService:     deliveryService,
		apiGuard:            apiGuard,
		providers:           providers,
		validate:            validator.New(),
		logger:              logger,
	}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/{provider}", h.HandleProviderWebhook)

	mux.HandleFunc("POST /payments", h.HandleCreatePayment)
	mux.HandleFunc("GET /payments/{id}", h.HandleGetPayment)
	mux.HandleFunc("POST /payments/{id}/provider-payment", h.HandleAttachProviderPayment)
	mux.HandleFunc("POST /payments/{id}/refund", h.HandleRefundPayment)

	mux.HandleFunc("POST /subscriptions", h.HandleCreateSubscription)
	mux.HandleFunc("GET /subscriptions/{id}", h.HandleGetSubscription)
	mux.HandleFunc("POST /subscriptions/{id}/cancel", h.HandleCancelSubscription)

	mux.HandleFunc("POST /merchants", h.HandleRegisterMerchant)
	mux.HandleFunc("POST /merchants/{id}/webhook", h.HandleConfigureWebhook)
	mux.HandleFunc("POST /merchants/{id}/webhook/test", h.HandleTestWebhook)
	mux.HandleFunc("POST /merchants/{id}/api-keys/rotate", h.HandleRotateAPIKey)

	mux.HandleFunc("GET /health", h.HandleHealth)
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}
