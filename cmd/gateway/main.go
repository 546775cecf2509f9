package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagware/payment-gateway/internal/application/services"
	"github.com/pagware/payment-gateway/internal/config"
	"github.com/pagware/payment-gateway/internal/crypto"
	"github.com/pagware/payment-gateway/internal/infrastructure/persistence"
	"github.com/pagware/payment-gateway/internal/infrastructure/persistence/postgres"
	"github.com/pagware/payment-gateway/internal/interfaces/rest/handlers"
	"github.com/pagware/payment-gateway/internal/interfaces/rest/middleware"
	"github.com/pagware/payment-gateway/internal/noncestore"
	"github.com/pagware/payment-gateway/internal/provider"
	"github.com/pagware/payment-gateway/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting payment gateway",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := persistence.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	encryptor, err := crypto.NewEncryptor(cfg.Security.MasterKey)
	if err != nil {
		logger.Error("failed to initialize encryptor", "error", err)
		os.Exit(1)
	}

	registry := provider.NewRegistry(
		provider.NewCardAdapter(cfg.Providers.Card),
		provider.NewPixAdapter(cfg.Providers.Pix),
		provider.NewBoletoAdapter(cfg.Providers.Boleto),
	)

	paymentRepo := postgres.NewPaymentRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	webhookRepo := postgres.NewWebhookRepository(db)
	merchantRepo := postgres.NewMerchantRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	nonces := noncestore.NewRedisStore(redisClient)

	auditService := services.NewAuditService(auditRepo, cfg.Security.AuditHMACKey)
	deliveryService := services.NewDeliveryService(
		merchantRepo,
		webhookRepo,
		encryptor,
		&http.Client{Timeout: cfg.Delivery.Timeout},
		logger,
	)
	paymentService := services.NewPaymentService(paymentRepo, auditService, deliveryService, logger)
	subscriptionService := services.NewSubscriptionService(subscriptionRepo, registry, auditService, logger)
	merchantService := services.NewMerchantService(merchantRepo, encryptor, auditService, logger)
	apiGuard := services.NewAPIGuard(nonces, cfg.Security.APINonceTTL, logger)
	webhookService := services.NewWebhookService(
		paymentRepo,
		webhookRepo,
		registry,
		nonces,
		auditService,
		deliveryService,
		logger,
	)
	reconciliationService := services.NewReconciliationService(
		paymentRepo,
		registry,
		auditService,
		cfg.Reconciler.BatchSize,
		logger,
	)

	h := handlers.NewHandlers(
		webhookService,
		paymentService,
		subscriptionService,
		merchantService,
		deliveryService,
		apiGuard,
		registry,
		logger,
	)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = middleware.Timeout(cfg.Server.WriteTimeout)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)

	reconciler := worker.NewReconciler(reconciliationService, cfg.Reconciler, logger)
	go reconciler.Start(workerCtx)

	retryWorker := worker.NewDeliveryRetryWorker(webhookRepo, deliveryService, cfg.Delivery, logger)
	go retryWorker.Start(workerCtx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("gateway stopped")
}
