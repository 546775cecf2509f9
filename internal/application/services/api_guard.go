package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/application"
)

// API requests tolerate far less clock drift than provider webhooks; the
// nonce only has to outlive the skew window.
const (
	maxAPITimestampSkew = 60 * time.Second
	defaultAPINonceTTL  = 2 * time.Minute
)

// APIGuard applies timestamp and nonce admission to authenticated merchant
// API calls, keeping replayed requests out even when the API key is valid.
type APIGuard struct {
	nonces application.NonceStore
	ttl    time.Duration
	logger *slog.Logger
}

func NewAPIGuard(nonces application.NonceStore, ttl time.Duration, logger *slog.Logger) *APIGuard {
	if ttl <= 0 {
		ttl = defaultAPINonceTTL
	}
	return &APIGuard{nonces: nonces, ttl: ttl, logger: logger}
}

// Admit checks the request's freshness before any handler state mutation.
// Nonces are scoped per merchant so two merchants may use the same value.
func (g *APIGuard) Admit(ctx context.Context, merchantID uuid.UUID, timestamp int64, nonce string) (application.Rejection, error) {
	skew := time.Since(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxAPITimestampSkew {
		g.logger.Warn("api request rejected",
			"merchant_id", merchantID,
			"reason", string(application.RejectionTimestampSkew),
			"skew_seconds", int64(skew.Seconds()))
		return application.RejectionTimestampSkew, nil
	}

	fresh, err := g.nonces.CheckAndStore(ctx, "api:"+merchantID.String(), nonce, g.ttl)
	if err != nil {
		return application.RejectionNone, err
	}
	if !fresh {
		g.logger.Warn("api request rejected",
			"merchant_id", merchantID,
			"reason", string(application.RejectionNonceReused))
		return application.RejectionNonceReused, nil
	}

	return application.RejectionNone, nil
}
