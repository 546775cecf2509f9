package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pagware/payment-gateway/internal/interfaces/rest"
)

// Timeout cancels the request context and cuts off slow responses. The
// 503 body uses the same error envelope the handlers write.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	body, _ := json.Marshal(rest.ErrorResponse{
		Success: false,
		Error:   rest.ErrorDetail{Code: "TIMEOUT", Message: "Request timed out"},
	})
	return func(next http.Handler) http.Handler {
		timeoutHandler := http.TimeoutHandler(next, timeout, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			timeoutHandler.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
