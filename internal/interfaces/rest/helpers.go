package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pagware/payment-gateway/internal/application"
)

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError maps application errors to HTTP responses.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	statusCode := http.StatusInternalServerError
	code := application.ErrCodeInternal
	message := "An internal error occurred"

	var svcErr *application.ServiceError
	if errors.As(err, &svcErr) {
		statusCode = svcErr.HTTPStatus
		code = svcErr.Code
		message = svcErr.Message
	}

	if statusCode >= 500 {
		logger.Error("request failed", "error", err)
	}

	WriteJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error:   ErrorDetail{Code: code, Message: message},
	})
}

func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body) //nolint:errcheck // headers already sent
}
