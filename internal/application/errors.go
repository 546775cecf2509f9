package application

import (
	"fmt"
	"net/http"
)

// APPLICATION-LEVEL ERRORS (Orchestration)

type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeProviderRejected = "PROVIDER_REJECTED"
)

func NewInternalError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInternal,
		Message:    "An internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInvalidInputError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidInput,
		Message:    "Invalid input",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

func NewInvalidStateError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidState,
		Message:    "Operation not allowed in the resource's current state",
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// NewProviderRejectedError wraps an upstream refusal. The request was
// well-formed; the provider would not perform the operation.
func NewProviderRejectedError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeProviderRejected,
		Message:    "The payment provider refused the operation",
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

func NewNotFoundError(resource string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// Rejection is an expected admission-control outcome, surfaced as a value
// rather than an error: replays and bad signatures are normal traffic at a
// trust boundary, not faults.
type Rejection string

const (
	RejectionNone             Rejection = ""
	RejectionTimestampSkew    Rejection = "timestamp_skew"
	RejectionNonceReused      Rejection = "nonce_reused"
	RejectionInvalidSignature Rejection = "invalid_signature"
)

// Rejected reports whether admission control turned the request away.
func (r Rejection) Rejected() bool {
	return r != RejectionNone
}
