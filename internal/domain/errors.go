package domain

import "errors"

var (
	ErrInvalidTransition         = errors.New("invalid payment status transition")
	ErrProviderPaymentAlreadySet = errors.New("provider payment ID is already set")
	ErrPaymentNotFound           = errors.New("payment not found")
	ErrMerchantWebhookNotFound   = errors.New("merchant webhook not found")
	ErrAuditLogNotFound          = errors.New("audit log not found")
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionNotActive     = errors.New("subscription is not active")
	ErrConcurrentUpdate          = errors.New("record was modified concurrently")
)
