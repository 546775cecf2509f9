package domain

import "strings"

// providerStatusTable normalizes the status vocabularies of every supported
// provider into gateway statuses. The table is fixed wire contract; an
// unlisted string maps to nothing and callers treat it as a no-op.
var providerStatusTable = map[string]PaymentStatus{
	"paid":       StatusPaid,
	"confirmed":  StatusPaid,
	"approved":   StatusPaid,
	"captured":   StatusPaid,
	"pending":    StatusPending,
	"waiting":    StatusPending,
	"failed":     StatusFailed,
	"rejected":   StatusFailed,
	"declined":   StatusFailed,
	"refunded":   StatusRefunded,
	"expired":    StatusExpired,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
	"authorized": StatusAuthorized,
}

// MapProviderStatus resolves a provider-reported status string to a gateway
// status. The second return is false when the string is unrecognized.
func MapProviderStatus(providerStatus string) (PaymentStatus, bool) {
	status, ok := providerStatusTable[strings.ToLower(providerStatus)]
	return status, ok
}
