// Package provider speaks each external payment provider's API and webhook
// dialect and normalizes both into the gateway's canonical model.
package provider

import (
	"context"
	"fmt"
	"time"
)

// InboundWebhook carries everything needed to verify and parse one provider
// callback. Method and Path are part of the signed canonical message.
type InboundWebhook struct {
	Provider  string
	Signature string
	Timestamp int64
	Nonce     string
	Method    string
	Path      string
	Body      []byte
}

// Event is a provider webhook normalized into the gateway vocabulary.
// Status is the provider's raw status string; mapping to a gateway status
// happens in the pipeline so unknown strings stay observable.
type Event struct {
	Provider          string
	EventType         string
	ProviderPaymentID string
	Status            string
	Payload           []byte
}

// ProviderPayment is the provider-side source of truth for one payment.
type ProviderPayment struct {
	ProviderPaymentID string
	Status            string
	AmountCents       int64
}

type Adapter interface {
	Name() string
	// ValidateWebhookSignature checks the webhook's MAC against the
	// provider's shared secret. A false return is an admission rejection,
	// not an error; errors are reserved for infrastructure failures.
	ValidateWebhookSignature(ctx context.Context, in InboundWebhook) (bool, error)
	// FetchPaymentStatus retrieves the authoritative status and amount.
	// Returns ErrRecordNotFound if the provider has no such payment.
	FetchPaymentStatus(ctx context.Context, providerPaymentID string) (*ProviderPayment, error)
	// ParseEvent decodes the provider-specific webhook payload.
	ParseEvent(payload []byte) (*Event, error)
}

// SubscriptionRequest asks a provider to start a recurring charge against
// a tokenized card.
type SubscriptionRequest struct {
	CardToken     string
	AmountCents   int64
	Interval      string
	CustomerName  string
	CustomerEmail string
}

// ProviderSubscription is the provider's view of one recurring charge.
type ProviderSubscription struct {
	ProviderSubscriptionID string
	Status                 string
	NextBillingDate        time.Time
}

// SubscriptionProvider is implemented by adapters whose provider can bill
// on a schedule. Resolve it with a type assertion on the registry result.
type SubscriptionProvider interface {
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
}

// Registry resolves adapters by provider name, once per operation.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
