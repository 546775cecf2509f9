package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagware/payment-gateway/internal/application"
	"github.com/pagware/payment-gateway/internal/domain"
	"github.com/pagware/payment-gateway/internal/provider"
)

// MockPaymentRepository
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment

	CreateFn                           func(ctx context.Context, payment *domain.Payment) error
	FindByIDFn                         func(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindByIDForUpdateFn                func(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindByProviderPaymentIDFn          func(ctx context.Context, providerPaymentID string) (*domain.Payment, error)
	FindByProviderPaymentIDForUpdateFn func(ctx context.Context, providerPaymentID string) (*domain.Payment, error)
	FindCreatedBetweenFn               func(ctx context.Context, from, to time.Time, limit, offset int) ([]*domain.Payment, error)
	UpdateFn                           func(ctx context.Context, payment *domain.Payment) error
	WithTxFn                           func(ctx context.Context, fn func(txRepo application.PaymentRepository) error) error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{payments: make(map[string]*domain.Payment)}
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateFn != nil {
		return m.CreateFn(ctx, payment)
	}
	m.payments[payment.ID.String()] = payment
	return nil
}

func (m *MockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, id)
	}
	payment, ok := m.payments[id.String()]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (m *MockPaymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	if m.FindByIDForUpdateFn != nil {
		return m.FindByIDForUpdateFn(ctx, id)
	}
	return m.FindByID(ctx, id)
}

func (m *MockPaymentRepository) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindByProviderPaymentIDFn != nil {
		return m.FindByProviderPaymentIDFn(ctx, providerPaymentID)
	}
	for _, payment := range m.payments {
		if payment.ProviderPaymentID != nil && *payment.ProviderPaymentID == providerPaymentID {
			return payment, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (m *MockPaymentRepository) FindByProviderPaymentIDForUpdate(ctx context.Context, providerPaymentID string) (*domain.Payment, error) {
	if m.FindByProviderPaymentIDForUpdateFn != nil {
		return m.FindByProviderPaymentIDForUpdateFn(ctx, providerPaymentID)
	}
	return m.FindByProviderPaymentID(ctx, providerPaymentID)
}

func (m *MockPaymentRepository) FindCreatedBetween(ctx context.Context, from, to time.Time, limit, offset int) ([]*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindCreatedBetweenFn != nil {
		return m.FindCreatedBetweenFn(ctx, from, to, limit, offset)
	}
	var all []*domain.Payment
	for _, payment := range m.payments {
		if !payment.CreatedAt.Before(from) && payment.CreatedAt.Before(to) {
			all = append(all, payment)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, payment)
	}
	payment.Version++
	m.payments[payment.ID.String()] = payment
	return nil
}

func (m *MockPaymentRepository) WithTx(ctx context.Context, fn func(txRepo application.PaymentRepository) error) error {
	if m.WithTxFn != nil {
		return m.WithTxFn(ctx, fn)
	}
	return fn(m)
}

// MockWebhookRepository
type MockWebhookRepository struct {
	mu         sync.RWMutex
	received   map[string]*domain.WebhookReceived
	deliveries map[string]*domain.WebhookDelivery

	CreateReceivedFn    func(ctx context.Context, received *domain.WebhookReceived) error
	MarkProcessedFn     func(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	CreateDeliveryFn    func(ctx context.Context, delivery *domain.WebhookDelivery) error
	UpdateDeliveryFn    func(ctx context.Context, delivery *domain.WebhookDelivery) error
	FindDueDeliveriesFn func(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*domain.WebhookDelivery, error)
}

func NewMockWebhookRepository() *MockWebhookRepository {
	return &MockWebhookRepository{
		received:   make(map[string]*domain.WebhookReceived),
		deliveries: make(map[string]*domain.WebhookDelivery),
	}
}

func (m *MockWebhookRepository) CreateReceived(ctx context.Context, received *domain.WebhookReceived) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateReceivedFn != nil {
		return m.CreateReceivedFn(ctx, received)
	}
	m.received[received.ID.String()] = received
	return nil
}

func (m *MockWebhookRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkProcessedFn != nil {
		return m.MarkProcessedFn(ctx, id, processedAt)
	}
	if rec, ok := m.received[id.String()]; ok {
		rec.Processed = true
		rec.ProcessedAt = &processedAt
	}
	return nil
}

func (m *MockWebhookRepository) CreateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateDeliveryFn != nil {
		return m.CreateDeliveryFn(ctx, delivery)
	}
	m.deliveries[delivery.ID.String()] = delivery
	return nil
}

func (m *MockWebhookRepository) UpdateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateDeliveryFn != nil {
		return m.UpdateDeliveryFn(ctx, delivery)
	}
	m.deliveries[delivery.ID.String()] = delivery
	return nil
}

func (m *MockWebhookRepository) FindDueDeliveries(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*domain.WebhookDelivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindDueDeliveriesFn != nil {
		return m.FindDueDeliveriesFn(ctx, now, maxAttempts, limit)
	}
	var due []*domain.WebhookDelivery
	for _, d := range m.deliveries {
		if d.Status == domain.DeliveryFailed && d.AttemptCount < maxAttempts &&
			d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			due = append(due, d)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

// Delivery returns the stored delivery row, for assertions.
func (m *MockWebhookRepository) Delivery(id uuid.UUID) *domain.WebhookDelivery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deliveries[id.String()]
}

// Received returns the stored inbound webhook rows, for assertions.
func (m *MockWebhookRepository) Received() []*domain.WebhookReceived {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.WebhookReceived, 0, len(m.received))
	for _, rec := range m.received {
		out = append(out, rec)
	}
	return out
}

// MockMerchantRepository
type MockMerchantRepository struct {
	mu        sync.RWMutex
	merchants map[string]*domain.Merchant
	webhooks  map[string]*domain.MerchantWebhook
	apiKeys   map[string]*domain.APIKey

	CreateMerchantFn    func(ctx context.Context, merchant *domain.Merchant) error
	CreateWebhookFn     func(ctx context.Context, webhook *domain.MerchantWebhook) error
	FindActiveWebhookFn func(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantWebhook, error)
	UpdateWebhookFn     func(ctx context.Context, webhook *domain.MerchantWebhook) error
	CreateAPIKeyFn      func(ctx context.Context, key *domain.APIKey) error
	FindActiveAPIKeysFn func(ctx context.Context, merchantID uuid.UUID) ([]*domain.APIKey, error)
	UpdateAPIKeyFn      func(ctx context.Context, key *domain.APIKey) error
}

func NewMockMerchantRepository() *MockMerchantRepository {
	return &MockMerchantRepository{
		merchants: make(map[string]*domain.Merchant),
		webhooks:  make(map[string]*domain.MerchantWebhook),
		apiKeys:   make(map[string]*domain.APIKey),
	}
}

func (m *MockMerchantRepository) CreateMerchant(ctx context.Context, merchant *domain.Merchant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateMerchantFn != nil {
		return m.CreateMerchantFn(ctx, merchant)
	}
	m.merchants[merchant.ID.String()] = merchant
	return nil
}

func (m *MockMerchantRepository) CreateWebhook(ctx context.Context, webhook *domain.MerchantWebhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateWebhookFn != nil {
		return m.CreateWebhookFn(ctx, webhook)
	}
	m.webhooks[webhook.ID.String()] = webhook
	return nil
}

func (m *MockMerchantRepository) FindActiveWebhook(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantWebhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindActiveWebhookFn != nil {
		return m.FindActiveWebhookFn(ctx, merchantID)
	}
	for _, w := range m.webhooks {
		if w.MerchantID == merchantID && w.Active {
			return w, nil
		}
	}
	return nil, domain.ErrMerchantWebhookNotFound
}

func (m *MockMerchantRepository) UpdateWebhook(ctx context.Context, webhook *domain.MerchantWebhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateWebhookFn != nil {
		return m.UpdateWebhookFn(ctx, webhook)
	}
	m.webhooks[webhook.ID.String()] = webhook
	return nil
}

func (m *MockMerchantRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateAPIKeyFn != nil {
		return m.CreateAPIKeyFn(ctx, key)
	}
	m.apiKeys[key.ID.String()] = key
	return nil
}

func (m *MockMerchantRepository) FindActiveAPIKeys(ctx context.Context, merchantID uuid.UUID) ([]*domain.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindActiveAPIKeysFn != nil {
		return m.FindActiveAPIKeysFn(ctx, merchantID)
	}
	var keys []*domain.APIKey
	for _, k := range m.apiKeys {
		if k.MerchantID == merchantID && k.Active {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MockMerchantRepository) UpdateAPIKey(ctx context.Context, key *domain.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateAPIKeyFn != nil {
		return m.UpdateAPIKeyFn(ctx, key)
	}
	m.apiKeys[key.ID.String()] = key
	return nil
}

// MockAuditSink
type MockAuditSink struct {
	mu      sync.RWMutex
	entries []*domain.AuditLog

	AppendFn   func(ctx context.Context, entry *domain.AuditLog) error
	FindByIDFn func(ctx context.Context, id uuid.UUID) (*domain.AuditLog, error)
}

func NewMockAuditSink() *MockAuditSink {
	return &MockAuditSink{}
}

func (m *MockAuditSink) Append(ctx context.Context, entry *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendFn != nil {
		return m.AppendFn(ctx, entry)
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockAuditSink) FindByID(ctx context.Context, id uuid.UUID) (*domain.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, id)
	}
	for _, entry := range m.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, domain.ErrAuditLogNotFound
}

func (m *MockAuditSink) FindCreatedBetween(ctx context.Context, from, to time.Time) ([]*domain.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.AuditLog
	for _, entry := range m.entries {
		if !entry.CreatedAt.Before(from) && !entry.CreatedAt.After(to) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Entries returns a snapshot of the appended entries, for assertions.
func (m *MockAuditSink) Entries() []*domain.AuditLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.AuditLog, len(m.entries))
	copy(out, m.entries)
	return out
}

// Actions returns the appended audit actions in order, for assertions.
func (m *MockAuditSink) Actions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	actions := make([]string, len(m.entries))
	for i, entry := range m.entries {
		actions[i] = entry.Action
	}
	return actions
}

// MockNonceStore
type MockNonceStore struct {
	mu   sync.Mutex
	seen map[string]bool

	IsUniqueFn      func(ctx context.Context, scope, nonce string) (bool, error)
	StoreFn         func(ctx context.Context, scope, nonce string, ttl time.Duration) error
	CheckAndStoreFn func(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error)
}

func NewMockNonceStore() *MockNonceStore {
	return &MockNonceStore{seen: make(map[string]bool)}
}

func (m *MockNonceStore) IsUnique(ctx context.Context, scope, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IsUniqueFn != nil {
		return m.IsUniqueFn(ctx, scope, nonce)
	}
	return !m.seen[scope+":"+nonce], nil
}

func (m *MockNonceStore) Store(ctx context.Context, scope, nonce string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreFn != nil {
		return m.StoreFn(ctx, scope, nonce, ttl)
	}
	m.seen[scope+":"+nonce] = true
	return nil
}

func (m *MockNonceStore) CheckAndStore(ctx context.Context, scope, nonce string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckAndStoreFn != nil {
		return m.CheckAndStoreFn(ctx, scope, nonce, ttl)
	}
	key := scope + ":" + nonce
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

// MockHTTPDoer
type MockHTTPDoer struct {
	mu       sync.Mutex
	requests []*http.Request

	DoFn func(req *http.Request) (*http.Response, error)
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.DoFn != nil {
		return m.DoFn(req)
	}
	return nil, http.ErrHandlerTimeout
}

// Requests returns the captured outbound requests, for assertions.
func (m *MockHTTPDoer) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*http.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// MockAdapter is a configurable provider adapter.
type MockAdapter struct {
	NameValue string

	ValidateWebhookSignatureFn func(ctx context.Context, in provider.InboundWebhook) (bool, error)
	FetchPaymentStatusFn       func(ctx context.Context, providerPaymentID string) (*provider.ProviderPayment, error)
	ParseEventFn               func(payload []byte) (*provider.Event, error)
}

func (m *MockAdapter) Name() string { return m.NameValue }

func (m *MockAdapter) ValidateWebhookSignature(ctx context.Context, in provider.InboundWebhook) (bool, error) {
	if m.ValidateWebhookSignatureFn != nil {
		return m.ValidateWebhookSignatureFn(ctx, in)
	}
	return true, nil
}

func (m *MockAdapter) FetchPaymentStatus(ctx context.Context, providerPaymentID string) (*provider.ProviderPayment, error) {
	if m.FetchPaymentStatusFn != nil {
		return m.FetchPaymentStatusFn(ctx, providerPaymentID)
	}
	return nil, provider.ErrRecordNotFound
}

func (m *MockAdapter) ParseEvent(payload []byte) (*provider.Event, error) {
	if m.ParseEventFn != nil {
		return m.ParseEventFn(payload)
	}
	return &provider.Event{Provider: m.NameValue, Payload: payload}, nil
}

// MockSubscriptionAdapter adds the recurring-charge surface to MockAdapter.
// Call counters are for assertions on provider interaction.
type MockSubscriptionAdapter struct {
	MockAdapter

	CreateSubscriptionFn func(ctx context.Context, req provider.SubscriptionRequest) (*provider.ProviderSubscription, error)
	CancelSubscriptionFn func(ctx context.Context, providerSubscriptionID string) error

	mu          sync.Mutex
	createCalls []provider.SubscriptionRequest
	cancelCalls []string
}

func (m *MockSubscriptionAdapter) CreateSubscription(ctx context.Context, req provider.SubscriptionRequest) (*provider.ProviderSubscription, error) {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, req)
	m.mu.Unlock()
	if m.CreateSubscriptionFn != nil {
		return m.CreateSubscriptionFn(ctx, req)
	}
	return &provider.ProviderSubscription{
		ProviderSubscriptionID: "sub_" + uuid.NewString(),
		Status:                 "active",
		NextBillingDate:        time.Now().UTC().AddDate(0, 1, 0),
	}, nil
}

func (m *MockSubscriptionAdapter) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	m.mu.Lock()
	m.cancelCalls = append(m.cancelCalls, providerSubscriptionID)
	m.mu.Unlock()
	if m.CancelSubscriptionFn != nil {
		return m.CancelSubscriptionFn(ctx, providerSubscriptionID)
	}
	return nil
}

func (m *MockSubscriptionAdapter) CreateCalls() []provider.SubscriptionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]provider.SubscriptionRequest, len(m.createCalls))
	copy(out, m.createCalls)
	return out
}

func (m *MockSubscriptionAdapter) CancelCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.cancelCalls))
	copy(out, m.cancelCalls)
	return out
}

// MockSubscriptionRepository
type MockSubscriptionRepository struct {
	mu            sync.RWMutex
	subscriptions map[string]*domain.Subscription

	CreateFn   func(ctx context.Context, sub *domain.Subscription) error
	FindByIDFn func(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	UpdateFn   func(ctx context.Context, sub *domain.Subscription) error
}

func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{subscriptions: make(map[string]*domain.Subscription)}
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateFn != nil {
		return m.CreateFn(ctx, sub)
	}
	m.subscriptions[sub.ID.String()] = sub
	return nil
}

func (m *MockSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, id)
	}
	sub, ok := m.subscriptions[id.String()]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, sub)
	}
	if _, ok := m.subscriptions[sub.ID.String()]; !ok {
		return domain.ErrSubscriptionNotFound
	}
	m.subscriptions[sub.ID.String()] = sub
	sub.Version++
	return nil
}
