package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/repository"
)

// memStore is an in-memory ledger. Transactions are serialized and work on a
// private copy that is only published on commit.
type memStore struct {
	mu       sync.Mutex
	orders   map[string]*entity.Order
	events   map[string]uint64
	attached map[uint64]string
	tokens   map[string][]string
	nextID   uint64

	txCount  int
	updateFn func(order *entity.Order) error
}

func newMemStore(orders ...*entity.Order) *memStore {
	s := &memStore{
		orders:   map[string]*entity.Order{},
		events:   map[string]uint64{},
		attached: map[uint64]string{},
		tokens:   map[string][]string{},
	}
	for _, order := range orders {
		s.orders[order.ID] = cloneOrder(order)
	}
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	tx := &memTx{
		store:    s,
		orders:   map[string]*entity.Order{},
		events:   map[string]uint64{},
		attached: map[uint64]string{},
		tokens:   map[string][]string{},
		nextID:   s.nextID,
	}
	for id, order := range s.orders {
		tx.orders[id] = cloneOrder(order)
	}
	for key, id := range s.events {
		tx.events[key] = id
	}
	for id, orderID := range s.attached {
		tx.attached[id] = orderID
	}
	for user, tokens := range s.tokens {
		tx.tokens[user] = append([]string(nil), tokens...)
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.orders = tx.orders
	s.events = tx.events
	s.attached = tx.attached
	s.tokens = tx.tokens
	s.nextID = tx.nextID
	return nil
}

func (s *memStore) ListExpired(_ context.Context, now time.Time) ([]*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]*entity.Order, 0)
	for _, order := range s.orders {
		if order.Status == entity.OrderStatusSuccess && order.ExpiredAt != nil && order.ExpiredAt.Before(now) {
			items = append(items, cloneOrder(order))
		}
	}
	return items, nil
}

func (s *memStore) order(id string) *entity.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.orders[id]; ok {
		return cloneOrder(order)
	}
	return nil
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memStore) attachedOrder(provider entity.Provider, eventKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.events[fmt.Sprintf("%s|%s", provider, eventKey)]
	if !ok {
		return ""
	}
	return s.attached[id]
}

func (s *memStore) ordersByUser(userID string) []*entity.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]*entity.Order, 0)
	for _, order := range s.orders {
		if order.UserID == userID {
			items = append(items, cloneOrder(order))
		}
	}
	return items
}

type memTx struct {
	store    *memStore
	orders   map[string]*entity.Order
	events   map[string]uint64
	attached map[uint64]string
	tokens   map[string][]string
	nextID   uint64
}

func (t *memTx) InsertWebhookEvent(_ context.Context, event *entity.WebhookEvent) error {
	key := fmt.Sprintf("%s|%s", event.Provider, event.EventKey)
	if _, ok := t.events[key]; ok {
		return repository.ErrDuplicateWebhookEvent
	}
	t.nextID++
	t.events[key] = t.nextID
	event.ID = t.nextID
	return nil
}

func (t *memTx) AttachWebhookEventOrder(_ context.Context, eventID uint64, orderID string) error {
	t.attached[eventID] = orderID
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id string) (*entity.Order, error) {
	if order, ok := t.orders[id]; ok {
		return cloneOrder(order), nil
	}
	return nil, nil
}

func (t *memTx) LockLatestAppleOrder(_ context.Context, originalTransactionID string) (*entity.Order, error) {
	var latest *entity.Order
	for _, order := range t.orders {
		if order.PaymentMethod != entity.PaymentMethodAppleIAP || !order.HasAppleBinding() {
			continue
		}
		if *order.AppleOriginalTransactionID != originalTransactionID {
			continue
		}
		if latest == nil || order.CreatedAt.After(latest.CreatedAt) {
			latest = order
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneOrder(latest), nil
}

func (t *memTx) LockGoogleOrder(_ context.Context, purchaseToken string) (*entity.Order, error) {
	for _, order := range t.orders {
		if order.PaymentMethod == entity.PaymentMethodGooglePlay && order.HasGoogleBinding() && *order.GooglePurchaseToken == purchaseToken {
			return cloneOrder(order), nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateOrder(_ context.Context, order *entity.Order) error {
	if _, ok := t.orders[order.ID]; ok {
		return repository.ErrOrderAlreadyExists
	}
	t.orders[order.ID] = cloneOrder(order)
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, order *entity.Order) error {
	if t.store.updateFn != nil {
		if err := t.store.updateFn(order); err != nil {
			return err
		}
	}
	if _, ok := t.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	t.orders[order.ID] = cloneOrder(order)
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id string) error {
	if _, ok := t.orders[id]; !ok {
		return repository.ErrOrderNotFound
	}
	delete(t.orders, id)
	return nil
}

func (t *memTx) HasOtherEntitledOrder(_ context.Context, userID, excludeOrderID string, now time.Time) (bool, error) {
	for _, order := range t.orders {
		if order.UserID == userID && order.ID != excludeOrderID && order.IsEntitled(now) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ListPushTokens(_ context.Context, userID string) ([]string, error) {
	return append([]string(nil), t.tokens[userID]...), nil
}

func (t *memTx) DeletePushTokens(_ context.Context, userID string) (int64, error) {
	n := int64(len(t.tokens[userID]))
	delete(t.tokens, userID)
	return n, nil
}

func cloneOrder(order *entity.Order) *entity.Order {
	copied := *order
	if order.ExpiredAt != nil {
		expiredAt := *order.ExpiredAt
		copied.ExpiredAt = &expiredAt
	}
	if order.CallbackPayload != nil {
		copied.CallbackPayload = append([]byte(nil), order.CallbackPayload...)
	}
	return &copied
}

type mockPackageRepo struct {
	findByIDFn func(ctx context.Context, id string) (*entity.Package, error)
}

func (m *mockPackageRepo) FindByID(ctx context.Context, id string) (*entity.Package, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &entity.Package{ID: id, IdolID: "idol-7", Name: "Gold", Price: 100000, Currency: "IDR", Status: entity.PackageStatusActive}, nil
}

type mockTokenLister struct {
	listFn func(ctx context.Context, userID string) ([]string, error)
}

func (m *mockTokenLister) ListTokensByUser(ctx context.Context, userID string) ([]string, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []string{"tok-1", "tok-2"}, nil
}

type topicCall struct {
	tokens []string
	topic  string
}

type mockTopicSubscriber struct {
	mu    sync.Mutex
	calls []topicCall
	err   error
}

func (m *mockTopicSubscriber) SubscribeToTopic(_ context.Context, tokens []string, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, topicCall{tokens: tokens, topic: topic})
	return m.err
}

type mockAnalytics struct {
	mu     sync.Mutex
	orders []string
	idols  []string
	err    error
}

func (m *mockAnalytics) PublishOrderActivated(_ context.Context, order *entity.Order, idolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order.ID)
	m.idols = append(m.idols, idolID)
	return m.err
}

type mockNotifier struct {
	calls [][]string
	err   error
}

func (m *mockNotifier) NotifyExpired(_ context.Context, tokens []string) error {
	m.calls = append(m.calls, tokens)
	return m.err
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func strPtr(v string) *string {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}
