package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
)

type reconcilerFixture struct {
	store     *memStore
	clock     *fixedClock
	topics    *mockTopicSubscriber
	analytics *mockAnalytics
	rec       *Reconciler
}

func newReconcilerFixture(orders ...*entity.Order) *reconcilerFixture {
	clock := &fixedClock{now: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
	store := newMemStore(orders...)
	ledger := NewLedger(1)
	ledger.now = clock.Now

	f := &reconcilerFixture{
		store:     store,
		clock:     clock,
		topics:    &mockTopicSubscriber{},
		analytics: &mockAnalytics{},
	}
	f.rec = NewReconciler(store, ledger, &mockPackageRepo{}, &mockTokenLister{}, f.topics, f.analytics, time.Second)
	f.rec.runAsync = func(fn func()) { fn() }
	f.rec.now = clock.Now
	var seq int64
	f.rec.newID = func() string { return fmt.Sprintf("renewal-%d", atomic.AddInt64(&seq, 1)) }
	return f
}

func pendingOrder(id string, method entity.PaymentMethod) *entity.Order {
	created := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	return &entity.Order{
		ID:            id,
		UserID:        "u-1",
		PackageID:     "p-1",
		PaymentMethod: method,
		Subtotal:      100000,
		Tax:           11000,
		Total:         111000,
		Currency:      "IDR",
		Status:        entity.OrderStatusPending,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func invoiceEvent(key, orderID, status string) Event {
	return Event{
		Provider:    entity.ProviderInvoice,
		EventKey:    key,
		EventType:   "invoice." + status,
		Correlation: ByOrderID{OrderID: orderID},
		Action:      SetStatus{Status: status},
		Payload:     json.RawMessage(fmt.Sprintf(`{"key":%q}`, key)),
	}
}

func TestReconcileRejectsIncompleteEvent(t *testing.T) {
	f := newReconcilerFixture()
	if _, err := f.rec.Reconcile(context.Background(), Event{Provider: entity.ProviderInvoice}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if f.store.txCount != 0 {
		t.Fatal("expected no transaction for incomplete event")
	}
}

func TestReconcileReplayIsNoop(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("o-1", entity.PaymentMethodQRIS))
	event := invoiceEvent("evt-1", "o-1", "success")

	first, err := f.rec.Reconcile(context.Background(), event)
	if err != nil || first.Replayed {
		t.Fatalf("expected first delivery applied, got %+v %v", first, err)
	}
	afterFirst := f.store.order("o-1")

	f.clock.Advance(time.Hour)
	second, err := f.rec.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("expected replay acknowledged, got %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replay outcome")
	}

	afterSecond := f.store.order("o-1")
	if !afterSecond.ExpiredAt.Equal(*afterFirst.ExpiredAt) || !afterSecond.UpdatedAt.Equal(afterFirst.UpdatedAt) {
		t.Fatalf("expected replay not to mutate: %+v vs %+v", afterFirst, afterSecond)
	}
	if len(f.topics.calls) != 1 || len(f.analytics.orders) != 1 {
		t.Fatalf("expected side effects exactly once, got topics=%d analytics=%d", len(f.topics.calls), len(f.analytics.orders))
	}
}

func TestReconcileSuccessReExtendsOnNewEvent(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("o-1", entity.PaymentMethodCard))

	if _, err := f.rec.Reconcile(context.Background(), invoiceEvent("evt-1", "o-1", "success")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.clock.Advance(48 * time.Hour)
	if _, err := f.rec.Reconcile(context.Background(), invoiceEvent("evt-2", "o-1", "success")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := f.store.order("o-1")
	want := f.clock.Now().AddDate(0, 1, 0)
	if !order.ExpiredAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, order.ExpiredAt)
	}
	if string(order.CallbackPayload) != `{"key":"evt-2"}` {
		t.Fatalf("expected latest payload, got %s", order.CallbackPayload)
	}
}

func TestReconcileInvoiceSideEffects(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("o-1", entity.PaymentMethodEWallet))

	outcome, err := f.rec.Reconcile(context.Background(), invoiceEvent("evt-1", "o-1", "success"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.OrderID != "o-1" || outcome.Status != entity.OrderStatusSuccess {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(f.topics.calls) != 1 || f.topics.calls[0].topic != "idol-idol-7" || len(f.topics.calls[0].tokens) != 2 {
		t.Fatalf("unexpected topic calls: %+v", f.topics.calls)
	}
	if len(f.analytics.idols) != 1 || f.analytics.idols[0] != "idol-7" {
		t.Fatalf("unexpected analytics calls: %+v", f.analytics.idols)
	}
}

func TestReconcileSideEffectFailureDoesNotRollBack(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("o-1", entity.PaymentMethodEWallet))
	f.topics.err = errors.New("fcm down")
	f.analytics.err = errors.New("sqs down")

	if _, err := f.rec.Reconcile(context.Background(), invoiceEvent("evt-1", "o-1", "success")); err != nil {
		t.Fatalf("expected side-effect failures to be swallowed, got %v", err)
	}
	if f.store.order("o-1").Status != entity.OrderStatusSuccess {
		t.Fatal("expected committed transition")
	}
}

func TestReconcileFailedTransitionHasNoSideEffects(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("o-1", entity.PaymentMethodEWallet))

	if _, err := f.rec.Reconcile(context.Background(), invoiceEvent("evt-1", "o-1", "failed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.topics.calls) != 0 || len(f.analytics.orders) != 0 {
		t.Fatal("expected no side effects for failed transition")
	}
}

func TestReconcileIllegalTransitionAcknowledged(t *testing.T) {
	order := pendingOrder("o-1", entity.PaymentMethodCard)
	order.Status = entity.OrderStatusSuccess
	f := newReconcilerFixture(order)

	outcome, err := f.rec.Reconcile(context.Background(), invoiceEvent("evt-1", "o-1", "pending"))
	if err != nil {
		t.Fatalf("expected acknowledged no-op, got %v", err)
	}
	if !outcome.Ignored || outcome.Status != entity.OrderStatusSuccess {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if f.store.order("o-1").Status != entity.OrderStatusSuccess {
		t.Fatal("expected status untouched")
	}
	if f.store.eventCount() != 1 {
		t.Fatal("expected event recorded")
	}
}

func TestReconcileLedgerErrorAbortsAndAllowsRetry(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("o-1", entity.PaymentMethodCard))
	f.store.updateFn = func(*entity.Order) error { return errors.New("deadlock") }

	if _, err := f.rec.Reconcile(context.Background(), invoiceEvent("evt-1", "o-1", "success")); err == nil {
		t.Fatal("expected ledger error")
	}
	if f.store.eventCount() != 0 {
		t.Fatal("expected event insert rolled back")
	}
	if len(f.analytics.orders) != 0 {
		t.Fatal("expected no side effects on failure")
	}

	f.store.updateFn = nil
	outcome, err := f.rec.Reconcile(context.Background(), invoiceEvent("evt-1", "o-1", "success"))
	if err != nil || outcome.Replayed {
		t.Fatalf("expected retry to apply, got %+v %v", outcome, err)
	}
}

func TestReconcileUnknownOrder(t *testing.T) {
	f := newReconcilerFixture()
	if _, err := f.rec.Reconcile(context.Background(), invoiceEvent("evt-1", "missing", "success")); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestReconcileDeletePendingOrder(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("o-1", entity.PaymentMethodVirtualAccount))
	event := invoiceEvent("evt-1", "o-1", "expired")
	event.Action = DeleteOrder{}

	outcome, err := f.rec.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Deleted || f.store.order("o-1") != nil {
		t.Fatalf("expected order deleted, got %+v", outcome)
	}
}

func TestReconcileDeleteSettledOrderIgnored(t *testing.T) {
	order := pendingOrder("o-1", entity.PaymentMethodVirtualAccount)
	order.Status = entity.OrderStatusSuccess
	f := newReconcilerFixture(order)
	event := invoiceEvent("evt-1", "o-1", "expired")
	event.Action = DeleteOrder{}

	outcome, err := f.rec.Reconcile(context.Background(), event)
	if err != nil || !outcome.Ignored {
		t.Fatalf("expected ignored delete, got %+v %v", outcome, err)
	}
	if f.store.order("o-1") == nil {
		t.Fatal("expected settled order kept")
	}
}

func TestReconcileProviderIsolation(t *testing.T) {
	googleOrder := pendingOrder("g-1", entity.PaymentMethodGooglePlay)
	googleOrder.GooglePurchaseToken = strPtr("token-1")
	appleOrder := pendingOrder("a-1", entity.PaymentMethodAppleIAP)
	appleOrder.AppleOriginalTransactionID = strPtr("otid-1")
	f := newReconcilerFixture(googleOrder, appleOrder)

	cases := []Event{
		// invoice callback naming an apple order id
		invoiceEvent("evt-1", "a-1", "success"),
		// apple notification whose app account token points at a google order
		{
			Provider:    entity.ProviderApple,
			EventKey:    "n-1",
			Correlation: ByAppleTransaction{OriginalTransactionID: "otid-x", AppAccountToken: "g-1"},
			Action:      SetStatus{Status: "success"},
		},
		// google notification whose account id points at an apple order
		{
			Provider:    entity.ProviderGoogle,
			EventKey:    "m-1",
			Correlation: ByGooglePurchase{PurchaseToken: "token-x", AccountOrderID: "a-1"},
			Action:      SetStatus{Status: "success"},
		},
	}
	for _, event := range cases {
		if _, err := f.rec.Reconcile(context.Background(), event); !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound for %s event, got %v", event.Provider, err)
		}
	}

	mismatched := Event{
		Provider:    entity.ProviderInvoice,
		EventKey:    "evt-2",
		Correlation: ByAppleTransaction{OriginalTransactionID: "otid-1"},
		Action:      SetStatus{Status: "success"},
	}
	if _, err := f.rec.Reconcile(context.Background(), mismatched); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for foreign correlation, got %v", err)
	}

	if f.store.order("g-1").Status != entity.OrderStatusPending || f.store.order("a-1").Status != entity.OrderStatusPending {
		t.Fatal("expected no cross-provider mutation")
	}
}

func TestReconcileAppleBindsByAppAccountToken(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("a-1", entity.PaymentMethodAppleIAP))

	outcome, err := f.rec.Reconcile(context.Background(), Event{
		Provider:    entity.ProviderApple,
		EventKey:    "n-1",
		EventType:   "SUBSCRIBED/INITIAL_BUY",
		Correlation: ByAppleTransaction{OriginalTransactionID: "otid-1", AppAccountToken: "A-1"},
		Action:      SetStatus{Status: "success"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := f.store.order("a-1")
	if outcome.OrderID != "a-1" || !order.HasAppleBinding() || *order.AppleOriginalTransactionID != "otid-1" {
		t.Fatalf("expected binding to otid-1, got %+v", order)
	}
	if order.Status != entity.OrderStatusSuccess {
		t.Fatalf("expected success, got %s", order.Status)
	}
	if len(f.topics.calls) != 0 {
		t.Fatal("expected topic subscription only on invoice path")
	}
	if len(f.analytics.orders) != 1 {
		t.Fatal("expected analytics for apple activation")
	}
}

func TestReconcileAppleRenewal(t *testing.T) {
	current := pendingOrder("a-1", entity.PaymentMethodAppleIAP)
	current.Status = entity.OrderStatusSuccess
	current.AppleOriginalTransactionID = strPtr("otid-1")
	f := newReconcilerFixture(current)

	outcome, err := f.rec.Reconcile(context.Background(), Event{
		Provider:    entity.ProviderApple,
		EventKey:    "n-2",
		EventType:   "DID_RENEW",
		Correlation: ByAppleTransaction{OriginalTransactionID: "otid-1"},
		Action:      Renew{},
		Payload:     json.RawMessage(`{"notificationType":"DID_RENEW"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.PreviousOrderID != "a-1" || outcome.OrderID != "renewal-1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	previous := f.store.order("a-1")
	if previous.Status != entity.OrderStatusFailed {
		t.Fatalf("expected previous order failed, got %s", previous.Status)
	}
	next := f.store.order("renewal-1")
	if next == nil || next.Status != entity.OrderStatusSuccess || next.UserID != "u-1" || next.Total != 111000 {
		t.Fatalf("unexpected renewal order: %+v", next)
	}
	if *next.AppleOriginalTransactionID != "otid-1" || !next.ExpiredAt.Equal(f.clock.Now().AddDate(0, 1, 0)) {
		t.Fatalf("unexpected renewal binding/expiry: %+v", next)
	}
	if got := f.store.attachedOrder(entity.ProviderApple, "n-2"); got != "renewal-1" {
		t.Fatalf("expected event attached to renewal-1, got %q", got)
	}

	// a second renewal continues from the newest order
	f.clock.Advance(time.Minute)
	outcome, err = f.rec.Reconcile(context.Background(), Event{
		Provider:    entity.ProviderApple,
		EventKey:    "n-3",
		Correlation: ByAppleTransaction{OriginalTransactionID: "otid-1"},
		Action:      Renew{},
	})
	if err != nil || outcome.PreviousOrderID != "renewal-1" {
		t.Fatalf("expected second renewal from renewal-1, got %+v %v", outcome, err)
	}
	if len(f.store.ordersByUser("u-1")) != 3 {
		t.Fatal("expected three orders in the chain")
	}
}

func TestReconcileGoogleBindsAndUsesVerifiedExpiry(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("g-1", entity.PaymentMethodGooglePlay))
	expiry := f.clock.Now().Add(30 * 24 * time.Hour)

	_, err := f.rec.Reconcile(context.Background(), Event{
		Provider:    entity.ProviderGoogle,
		EventKey:    "m-1",
		Correlation: ByGooglePurchase{PurchaseToken: "token-1", AccountOrderID: "g-1", PurchaseID: "GPA.1"},
		Action:      SetStatus{Status: "success", ExpiresAt: &expiry},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := f.store.order("g-1")
	if !order.HasGoogleBinding() || *order.GooglePurchaseID != "GPA.1" {
		t.Fatalf("expected google binding, got %+v", order)
	}
	if !order.ExpiredAt.Equal(expiry) {
		t.Fatalf("expected verified expiry, got %v", order.ExpiredAt)
	}

	_, err = f.rec.Reconcile(context.Background(), Event{
		Provider:    entity.ProviderGoogle,
		EventKey:    "m-2",
		Correlation: ByGooglePurchase{PurchaseToken: "token-1"},
		Action:      SetStatus{Status: "failed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order = f.store.order("g-1")
	if order.Status != entity.OrderStatusFailed || !order.ExpiredAt.Equal(expiry) {
		t.Fatalf("expected soft cancel, got %+v", order)
	}
}

func TestReconcileNoopRecordsEventOnly(t *testing.T) {
	f := newReconcilerFixture()

	outcome, err := f.rec.Reconcile(context.Background(), Event{
		Provider:    entity.ProviderApple,
		EventKey:    "n-1",
		EventType:   "PRICE_INCREASE",
		Correlation: ByAppleTransaction{OriginalTransactionID: "unknown"},
		Action:      Noop{Reason: "unhandled notification"},
	})
	if err != nil || !outcome.Ignored {
		t.Fatalf("expected ignored, got %+v %v", outcome, err)
	}
	if f.store.eventCount() != 1 {
		t.Fatal("expected event recorded")
	}
}

func TestReconcileConcurrentDuplicatesApplyOnce(t *testing.T) {
	f := newReconcilerFixture(pendingOrder("o-1", entity.PaymentMethodQRIS))
	event := invoiceEvent("evt-1", "o-1", "success")

	var applied, replayed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.rec.Reconcile(context.Background(), event)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if outcome.Replayed {
				atomic.AddInt32(&replayed, 1)
			} else {
				atomic.AddInt32(&applied, 1)
			}
		}()
	}
	wg.Wait()

	if applied != 1 || replayed != 19 {
		t.Fatalf("expected 1 applied and 19 replayed, got %d/%d", applied, replayed)
	}
	if len(f.analytics.orders) != 1 {
		t.Fatalf("expected one activation, got %d", len(f.analytics.orders))
	}
}

func TestReconcileConcurrentEventsAcrossOrders(t *testing.T) {
	orders := make([]*entity.Order, 0, 10)
	for i := 0; i < 10; i++ {
		orders = append(orders, pendingOrder(fmt.Sprintf("o-%d", i), entity.PaymentMethodCard))
	}
	f := newReconcilerFixture(orders...)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(orderIdx, eventIdx int) {
				defer wg.Done()
				key := fmt.Sprintf("evt-%d-%d", orderIdx, eventIdx)
				if _, err := f.rec.Reconcile(context.Background(), invoiceEvent(key, fmt.Sprintf("o-%d", orderIdx), "success")); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}(i, j)
		}
	}
	wg.Wait()

	if f.store.eventCount() != 30 {
		t.Fatalf("expected 30 recorded events, got %d", f.store.eventCount())
	}
	for i := 0; i < 10; i++ {
		if f.store.order(fmt.Sprintf("o-%d", i)).Status != entity.OrderStatusSuccess {
			t.Fatalf("expected o-%d success", i)
		}
	}
}
