package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/factory"
	"github.com/vibast-solutions/ms-go-fan-billing/app/repository"
)

// Correlation identifies the order an event refers to. Each variant is only
// honoured for the provider that issues that kind of key.
type Correlation interface {
	isCorrelation()
}

type ByOrderID struct {
	OrderID string
}

type ByAppleTransaction struct {
	OriginalTransactionID string
	// AppAccountToken is the order id the client attached to the purchase.
	AppAccountToken string
}

type ByGooglePurchase struct {
	PurchaseToken string
	// AccountOrderID is the verified obfuscated external account id.
	AccountOrderID string
	PurchaseID     string
}

func (ByOrderID) isCorrelation()          {}
func (ByAppleTransaction) isCorrelation() {}
func (ByGooglePurchase) isCorrelation()   {}

// Action is the ledger effect an event asks for.
type Action interface {
	isAction()
}

type SetStatus struct {
	Status    string
	ExpiresAt *time.Time
}

type DeleteOrder struct{}

// Renew fails the current order and continues the subscription on a new success order.
type Renew struct{}

type Noop struct {
	Reason string
}

func (SetStatus) isAction()   {}
func (DeleteOrder) isAction() {}
func (Renew) isAction()       {}
func (Noop) isAction()        {}

type Event struct {
	Provider    entity.Provider
	EventKey    string
	EventType   string
	Correlation Correlation
	Action      Action
	Payload     json.RawMessage
}

type Outcome struct {
	Replayed        bool
	Ignored         bool
	Deleted         bool
	OrderID         string
	PreviousOrderID string
	Status          entity.OrderStatus
}

type txRunner interface {
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

type packageFinder interface {
	FindByID(ctx context.Context, id string) (*entity.Package, error)
}

type pushTokenLister interface {
	ListTokensByUser(ctx context.Context, userID string) ([]string, error)
}

type topicSubscriber interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) error
}

type activationPublisher interface {
	PublishOrderActivated(ctx context.Context, order *entity.Order, idolID string) error
}

type Reconciler struct {
	store     txRunner
	ledger    *Ledger
	packages  packageFinder
	tokens    pushTokenLister
	topics    topicSubscriber
	analytics activationPublisher
	logger    logrus.FieldLogger

	sideEffectTimeout time.Duration
	runAsync          func(fn func())
	newID             func() string
	now               func() time.Time
}

func NewReconciler(
	store txRunner,
	ledger *Ledger,
	packages packageFinder,
	tokens pushTokenLister,
	topics topicSubscriber,
	analytics activationPublisher,
	sideEffectTimeout time.Duration,
) *Reconciler {
	if sideEffectTimeout <= 0 {
		sideEffectTimeout = 30 * time.Second
	}
	return &Reconciler{
		store:             store,
		ledger:            ledger,
		packages:          packages,
		tokens:            tokens,
		topics:            topics,
		analytics:         analytics,
		logger:            factory.NewModuleLogger("reconciler"),
		sideEffectTimeout: sideEffectTimeout,
		runAsync:          func(fn func()) { go fn() },
		newID:             uuid.NewString,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// IdolTopic is the push topic carrying announcements for one idol.
func IdolTopic(idolID string) string {
	return "idol-" + idolID
}

func (r *Reconciler) Reconcile(ctx context.Context, event Event) (*Outcome, error) {
	if strings.TrimSpace(event.EventKey) == "" {
		return nil, fmt.Errorf("%w: missing event key", ErrInvalidRequest)
	}
	if event.Correlation == nil || event.Action == nil {
		return nil, fmt.Errorf("%w: incomplete event", ErrInvalidRequest)
	}

	outcome := &Outcome{}
	var activated *entity.Order

	err := r.store.InTx(ctx, func(tx repository.Tx) error {
		record := &entity.WebhookEvent{
			Provider:  event.Provider,
			EventKey:  event.EventKey,
			EventType: event.EventType,
			Payload:   event.Payload,
			CreatedAt: r.now(),
		}
		if err := tx.InsertWebhookEvent(ctx, record); err != nil {
			if errors.Is(err, repository.ErrDuplicateWebhookEvent) {
				outcome.Replayed = true
				return nil
			}
			return err
		}

		if _, ok := event.Action.(Noop); ok {
			outcome.Ignored = true
			return nil
		}

		order, err := r.resolve(ctx, tx, event)
		if err != nil {
			return err
		}

		activated, err = r.apply(ctx, tx, event, order, outcome)
		if err != nil {
			return err
		}
		// A renewal points the event at the continuation order.
		return tx.AttachWebhookEventOrder(ctx, record.ID, outcome.OrderID)
	})
	if err != nil {
		return nil, err
	}

	if activated != nil {
		r.dispatchActivation(ctx, event.Provider, activated)
	}
	return outcome, nil
}

func (r *Reconciler) resolve(ctx context.Context, tx repository.Tx, event Event) (*entity.Order, error) {
	switch c := event.Correlation.(type) {
	case ByOrderID:
		order, err := tx.LockOrder(ctx, c.OrderID)
		if err != nil {
			return nil, err
		}
		if order == nil || order.PaymentMethod.Provider() != event.Provider {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, c.OrderID)
		}
		return order, nil

	case ByAppleTransaction:
		if event.Provider != entity.ProviderApple {
			return nil, fmt.Errorf("%w: apple correlation from %s", ErrInvalidRequest, event.Provider)
		}
		order, err := tx.LockLatestAppleOrder(ctx, c.OriginalTransactionID)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
		order, err = r.lockUnbound(ctx, tx, c.AppAccountToken, entity.PaymentMethodAppleIAP)
		if err != nil {
			return nil, err
		}
		if order == nil || order.HasAppleBinding() {
			return nil, fmt.Errorf("%w: original transaction %s", ErrOrderNotFound, c.OriginalTransactionID)
		}
		otid := c.OriginalTransactionID
		order.AppleOriginalTransactionID = &otid
		return order, nil

	case ByGooglePurchase:
		if event.Provider != entity.ProviderGoogle {
			return nil, fmt.Errorf("%w: google correlation from %s", ErrInvalidRequest, event.Provider)
		}
		order, err := tx.LockGoogleOrder(ctx, c.PurchaseToken)
		if err != nil {
			return nil, err
		}
		if order == nil {
			order, err = r.lockUnbound(ctx, tx, c.AccountOrderID, entity.PaymentMethodGooglePlay)
			if err != nil {
				return nil, err
			}
			if order == nil || order.HasGoogleBinding() {
				return nil, fmt.Errorf("%w: purchase token not bound", ErrOrderNotFound)
			}
			token := c.PurchaseToken
			order.GooglePurchaseToken = &token
		}
		if c.PurchaseID != "" {
			purchaseID := c.PurchaseID
			order.GooglePurchaseID = &purchaseID
		}
		return order, nil

	default:
		return nil, fmt.Errorf("%w: unsupported correlation %T", ErrInvalidRequest, c)
	}
}

func (r *Reconciler) lockUnbound(ctx context.Context, tx repository.Tx, orderID string, method entity.PaymentMethod) (*entity.Order, error) {
	orderID = strings.ToLower(strings.TrimSpace(orderID))
	if orderID == "" {
		return nil, nil
	}
	order, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.PaymentMethod != method {
		return nil, nil
	}
	return order, nil
}

func (r *Reconciler) apply(ctx context.Context, tx repository.Tx, event Event, order *entity.Order, outcome *Outcome) (*entity.Order, error) {
	outcome.OrderID = order.ID
	outcome.Status = order.Status

	switch action := event.Action.(type) {
	case SetStatus:
		transition, err := r.ledger.ApplyStatus(ctx, tx, order, action.Status, event.Payload, ApplyOptions{ExpiresAt: action.ExpiresAt})
		if errors.Is(err, ErrIllegalTransition) {
			outcome.Ignored = true
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		outcome.Status = order.Status
		if transition.IntoSuccess() {
			return snapshot(order), nil
		}
		return nil, nil

	case DeleteOrder:
		err := r.ledger.Delete(ctx, tx, order)
		if errors.Is(err, ErrIllegalTransition) {
			outcome.Ignored = true
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		outcome.Deleted = true
		return nil, nil

	case Renew:
		if !order.HasAppleBinding() {
			return nil, fmt.Errorf("%w: renewal requires an apple-bound order", ErrInvalidRequest)
		}
		if _, err := r.ledger.ApplyStatus(ctx, tx, order, string(entity.OrderStatusFailed), event.Payload, ApplyOptions{}); err != nil {
			return nil, err
		}

		now := r.now()
		otid := *order.AppleOriginalTransactionID
		next := &entity.Order{
			ID:                         r.newID(),
			UserID:                     order.UserID,
			PackageID:                  order.PackageID,
			PaymentMethod:              order.PaymentMethod,
			Subtotal:                   order.Subtotal,
			Tax:                        order.Tax,
			Total:                      order.Total,
			Currency:                   order.Currency,
			Status:                     entity.OrderStatusPending,
			AppleOriginalTransactionID: &otid,
			CreatedAt:                  now,
			UpdatedAt:                  now,
		}
		if err := tx.CreateOrder(ctx, next); err != nil {
			return nil, err
		}
		if _, err := r.ledger.ApplyStatus(ctx, tx, next, string(entity.OrderStatusSuccess), event.Payload, ApplyOptions{}); err != nil {
			return nil, err
		}

		outcome.PreviousOrderID = order.ID
		outcome.OrderID = next.ID
		outcome.Status = next.Status
		return snapshot(next), nil

	default:
		return nil, fmt.Errorf("%w: unsupported action %T", ErrInvalidRequest, action)
	}
}

func (r *Reconciler) dispatchActivation(ctx context.Context, provider entity.Provider, order *entity.Order) {
	detached := context.WithoutCancel(ctx)
	logger := r.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"provider": string(provider),
	})

	r.runAsync(func() {
		ctx, cancel := context.WithTimeout(detached, r.sideEffectTimeout)
		defer cancel()

		pkg, err := r.packages.FindByID(ctx, order.PackageID)
		if err != nil {
			logger.WithError(err).Warn("activation side effects skipped: package lookup failed")
			return
		}
		if pkg == nil {
			logger.WithError(ErrPackageNotFound).Warn("activation side effects skipped")
			return
		}

		if provider == entity.ProviderInvoice {
			if err := r.subscribeToIdolTopic(ctx, order.UserID, pkg.IdolID); err != nil {
				logger.WithError(err).Warn("topic subscription failed")
			}
		}

		if err := r.analytics.PublishOrderActivated(ctx, order, pkg.IdolID); err != nil {
			logger.WithError(err).Warn("analytics publish failed")
		}
	})
}

func (r *Reconciler) subscribeToIdolTopic(ctx context.Context, userID, idolID string) error {
	tokens, err := r.tokens.ListTokensByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list push tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	return r.topics.SubscribeToTopic(ctx, tokens, IdolTopic(idolID))
}

func snapshot(order *entity.Order) *entity.Order {
	copied := *order
	return &copied
}
