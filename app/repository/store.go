package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
)

// Tx is the set of ledger operations available inside one database transaction.
type Tx interface {
	InsertWebhookEvent(ctx context.Context, event *entity.WebhookEvent) error
	AttachWebhookEventOrder(ctx context.Context, eventID uint64, orderID string) error

	LockOrder(ctx context.Context, id string) (*entity.Order, error)
	LockLatestAppleOrder(ctx context.Context, originalTransactionID string) (*entity.Order, error)
	LockGoogleOrder(ctx context.Context, purchaseToken string) (*entity.Order, error)
	CreateOrder(ctx context.Context, order *entity.Order) error
	UpdateOrder(ctx context.Context, order *entity.Order) error
	DeleteOrder(ctx context.Context, id string) error
	HasOtherEntitledOrder(ctx context.Context, userID, excludeOrderID string, now time.Time) (bool, error)

	ListPushTokens(ctx context.Context, userID string) ([]string, error)
	DeletePushTokens(ctx context.Context, userID string) (int64, error)
}

type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type Store struct {
	db TxBeginner
}

func NewStore(db TxBeginner) *Store {
	return &Store{db: db}
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(newTxScope(sqlTx)); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txScope struct {
	orders *OrderRepository
	events *WebhookEventRepository
	tokens *PushTokenRepository
}

func newTxScope(db DBTX) *txScope {
	return &txScope{
		orders: NewOrderRepository(db),
		events: NewWebhookEventRepository(db),
		tokens: NewPushTokenRepository(db),
	}
}

func (t *txScope) InsertWebhookEvent(ctx context.Context, event *entity.WebhookEvent) error {
	return t.events.Insert(ctx, event)
}

func (t *txScope) AttachWebhookEventOrder(ctx context.Context, eventID uint64, orderID string) error {
	return t.events.AttachOrder(ctx, eventID, orderID)
}

func (t *txScope) LockOrder(ctx context.Context, id string) (*entity.Order, error) {
	return t.orders.LockByID(ctx, id)
}

func (t *txScope) LockLatestAppleOrder(ctx context.Context, originalTransactionID string) (*entity.Order, error) {
	return t.orders.LockLatestByAppleOriginalTransactionID(ctx, originalTransactionID)
}

func (t *txScope) LockGoogleOrder(ctx context.Context, purchaseToken string) (*entity.Order, error) {
	return t.orders.LockByGooglePurchaseToken(ctx, purchaseToken)
}

func (t *txScope) CreateOrder(ctx context.Context, order *entity.Order) error {
	return t.orders.Create(ctx, order)
}

func (t *txScope) UpdateOrder(ctx context.Context, order *entity.Order) error {
	return t.orders.Update(ctx, order)
}

func (t *txScope) DeleteOrder(ctx context.Context, id string) error {
	return t.orders.Delete(ctx, id)
}

func (t *txScope) HasOtherEntitledOrder(ctx context.Context, userID, excludeOrderID string, now time.Time) (bool, error) {
	return t.orders.HasOtherEntitledOrder(ctx, userID, excludeOrderID, now)
}

func (t *txScope) ListPushTokens(ctx context.Context, userID string) ([]string, error) {
	return t.tokens.ListTokensByUser(ctx, userID)
}

func (t *txScope) DeletePushTokens(ctx context.Context, userID string) (int64, error) {
	return t.tokens.DeleteByUser(ctx, userID)
}
