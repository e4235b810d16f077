package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/factory"
	"github.com/vibast-solutions/ms-go-fan-billing/app/repository"
)

type expiredOrderLister interface {
	ListExpired(ctx context.Context, now time.Time) ([]*entity.Order, error)
}

type expiryNotifier interface {
	NotifyExpired(ctx context.Context, tokens []string) error
}

type SweepResult struct {
	Scanned       int
	Expired       int
	Skipped       int
	Failed        int
	TokensRemoved int64
}

type ExpirySweeper struct {
	store    txRunner
	orders   expiredOrderLister
	ledger   *Ledger
	notifier expiryNotifier
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewExpirySweeper(store txRunner, orders expiredOrderLister, ledger *Ledger, notifier expiryNotifier) *ExpirySweeper {
	return &ExpirySweeper{
		store:    store,
		orders:   orders,
		ledger:   ledger,
		notifier: notifier,
		logger:   factory.NewModuleLogger("expiry-sweeper"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExpirySweeper) RunExpirationBatch(ctx context.Context) error {
	result, err := s.Sweep(ctx)
	s.logger.WithFields(logrus.Fields{
		"scanned":        result.Scanned,
		"expired":        result.Expired,
		"skipped":        result.Skipped,
		"failed":         result.Failed,
		"tokens_removed": result.TokensRemoved,
	}).Info("expiry sweep finished")
	return err
}

// Sweep fails every lapsed success order, one transaction per order, and
// keeps going past per-order failures.
func (s *ExpirySweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	result := SweepResult{}

	items, err := s.orders.ListExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("list expired orders: %w", err)
	}
	result.Scanned = len(items)

	var errs []error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		expired, removed, err := s.expireOne(ctx, item.ID, now)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("order %s: %w", item.ID, err))
			s.logger.WithError(err).WithField("order_id", item.ID).Error("failed to expire order")
			continue
		}
		if !expired {
			result.Skipped++
			continue
		}

		result.Expired++
		result.TokensRemoved += int64(len(removed))
		if len(removed) > 0 {
			if err := s.notifier.NotifyExpired(ctx, removed); err != nil {
				s.logger.WithError(err).WithField("order_id", item.ID).Warn("expiry notification failed")
			}
		}
	}

	return result, errors.Join(errs...)
}

func (s *ExpirySweeper) expireOne(ctx context.Context, orderID string, now time.Time) (bool, []string, error) {
	expired := false
	var removed []string

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		// A renewal that committed after the listing wins.
		if order == nil || order.Status != entity.OrderStatusSuccess || order.ExpiredAt == nil || !order.ExpiredAt.Before(now) {
			return nil
		}

		payload, err := sweeperPayload(order, now)
		if err != nil {
			return err
		}
		if _, err := s.ledger.ApplyStatus(ctx, tx, order, string(entity.OrderStatusFailed), payload, ApplyOptions{}); err != nil {
			return err
		}
		expired = true

		stillEntitled, err := tx.HasOtherEntitledOrder(ctx, order.UserID, order.ID, now)
		if err != nil {
			return err
		}
		if stillEntitled {
			return nil
		}

		tokens, err := tx.ListPushTokens(ctx, order.UserID)
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			return nil
		}
		if _, err := tx.DeletePushTokens(ctx, order.UserID); err != nil {
			return err
		}
		removed = tokens
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return expired, removed, nil
}

func sweeperPayload(order *entity.Order, now time.Time) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{
		"source":     "expiry_sweeper",
		"expired_at": order.ExpiredAt.UTC().Format(time.RFC3339),
		"swept_at":   now.Format(time.RFC3339),
	})
}
