package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/repository"
)

type ledgerWriter interface {
	UpdateOrder(ctx context.Context, order *entity.Order) error
	DeleteOrder(ctx context.Context, id string) error
}

type ApplyOptions struct {
	// ExpiresAt replaces the calendar renewal period on a transition into success.
	ExpiresAt *time.Time
}

type Transition struct {
	From entity.OrderStatus
	To   entity.OrderStatus
}

func (t Transition) IntoSuccess() bool {
	return t.To == entity.OrderStatusSuccess
}

// Ledger owns every status mutation and deletion of orders.
type Ledger struct {
	renewalMonths int
	now           func() time.Time
}

func NewLedger(renewalMonths int) *Ledger {
	if renewalMonths <= 0 {
		renewalMonths = 1
	}
	return &Ledger{
		renewalMonths: renewalMonths,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) ApplyStatus(
	ctx context.Context,
	w ledgerWriter,
	order *entity.Order,
	status string,
	payload json.RawMessage,
	opts ApplyOptions,
) (Transition, error) {
	next, ok := entity.ParseOrderStatus(status)
	if !ok {
		return Transition{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	transition := Transition{From: order.Status, To: next}
	if !entity.CanTransition(order.Status, next) {
		return transition, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, next)
	}

	now := l.now()
	order.Status = next
	if next == entity.OrderStatusSuccess {
		var expiredAt time.Time
		if opts.ExpiresAt != nil {
			expiredAt = opts.ExpiresAt.UTC()
		} else {
			expiredAt = now.AddDate(0, l.renewalMonths, 0)
		}
		order.ExpiredAt = &expiredAt
	}
	order.CallbackPayload = payload
	order.UpdatedAt = now

	if err := w.UpdateOrder(ctx, order); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return transition, ErrOrderNotFound
		}
		return transition, err
	}

	return transition, nil
}

func (l *Ledger) Delete(ctx context.Context, w ledgerWriter, order *entity.Order) error {
	if order.Status != entity.OrderStatusPending {
		return fmt.Errorf("%w: cannot delete %s order", ErrIllegalTransition, order.Status)
	}
	if err := w.DeleteOrder(ctx, order.ID); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return err
	}
	return nil
}
