package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
)

type entitlementRepository interface {
	HasEntitledOrder(ctx context.Context, userID string, now time.Time) (bool, error)
	ListEntitledByUser(ctx context.Context, userID string, now time.Time) ([]*entity.Order, error)
}

type Entitlement struct {
	UserID    string
	Active    bool
	ExpiresAt *time.Time
	Orders    []*entity.Order
}

type EntitlementService struct {
	orders entitlementRepository
	now    func() time.Time
}

func NewEntitlementService(orders entitlementRepository) *EntitlementService {
	return &EntitlementService{
		orders: orders,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *EntitlementService) IsEntitled(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return s.orders.HasEntitledOrder(ctx, userID, s.now())
}

func (s *EntitlementService) Entitlement(ctx context.Context, userID string) (*Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	now := s.now()
	orders, err := s.orders.ListEntitledByUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	result := &Entitlement{UserID: userID, Orders: orders}
	for _, order := range orders {
		if !order.IsEntitled(now) {
			continue
		}
		result.Active = true
		if result.ExpiresAt == nil || order.ExpiredAt.After(*result.ExpiresAt) {
			expiresAt := *order.ExpiredAt
			result.ExpiresAt = &expiresAt
		}
	}
	return result, nil
}
