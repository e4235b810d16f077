package entity

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusSuccess OrderStatus = "success"
	OrderStatusFailed  OrderStatus = "failed"
)

// ParseOrderStatus accepts only the three ledger states.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	switch OrderStatus(value) {
	case OrderStatusPending, OrderStatusSuccess, OrderStatusFailed:
		return OrderStatus(value), true
	default:
		return "", false
	}
}

// CanTransition reports whether an order may move from one status to another.
// Settled orders never return to pending.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusPending || to == OrderStatusSuccess || to == OrderStatusFailed
	case OrderStatusSuccess, OrderStatusFailed:
		return to == OrderStatusSuccess || to == OrderStatusFailed
	default:
		return false
	}
}

type Order struct {
	ID            string
	UserID        string
	PackageID     string
	PaymentMethod PaymentMethod
	Subtotal      int64
	Tax           int64
	Total         int64
	Currency      string
	Status        OrderStatus
	InvoiceURL    *string

	AppleOriginalTransactionID *string
	GooglePurchaseToken        *string
	GooglePurchaseID           *string

	CallbackPayload json.RawMessage
	ExpiredAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsEntitled reports whether the order grants access at the given instant.
func (o *Order) IsEntitled(now time.Time) bool {
	return o.Status == OrderStatusSuccess && o.ExpiredAt != nil && o.ExpiredAt.After(now)
}

// HasAppleBinding and HasGoogleBinding report which provider the order is bound to.
func (o *Order) HasAppleBinding() bool {
	return o.AppleOriginalTransactionID != nil && *o.AppleOriginalTransactionID != ""
}

func (o *Order) HasGoogleBinding() bool {
	return o.GooglePurchaseToken != nil && *o.GooglePurchaseToken != ""
}
