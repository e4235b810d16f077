package apple

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
)

type jwsVerifier interface {
	Verify(ctx context.Context, token string) ([]byte, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, event service.Event) (*service.Outcome, error)
}

type Adapter struct {
	verifier   jwsVerifier
	reconciler reconciler
	bundleID   string
}

func NewAdapter(verifier jwsVerifier, reconciler reconciler, bundleID string) *Adapter {
	return &Adapter{
		verifier:   verifier,
		reconciler: reconciler,
		bundleID:   strings.TrimSpace(bundleID),
	}
}

// HandleNotification verifies an App Store server notification and applies it to the ledger.
func (a *Adapter) HandleNotification(ctx context.Context, body []byte) (*service.Outcome, error) {
	var envelope webhookBody
	if err := json.Unmarshal(body, &envelope); err != nil || strings.TrimSpace(envelope.SignedPayload) == "" {
		return nil, fmt.Errorf("%w: signedPayload is required", service.ErrInvalidRequest)
	}

	raw, err := a.verifier.Verify(ctx, envelope.SignedPayload)
	if err != nil {
		return nil, err
	}

	var notification Notification
	if err := json.Unmarshal(raw, &notification); err != nil {
		return nil, fmt.Errorf("%w: notification payload: %v", service.ErrInvalidRequest, err)
	}
	if notification.NotificationUUID == "" || notification.NotificationType == "" {
		return nil, fmt.Errorf("%w: notification is missing type or uuid", service.ErrInvalidRequest)
	}
	if a.bundleID != "" && notification.Data.BundleID != "" && notification.Data.BundleID != a.bundleID {
		return nil, fmt.Errorf("%w: bundle id mismatch: %s", service.ErrUnauthorized, notification.Data.BundleID)
	}

	action := MapNotification(notification)

	var txn Transaction
	if notification.Data.SignedTransactionInfo != "" {
		txnRaw, err := a.verifier.Verify(ctx, notification.Data.SignedTransactionInfo)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(txnRaw, &txn); err != nil {
			return nil, fmt.Errorf("%w: transaction payload: %v", service.ErrInvalidRequest, err)
		}
		if a.bundleID != "" && txn.BundleID != "" && txn.BundleID != a.bundleID {
			return nil, fmt.Errorf("%w: bundle id mismatch: %s", service.ErrUnauthorized, txn.BundleID)
		}
	}
	if _, noop := action.(service.Noop); !noop && txn.OriginalTransactionID == "" {
		return nil, fmt.Errorf("%w: %s without original transaction id", service.ErrInvalidRequest, notification.EventType())
	}

	return a.reconciler.Reconcile(ctx, service.Event{
		Provider:  entity.ProviderApple,
		EventKey:  notification.NotificationUUID,
		EventType: notification.EventType(),
		Correlation: service.ByAppleTransaction{
			OriginalTransactionID: txn.OriginalTransactionID,
			AppAccountToken:       strings.ToLower(txn.AppAccountToken),
		},
		Action:  action,
		Payload: json.RawMessage(raw),
	})
}

// MapNotification decides the ledger action for a notification type and subtype.
func MapNotification(n Notification) service.Action {
	switch n.NotificationType {
	case TypeSubscribed:
		switch n.Subtype {
		case SubtypeInitialBuy:
			return service.SetStatus{Status: string(entity.OrderStatusSuccess)}
		case SubtypeResubscribe:
			return service.Renew{}
		}
	case TypeDidRenew:
		return service.Renew{}
	case TypeDidChangeRenewalStatus:
		if n.Subtype == SubtypeAutoRenewDisabled {
			return service.SetStatus{Status: string(entity.OrderStatusFailed)}
		}
	}
	return service.Noop{Reason: "unhandled notification " + n.EventType()}
}
