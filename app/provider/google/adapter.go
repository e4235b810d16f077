package google

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
	"google.golang.org/api/idtoken"
)

type subscriptionLookup interface {
	GetSubscription(ctx context.Context, subscriptionID, purchaseToken string) (*SubscriptionPurchase, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, event service.Event) (*service.Outcome, error)
}

type tokenValidator func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

type AdapterConfig struct {
	PackageName string
	// PushAudience enables OIDC verification of Pub/Sub push requests when set.
	PushAudience       string
	PushServiceAccount string
}

type Adapter struct {
	lookup         subscriptionLookup
	reconciler     reconciler
	packageName    string
	pushAudience   string
	serviceAccount string
	validate       tokenValidator
}

func NewAdapter(lookup subscriptionLookup, reconciler reconciler, cfg AdapterConfig) *Adapter {
	return &Adapter{
		lookup:         lookup,
		reconciler:     reconciler,
		packageName:    strings.TrimSpace(cfg.PackageName),
		pushAudience:   strings.TrimSpace(cfg.PushAudience),
		serviceAccount: strings.TrimSpace(cfg.PushServiceAccount),
		validate:       idtoken.Validate,
	}
}

// HandlePush authenticates a Pub/Sub push delivery and applies the developer notification it carries.
func (a *Adapter) HandlePush(ctx context.Context, authorization string, body []byte) (*service.Outcome, error) {
	if err := a.authenticate(ctx, authorization); err != nil {
		return nil, err
	}

	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: pubsub envelope: %v", service.ErrInvalidRequest, err)
	}
	messageID := strings.TrimSpace(envelope.Message.MessageID)
	if messageID == "" || envelope.Message.Data == "" {
		return nil, fmt.Errorf("%w: pubsub message requires data and messageId", service.ErrInvalidRequest)
	}

	notification, err := decodeDeveloperNotification(envelope.Message.Data)
	if err != nil {
		return nil, err
	}
	if a.packageName != "" && notification.PackageName != a.packageName {
		return nil, fmt.Errorf("%w: package name mismatch: %s", service.ErrUnauthorized, notification.PackageName)
	}

	event := service.Event{
		Provider:  entity.ProviderGoogle,
		EventKey:  messageID,
		EventType: notification.Notification.EventType(),
		Payload:   json.RawMessage(notification.Raw),
	}

	sub, ok := notification.Notification.(SubscriptionNotification)
	if !ok {
		event.Correlation = service.ByGooglePurchase{}
		event.Action = service.Noop{Reason: "unhandled notification " + event.EventType}
		return a.reconciler.Reconcile(ctx, event)
	}

	correlation := service.ByGooglePurchase{PurchaseToken: sub.PurchaseToken}
	switch sub.NotificationType {
	case SubscriptionPurchased, SubscriptionCanceled:
		purchase, err := a.lookup.GetSubscription(ctx, sub.SubscriptionID, sub.PurchaseToken)
		if err != nil {
			return nil, err
		}
		correlation.AccountOrderID = strings.ToLower(strings.TrimSpace(purchase.ObfuscatedAccountID))
		correlation.PurchaseID = purchase.OrderID

		if sub.NotificationType == SubscriptionPurchased {
			expiresAt := purchase.ExpiresAt
			event.Action = service.SetStatus{Status: string(entity.OrderStatusSuccess), ExpiresAt: &expiresAt}
		} else {
			event.Action = service.SetStatus{Status: string(entity.OrderStatusFailed)}
		}
	default:
		event.Action = service.Noop{Reason: "unhandled notification " + event.EventType}
	}
	event.Correlation = correlation

	return a.reconciler.Reconcile(ctx, event)
}

func (a *Adapter) authenticate(ctx context.Context, authorization string) error {
	if a.pushAudience == "" {
		return nil
	}

	token, found := strings.CutPrefix(strings.TrimSpace(authorization), "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: missing push bearer token", service.ErrUnauthorized)
	}

	payload, err := a.validate(ctx, strings.TrimSpace(token), a.pushAudience)
	if err != nil {
		return fmt.Errorf("%w: push token: %v", service.ErrUnauthorized, err)
	}
	if a.serviceAccount != "" {
		email, _ := payload.Claims["email"].(string)
		if email != a.serviceAccount {
			return fmt.Errorf("%w: push token issued for %q", service.ErrUnauthorized, email)
		}
	}
	return nil
}
