package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
	androidpublisher "google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type PublisherConfig struct {
	PackageName     string
	CredentialsFile string
}

// SubscriptionPurchase is the server-verified state of a Play subscription token.
type SubscriptionPurchase struct {
	OrderID             string
	ExpiresAt           time.Time
	ObfuscatedAccountID string
	AutoRenewing        bool
	PaymentState        *int64
	CancelReason        int64
}

type Publisher struct {
	packageName string
	svc         *androidpublisher.Service
}

func NewPublisher(ctx context.Context, cfg PublisherConfig, opts ...option.ClientOption) (*Publisher, error) {
	packageName := strings.TrimSpace(cfg.PackageName)
	if packageName == "" {
		return nil, errors.New("google play package name is required")
	}

	clientOpts := []option.ClientOption{option.WithScopes(androidpublisher.AndroidpublisherScope)}
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := androidpublisher.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("androidpublisher.NewService: %w", err)
	}
	return &Publisher{packageName: packageName, svc: svc}, nil
}

func (p *Publisher) GetSubscription(ctx context.Context, subscriptionID, purchaseToken string) (*SubscriptionPurchase, error) {
	resp, err := p.svc.Purchases.Subscriptions.Get(p.packageName, subscriptionID, purchaseToken).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapAPIError(err)
	}
	// Play redelivers the notification after a 5xx, so an incomplete purchase is retried later.
	if resp.ExpiryTimeMillis <= 0 {
		return nil, fmt.Errorf("%w: google subscriptions.get returned no expiry", service.ErrUpstreamUnavailable)
	}

	return &SubscriptionPurchase{
		OrderID:             resp.OrderId,
		ExpiresAt:           time.UnixMilli(resp.ExpiryTimeMillis).UTC(),
		ObfuscatedAccountID: resp.ObfuscatedExternalAccountId,
		AutoRenewing:        resp.AutoRenewing,
		PaymentState:        resp.PaymentState,
		CancelReason:        resp.CancelReason,
	}, nil
}

// mapAPIError treats tokens Google does not recognise as caller errors.
func mapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%w: google rejected purchase token: %v", service.ErrInvalidRequest, err)
		}
	}
	return fmt.Errorf("%w: google subscriptions.get: %v", service.ErrUpstreamUnavailable, err)
}

// DisabledLookup stands in for the Play client when no package is configured.
type DisabledLookup struct{}

func (DisabledLookup) GetSubscription(context.Context, string, string) (*SubscriptionPurchase, error) {
	return nil, fmt.Errorf("%w: google play is not configured", service.ErrUpstreamUnavailable)
}
