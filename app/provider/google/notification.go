package google

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
)

// Subscription notification types from Play real-time developer notifications.
const (
	SubscriptionRecovered            = 1
	SubscriptionRenewed              = 2
	SubscriptionCanceled             = 3
	SubscriptionPurchased            = 4
	SubscriptionOnHold               = 5
	SubscriptionInGracePeriod        = 6
	SubscriptionRestarted            = 7
	SubscriptionPriceChangeConfirmed = 8
	SubscriptionDeferred             = 9
	SubscriptionPaused               = 10
	SubscriptionPauseScheduleChanged = 11
	SubscriptionRevoked              = 12
	SubscriptionExpired              = 13
)

type pushEnvelope struct {
	Message struct {
		Data        string            `json:"data"`
		MessageID   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		PublishTime string            `json:"publishTime,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type developerNotificationJSON struct {
	Version                    string                      `json:"version"`
	PackageName                string                      `json:"packageName"`
	EventTimeMillis            string                      `json:"eventTimeMillis"`
	SubscriptionNotification   *SubscriptionNotification   `json:"subscriptionNotification,omitempty"`
	OneTimeProductNotification *OneTimeProductNotification `json:"oneTimeProductNotification,omitempty"`
	TestNotification           *TestNotification           `json:"testNotification,omitempty"`
}

// Notification is one of SubscriptionNotification, OneTimeProductNotification or TestNotification.
type Notification interface {
	EventType() string
}

type SubscriptionNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SubscriptionID   string `json:"subscriptionId"`
}

type OneTimeProductNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SKU              string `json:"sku"`
}

type TestNotification struct {
	Version string `json:"version"`
}

func (n SubscriptionNotification) EventType() string {
	return "subscription." + strconv.Itoa(n.NotificationType)
}

func (n OneTimeProductNotification) EventType() string {
	return "one_time_product." + strconv.Itoa(n.NotificationType)
}

func (TestNotification) EventType() string {
	return "test"
}

type DeveloperNotification struct {
	PackageName  string
	EventTimeMs  int64
	Notification Notification
	Raw          json.RawMessage
}

func decodeDeveloperNotification(data string) (*DeveloperNotification, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode pubsub data: %v", service.ErrInvalidRequest, err)
	}

	var decoded developerNotificationJSON
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: developer notification: %v", service.ErrInvalidRequest, err)
	}

	out := &DeveloperNotification{PackageName: decoded.PackageName, Raw: raw}
	if decoded.EventTimeMillis != "" {
		out.EventTimeMs, _ = strconv.ParseInt(decoded.EventTimeMillis, 10, 64)
	}

	switch {
	case decoded.SubscriptionNotification != nil:
		n := *decoded.SubscriptionNotification
		if strings.TrimSpace(n.PurchaseToken) == "" || strings.TrimSpace(n.SubscriptionID) == "" {
			return nil, fmt.Errorf("%w: subscription notification without token or subscription id", service.ErrInvalidRequest)
		}
		out.Notification = n
	case decoded.OneTimeProductNotification != nil:
		out.Notification = *decoded.OneTimeProductNotification
	case decoded.TestNotification != nil:
		out.Notification = *decoded.TestNotification
	default:
		return nil, fmt.Errorf("%w: developer notification has no known payload", service.ErrInvalidRequest)
	}
	return out, nil
}
