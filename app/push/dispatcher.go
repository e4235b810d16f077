package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/app/factory"
	"google.golang.org/api/option"
)

const (
	// FCM accepts at most 1000 tokens per topic management call and 500 per multicast.
	topicBatchSize     = 1000
	multicastBatchSize = 500
)

type messagingClient interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	SendMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type ExpiryMessage struct {
	Title string
	Body  string
}

type FCMDispatcher struct {
	client messagingClient
	expiry ExpiryMessage
	logger logrus.FieldLogger
}

func NewFCMDispatcher(ctx context.Context, credentialsFile string, expiry ExpiryMessage) (*FCMDispatcher, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return newFCMDispatcher(client, expiry), nil
}

func newFCMDispatcher(client messagingClient, expiry ExpiryMessage) *FCMDispatcher {
	if strings.TrimSpace(expiry.Title) == "" {
		expiry.Title = "Subscription expired"
	}
	if strings.TrimSpace(expiry.Body) == "" {
		expiry.Body = "Your membership has ended. Renew to keep following your idol."
	}
	return &FCMDispatcher{
		client: client,
		expiry: expiry,
		logger: factory.NewModuleLogger("push"),
	}
}

func (d *FCMDispatcher) SubscribeToTopic(ctx context.Context, tokens []string, topic string) error {
	var errs []error
	for _, batch := range chunk(tokens, topicBatchSize) {
		resp, err := d.client.SubscribeToTopic(ctx, batch, topic)
		if err != nil {
			errs = append(errs, fmt.Errorf("subscribe %d tokens to %s: %w", len(batch), topic, err))
			continue
		}
		if resp.FailureCount > 0 {
			fields := logrus.Fields{"topic": topic, "success": resp.SuccessCount, "failure": resp.FailureCount}
			if len(resp.Errors) > 0 {
				fields["first_error"] = resp.Errors[0].Reason
			}
			d.logger.WithFields(fields).Warn("topic_subscribe_partial")
		}
	}
	return errors.Join(errs...)
}

func (d *FCMDispatcher) NotifyExpired(ctx context.Context, tokens []string) error {
	var errs []error
	for _, batch := range chunk(tokens, multicastBatchSize) {
		resp, err := d.client.SendMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: d.expiry.Title,
				Body:  d.expiry.Body,
			},
			Data: map[string]string{"type": "subscription_expired"},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
			APNS: &messaging.APNSConfig{
				Headers: map[string]string{"apns-priority": "10"},
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{Sound: "default"},
				},
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("multicast to %d tokens: %w", len(batch), err))
			continue
		}
		if resp.FailureCount > 0 {
			d.logger.WithFields(logrus.Fields{
				"success": resp.SuccessCount,
				"failure": resp.FailureCount,
			}).Warn("expiry_notification_partial")
		}
	}
	return errors.Join(errs...)
}

func chunk(tokens []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[start:end])
	}
	return batches
}

// NoopDispatcher is used when no Firebase credentials are configured.
type NoopDispatcher struct {
	logger logrus.FieldLogger
}

func NewNoopDispatcher() *NoopDispatcher {
	return &NoopDispatcher{logger: factory.NewModuleLogger("push")}
}

func (d *NoopDispatcher) SubscribeToTopic(_ context.Context, tokens []string, topic string) error {
	d.logger.WithFields(logrus.Fields{"topic": topic, "tokens": len(tokens)}).Debug("push disabled, topic subscribe skipped")
	return nil
}

func (d *NoopDispatcher) NotifyExpired(_ context.Context, tokens []string) error {
	d.logger.WithField("tokens", len(tokens)).Debug("push disabled, expiry notification skipped")
	return nil
}
