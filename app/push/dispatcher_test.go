package push

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/messaging"
)

type mockMessagingClient struct {
	subscribeFn func(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	multicastFn func(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

func (m *mockMessagingClient) SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	return m.subscribeFn(ctx, tokens, topic)
}

func (m *mockMessagingClient) SendMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	return m.multicastFn(ctx, message)
}

func tokens(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("tok-%d", i)
	}
	return out
}

func TestSubscribeToTopicBatches(t *testing.T) {
	var sizes []int
	client := &mockMessagingClient{subscribeFn: func(_ context.Context, batch []string, topic string) (*messaging.TopicManagementResponse, error) {
		if topic != "idol-7" {
			t.Fatalf("unexpected topic %q", topic)
		}
		sizes = append(sizes, len(batch))
		return &messaging.TopicManagementResponse{SuccessCount: len(batch)}, nil
	}}

	if err := newFCMDispatcher(client, ExpiryMessage{}).SubscribeToTopic(context.Background(), tokens(2500), "idol-7"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sizes) != 3 || sizes[0] != 1000 || sizes[1] != 1000 || sizes[2] != 500 {
		t.Fatalf("unexpected batches %v", sizes)
	}
}

func TestSubscribeToTopicContinuesAfterBatchError(t *testing.T) {
	calls := 0
	client := &mockMessagingClient{subscribeFn: func(_ context.Context, batch []string, _ string) (*messaging.TopicManagementResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("unavailable")
		}
		return &messaging.TopicManagementResponse{SuccessCount: len(batch)}, nil
	}}

	err := newFCMDispatcher(client, ExpiryMessage{}).SubscribeToTopic(context.Background(), tokens(1500), "idol-7")
	if err == nil {
		t.Fatal("expected error from failed batch")
	}
	if calls != 2 {
		t.Fatalf("expected both batches attempted, got %d", calls)
	}
}

func TestSubscribeToTopicNoTokens(t *testing.T) {
	client := &mockMessagingClient{subscribeFn: func(context.Context, []string, string) (*messaging.TopicManagementResponse, error) {
		t.Fatal("expected no call")
		return nil, nil
	}}

	if err := newFCMDispatcher(client, ExpiryMessage{}).SubscribeToTopic(context.Background(), nil, "idol-7"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestNotifyExpired(t *testing.T) {
	var messages []*messaging.MulticastMessage
	client := &mockMessagingClient{multicastFn: func(_ context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
		messages = append(messages, message)
		return &messaging.BatchResponse{SuccessCount: len(message.Tokens)}, nil
	}}

	dispatcher := newFCMDispatcher(client, ExpiryMessage{Title: "Expired"})
	if err := dispatcher.NotifyExpired(context.Background(), tokens(501)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(messages) != 2 || len(messages[0].Tokens) != 500 || len(messages[1].Tokens) != 1 {
		t.Fatalf("unexpected multicast batches: %d", len(messages))
	}
	if messages[0].Notification.Title != "Expired" || messages[0].Notification.Body == "" {
		t.Fatalf("unexpected notification %+v", messages[0].Notification)
	}
	if messages[0].Data["type"] != "subscription_expired" {
		t.Fatalf("unexpected data %v", messages[0].Data)
	}
}

func TestNoopDispatcher(t *testing.T) {
	d := NewNoopDispatcher()
	if err := d.SubscribeToTopic(context.Background(), []string{"a"}, "idol-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := d.NotifyExpired(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
