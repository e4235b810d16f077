package invoice

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
)

type reconciler interface {
	Reconcile(ctx context.Context, event service.Event) (*service.Outcome, error)
}

type Adapter struct {
	reconciler    reconciler
	callbackToken string
}

func NewAdapter(reconciler reconciler, callbackToken string) *Adapter {
	return &Adapter{
		reconciler:    reconciler,
		callbackToken: strings.TrimSpace(callbackToken),
	}
}

// HandleInvoiceCallback authenticates an invoice status callback and applies it to the order named by external_id.
func (a *Adapter) HandleInvoiceCallback(ctx context.Context, callbackToken string, body []byte) (*service.Outcome, error) {
	if err := a.authenticate(callbackToken); err != nil {
		return nil, err
	}

	var callback InvoiceCallback
	if err := json.Unmarshal(body, &callback); err != nil {
		return nil, fmt.Errorf("%w: invoice callback: %v", service.ErrInvalidRequest, err)
	}
	orderID := strings.TrimSpace(callback.ExternalID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: external_id is required", service.ErrInvalidRequest)
	}

	action, err := MapInvoiceStatus(callback.Status)
	if err != nil {
		return nil, err
	}

	return a.reconciler.Reconcile(ctx, service.Event{
		Provider:    entity.ProviderInvoice,
		EventKey:    bodyDigest(body),
		EventType:   "invoice." + strings.ToLower(strings.TrimSpace(callback.Status)),
		Correlation: service.ByOrderID{OrderID: orderID},
		Action:      action,
		Payload:     rawJSON(body),
	})
}

// HandleRecurringCallback authenticates a recurring plan callback and applies it to the order named by reference_id.
func (a *Adapter) HandleRecurringCallback(ctx context.Context, callbackToken, webhookID string, body []byte) (*service.Outcome, error) {
	if err := a.authenticate(callbackToken); err != nil {
		return nil, err
	}

	var callback RecurringCallback
	if err := json.Unmarshal(body, &callback); err != nil {
		return nil, fmt.Errorf("%w: recurring callback: %v", service.ErrInvalidRequest, err)
	}
	orderID := strings.TrimSpace(callback.Data.ReferenceID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: data.reference_id is required", service.ErrInvalidRequest)
	}

	action, err := MapRecurringEvent(callback.Event)
	if err != nil {
		return nil, err
	}

	eventKey := strings.TrimSpace(webhookID)
	if eventKey == "" {
		eventKey = bodyDigest(body)
	}

	return a.reconciler.Reconcile(ctx, service.Event{
		Provider:    entity.ProviderInvoice,
		EventKey:    eventKey,
		EventType:   callback.Event,
		Correlation: service.ByOrderID{OrderID: orderID},
		Action:      action,
		Payload:     rawJSON(body),
	})
}

func (a *Adapter) authenticate(callbackToken string) error {
	if a.callbackToken == "" {
		return fmt.Errorf("%w: callback token is not configured", service.ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(callbackToken)), []byte(a.callbackToken)) != 1 {
		return fmt.Errorf("%w: invalid callback token", service.ErrUnauthorized)
	}
	return nil
}

func MapInvoiceStatus(status string) (service.Action, error) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case StatusPaid, StatusSettled:
		return service.SetStatus{Status: string(entity.OrderStatusSuccess)}, nil
	case StatusFailed:
		return service.SetStatus{Status: string(entity.OrderStatusFailed)}, nil
	case StatusExpired:
		return service.DeleteOrder{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown invoice status %q", service.ErrInvalidRequest, status)
	}
}

func MapRecurringEvent(event string) (service.Action, error) {
	switch strings.TrimSpace(event) {
	case EventPlanActivated, EventCycleSucceeded:
		return service.SetStatus{Status: string(entity.OrderStatusSuccess)}, nil
	case EventCycleCreated, EventCycleRetrying:
		return service.SetStatus{Status: string(entity.OrderStatusPending)}, nil
	case EventCycleFailed, EventPlanInactivated:
		return service.SetStatus{Status: string(entity.OrderStatusFailed)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown recurring event %q", service.ErrInvalidRequest, event)
	}
}
