package repository

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
)

var ErrDuplicateWebhookEvent = errors.New("webhook event already recorded")

type WebhookEventRepository struct {
	db DBTX
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Insert records a provider delivery. A second delivery with the same
// (provider, event_key) returns ErrDuplicateWebhookEvent.
func (r *WebhookEventRepository) Insert(ctx context.Context, event *entity.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (provider, event_key, event_type, order_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		string(event.Provider),
		event.EventKey,
		event.EventType,
		nullableStringValue(event.OrderID),
		nullableBytesValue(event.Payload),
		event.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateWebhookEvent
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)
	return nil
}

// AttachOrder links the recorded event to the order it resolved to.
func (r *WebhookEventRepository) AttachOrder(ctx context.Context, eventID uint64, orderID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE webhook_events SET order_id = ? WHERE id = ?`, orderID, eventID)
	return err
}
