package entity

import (
	"encoding/json"
	"time"
)

// WebhookEvent is the idempotency record of one applied provider delivery.
type WebhookEvent struct {
	ID        uint64
	Provider  Provider
	EventKey  string
	EventType string
	OrderID   *string
	Payload   json.RawMessage
	CreatedAt time.Time
}
