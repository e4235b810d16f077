package invoice

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Invoice callback statuses.
const (
	StatusPaid    = "PAID"
	StatusSettled = "SETTLED"
	StatusFailed  = "FAILED"
	StatusExpired = "EXPIRED"
)

// Recurring plan and cycle events.
const (
	EventPlanActivated   = "recurring.plan.activated"
	EventPlanInactivated = "recurring.plan.inactivated"
	EventCycleCreated    = "recurring.cycle.created"
	EventCycleSucceeded  = "recurring.cycle.succeeded"
	EventCycleRetrying   = "recurring.cycle.retrying"
	EventCycleFailed     = "recurring.cycle.failed"
)

type InvoiceCallback struct {
	ID            string     `json:"id"`
	ExternalID    string     `json:"external_id"`
	Status        string     `json:"status"`
	Amount        float64    `json:"amount,omitempty"`
	PaidAmount    float64    `json:"paid_amount,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type RecurringCallback struct {
	Event      string        `json:"event"`
	BusinessID string        `json:"business_id,omitempty"`
	Created    *time.Time    `json:"created,omitempty"`
	Data       RecurringData `json:"data"`
}

type RecurringData struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	PlanID      string `json:"plan_id,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`
	Status      string `json:"status,omitempty"`
	CycleNumber int    `json:"cycle_number,omitempty"`
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// rawJSON keeps the callback body when it is valid JSON so it can be stored as the order payload.
func rawJSON(body []byte) json.RawMessage {
	if !json.Valid(body) {
		return nil
	}
	return json.RawMessage(body)
}
