package model

import (
	"encoding/json"
	"time"
)

// WebhookState is the processing state of a received provider event.
type WebhookState string

const (
	WebhookStateReceived  WebhookState = "received"
	WebhookStateProcessed WebhookState = "processed"
)

// WebhookEvent is one row of the idempotency ledger. EventID is unique per
// provider; a row left in the received state marks an event whose side
// effect may not have completed and which provider redelivery must finish.
// Rows are retained strictly longer than the provider's redelivery window.
type WebhookEvent struct {
	ID          int64           `json:"id" db:"id"`
	Provider    string          `json:"provider" db:"provider"`
	EventID     string          `json:"eventId" db:"event_id"`
	State       WebhookState    `json:"state" db:"state"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	ReceivedAt  time.Time       `json:"receivedAt" db:"received_at"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty" db:"processed_at"`
}

// PaymentNotification is the payload shape shared by payment providers:
// which order the event concerns and the provider's payment reference.
type PaymentNotification struct {
	OrderID    string `json:"orderId"`
	PaymentRef string `json:"paymentRef"`
	EventType  string `json:"eventType"`
}
