package job

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Type identifies a job payload kind. Type strings exist only at the
// storage boundary; everywhere else payloads travel as the sealed Payload
// union below.
type Type string

const (
	TypeOrderConfirmation  Type = "order_confirmation"
	TypeFulfillmentStart   Type = "fulfillment_start"
	TypeLowStockAlert      Type = "low_stock_alert"
	TypeBackInStock        Type = "back_in_stock"
	TypeCartSweep          Type = "cart_sweep"
	TypeWebhookLedgerPurge Type = "webhook_ledger_purge"
)

// Queue names group payload kinds by the resource their workers touch.
const (
	QueueNotifications = "notifications"
	QueueInventory     = "inventory"
	QueueFulfillment   = "fulfillment"
	QueueMaintenance   = "maintenance"
)

// Payload is the sealed union of everything that can be enqueued. Workers
// must be idempotent: at-least-once delivery means redelivery is expected.
type Payload interface {
	Type() Type
}

// OrderConfirmation asks for an order confirmation notification.
type OrderConfirmation struct {
	OrderID uuid.UUID `json:"orderId"`
}

func (OrderConfirmation) Type() Type { return TypeOrderConfirmation }

// FulfillmentStart moves a paid order into fulfillment.
type FulfillmentStart struct {
	OrderID uuid.UUID `json:"orderId"`
}

func (FulfillmentStart) Type() Type { return TypeFulfillmentStart }

// LowStockAlert reports a unit at or below its resolved low-stock threshold.
type LowStockAlert struct {
	UnitCode  string `json:"unitCode"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

func (LowStockAlert) Type() Type { return TypeLowStockAlert }

// BackInStock reports a unit that transitioned from zero to positive stock.
type BackInStock struct {
	UnitCode string `json:"unitCode"`
	Stock    int    `json:"stock"`
}

func (BackInStock) Type() Type { return TypeBackInStock }

// CartSweep marks expired active carts as abandoned.
type CartSweep struct{}

func (CartSweep) Type() Type { return TypeCartSweep }

// WebhookLedgerPurge deletes processed webhook events past their retention.
type WebhookLedgerPurge struct{}

func (WebhookLedgerPurge) Type() Type { return TypeWebhookLedgerPurge }

// QueueFor maps a payload type to the queue its workers consume.
func QueueFor(t Type) string {
	switch t {
	case TypeOrderConfirmation, TypeBackInStock:
		return QueueNotifications
	case TypeLowStockAlert:
		return QueueInventory
	case TypeFulfillmentStart:
		return QueueFulfillment
	case TypeCartSweep, TypeWebhookLedgerPurge:
		return QueueMaintenance
	}
	return QueueMaintenance
}

// Encode serialises a payload for storage.
func Encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.Type(), err)
	}
	return data, nil
}

// Decode reconstructs a payload from its stored type and body. The switch is
// exhaustive over the union; an unknown type is a permanent decode failure,
// not something to retry.
func Decode(t Type, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case TypeOrderConfirmation:
		var v OrderConfirmation
		err = json.Unmarshal(data, &v)
		p = v
	case TypeFulfillmentStart:
		var v FulfillmentStart
		err = json.Unmarshal(data, &v)
		p = v
	case TypeLowStockAlert:
		var v LowStockAlert
		err = json.Unmarshal(data, &v)
		p = v
	case TypeBackInStock:
		var v BackInStock
		err = json.Unmarshal(data, &v)
		p = v
	case TypeCartSweep:
		p = CartSweep{}
	case TypeWebhookLedgerPurge:
		p = WebhookLedgerPurge{}
	default:
		return nil, fmt.Errorf("unknown job type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}
	return p, nil
}
