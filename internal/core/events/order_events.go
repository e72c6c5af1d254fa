package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOrderPaid           = "order.paid"
	EventTypeOrderFailed         = "order.failed"
	EventTypeOrderAmountMismatch = "order.amount_mismatch"
)

// OrderStatusEvent is emitted after a status-bearing event has been merged.
type OrderStatusEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	BillCode    string `json:"bill_code,omitempty"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
	Status      string `json:"status"`
	Source      string `json:"source"`
}

func newOrderStatusEvent(eventType, orderID, billCode string, amountCents *int64, status, source string) *OrderStatusEvent {
	data := map[string]interface{}{
		"order_id": orderID,
		"status":   status,
		"source":   source,
	}
	if billCode != "" {
		data["bill_code"] = billCode
	}
	if amountCents != nil {
		data["amount_cents"] = *amountCents
	}
	return &OrderStatusEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		OrderID:     orderID,
		BillCode:    billCode,
		AmountCents: amountCents,
		Status:      status,
		Source:      source,
	}
}

func NewOrderPaidEvent(orderID, billCode string, amountCents *int64, source string) *OrderStatusEvent {
	return newOrderStatusEvent(EventTypeOrderPaid, orderID, billCode, amountCents, "PAID", source)
}

func NewOrderFailedEvent(orderID, billCode string, amountCents *int64, source string) *OrderStatusEvent {
	return newOrderStatusEvent(EventTypeOrderFailed, orderID, billCode, amountCents, "FAILED", source)
}

type AmountMismatchEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	StoredCents   int64  `json:"stored_cents"`
	ReportedCents int64  `json:"reported_cents"`
	Source        string `json:"source"`
}

func NewAmountMismatchEvent(orderID string, storedCents, reportedCents int64, source string) *AmountMismatchEvent {
	return &AmountMismatchEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderAmountMismatch,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":       orderID,
				"stored_cents":   storedCents,
				"reported_cents": reportedCents,
				"source":         source,
			},
		},
		OrderID:       orderID,
		StoredCents:   storedCents,
		ReportedCents: reportedCents,
		Source:        source,
	}
}
