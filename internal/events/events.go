package events

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentNotified          = "PaymentNotified"
	EventOrderPaid                = "OrderPaid"
	EventOrderPending             = "OrderPending"
	EventOrderCanceled            = "OrderCanceled"
	EventClassReserved            = "ClassReserved"
	EventClassReservationCanceled = "ClassReservationCanceled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or class_id
	Payload       json.RawMessage `json:"payload"`
}

// PaymentNotifiedPayload mirrors the provider webhook body.
type PaymentNotifiedPayload struct {
	UserID  string `json:"userId"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type OrderOutcomePayload struct {
	OrderID    string         `json:"order_id"`
	UserID     string         `json:"user_id"`
	Status     string         `json:"status"`
	IsFinished bool           `json:"is_finished"`
	Credits    map[string]int `json:"credits,omitempty"` // category -> units issued
	Shipments  []string       `json:"shipments,omitempty"`
}

type ReservationPayload struct {
	ReservationID string    `json:"reservation_id"`
	ClassID       string    `json:"class_id"`
	ClassName     string    `json:"class_name"`
	UserID        string    `json:"user_id"`
	CreditID      string    `json:"credit_id"`
	Status        string    `json:"status"`
	StartsAt      time.Time `json:"starts_at"`
}
