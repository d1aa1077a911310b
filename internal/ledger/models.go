package ledger

import (
	"time"

	"github.com/99degreesdevs/emuna-back/internal/catalog"
)

// Credit is a single-use entitlement. It is consumed by flipping IsActive to
// false and restored by flipping it back; rows are never deleted.
type Credit struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	OrderID   string           `json:"order_id,omitempty"`
	Category  catalog.Category `json:"category"`
	IsActive  bool             `json:"is_active"`
	CreatedAt time.Time        `json:"created_at"`
}

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "PENDING"
	ShipmentConfirmed ShipmentStatus = "CONFIRMED"
	ShipmentInProcess ShipmentStatus = "IN_PROCESS"
	ShipmentShipped   ShipmentStatus = "SHIPPED"
	ShipmentDelivered ShipmentStatus = "DELIVERED"
	ShipmentCanceled  ShipmentStatus = "CANCELED"
)

// Shipment is keyed by (order, sku, user).
type Shipment struct {
	OrderID    string         `json:"order_id"`
	SKU        string         `json:"sku"`
	UserID     string         `json:"user_id"`
	Amount     int            `json:"amount"`
	Status     ShipmentStatus `json:"status"`
	Tracking   string         `json:"tracking,omitempty"`
	IsFinished bool           `json:"is_finished"`
}

type ClassSchedule struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Teacher         string    `json:"teacher"`
	Places          int       `json:"places"`
	AvailablePlaces int       `json:"available_places"`
	StartsAt        time.Time `json:"class_date_start"`
	EndsAt          time.Time `json:"class_date_end"`
	IsActive        bool      `json:"is_active"`
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationCanceled  ReservationStatus = "CANCELED"
)

type Reservation struct {
	ID        string            `json:"id"`
	ClassID   string            `json:"class_id"`
	UserID    string            `json:"user_id"`
	CreditID  string            `json:"credit_id"`
	Status    ReservationStatus `json:"status"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
}

// CreditSummary counts active credits per category.
type CreditSummary struct {
	Classes    int `json:"classes"`
	Ceremonies int `json:"ceremonies"`
	Services   int `json:"services"`
}
