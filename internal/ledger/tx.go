package ledger

import (
	"context"

	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/orders"
)

// Tx is one unit of work over every ledger. All methods run inside the same
// database transaction; nothing is visible to others until it commits.
type Tx interface {
	// LockOrder fails with apperr.ErrOrderNotFound when (orderID, buyerID)
	// does not resolve to an order.
	LockOrder(ctx context.Context, orderID, buyerID string) (orders.Order, error)
	SetOrderStatus(ctx context.Context, orderID string, s orders.Status, finished bool) error
	PackageEntries(ctx context.Context, skus []string) (map[string][]catalog.PackageEntry, error)

	// IssueCredits creates n active credits, one row each, and returns their ids.
	IssueCredits(ctx context.Context, userID, orderID string, c catalog.Category, n int) ([]string, error)
	CreateShipment(ctx context.Context, s Shipment) error
	// DecrementStock fails with apperr.ErrInsufficientStock rather than go below zero.
	DecrementStock(ctx context.Context, sku string, qty int) error

	// LockClass fails with apperr.ErrClassNotFound.
	LockClass(ctx context.Context, classID string) (ClassSchedule, error)
	// ActiveReservation fails with apperr.ErrNoReservation.
	ActiveReservation(ctx context.Context, classID, userID string) (Reservation, error)
	// ClaimCredit deactivates one active credit of c owned by userID and
	// returns its id; apperr.ErrNoCredit when there is none.
	ClaimCredit(ctx context.Context, userID string, c catalog.Category) (string, error)
	RestoreCredit(ctx context.Context, creditID string) error
	// TakeSeat fails with apperr.ErrNoCapacity at zero.
	TakeSeat(ctx context.Context, classID string) error
	// ReleaseSeat never raises available places above places.
	ReleaseSeat(ctx context.Context, classID string) error
	// CreateReservation fails with apperr.ErrAlreadyReserved when an active
	// reservation for (class, user) exists.
	CreateReservation(ctx context.Context, r *Reservation) error
	CancelReservation(ctx context.Context, reservationID string) error
}
