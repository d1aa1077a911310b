package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCanceled  Status = "CANCELED"
	StatusInProcess Status = "IN_PROCESS"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusNotPaid   Status = "NOT_PAID"
)

// PENDING -> PENDING is allowed: a provider may report "pending" more than once.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPending: true, StatusPaid: true, StatusCanceled: true, StatusNotPaid: true},
	StatusPaid:      {StatusInProcess: true, StatusCanceled: true},
	StatusInProcess: {StatusShipped: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCanceled:  {},
	StatusNotPaid:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
