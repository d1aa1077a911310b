package events

const (
	TopicPaymentNotifications = "payment.notifications"
	TopicOrderOutcome         = "order.payment.outcome"
	TopicClassReservation     = "class.reservation"
)

// PartitionKey keeps every event of one order (or one class) on one
// partition so consumers see them in order.
func PartitionKey(id string) []byte { return []byte(id) }
