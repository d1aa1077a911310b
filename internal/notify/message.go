// Package notify relays domain events to the mailer through a durable
// RabbitMQ queue.
package notify

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/events"
	kafkax "github.com/99degreesdevs/emuna-back/internal/kafka"
)

// Message is what the mailer consumes.
type Message struct {
	EventID    string    `json:"event_id"`
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	OrderID    string    `json:"order_id,omitempty"`
	ClassID    string    `json:"class_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FromEnvelope builds the notification for env. It reports false for events
// nobody is notified about.
func FromEnvelope(env events.Envelope) (Message, bool, error) {
	msg := Message{EventID: env.EventID, Kind: env.EventType, OccurredAt: env.OccurredAt}

	switch env.EventType {
	case events.EventOrderPaid, events.EventOrderCanceled:
		p, err := kafkax.UnwrapPayload[events.OrderOutcomePayload](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		msg.UserID, msg.OrderID = p.UserID, p.OrderID
		if env.EventType == events.EventOrderPaid {
			msg.Subject = "Payment received"
			msg.Body = paidBody(p)
		} else {
			msg.Subject = "Order canceled"
			msg.Body = fmt.Sprintf("Your payment for order %s was rejected and the order was canceled.", p.OrderID)
		}

	case events.EventClassReserved, events.EventClassReservationCanceled:
		p, err := kafkax.UnwrapPayload[events.ReservationPayload](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		msg.UserID, msg.ClassID = p.UserID, p.ClassID
		when := p.StartsAt.UTC().Format("Mon 2 Jan 15:04 MST")
		if env.EventType == events.EventClassReserved {
			msg.Subject = "Class booked"
			msg.Body = fmt.Sprintf("Your place in %s on %s is confirmed.", p.ClassName, when)
		} else {
			msg.Subject = "Class reservation canceled"
			msg.Body = fmt.Sprintf("Your reservation for %s on %s was canceled and your credit restored.", p.ClassName, when)
		}

	default:
		return Message{}, false, nil
	}
	return msg, true, nil
}

func paidBody(p events.OrderOutcomePayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your payment for order %s was approved.", p.OrderID)
	if len(p.Credits) > 0 {
		cats := make([]string, 0, len(p.Credits))
		for c := range p.Credits {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		parts := make([]string, 0, len(cats))
		for _, c := range cats {
			parts = append(parts, fmt.Sprintf("%d %s", p.Credits[c], strings.ToLower(c)))
		}
		fmt.Fprintf(&b, " Credits added: %s.", strings.Join(parts, ", "))
	}
	if n := len(p.Shipments); n > 0 {
		fmt.Fprintf(&b, " %d item(s) will be shipped.", n)
	}
	return b.String()
}

func (m Message) encode() ([]byte, error) { return json.Marshal(m) }
