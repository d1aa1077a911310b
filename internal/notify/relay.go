package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/99degreesdevs/emuna-back/internal/events"
	"github.com/99degreesdevs/emuna-back/internal/logging"
	kafkago "github.com/segmentio/kafka-go"
)

// Sender is satisfied by *RabbitPublisher.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

type Relay struct {
	Sender Sender
	Log    *slog.Logger
}

// Handle is a kafka.Handler. Broken messages are dropped; a failed send is
// returned so the consumer retries it.
func (r *Relay) Handle(ctx context.Context, m kafkago.Message) error {
	log := logging.OrDefault(r.Log)

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Error("drop undecodable message", "topic", m.Topic, "offset", m.Offset, "err", err)
		return nil
	}
	msg, ok, err := FromEnvelope(env)
	if err != nil {
		log.Error("drop malformed event", "event_id", env.EventID, "event_type", env.EventType, "err", err)
		return nil
	}
	if !ok || msg.UserID == "" {
		return nil
	}
	if err := r.Sender.Send(ctx, msg); err != nil {
		log.Warn("notification not sent", "event_id", env.EventID, "event_type", env.EventType, "err", err)
		return err
	}
	log.Debug("notification queued", "event_id", env.EventID, "user_id", msg.UserID, "kind", msg.Kind)
	return nil
}
