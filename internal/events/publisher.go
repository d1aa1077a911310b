package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkax "github.com/99degreesdevs/emuna-back/internal/kafka"
	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer is satisfied by *kafka.Producer.
type Writer interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// Publisher wraps payloads in a v1 Envelope and routes them by topic.
type Publisher struct {
	Writers map[string]Writer
	Service string
	Log     *slog.Logger
	Now     func() time.Time
}

// Emit publishes payload as eventType on topic. The request id on ctx, when
// present, becomes the trace id.
func (p *Publisher) Emit(ctx context.Context, topic, eventType, key string, payload any) error {
	w, ok := p.Writers[topic]
	if !ok {
		return fmt.Errorf("events: no writer for topic %s", topic)
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      p.Service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: key,
		Payload:       kafkax.MustMarshal(payload),
	}
	err := w.Publish(PartitionKey(key), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
	if err != nil {
		logging.OrDefault(p.Log).Error("publish event", "topic", topic, "event_type", eventType, "key", key, "err", err)
		return err
	}
	return nil
}
