// Package payments applies payment provider notifications consumed from
// Kafka to orders.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/events"
	"github.com/99degreesdevs/emuna-back/internal/fulfillment"
	kafkax "github.com/99degreesdevs/emuna-back/internal/kafka"
	"github.com/99degreesdevs/emuna-back/internal/logging"
	"github.com/99degreesdevs/emuna-back/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
)

// Applier is satisfied by *fulfillment.Engine.
type Applier interface {
	ApplyPaymentOutcome(ctx context.Context, orderID, userID string, outcome fulfillment.Outcome) (fulfillment.PaymentResult, error)
}

// Deduper is satisfied by redisx.Dedup.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// StatusWriter is satisfied by redisx.StatusCache.
type StatusWriter interface {
	Put(ctx context.Context, s redisx.OrderStatus) error
}

type Service struct {
	Engine Applier
	Dedup  Deduper
	Cache  StatusWriter
	Log    *slog.Logger
}

// HandlePaymentNotification is installed as the consumer handler for
// events.TopicPaymentNotifications. A nil return commits the offset.
func (s *Service) HandlePaymentNotification(ctx context.Context, m kafkago.Message) error {
	log := logging.OrDefault(s.Log)
	if t := kafkax.Header(m, "x-event-type"); t != "" && t != events.EventPaymentNotified {
		return nil
	}

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Error("drop undecodable message", "topic", m.Topic, "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != events.EventPaymentNotified {
		return nil
	}
	log = log.With("event_id", env.EventID, "trace_id", env.TraceID)

	p, err := kafkax.UnwrapPayload[events.PaymentNotifiedPayload](env.Payload)
	if err != nil {
		log.Error("drop malformed payment notification", "err", err)
		return nil
	}

	if s.Dedup != nil && env.EventID != "" {
		ok, err := s.Dedup.Claim(ctx, env.EventID)
		if err != nil {
			// redis down: the order row lock and the finalized check still
			// keep a replay harmless
			log.Warn("dedup unavailable", "err", err)
		} else if !ok {
			log.Debug("duplicate payment notification", "order_id", p.OrderID)
			return nil
		}
	}

	err = s.apply(ctx, log, p)
	if err != nil && s.Dedup != nil && env.EventID != "" {
		if rerr := s.Dedup.Release(context.WithoutCancel(ctx), env.EventID); rerr != nil {
			log.Warn("release dedup claim", "err", rerr)
		}
	}
	return err
}

// apply returns an error only when the notification must be processed
// again; business rejections are logged and acknowledged.
func (s *Service) apply(ctx context.Context, log *slog.Logger, p events.PaymentNotifiedPayload) error {
	outcome, err := fulfillment.ParseOutcome(p.Status)
	if err != nil {
		log.Warn("ignore payment notification", "order_id", p.OrderID, "status", p.Status, "err", err)
		return nil
	}

	res, err := s.Engine.ApplyPaymentOutcome(ctx, p.OrderID, p.UserID, outcome)
	switch {
	case err == nil:
		s.refreshCache(ctx, log, p.UserID, res)
		return nil
	case errors.Is(err, apperr.ErrOrderFinalized):
		log.Info("payment notification already applied", "order_id", p.OrderID, "outcome", outcome)
		return nil
	case ctx.Err() != nil || !isBusinessOutcome(err):
		// shutdown, transient or unclassified failure: keep the message
		return err
	default:
		log.Warn("payment notification rejected", "order_id", p.OrderID, "outcome", outcome,
			"reason", apperr.ReasonOf(err), "err", err)
		return nil
	}
}

// isBusinessOutcome reports whether err is a permanent verdict on the
// notification itself. Redelivering it would fail the same way.
func isBusinessOutcome(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindInvalidState, apperr.KindInsufficientResource,
		apperr.KindPolicyViolation, apperr.KindInvalidInput:
		return true
	}
	return false
}

func (s *Service) refreshCache(ctx context.Context, log *slog.Logger, userID string, res fulfillment.PaymentResult) {
	if s.Cache == nil {
		return
	}
	err := s.Cache.Put(ctx, redisx.OrderStatus{
		OrderID:    res.OrderID,
		BuyerID:    userID,
		Status:     string(res.Status),
		IsFinished: res.IsFinished,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		log.Warn("refresh status cache", "order_id", res.OrderID, "err", err)
	}
}
