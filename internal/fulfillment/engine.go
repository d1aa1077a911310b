// Package fulfillment turns payment outcomes into credits, shipments and
// stock movements, and books or cancels class seats against credits. Every
// operation runs as a single unit of work on the ledgers.
package fulfillment

import (
	"context"
	"log/slog"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/ledger"
	"github.com/99degreesdevs/emuna-back/internal/logging"
)

// DefaultCancelCutoff is how long before a class starts a reservation can
// still be canceled.
const DefaultCancelCutoff = 4 * time.Hour

// Store opens units of work. *ledger.Store is the production implementation.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error
}

// EventSink receives domain events after a unit of work commits.
// *events.Publisher is the production implementation.
type EventSink interface {
	Emit(ctx context.Context, topic, eventType, key string, payload any) error
}

type Engine struct {
	Store        Store
	Events       EventSink
	CancelCutoff time.Duration
	Now          func() time.Time
	Log          *slog.Logger
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) cutoff() time.Duration {
	if e.CancelCutoff > 0 {
		return e.CancelCutoff
	}
	return DefaultCancelCutoff
}

func (e *Engine) log() *slog.Logger { return logging.OrDefault(e.Log) }

// emit is best effort: the state change is already committed and callers
// must not see a failure for it.
func (e *Engine) emit(ctx context.Context, topic, eventType, key string, payload any) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Emit(ctx, topic, eventType, key, payload); err != nil {
		e.log().Warn("event not published", "topic", topic, "event_type", eventType, "key", key, "err", err)
	}
}
