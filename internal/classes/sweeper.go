// Package classes runs housekeeping over class schedules.
package classes

import (
	"context"
	"log/slog"
	"time"

	"github.com/99degreesdevs/emuna-back/internal/logging"
)

const DefaultInterval = 5 * time.Minute

// Expirer is satisfied by *ledger.Store.
type Expirer interface {
	ExpireClasses(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper deactivates classes that already started, so they can no longer
// be booked.
type Sweeper struct {
	Store    Expirer
	Interval time.Duration
	Now      func() time.Time
	Log      *slog.Logger
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) {
	log := logging.OrDefault(s.Log)
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	n, err := s.Store.ExpireClasses(ctx, now())
	if err != nil {
		if ctx.Err() == nil {
			log.Error("class sweep failed", "err", err)
		}
		return
	}
	if n > 0 {
		log.Info("classes expired", "count", n)
	}
}
