package intake

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires lapsed invitations.
//
// The completion gate already rejects lapsed invitations on the hot path;
// the sweeper only converges dormant rows so reporting and session state
// do not depend on anyone ever clicking the link again.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper constructs a Sweeper. Non-positive intervals default to one hour.
func NewSweeper(svc *Service, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
func (w *Sweeper) Run(ctx context.Context) {
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := w.svc.SweepExpired(ctx); err != nil && ctx.Err() == nil {
		w.log.ErrorContext(ctx, "intake.sweep.fail", "err", err)
	}
}
