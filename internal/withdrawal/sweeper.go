package withdrawal

import (
	"context"
	"log/slog"
	"time"
)

const sweepBatch = 100

// Sweeper periodically expires lapsed requests so they drop out of the
// daily limit without waiting for a verify or resend
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("withdrawal sweeper started", "interval", sw.interval)
	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("withdrawal sweeper stopped")
			return
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	for {
		n, err := sw.service.SweepExpired(ctx, sweepBatch)
		if err != nil {
			sw.logger.Error("sweeping expired withdrawals", "error", err)
			return
		}
		if n > 0 {
			sw.logger.Info("expired withdrawals swept", "count", n)
		}
		if n < sweepBatch {
			return
		}
	}
}
