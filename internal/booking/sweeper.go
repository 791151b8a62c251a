package booking

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper expires stale holds on a timer so slots reappear in availability
// even when no read triggers the lazy sweep.
type Sweeper struct {
	holds    *HoldService
	logger   *slog.Logger
	interval time.Duration
}

func NewSweeper(holds *HoldService, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{holds: holds, logger: logger, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.holds.SweepExpired(ctx)
			if err != nil {
				s.logger.Error("hold sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired holds swept", "count", n)
			}
		}
	}
}
