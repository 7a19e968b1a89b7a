package worker

import (
	"context"
	"time"

	"storefront/internal/metrics"

	"go.uber.org/zap"
)

// ExpiredPurger deletes reservations whose expiry is at or before now
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// ReservationSweeper periodically deletes expired cart lines so they stop
// occupying rows between user visits. Reads already ignore expired lines,
// so a missed sweep never affects correctness.
type ReservationSweeper struct {
	carts    ExpiredPurger
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewReservationSweeper creates a sweeper. An interval of zero or less
// disables it.
func NewReservationSweeper(carts ExpiredPurger, interval time.Duration, logger *zap.Logger) *ReservationSweeper {
	return &ReservationSweeper{
		carts:    carts,
		interval: interval,
		logger:   logger.Named("sweeper"),
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled
func (s *ReservationSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Reservation sweeper disabled")
		return
	}

	s.logger.Info("Reservation sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reservation sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single purge and returns the number of deleted lines
func (s *ReservationSweeper) Sweep(ctx context.Context) int64 {
	purged, err := s.carts.PurgeExpired(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Failed to purge expired reservations", zap.Error(err))
		}
		return 0
	}

	if purged > 0 {
		metrics.ReservationsExpiredTotal.Add(float64(purged))
		s.logger.Debug("Purged expired reservations", zap.Int64("count", purged))
	}
	return purged
}
