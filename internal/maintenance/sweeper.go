// Package maintenance runs periodic housekeeping jobs.
package maintenance

import (
	"context"
	"log"
	"time"
)

type Logger interface {
	Printf(format string, v ...any)
}

// Purger deletes ledger entries older than retentionDays.
type Purger interface {
	PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// Sweeper purges the notification ledger on a fixed interval.
type Sweeper struct {
	purger        Purger
	interval      time.Duration
	retentionDays int
	logger        Logger
}

func NewSweeper(purger Purger, interval time.Duration, retentionDays int) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		purger:        purger,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        log.Default(),
	}
}

func (s *Sweeper) WithLogger(l Logger) *Sweeper {
	if l != nil {
		s.logger = l
	}
	return s
}

// Run sweeps once immediately, then every interval until ctx is done.
// A failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Printf("INFO maintenance: sweeper started interval=%s retention_days=%d", s.interval, s.retentionDays)
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("INFO maintenance: sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) {
	n, err := s.purger.PurgeOlderThan(ctx, s.retentionDays)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Printf("ERROR maintenance: purge notifications: %v", err)
		}
		return
	}
	if n > 0 {
		s.logger.Printf("INFO maintenance: purged notifications=%d", n)
	}
}
