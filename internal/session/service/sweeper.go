package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically deletes expired sessions and revocation entries.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper returns a Sweeper that runs every interval (hourly if interval <= 0).
func NewSweeper(registry *Registry, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{registry: registry, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sessions, revocations, err := s.registry.CleanupExpired(ctx)
	if err != nil {
		s.logger.Warn("sweeper: cleanup failed", zap.Error(err))
		return
	}
	if sessions > 0 || revocations > 0 {
		s.logger.Info("sweeper: removed expired records",
			zap.Int64("sessions", sessions), zap.Int64("revocations", revocations))
	}
}
