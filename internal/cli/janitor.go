package cli

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger removes stored session values last written before a cutoff
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Janitor periodically purges session values older than the TTL
type Janitor struct {
	purger   Purger
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewJanitor creates a janitor for purger
func NewJanitor(purger Purger, ttl, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		purger:   purger,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run purges once per interval until ctx is done
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs a single purge pass
func (j *Janitor) Sweep(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.ttl)
	n, err := j.purger.Purge(ctx, cutoff)
	if err != nil {
		j.logger.Warn("session purge failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		j.logger.Info("purged expired session values", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n
}
