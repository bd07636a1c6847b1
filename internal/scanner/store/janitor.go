package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunJanitor sweeps s every interval until ctx is done.
func RunJanitor(ctx context.Context, s *MemoryStore, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if n := s.Sweep(s.clock.Now()); n > 0 {
			log.Info("evicted scanner activations", zap.Int("count", n))
		}
	}
}
