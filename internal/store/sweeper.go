package store

import (
	"context"
	"log"
	"time"
)

const DefaultSweepInterval = time.Minute

// StartSweeper sweeps once immediately and then on every tick until ctx ends.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if n, err := s.SweepExpired(ctx); err != nil {
		log.Printf("startup session sweep error: %v", err)
	} else if n > 0 {
		log.Printf("startup session sweep removed %d expired sessions", n)
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Store) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				log.Printf("sweep expired sessions error: %v", err)
			}
		}
	}
}
