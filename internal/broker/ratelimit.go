package broker

import (
	"context"
	"sync"
	"time"
)

// RateGate enforces a minimum interval between consecutive outbound calls, a
// monotonically updated "last call" timestamp with a sleep to the floor.
// It is process-wide per Client instance: one gate shared by every method.
type RateGate struct {
	mu       sync.Mutex
	lastCall time.Time
	minGap   time.Duration
}

// NewRateGate returns a gate enforcing the given minimum gap between calls.
func NewRateGate(minGap time.Duration) *RateGate {
	return &RateGate{minGap: minGap}
}

// Wait blocks until the minimum gap since the previous call has elapsed, or
// ctx is cancelled. It records the call time before returning so that
// concurrent callers serialize on the floor rather than racing past it.
func (g *RateGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	wait := g.minGap - now.Sub(g.lastCall)
	if wait < 0 {
		wait = 0
	}
	g.lastCall = now.Add(wait)
	g.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
