package orchestrator

import (
	"context"
	"fmt"
	"time"

	"nifty-options-trader/internal/strategy/supertrend"
)

// AddStrategy registers a strategy under the given name. Calling Start while
// already RUNNING merges newly added strategies into the active set, so
// adding a strategy and restarting is idempotent.
func (o *Orchestrator) AddStrategy(name string, s *supertrend.Strategy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strategies[name] = s
}

// RemoveStrategy drops a strategy from the active set; when the set becomes
// empty, the caller is expected to follow up with Stop.
func (o *Orchestrator) RemoveStrategy(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.strategies, name)
}

// ActiveStrategyCount reports the size of the active set, used by callers
// deciding whether to Stop after RemoveStrategy.
func (o *Orchestrator) ActiveStrategyCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.strategies)
}

// Start requires the Broker to be reachable (instrument master load) and
// launches the tick-loop worker. Starting while already RUNNING is a no-op
// beyond whatever strategies the caller already merged in via AddStrategy.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	lookup, err := o.buildInstrumentLookup(ctx)
	if err != nil {
		return fmt.Errorf("load instrument master: %w", err)
	}
	o.mu.Lock()
	o.lookup = lookup
	o.mu.Unlock()

	if err := o.exec.Recover(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.ctx = runCtx
	o.cancel = cancel

	o.mu.Lock()
	o.state = StateRunning
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run()
	}()

	o.logger.Info("orchestrator started", "mode", o.cfg.Mode, "tick_interval", o.cfg.TickInterval)
	return nil
}

// Stop is cooperative: it cancels the worker's context and joins with a
// 5-second deadline, then flips back to IDLE regardless of whether the join
// completed (a leaked tick goroutine cannot be killed in Go without a
// cancellable blocking call inside it; every such call already receives
// runCtx).
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator...")
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		o.logger.Warn("orchestrator worker did not join within 5s deadline")
	}

	o.mu.Lock()
	o.state = StateIdle
	o.mu.Unlock()
	o.logger.Info("orchestrator stopped")
}
