// Package risk enforces the one portfolio-level limit that needed a home of
// its own outside the orchestrator loop: a daily loss kill switch. Mirrors
// manager.go's limit-tracking shape, collapsed from a channel-fed background
// goroutine receiving PositionReports into a synchronous guard the
// orchestrator's single worker consults directly — there is no concurrent
// writer here to arbitrate between.
package risk

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

// Manager tracks the trading day's cumulative realized+unrealized P&L
// against the configured daily loss limit and latches a kill switch once
// breached. The latch does not self-heal if P&L recovers intraday; only
// Reset (an IST calendar-day rollover) clears it.
type Manager struct {
	maxDailyLoss decimal.Decimal // magnitude; a breach is pnl <= -maxDailyLoss
	logger       *slog.Logger

	mu       sync.Mutex
	pnl      decimal.Decimal
	breached bool
}

// NewManager builds a daily-loss guard. maxDailyLoss <= 0 disables the
// check entirely: Breached always reports false.
func NewManager(maxDailyLoss decimal.Decimal, logger *slog.Logger) *Manager {
	return &Manager{maxDailyLoss: maxDailyLoss, logger: logger.With("component", "risk")}
}

// Update records the day's latest total P&L (realized plus unrealized,
// across every active strategy) and latches the kill switch the first time
// it crosses the configured limit.
func (m *Manager) Update(totalPnL decimal.Decimal) {
	if m.maxDailyLoss.Sign() <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pnl = totalPnL
	if !m.breached && totalPnL.Neg().GreaterThanOrEqual(m.maxDailyLoss) {
		m.breached = true
		m.logger.Warn("daily loss limit breached, blocking new entries for the rest of the day",
			"pnl", totalPnL, "limit", m.maxDailyLoss)
	}
}

// Breached reports whether the kill switch is currently latched.
func (m *Manager) Breached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breached
}

// Reset clears the latch and the tracked P&L, called on IST calendar-day
// rollover.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breached = false
	m.pnl = decimal.Zero
}
