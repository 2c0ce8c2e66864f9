package risk

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerLatchesOnceLimitBreached(t *testing.T) {
	m := NewManager(decimal.NewFromInt(5000), testLogger())

	m.Update(decimal.NewFromInt(-4000))
	if m.Breached() {
		t.Fatal("should not breach before the limit is crossed")
	}

	m.Update(decimal.NewFromInt(-5000))
	if !m.Breached() {
		t.Fatal("expected breach once loss reaches the configured limit")
	}
}

func TestManagerStaysLatchedOnIntradayRecovery(t *testing.T) {
	m := NewManager(decimal.NewFromInt(5000), testLogger())
	m.Update(decimal.NewFromInt(-6000))
	if !m.Breached() {
		t.Fatal("expected breach")
	}

	m.Update(decimal.NewFromInt(1000)) // P&L recovers intraday
	if !m.Breached() {
		t.Fatal("latch must not self-heal on recovery, only Reset clears it")
	}
}

func TestManagerResetClearsLatch(t *testing.T) {
	m := NewManager(decimal.NewFromInt(5000), testLogger())
	m.Update(decimal.NewFromInt(-6000))
	m.Reset()
	if m.Breached() {
		t.Fatal("Reset should clear the latch")
	}
}

func TestManagerDisabledWhenLimitIsZero(t *testing.T) {
	m := NewManager(decimal.Zero, testLogger())
	m.Update(decimal.NewFromInt(-1_000_000))
	if m.Breached() {
		t.Fatal("zero limit should disable the check entirely")
	}
}
