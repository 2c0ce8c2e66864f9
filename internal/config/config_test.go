package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
mode: PAPER
paper_capital: 200000
max_daily_loss: 10000
max_positions: 1
capital_per_trade: 50000
max_position_size: 50000
force_exit_time: "15:05"
strategy:
  scalping:
    target_profit_percent: 30
    stop_loss_percent: 10
    time_stop_minutes: 120
    signal_cooldown_seconds: 60
    atr_period: 3
    atr_multiplier: 1.0
broker:
  base_url: https://broker.example.com
store:
  base_url: https://store.example.com
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if cfg.ATMStrikeStep != 50 {
		t.Errorf("expected default atm_strike_step=50, got %d", cfg.ATMStrikeStep)
	}
	if cfg.TickIntervalSecs != 1 {
		t.Errorf("expected default tick_interval_seconds=1, got %d", cfg.TickIntervalSecs)
	}
	if cfg.Strategy.Scalping.ATRPeriod != 3 {
		t.Errorf("expected atr_period=3, got %d", cfg.Strategy.Scalping.ATRPeriod)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeTempConfig(t, validYAML+"\nsome_unknown_key: true\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to fail on unknown key, got nil error")
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	path := writeTempConfig(t, "mode: WEIRD\nbroker:\n  base_url: x\nstore:\n  base_url: y\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject invalid mode")
	}
}

func TestSignalCooldownZeroDisables(t *testing.T) {
	cfg := &Config{
		Mode: "PAPER", PaperCapital: 1, MaxPositions: 1, CapitalPerTrade: 1,
		ATMStrikeStep: 50, TickIntervalSecs: 1, ForceExitTime: "15:05",
		Strategy: StrategyConfig{Scalping: ScalpingConfig{ATRPeriod: 3, SignalCooldownSeconds: 0}},
		Broker:   BrokerConfig{BaseURL: "x"},
		Store:    StoreConfig{BaseURL: "y"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("cooldown=0 should be valid (disables cooldown), got: %v", err)
	}
}
