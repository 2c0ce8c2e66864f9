// Package config defines all configuration for the trading engine. Config is
// loaded from a YAML file (default: configs/config.yaml) with sensitive
// fields overridable via TRADER_* environment variables. Unknown keys in the
// YAML file are rejected at load time rather than silently ignored.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly onto the recognized
// key set: mode, paper_capital, max_daily_loss, max_positions,
// capital_per_trade, max_position_size, atm_strike_step,
// tick_interval_seconds, force_exit_time, strategy.scalping.*.
type Config struct {
	Mode             string          `mapstructure:"mode"`
	PaperCapital     float64         `mapstructure:"paper_capital"`
	MaxDailyLoss     float64         `mapstructure:"max_daily_loss"`
	MaxPositions     int             `mapstructure:"max_positions"`
	CapitalPerTrade  float64         `mapstructure:"capital_per_trade"`
	MaxPositionSize  float64         `mapstructure:"max_position_size"`
	ATMStrikeStep    int             `mapstructure:"atm_strike_step"`
	TickIntervalSecs int             `mapstructure:"tick_interval_seconds"`
	ForceExitTime    string          `mapstructure:"force_exit_time"`
	MaxDailyTrades   int             `mapstructure:"max_daily_trades"`
	Strategy         StrategyConfig  `mapstructure:"strategy"`
	Broker           BrokerConfig    `mapstructure:"broker"`
	Store            StoreConfig     `mapstructure:"store"`
	Logging          LoggingConfig   `mapstructure:"logging"`
	Dashboard        DashboardConfig `mapstructure:"dashboard"`
}

// StrategyConfig groups per-strategy tuning. Only "scalping" (the Supertrend
// reference strategy) is recognized today; the nesting leaves room for
// additional strategy blocks without widening the top-level schema.
type StrategyConfig struct {
	Scalping ScalpingConfig `mapstructure:"scalping"`
}

// ScalpingConfig tunes the Supertrend reference strategy.
//
//   - TargetProfitPercent / StopLossPercent: exit thresholds, expressed as
//     whole percentages (e.g. 30 means 30%), matching the recognized schema.
//   - TimeStopMinutes: force an exit after this many minutes regardless of P&L.
//   - SignalCooldownSeconds: minimum gap between consecutive entry signals;
//     0 disables the cooldown entirely, any positive value enforces it strictly.
//   - ATRPeriod / ATRMultiplier: Supertrend indicator parameters.
type ScalpingConfig struct {
	TargetProfitPercent   float64 `mapstructure:"target_profit_percent"`
	StopLossPercent       float64 `mapstructure:"stop_loss_percent"`
	TimeStopMinutes       int     `mapstructure:"time_stop_minutes"`
	SignalCooldownSeconds int     `mapstructure:"signal_cooldown_seconds"`
	ATRPeriod             int     `mapstructure:"atr_period"`
	ATRMultiplier         float64 `mapstructure:"atr_multiplier"`
}

// BrokerConfig holds the credentials and endpoint for the OAuth-based
// brokerage adapter. Secret is never logged.
type BrokerConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	RedirectURL string `mapstructure:"redirect_url"`
	TokenFile   string `mapstructure:"token_file"`
}

// StoreConfig points at the remote relational store.
type StoreConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the minimal read-only status/metrics surface:
// /healthz, /metrics, and a snapshot endpoint, not a full login/template
// web UI.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides. Sensitive
// fields use env vars: TRADER_BROKER_API_KEY, TRADER_BROKER_API_SECRET,
// TRADER_STORE_API_KEY; there is no platform password setting. TRADER_MODE
// overrides the mode. Unrecognized keys anywhere
// in the file cause Load to fail, so a typo'd config key is caught at
// startup instead of silently falling back to a default.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config (unknown key?): %w", err)
	}

	if key := os.Getenv("TRADER_BROKER_API_KEY"); key != "" {
		cfg.Broker.APIKey = key
	}
	if secret := os.Getenv("TRADER_BROKER_API_SECRET"); secret != "" {
		cfg.Broker.APISecret = secret
	}
	if key := os.Getenv("TRADER_STORE_API_KEY"); key != "" {
		cfg.Store.APIKey = key
	}
	if mode := os.Getenv("TRADER_MODE"); mode != "" {
		cfg.Mode = mode
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("atm_strike_step", 50)
	v.SetDefault("tick_interval_seconds", 1)
	v.SetDefault("force_exit_time", "15:05")
	// 20 is a conservative default for a single intraday scalping strategy.
	// 0 disables the cap.
	v.SetDefault("max_daily_trades", 20)
}

// TickInterval returns the configured tick interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSecs) * time.Second
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	switch c.Mode {
	case "PAPER", "LIVE":
	default:
		return fmt.Errorf("mode must be PAPER or LIVE, got %q", c.Mode)
	}
	if c.Mode == "PAPER" && c.PaperCapital <= 0 {
		return fmt.Errorf("paper_capital must be > 0 in PAPER mode")
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be > 0")
	}
	if c.CapitalPerTrade <= 0 {
		return fmt.Errorf("capital_per_trade must be > 0")
	}
	if c.ATMStrikeStep <= 0 {
		return fmt.Errorf("atm_strike_step must be > 0")
	}
	if c.TickIntervalSecs <= 0 {
		return fmt.Errorf("tick_interval_seconds must be > 0")
	}
	if _, _, err := parseHHMM(c.ForceExitTime); err != nil {
		return fmt.Errorf("force_exit_time: %w", err)
	}
	if c.MaxDailyTrades < 0 {
		return fmt.Errorf("max_daily_trades must be >= 0 (0 disables the cap)")
	}
	if c.Strategy.Scalping.ATRPeriod <= 0 {
		return fmt.Errorf("strategy.scalping.atr_period must be > 0")
	}
	if c.Strategy.Scalping.SignalCooldownSeconds < 0 {
		return fmt.Errorf("strategy.scalping.signal_cooldown_seconds must be >= 0 (0 disables)")
	}
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if c.Store.BaseURL == "" {
		return fmt.Errorf("store.base_url is required")
	}
	return nil
}

func parseHHMM(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}
	return hour, minute, nil
}
