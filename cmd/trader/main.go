// Command trader is the entry point for the Nifty options scalping engine.
//
// Architecture:
//
//	main.go                         — entry point: loads config, wires every
//	                                  package, starts the orchestrator, waits
//	                                  for SIGINT/SIGTERM
//	internal/broker                 — OAuth REST client for the brokerage
//	internal/marketdata             — candles, LTP, option chain, market hours
//	internal/strategy/supertrend     — the Supertrend scalping strategy
//	internal/executor                — virtual trading state machine (fills,
//	                                  positions, recovery, monitoring)
//	internal/orchestrator            — the single ticking scheduler that
//	                                  composes the above into one tick loop:
//	                                  refresh candles, generate signals, place
//	                                  orders, monitor, force-exit, snapshot
//	internal/store                   — trade/order persistence (REST-backed)
//	internal/api                     — /healthz, /metrics, /api/snapshot
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nifty-options-trader/internal/api"
	"nifty-options-trader/internal/broker"
	"nifty-options-trader/internal/config"
	"nifty-options-trader/internal/executor"
	"nifty-options-trader/internal/marketdata"
	"nifty-options-trader/internal/orchestrator"
	"nifty-options-trader/internal/store"
	"nifty-options-trader/internal/store/rest"
	"nifty-options-trader/internal/strategy/supertrend"
	"nifty-options-trader/pkg/types"

	"github.com/shopspring/decimal"
)

// underlyingSymbol is the broker symbol for spot/instrument-master lookups.
// Nifty options is the only segment this engine trades; this never needs to
// be configurable.
const underlyingSymbol = "NIFTY 50"

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("TRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	mode := types.ModePaper
	if cfg.Mode == "LIVE" {
		mode = types.ModeLive
	}

	brokerClient := broker.NewClient(broker.Config{
		BaseURL:     cfg.Broker.BaseURL,
		APIKey:      cfg.Broker.APIKey,
		APISecret:   cfg.Broker.APISecret,
		RedirectURL: cfg.Broker.RedirectURL,
		TokenFile:   cfg.Broker.TokenFile,
	}, logger)
	if !brokerClient.IsAuthenticated() {
		logger.Error("broker not authenticated; complete the OAuth session first", "login_url", brokerClient.LoginURL())
		os.Exit(1)
	}

	market := marketdata.New(brokerClient, underlyingSymbol, logger)

	storeClient := rest.New(rest.Config{
		BaseURL: cfg.Store.BaseURL,
		APIKey:  cfg.Store.APIKey,
	}, logger)

	initialCapital := decimal.NewFromFloat(cfg.PaperCapital)
	exec := executor.New(executor.Config{
		Mode:            mode,
		InitialCapital:  initialCapital,
		MaxPositions:    cfg.MaxPositions,
		CapitalPerTrade: decimal.NewFromFloat(cfg.CapitalPerTrade),
		MaxPositionSize: decimal.NewFromFloat(cfg.MaxPositionSize),
	}, storeClient, logger)

	scalping := cfg.Strategy.Scalping
	strategy := supertrend.New(supertrend.Config{
		Name:                  "supertrend",
		ATMStrikeStep:         int64(cfg.ATMStrikeStep),
		DefaultLotSize:        75,
		ATRPeriod:             scalping.ATRPeriod,
		ATRMultiplier:         decimal.NewFromFloat(scalping.ATRMultiplier),
		TargetProfitPercent:   decimal.NewFromFloat(scalping.TargetProfitPercent),
		StopLossPercent:       decimal.NewFromFloat(scalping.StopLossPercent),
		TimeStopMinutes:       scalping.TimeStopMinutes,
		SignalCooldownSeconds: scalping.SignalCooldownSeconds,
	})

	orchCfg := orchestrator.FromAppConfig(cfg, underlyingSymbol)
	orch := orchestrator.New(orchCfg, brokerClient, market, storeClient, exec, logger)
	orch.AddStrategy("supertrend", strategy)

	ctx := context.Background()
	if err := resolveUnderlyingInstrument(ctx, brokerClient, market, underlyingSymbol); err != nil {
		logger.Error("failed to resolve underlying instrument", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, orch, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		logger.Info("status server started", "port", cfg.Dashboard.Port)
	}

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	logger.Info("nifty options trader started",
		"mode", cfg.Mode,
		"max_positions", cfg.MaxPositions,
		"capital_per_trade", cfg.CapitalPerTrade,
		"max_daily_trades", cfg.MaxDailyTrades,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop status server", "error", err)
		}
	}

	orch.Stop()
}

// resolveUnderlyingInstrument finds the index instrument (as opposed to one
// of its option contracts) in the instrument master and hands its broker
// token to the market data service, which needs it for historical candle
// fetches. An index entry carries no option type.
func resolveUnderlyingInstrument(ctx context.Context, broker orchestrator.InstrumentSource, market *marketdata.Service, underlying string) error {
	instruments, err := broker.LoadInstruments(ctx)
	if err != nil {
		return err
	}
	for _, inst := range instruments {
		if inst.Underlying == underlying && inst.OptionType == "" {
			market.SetUnderlyingInstrument(inst)
			return nil
		}
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
