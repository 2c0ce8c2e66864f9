package api

import (
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

// Snapshot is the complete read-only status surface exposed at /api/snapshot.
// HTTP reads tolerate eventual consistency: the snapshot reflects whatever
// the orchestrator's tick loop last committed, never a value requiring a
// round trip into the trading goroutine.
type Snapshot struct {
	Timestamp        time.Time       `json:"timestamp"`
	State            string          `json:"state"`
	Mode             types.Mode      `json:"mode"`
	Degraded         bool            `json:"degraded"`
	RiskBreached     bool            `json:"risk_breached"`
	DailyTradeCount  int             `json:"daily_trade_count"`
	AvailableCapital decimal.Decimal `json:"available_capital"`
	UsedMargin       decimal.Decimal `json:"used_margin"`
	OpenPositions    []PositionView  `json:"open_positions"`
}

// PositionView is the subset of types.Position worth surfacing over HTTP;
// internal bookkeeping fields (PositionKey, SellOrderID) stay internal.
type PositionView struct {
	Symbol        string           `json:"symbol"`
	Strategy      string           `json:"strategy"`
	OptionType    types.OptionType `json:"option_type"`
	Quantity      int64            `json:"quantity"`
	AveragePrice  decimal.Decimal  `json:"average_price"`
	CurrentPrice  decimal.Decimal  `json:"current_price"`
	PeakPrice     decimal.Decimal  `json:"peak_price"`
	UnrealizedPnL decimal.Decimal  `json:"unrealized_pnl"`
	EntryTime     time.Time        `json:"entry_time"`
}
