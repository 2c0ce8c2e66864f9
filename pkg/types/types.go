// Package types holds the shared vocabulary for the trading engine: the
// entities every other package passes between layers. It has no internal
// dependencies so that broker, store, strategy, and executor packages can all
// import it without a cycle.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OptionType distinguishes call and put contracts.
type OptionType string

const (
	CE OptionType = "CE" // call
	PE OptionType = "PE" // put
)

// SignalType enumerates the signal classes a strategy may emit.
type SignalType string

const (
	SignalBuyCall  SignalType = "BUY_CALL"
	SignalBuyPut   SignalType = "BUY_PUT"
	SignalSellCall SignalType = "SELL_CALL"
	SignalSellPut  SignalType = "SELL_PUT"
)

// ExitCategory is the closed set of reasons a position may be closed for.
type ExitCategory string

const (
	ExitProfitTarget  ExitCategory = "PROFIT_TARGET"
	ExitStopLoss      ExitCategory = "STOP_LOSS"
	ExitTimeStop      ExitCategory = "TIME_STOP"
	ExitTrendReversal ExitCategory = "TREND_REVERSAL"
	ExitForceExit     ExitCategory = "FORCE_EXIT"
	ExitManual        ExitCategory = "MANUAL"
	ExitMinHoldTime   ExitCategory = "MIN_HOLD_TIME"
	ExitError         ExitCategory = "ERROR"
	ExitOther         ExitCategory = "OTHER"
)

// Mode selects between simulated fills against a virtual ledger and real
// fills forwarded to the broker.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeLive  Mode = "LIVE"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFilled    OrderStatus = "FILLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Instrument identifies a single tradable options contract: underlying,
// expiry, strike, and option type. Strike must be a positive multiple of
// the configured ATM strike step (atm_strike_step, 50 for Nifty).
type Instrument struct {
	Underlying string
	Expiry     time.Time
	Strike     int64
	OptionType OptionType
	Symbol     string // broker-assigned tradable symbol, consumed not generated
	Token      string // broker instrument token
	LotSize    int64
}

// Candle is one OHLCV bar for a fixed interval. A candle is closed iff its
// end time is at or before now; the most recent candle returned by a broker
// historical-data call is always treated as live and excluded from strategy
// input.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Closed reports whether the candle's end time has passed, given the
// candle's own interval.
func (c Candle) Closed(interval time.Duration, now time.Time) bool {
	return !c.Timestamp.Add(interval).After(now)
}

// SignalMeta carries the context a signal was produced from, persisted
// alongside the order it produces for reporting and audit.
type SignalMeta struct {
	ExitReason   string       `json:"exit_reason,omitempty"`
	ExitCategory ExitCategory `json:"exit_reason_category,omitempty"`
	Confidence   float64      `json:"confidence,omitempty"`
	TrendCandles int          `json:"trend_candles,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Signal is what a Strategy emits: either an entry (BUY_CALL/BUY_PUT) or an
// exit (SELL_CALL/SELL_PUT) instruction.
type Signal struct {
	Strategy   string
	Type       SignalType
	Symbol     string
	OptionType OptionType
	Quantity   int64
	Meta       SignalMeta
}

// Order is an append-only record of a submitted (simulated or real) order.
// Only Status, FilledQuantity, FilledPrice, FilledAt may change after the
// row is written; Side, Symbol, and Quantity never change.
type Order struct {
	ID          string
	Strategy    string
	Mode        Mode
	Symbol      string
	Side        Side
	Quantity    int64
	Price       decimal.Decimal
	Status      OrderStatus
	FilledQty   int64
	FilledPrice decimal.Decimal
	FilledAt    time.Time
	SignalMeta  SignalMeta
	DatabaseID  string // server-assigned id captured after Store.SaveOrder
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PositionKey identifies one in-memory open position. Seq is a per-symbol
// monotonic counter, never reused, replacing a free-form symbol+random
// suffix scheme: each BUY always allocates a fresh key even when the symbol
// already has an open position.
type PositionKey struct {
	Symbol string
	Seq    int64
}

// Position is the mutable open-to-closed lifecycle record created by exactly
// one BUY order and closed by exactly one SELL order. Positions are never
// aggregated across orders: one BUY always produces one new Position.
type Position struct {
	ID               string
	Strategy         string
	Mode             Mode
	Symbol           string
	OptionType       OptionType
	Quantity         int64 // original BUY quantity while open, 0 once closed
	OriginalQuantity int64
	AveragePrice     decimal.Decimal
	CurrentPrice     decimal.Decimal
	PeakPrice        decimal.Decimal // trailing-stop anchor, max observed since entry
	EntryTime        time.Time
	ExitTime         time.Time
	ExitPrice        decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	RealizedPnL      decimal.Decimal
	PnLFraction      decimal.Decimal // decimal fraction, e.g. 0.12 for 12%, not a percentage
	IsOpen           bool
	ExitReason       string
	ExitCategory     ExitCategory
	BuyOrderID       string
	SellOrderID      string
	EntryFees        decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Trade is a derived, append-only record summarizing a closed position, for
// reporting only; it is not consulted for open-position correctness.
type Trade struct {
	ID              string
	Strategy        string
	Mode            Mode
	Symbol          string
	EntryPrice      decimal.Decimal
	ExitPrice       decimal.Decimal
	Quantity        int64
	PnL             decimal.Decimal
	PnLPercentage   decimal.Decimal
	EntryTime       time.Time
	ExitTime        time.Time
	HoldDurationMin float64
	ExitReason      string
	EntrySignalMeta SignalMeta
	Fees            decimal.Decimal
	Slippage        decimal.Decimal
}

// DailyPnL is a per-day, per-mode, per-strategy derived aggregate.
type DailyPnL struct {
	Date           time.Time
	Strategy       string
	Mode           Mode
	RealizedPnL    decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	TotalPnL       decimal.Decimal
	TradesCount    int
	WinningTrades  int
	LosingTrades   int
	FeesPaid       decimal.Decimal
	PortfolioValue decimal.Decimal
}

// PositionPatch is a partial update to a Position: every non-nil field is
// applied, every nil field is left untouched. Used by store.Client.UpdatePosition
// for both the routine current-price/P&L refresh and the terminal close patch.
type PositionPatch struct {
	CurrentPrice  *decimal.Decimal
	Quantity      *int64
	UnrealizedPnL *decimal.Decimal
	RealizedPnL   *decimal.Decimal
	PnLFraction   *decimal.Decimal
	IsOpen        *bool
	ExitTime      *time.Time
	ExitPrice     *decimal.Decimal
	ExitReason    *string
	ExitCategory  *ExitCategory
	SellOrderID   *string
}

// OptionQuote is one leg (CE or PE) of an option-chain row.
type OptionQuote struct {
	Symbol string
	Price  decimal.Decimal
	OI     int64
	Volume int64
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Change decimal.Decimal
}

// OptionChainRow pairs the CE and PE quotes for a single strike.
type OptionChainRow struct {
	Strike int64
	Expiry time.Time
	Call   OptionQuote
	Put    OptionQuote
}
