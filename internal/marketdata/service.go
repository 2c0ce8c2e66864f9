// Package marketdata produces the inputs strategies need: closed candles,
// current prices, and option-chain quotes, sourced from the Broker. It
// never synthesizes data: any Broker failure yields an empty result, never
// a stale cache masquerading as fresh.
package marketdata

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/internal/broker"
	"nifty-options-trader/pkg/types"
)

// ist is the timezone strategy decisions and the force-exit cutoff are
// evaluated in: Indian Standard Time, UTC+5:30, with no daylight saving.
var ist = time.FixedZone("IST", 5*3600+30*60)

// BrokerSource is the subset of broker.Client the market data service
// depends on, narrowed to an interface so tests can supply a fake.
type BrokerSource interface {
	LTP(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
	Historical(ctx context.Context, token string, from, to time.Time, interval string) ([]types.Candle, error)
	Quote(ctx context.Context, symbols []string) (map[string]broker.QuoteDetail, error)
}

// Service produces market data for the underlying index and its option
// chain. One Service instance is owned by the orchestrator.
type Service struct {
	broker     BrokerSource
	underlying string
	instrument types.Instrument
	logger     *slog.Logger

	mu           sync.Mutex
	lastQuoteAt  time.Time
}

// New builds a market data service for the given underlying symbol.
func New(broker BrokerSource, underlying string, logger *slog.Logger) *Service {
	return &Service{broker: broker, underlying: underlying, logger: logger.With("component", "marketdata")}
}

// SetUnderlyingInstrument records the resolved underlying-index instrument
// (token, etc.) Candles needs for its Historical call. Set once by
// cmd/trader at startup, after the instrument master loads.
func (s *Service) SetUnderlyingInstrument(instrument types.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instrument = instrument
}

// Candles returns closed candles for the underlying at the given interval,
// looking back lookbackDays. The broker's most recent candle is always
// treated as live/in-progress and excluded.
func (s *Service) Candles(ctx context.Context, interval time.Duration, lookbackDays int) ([]types.Candle, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -lookbackDays)
	s.mu.Lock()
	token := s.instrument.Token
	s.mu.Unlock()
	raw, err := s.broker.Historical(ctx, token, from, now, intervalLabel(interval))
	if err != nil {
		s.logger.Warn("historical candle fetch failed, returning empty", "error", err)
		return nil, nil
	}
	if len(raw) == 0 {
		return nil, nil
	}
	// Drop the last candle unconditionally: it is the live/in-progress bar.
	closed := raw[:len(raw)-1]
	out := make([]types.Candle, 0, len(closed))
	for _, c := range closed {
		if c.Closed(interval, now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// CurrentPrice returns the last-traded price for a single symbol. Returns
// zero on failure; callers must check for the zero value rather than treat
// it as a real quote.
func (s *Service) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := s.broker.LTP(ctx, []string{symbol})
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := prices[symbol]
	if !ok {
		return decimal.Zero, nil
	}
	s.mu.Lock()
	s.lastQuoteAt = time.Now()
	s.mu.Unlock()
	return price, nil
}

// IsMarketOpen is a two-layer check: first, trust a recent broker quote if
// one arrived within the freshness window; otherwise fall back to a local
// IST-clock trading-hours check.
func (s *Service) IsMarketOpen(ctx context.Context) bool {
	s.mu.Lock()
	lastQuote := s.lastQuoteAt
	s.mu.Unlock()

	if !lastQuote.IsZero() && time.Since(lastQuote) <= 5*time.Minute {
		return true
	}
	return isWithinTradingHours(time.Now())
}

// isWithinTradingHours checks weekday 09:15-15:30 IST with a 2-minute grace
// on either edge.
func isWithinTradingHours(now time.Time) bool {
	nowIST := now.In(ist)
	switch nowIST.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	open := time.Date(nowIST.Year(), nowIST.Month(), nowIST.Day(), 9, 15, 0, 0, ist).Add(-2 * time.Minute)
	close := time.Date(nowIST.Year(), nowIST.Month(), nowIST.Day(), 15, 30, 0, 0, ist).Add(2 * time.Minute)
	return !nowIST.Before(open) && !nowIST.After(close)
}

// OptionChain returns paired (CE, PE) quotes for the given strikes at the
// given expiry. If expiry is zero, defaults to the nearest weekly Thursday.
func (s *Service) OptionChain(ctx context.Context, expiry time.Time, strikes []int64) ([]types.OptionChainRow, error) {
	if expiry.IsZero() {
		expiry = NextWeeklyExpiry(time.Now())
	}

	symbols := make([]string, 0, len(strikes)*2)
	bySymbol := make(map[string]struct {
		strike int64
		opt    types.OptionType
	}, len(strikes)*2)
	for _, strike := range strikes {
		ce := optionSymbol(s.underlying, expiry, strike, types.CE)
		pe := optionSymbol(s.underlying, expiry, strike, types.PE)
		symbols = append(symbols, ce, pe)
		bySymbol[ce] = struct {
			strike int64
			opt    types.OptionType
		}{strike, types.CE}
		bySymbol[pe] = struct {
			strike int64
			opt    types.OptionType
		}{strike, types.PE}
	}

	quotes, err := s.broker.Quote(ctx, symbols)
	if err != nil {
		s.logger.Warn("option chain fetch failed, returning empty", "error", err)
		return nil, nil
	}

	rows := make(map[int64]*types.OptionChainRow)
	for symbol, detail := range quotes {
		meta, ok := bySymbol[symbol]
		if !ok {
			continue
		}
		row, ok := rows[meta.strike]
		if !ok {
			row = &types.OptionChainRow{Strike: meta.strike, Expiry: expiry}
			rows[meta.strike] = row
		}
		q := types.OptionQuote{Symbol: symbol, Price: detail.Price, OI: detail.OI, Volume: detail.Volume, Bid: detail.Bid, Ask: detail.Ask}
		if meta.opt == types.CE {
			row.Call = q
		} else {
			row.Put = q
		}
	}

	out := make([]types.OptionChainRow, 0, len(rows))
	for _, strike := range strikes {
		if row, ok := rows[strike]; ok {
			out = append(out, *row)
		}
	}
	return out, nil
}

func optionSymbol(underlying string, expiry time.Time, strike int64, opt types.OptionType) string {
	return underlying + expiry.Format("020106") + strconv.FormatInt(strike, 10) + string(opt)
}

func intervalLabel(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return "60minute"
	case d >= time.Minute:
		return "minute"
	default:
		return "minute"
	}
}
