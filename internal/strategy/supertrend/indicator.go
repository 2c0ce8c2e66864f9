package supertrend

import (
	"github.com/shopspring/decimal"

	"nifty-options-trader/pkg/types"
)

// trend is the direction the Supertrend line currently sits on.
type trend string

const (
	trendNeutral trend = "neutral"
	trendBull    trend = "bullish"
	trendBear    trend = "bearish"
)

// bar augments a closed candle with its computed Supertrend state. The final
// bands are carried forward from the previous bar unless broken, per the
// recursive algorithm: each bar's final band depends on the prior bar's.
type bar struct {
	candle     types.Candle
	trueRange  decimal.Decimal
	atr        decimal.Decimal
	basicUpper decimal.Decimal
	basicLower decimal.Decimal
	finalUpper decimal.Decimal
	finalLower decimal.Decimal
	line       decimal.Decimal
	trend      trend
}

// recompute rebuilds trueRange/atr/bands/trend for buf[i], given the already
// computed buf[i-1] (or nil for the first bar). period is the ATR window.
func recompute(buf []bar, i int, period int, multiplier decimal.Decimal) {
	c := buf[i].candle

	if i == 0 {
		buf[i].trueRange = c.High.Sub(c.Low)
	} else {
		prevClose := buf[i-1].candle.Close
		tr1 := c.High.Sub(c.Low)
		tr2 := c.High.Sub(prevClose).Abs()
		tr3 := c.Low.Sub(prevClose).Abs()
		buf[i].trueRange = maxDecimal(tr1, maxDecimal(tr2, tr3))
	}

	if i+1 < period {
		// Not enough history yet for a full-window rolling mean.
		buf[i].atr = decimal.Zero
		buf[i].trend = trendNeutral
		return
	}

	sum := decimal.Zero
	for j := i - period + 1; j <= i; j++ {
		sum = sum.Add(buf[j].trueRange)
	}
	buf[i].atr = sum.Div(decimal.NewFromInt(int64(period)))

	hl2 := c.High.Add(c.Low).Div(decimal.NewFromInt(2))
	band := multiplier.Mul(buf[i].atr)
	buf[i].basicUpper = hl2.Add(band)
	buf[i].basicLower = hl2.Sub(band)

	if i == 0 || buf[i-1].atr.IsZero() {
		buf[i].finalUpper = buf[i].basicUpper
		buf[i].finalLower = buf[i].basicLower
		buf[i].line, buf[i].trend = firstTrend(buf[i])
		return
	}

	prev := buf[i-1]

	if buf[i].basicUpper.LessThan(prev.finalUpper) || prev.candle.Close.GreaterThan(prev.finalUpper) {
		buf[i].finalUpper = buf[i].basicUpper
	} else {
		buf[i].finalUpper = prev.finalUpper
	}

	if buf[i].basicLower.GreaterThan(prev.finalLower) || prev.candle.Close.LessThan(prev.finalLower) {
		buf[i].finalLower = buf[i].basicLower
	} else {
		buf[i].finalLower = prev.finalLower
	}

	switch {
	case prev.trend == trendBull && c.Close.GreaterThan(buf[i].finalLower):
		buf[i].line, buf[i].trend = buf[i].finalLower, trendBull
	case prev.trend == trendBull && !c.Close.GreaterThan(buf[i].finalLower):
		buf[i].line, buf[i].trend = buf[i].finalUpper, trendBear
	case prev.trend == trendBear && c.Close.LessThan(buf[i].finalUpper):
		buf[i].line, buf[i].trend = buf[i].finalUpper, trendBear
	case prev.trend == trendBear && !c.Close.LessThan(buf[i].finalUpper):
		buf[i].line, buf[i].trend = buf[i].finalLower, trendBull
	default:
		buf[i].line, buf[i].trend = prev.line, prev.trend
	}
}

func firstTrend(b bar) (decimal.Decimal, trend) {
	if b.candle.Close.LessThanOrEqual(b.finalLower) {
		return b.finalLower, trendBear
	}
	return b.finalUpper, trendBull
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
