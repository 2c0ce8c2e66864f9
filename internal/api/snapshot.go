package api

import (
	"time"

	"github.com/shopspring/decimal"

	"nifty-options-trader/internal/orchestrator"
	"nifty-options-trader/pkg/types"
)

// Provider is the read surface the snapshot handler depends on.
// *orchestrator.Orchestrator satisfies this directly.
type Provider interface {
	State() orchestrator.State
	Mode() types.Mode
	DailyTradeCount() int
	AvailableCapital() decimal.Decimal
	UsedMargin() decimal.Decimal
	OpenPositions() []types.Position
	IsDegraded() bool
	RiskBreached() bool
}

// BuildSnapshot aggregates live state from the Provider into the read-only
// HTTP snapshot.
func BuildSnapshot(p Provider) Snapshot {
	open := p.OpenPositions()
	views := make([]PositionView, 0, len(open))
	for _, pos := range open {
		views = append(views, PositionView{
			Symbol:        pos.Symbol,
			Strategy:      pos.Strategy,
			OptionType:    pos.OptionType,
			Quantity:      pos.Quantity,
			AveragePrice:  pos.AveragePrice,
			CurrentPrice:  pos.CurrentPrice,
			PeakPrice:     pos.PeakPrice,
			UnrealizedPnL: pos.UnrealizedPnL,
			EntryTime:     pos.EntryTime,
		})
	}

	return Snapshot{
		Timestamp:        time.Now(),
		State:            string(p.State()),
		Mode:             p.Mode(),
		Degraded:         p.IsDegraded(),
		RiskBreached:     p.RiskBreached(),
		DailyTradeCount:  p.DailyTradeCount(),
		AvailableCapital: p.AvailableCapital(),
		UsedMargin:       p.UsedMargin(),
		OpenPositions:    views,
	}
}
