package orchestrator

import (
	"context"
	"time"

	"nifty-options-trader/internal/marketdata"
	"nifty-options-trader/internal/strategy/supertrend"
	"nifty-options-trader/pkg/types"
)

// buildInstrumentLookup loads the instrument master and returns a closure
// resolving (strike, option type) to the nearest weekly expiry's tradable
// instrument. It only ever consumes whatever tradingsymbol the instrument
// master emits; it never constructs one itself.
func (o *Orchestrator) buildInstrumentLookup(ctx context.Context) (supertrend.InstrumentLookup, error) {
	instruments, err := o.broker.LoadInstruments(ctx)
	if err != nil {
		return nil, err
	}

	expiry := marketdata.NextWeeklyExpiry(time.Now())
	type key struct {
		strike int64
		opt    types.OptionType
	}
	byKey := make(map[key]types.Instrument, len(instruments))
	for _, inst := range instruments {
		if !inst.Expiry.Equal(expiry) {
			continue
		}
		byKey[key{inst.Strike, inst.OptionType}] = inst
	}

	return func(strike int64, opt types.OptionType) (types.Instrument, bool) {
		inst, ok := byKey[key{strike, opt}]
		return inst, ok
	}, nil
}
