package strategy

import "github.com/quantfold/strata/types"

// AlwaysSignal is the diagnostic strategy: it goes long at base size on
// every evaluation, regardless of the market. It exists to validate the
// execution pipeline end to end without real signal logic.
type AlwaysSignal struct{}

func (AlwaysSignal) Name() string { return IDAlwaysSignal }

func (AlwaysSignal) Evaluate(bars []types.CandleBar, p Params) types.Signal {
	if len(bars) == 0 {
		return types.HoldSignal("no bars")
	}
	return types.Signal{
		Direction:       types.Long,
		Strength:        1,
		RawScore:        1,
		ScaleMultiplier: 1,
		Status:          "diagnostic: always long at base size",
	}
}
