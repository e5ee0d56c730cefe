package strategy

import (
	"fmt"
	"math"

	"github.com/quantfold/strata/indicator"
	"github.com/quantfold/strata/types"
)

// MeanReversion trades the z-score of the last close against the trailing
// mean: a large deviation above the mean is shorted, a large deviation below
// is bought. The position scale grows with the deviation, capped at 5x.
type MeanReversion struct{}

func (MeanReversion) Name() string { return IDMeanReversion }

func (MeanReversion) Evaluate(bars []types.CandleBar, p Params) types.Signal {
	p = p.normalized()
	closes := source(bars, p)
	if len(closes) < p.Lookback {
		return types.HoldSignal(fmt.Sprintf("need %d bars, have %d", p.Lookback, len(closes)))
	}

	last := len(closes) - 1
	mean := indicator.SMA(closes, p.Lookback)[last]
	std := indicator.Std(closes, p.Lookback)[last]
	if !valid(mean) || !valid(std) || std == 0 {
		return types.HoldSignal("flat window, no deviation to trade")
	}

	z := (closes[last] - mean) / std
	diag := map[string]float64{"z": z, "mean": mean, "std": std}

	if math.Abs(z) < p.Threshold {
		return types.Signal{
			Direction:       types.Hold,
			RawScore:        z,
			ScaleMultiplier: 1,
			Status:          fmt.Sprintf("|z|=%.2f below threshold %.2f", math.Abs(z), p.Threshold),
			Diagnostics:     diag,
		}
	}

	dir := types.Long
	if z > 0 {
		dir = types.Short
	}
	return types.Signal{
		Direction:       dir,
		Strength:        clamp(math.Abs(z)/(2*p.Threshold), 0, 1),
		RawScore:        z,
		ScaleMultiplier: clamp(math.Abs(z), 1, 5),
		Status:          fmt.Sprintf("z=%.2f beyond %.2f, fading the move", z, p.Threshold),
		Diagnostics:     diag,
	}
}
