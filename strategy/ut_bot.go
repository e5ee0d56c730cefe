package strategy

import (
	"fmt"
	"math"

	"github.com/quantfold/strata/indicator"
	"github.com/quantfold/strata/types"
)

const utATRPeriod = 10

// UTBot maintains an ATR trailing stop line (keyValue x ATR below rising
// prices, above falling ones) and signals exactly on the bar where the
// source crosses the line. With UseHeikinAshi the line runs over the
// Heikin-Ashi closes.
type UTBot struct{}

func (UTBot) Name() string { return IDUTBot }

// atrTrailingStop computes the trailing stop line and which side of it each
// bar closed on (+1 above, -1 below). Shared with the SAI scalper's trend
// detector.
func atrTrailingStop(src []float64, atr []float64, keyValue float64) (stops []float64, side []int) {
	n := len(src)
	stops = make([]float64, n)
	side = make([]int, n)
	if n == 0 {
		return stops, side
	}
	loss := func(i int) float64 { return keyValue * atr[i] }

	stops[0] = src[0] - loss(0)
	side[0] = 1
	for i := 1; i < n; i++ {
		prev := stops[i-1]
		switch {
		case src[i] > prev && src[i-1] > prev:
			stops[i] = math.Max(prev, src[i]-loss(i))
		case src[i] < prev && src[i-1] < prev:
			stops[i] = math.Min(prev, src[i]+loss(i))
		case src[i] > prev:
			stops[i] = src[i] - loss(i)
		default:
			stops[i] = src[i] + loss(i)
		}
		if src[i] > stops[i] {
			side[i] = 1
		} else {
			side[i] = -1
		}
	}
	return stops, side
}

func (UTBot) Evaluate(bars []types.CandleBar, p Params) types.Signal {
	p = p.normalized()
	src := source(bars, p)
	need := utATRPeriod + 2
	if len(src) < need {
		return types.HoldSignal(fmt.Sprintf("need %d bars, have %d", need, len(src)))
	}

	key := p.Threshold
	atr := indicator.ATR(types.Highs(bars), types.Lows(bars), types.Closes(bars), utATRPeriod)
	stops, side := atrTrailingStop(src, atr, key)

	last := len(src) - 1
	stop := stops[last]
	dist := src[last] - stop
	diag := map[string]float64{"stop": stop, "atr": atr[last], "dist": dist}

	if side[last] == side[last-1] {
		return types.Signal{
			Direction:       types.Hold,
			RawScore:        dist,
			ScaleMultiplier: 1,
			Status:          fmt.Sprintf("no crossing, stop at %.4f", stop),
			Diagnostics:     diag,
		}
	}

	dir := types.Long
	if side[last] < 0 {
		dir = types.Short
	}
	span := key * atr[last]
	strength := 1.0
	if span > 0 {
		strength = clamp(math.Abs(dist)/span, 0, 1)
	}
	return types.Signal{
		Direction:       dir,
		Strength:        strength,
		RawScore:        dist,
		ScaleMultiplier: 1,
		Status:          fmt.Sprintf("close crossed trailing stop %.4f going %s", stop, dir),
		Diagnostics:     diag,
	}
}
