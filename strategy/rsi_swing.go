package strategy

import (
	"fmt"

	"github.com/quantfold/strata/indicator"
	"github.com/quantfold/strata/types"
)

// rsiPeriod is the classic Wilder period. The swing bounds come from the
// configured threshold instead.
const rsiPeriod = 14

// RSISwing fires when RSI crosses back through its oversold/overbought
// bound between the previous and the current bar. A reading merely sitting
// past the bound does not re-trigger bar after bar; only the crossing does.
// The bounds are symmetric around 50, spread by threshold*10 points.
type RSISwing struct{}

func (RSISwing) Name() string { return IDRSISwing }

func (RSISwing) Evaluate(bars []types.CandleBar, p Params) types.Signal {
	p = p.normalized()
	closes := source(bars, p)
	need := rsiPeriod + 2
	if len(closes) < need {
		return types.HoldSignal(fmt.Sprintf("need %d bars, have %d", need, len(closes)))
	}

	spread := clamp(p.Threshold*10, 5, 45)
	oversold := 50 - spread
	overbought := 50 + spread

	rsi := indicator.RSI(closes, rsiPeriod)
	last := len(closes) - 1
	cur, prev := rsi[last], rsi[last-1]
	if !valid(cur) || !valid(prev) {
		return types.HoldSignal("rsi not ready")
	}
	diag := map[string]float64{"rsi": cur, "rsi_prev": prev, "oversold": oversold, "overbought": overbought}

	switch {
	case prev < oversold && cur >= oversold:
		// Pushed-past depth relative to the bound's span below it.
		strength := clamp((oversold-prev)/oversold, 0, 1)
		return types.Signal{
			Direction:       types.Long,
			Strength:        strength,
			RawScore:        cur,
			ScaleMultiplier: 1,
			Status:          fmt.Sprintf("rsi crossed up through %.0f (%.1f -> %.1f)", oversold, prev, cur),
			Diagnostics:     diag,
		}
	case prev > overbought && cur <= overbought:
		strength := clamp((prev-overbought)/(100-overbought), 0, 1)
		return types.Signal{
			Direction:       types.Short,
			Strength:        strength,
			RawScore:        cur,
			ScaleMultiplier: 1,
			Status:          fmt.Sprintf("rsi crossed down through %.0f (%.1f -> %.1f)", overbought, prev, cur),
			Diagnostics:     diag,
		}
	}

	return types.Signal{
		Direction:       types.Hold,
		RawScore:        cur,
		ScaleMultiplier: 1,
		Status:          fmt.Sprintf("rsi %.1f, no crossing", cur),
		Diagnostics:     diag,
	}
}
