package strategy

import (
	"fmt"
	"math"

	"github.com/quantfold/strata/indicator"
	"github.com/quantfold/strata/types"
)

// SMATrend is a trend follower: it requires the price to sit a threshold
// percentage away from its rolling SMA *and* the SMA itself to slope the
// same way. Distance alone is not enough; a flat average with a price spike
// reads as noise, not trend.
type SMATrend struct{}

func (SMATrend) Name() string { return IDSMATrend }

func (SMATrend) Evaluate(bars []types.CandleBar, p Params) types.Signal {
	p = p.normalized()
	closes := source(bars, p)
	slopeSpan := p.Lookback / 2
	if slopeSpan < 2 {
		slopeSpan = 2
	}
	need := p.Lookback + slopeSpan
	if len(closes) < need {
		return types.HoldSignal(fmt.Sprintf("need %d bars, have %d", need, len(closes)))
	}

	sma := indicator.SMA(closes, p.Lookback)
	last := len(closes) - 1
	cur, prev := sma[last], sma[last-slopeSpan]
	if !valid(cur) || !valid(prev) || cur == 0 || prev == 0 {
		return types.HoldSignal("sma window not ready")
	}

	distPct := (closes[last] - cur) / cur * 100
	slopePct := (cur - prev) / prev * 100
	diag := map[string]float64{"dist_pct": distPct, "slope_pct": slopePct, "sma": cur}

	agree := distPct > 0 && slopePct > 0 || distPct < 0 && slopePct < 0
	if !agree || math.Abs(distPct) < p.Threshold || math.Abs(slopePct) < p.Threshold {
		return types.Signal{
			Direction:       types.Hold,
			RawScore:        distPct + slopePct,
			ScaleMultiplier: 1,
			Status:          fmt.Sprintf("dist %.2f%% slope %.2f%% below threshold %.2f%%", distPct, slopePct, p.Threshold),
			Diagnostics:     diag,
		}
	}

	dir := types.Long
	if distPct < 0 {
		dir = types.Short
	}
	weaker := math.Min(math.Abs(distPct), math.Abs(slopePct))
	return types.Signal{
		Direction:       dir,
		Strength:        clamp(weaker/(2*p.Threshold), 0, 1),
		RawScore:        distPct + slopePct,
		ScaleMultiplier: 1,
		Status:          fmt.Sprintf("trend %s: dist %.2f%%, slope %.2f%%", dir, distPct, slopePct),
		Diagnostics:     diag,
	}
}
