// Package risk converts signals into exchange-acceptable order sizes and
// watches open positions for take-profit / stop-loss exits. All ROI figures
// are leverage-adjusted: price move as a fraction of margin, not notional.
package risk

import (
	"math"

	"github.com/quantfold/strata/exchange"
	"github.com/quantfold/strata/types"
)

const epsilon = 1e-9

// ContractSpec is the resolved contract metadata used for sizing.
type ContractSpec struct {
	Multiplier   float64
	MinContracts int
	// MaxLeverage is 0 when the exchange does not report one.
	MaxLeverage float64
}

// SizingResult describes the requested and the balance-clamped order.
type SizingResult struct {
	RequestedContracts int
	AppliedContracts   int
	RequestedNotional  float64
	AppliedNotional    float64
	AppliedLeverage    float64
}

// ExitDecision is a triggered risk exit.
type ExitDecision struct {
	Reason string // "take-profit" | "stop-loss"
	Price  float64
	ROI    float64
}

const (
	ReasonTakeProfit = "take-profit"
	ReasonStopLoss   = "stop-loss"
)

// ResolveContractSpecs picks the first usable multiplier candidate from the
// exchange metadata and falls back to safe defaults when none is valid.
func ResolveContractSpecs(meta exchange.ContractMeta) ContractSpec {
	spec := ContractSpec{Multiplier: 1, MinContracts: 1}
	for _, cand := range []float64{meta.QuantoMultiplier, meta.ContractSize, meta.Multiplier} {
		if cand > 0 {
			spec.Multiplier = cand
			break
		}
	}
	if meta.OrderSizeMin >= 1 {
		spec.MinContracts = meta.OrderSizeMin
	}
	if meta.LeverageMax > 0 {
		spec.MaxLeverage = meta.LeverageMax
	}
	return spec
}

// SizePosition turns a signal into an executable contract count. The applied
// count never exceeds what availableBalance*leverage can carry at the given
// price; when the balance is unknown or non-positive no clamping happens and
// the caller is trusted.
func SizePosition(sig types.Signal, baseSize, availableBalance, price float64, spec ContractSpec, leverage float64) SizingResult {
	lev := leverage
	if lev < 1 {
		lev = 1
	}
	if spec.MaxLeverage > 0 && lev > spec.MaxLeverage {
		lev = spec.MaxLeverage
	}
	mult := spec.Multiplier
	if mult <= 0 {
		mult = 1
	}
	minC := spec.MinContracts
	if minC < 1 {
		minC = 1
	}

	scale := sig.ScaleMultiplier
	if scale <= 0 {
		scale = 1
	}
	requested := int(math.Round(baseSize * scale))
	if requested < minC {
		requested = minC
	}

	res := SizingResult{
		RequestedContracts: requested,
		RequestedNotional:  float64(requested) * price * mult,
		AppliedLeverage:    lev,
	}

	applied := requested
	if availableBalance > 0 && price > 0 {
		maxContracts := int(math.Floor(availableBalance * lev / (price * mult)))
		if maxContracts < applied {
			applied = maxContracts
		}
		if applied < minC {
			// Balance cannot carry even the exchange minimum. Not an
			// error: reported as a zero-size result.
			applied = 0
		}
	}
	res.AppliedContracts = applied
	res.AppliedNotional = float64(applied) * price * mult
	return res
}

// RoiAt returns the leverage-adjusted ROI of a position marked at price.
func RoiAt(direction types.Direction, entryPrice, price, leverage float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	if leverage < 1 {
		leverage = 1
	}
	return (price - entryPrice) / entryPrice * leverage * direction.Sign()
}

// EvaluateRiskExit checks a mark price against the configured bounds.
// takeProfitPct and stopLossPct are leverage-adjusted ROI fractions; zero
// disables the respective bound. Returns nil when nothing triggered.
func EvaluateRiskExit(direction types.Direction, entryPrice, price, takeProfitPct, stopLossPct, leverage float64) *ExitDecision {
	if entryPrice <= 0 || (direction != types.Long && direction != types.Short) {
		return nil
	}
	roi := RoiAt(direction, entryPrice, price, leverage)
	if takeProfitPct > 0 && roi >= takeProfitPct {
		return &ExitDecision{Reason: ReasonTakeProfit, Price: price, ROI: roi}
	}
	if stopLossPct > 0 && roi <= -stopLossPct {
		return &ExitDecision{Reason: ReasonStopLoss, Price: price, ROI: roi}
	}
	return nil
}

// EvaluateRiskExitCandle checks the bar's full high/low range. When both the
// target and the stop are touched inside the same bar, the trigger whose
// price level is closer to entry wins; this is a fixed policy, not a guess
// at intrabar order.
func EvaluateRiskExitCandle(direction types.Direction, entryPrice float64, bar types.CandleBar, takeProfitPct, stopLossPct, leverage float64) *ExitDecision {
	if entryPrice <= 0 || (direction != types.Long && direction != types.Short) {
		return nil
	}
	lev := leverage
	if lev < 1 {
		lev = 1
	}
	sign := direction.Sign()
	var target, stop float64
	if takeProfitPct > 0 {
		target = entryPrice * (1 + sign*takeProfitPct/lev)
	}
	if stopLossPct > 0 {
		stop = entryPrice * (1 - sign*stopLossPct/lev)
	}

	targetHit := target > 0 && ((direction == types.Long && bar.High >= target) ||
		(direction == types.Short && bar.Low <= target))
	stopHit := stop > 0 && ((direction == types.Long && bar.Low <= stop) ||
		(direction == types.Short && bar.High >= stop))

	switch {
	case targetHit && stopHit:
		if math.Abs(target-entryPrice) <= math.Abs(stop-entryPrice) {
			return &ExitDecision{Reason: ReasonTakeProfit, Price: target, ROI: RoiAt(direction, entryPrice, target, lev)}
		}
		return &ExitDecision{Reason: ReasonStopLoss, Price: stop, ROI: RoiAt(direction, entryPrice, stop, lev)}
	case targetHit:
		return &ExitDecision{Reason: ReasonTakeProfit, Price: target, ROI: RoiAt(direction, entryPrice, target, lev)}
	case stopHit:
		return &ExitDecision{Reason: ReasonStopLoss, Price: stop, ROI: RoiAt(direction, entryPrice, stop, lev)}
	}
	return nil
}

// PositionMetrics computes pnl, notional and leverage-adjusted return of a
// closed position.
func PositionMetrics(direction types.Direction, entryPrice, exitPrice, qty, contractSize, leverage float64) (pnl, notional, returnPct float64) {
	if contractSize <= 0 {
		contractSize = 1
	}
	if leverage < 1 {
		leverage = 1
	}
	pnl = (exitPrice - entryPrice) * direction.Sign() * qty * contractSize
	notional = entryPrice * qty * contractSize
	margin := notional / leverage
	if margin < epsilon {
		margin = epsilon
	}
	returnPct = pnl / margin
	return pnl, notional, returnPct
}
