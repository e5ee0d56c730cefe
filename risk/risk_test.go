package risk

import (
	"math"
	"testing"
	"time"

	"github.com/quantfold/strata/exchange"
	"github.com/quantfold/strata/types"
)

func TestResolveContractSpecsFirstMatchWins(t *testing.T) {
	spec := ResolveContractSpecs(exchange.ContractMeta{QuantoMultiplier: 0.01, ContractSize: 5})
	if spec.Multiplier != 0.01 {
		t.Fatalf("multiplier = %f, want first candidate 0.01", spec.Multiplier)
	}
	spec = ResolveContractSpecs(exchange.ContractMeta{ContractSize: 5, OrderSizeMin: 3, LeverageMax: 25})
	if spec.Multiplier != 5 || spec.MinContracts != 3 || spec.MaxLeverage != 25 {
		t.Fatalf("unexpected spec %+v", spec)
	}
	spec = ResolveContractSpecs(exchange.ContractMeta{QuantoMultiplier: -1})
	if spec.Multiplier != 1 || spec.MinContracts != 1 {
		t.Fatalf("invalid metadata should fall back to defaults, got %+v", spec)
	}
}

func sig(scale float64) types.Signal {
	return types.Signal{Direction: types.Long, ScaleMultiplier: scale, Strength: 1}
}

func TestSizePositionClampsToBalance(t *testing.T) {
	spec := ContractSpec{Multiplier: 1, MinContracts: 1}
	// 10 contracts requested, balance carries only 4 at price 100, lev 1.
	res := SizePosition(sig(10), 1, 400, 100, spec, 1)
	if res.RequestedContracts != 10 {
		t.Fatalf("requested = %d, want 10", res.RequestedContracts)
	}
	if res.AppliedContracts != 4 {
		t.Fatalf("applied = %d, want 4", res.AppliedContracts)
	}
	if res.AppliedNotional != 400 {
		t.Fatalf("applied notional = %f, want 400", res.AppliedNotional)
	}
}

func TestSizePositionUnknownBalanceTrustsCaller(t *testing.T) {
	spec := ContractSpec{Multiplier: 1, MinContracts: 1}
	res := SizePosition(sig(10), 1, 0, 100, spec, 1)
	if res.AppliedContracts != res.RequestedContracts {
		t.Fatalf("unknown balance must not clamp: %+v", res)
	}
}

func TestSizePositionZeroWhenBelowMinimum(t *testing.T) {
	spec := ContractSpec{Multiplier: 1, MinContracts: 2}
	res := SizePosition(sig(1), 1, 150, 100, spec, 1)
	if res.AppliedContracts != 0 {
		t.Fatalf("balance below exchange minimum should apply 0, got %d", res.AppliedContracts)
	}
}

func TestSizePositionMonotonicity(t *testing.T) {
	spec := ContractSpec{Multiplier: 1, MinContracts: 1}
	prev := -1
	for bal := 100.0; bal <= 2000; bal += 100 {
		res := SizePosition(sig(20), 1, bal, 100, spec, 1)
		if res.AppliedContracts < prev {
			t.Fatalf("applied contracts decreased with balance: %d -> %d at %f", prev, res.AppliedContracts, bal)
		}
		prev = res.AppliedContracts
	}
	prevP := math.MaxInt
	for price := 10.0; price <= 200; price += 10 {
		res := SizePosition(sig(20), 1, 1000, price, spec, 1)
		if res.AppliedContracts > prevP {
			t.Fatalf("applied contracts increased with price at %f", price)
		}
		prevP = res.AppliedContracts
	}
}

func TestSizePositionRespectsMaxLeverage(t *testing.T) {
	spec := ContractSpec{Multiplier: 1, MinContracts: 1, MaxLeverage: 5}
	res := SizePosition(sig(1), 1, 100, 100, spec, 20)
	if res.AppliedLeverage != 5 {
		t.Fatalf("leverage = %f, want clamped to 5", res.AppliedLeverage)
	}
}

func TestEvaluateRiskExitPrice(t *testing.T) {
	// Long from 100, 10x leverage, +1% move => +10% ROI.
	dec := EvaluateRiskExit(types.Long, 100, 101, 0.10, 0.05, 10)
	if dec == nil || dec.Reason != ReasonTakeProfit {
		t.Fatalf("expected take-profit, got %+v", dec)
	}
	// Short gains when price falls.
	dec = EvaluateRiskExit(types.Short, 100, 101, 0.10, 0.05, 10)
	if dec == nil || dec.Reason != ReasonStopLoss {
		t.Fatalf("expected stop-loss for short on rising price, got %+v", dec)
	}
	if dec.ROI >= 0 {
		t.Fatalf("short ROI should be negative, got %f", dec.ROI)
	}
	if dec := EvaluateRiskExit(types.Hold, 100, 101, 0.1, 0.1, 1); dec != nil {
		t.Fatalf("hold direction must never exit, got %+v", dec)
	}
}

func TestEvaluateRiskExitCandleStopOnly(t *testing.T) {
	// Long from 100 at 1x: stop level 95 (5%), target 110 (10%).
	bar := types.CandleBar{Time: time.Unix(0, 0), Open: 97, High: 99, Low: 94, Close: 96}
	dec := EvaluateRiskExitCandle(types.Long, 100, bar, 0.10, 0.05, 1)
	if dec == nil || dec.Reason != ReasonStopLoss {
		t.Fatalf("low <= stop with high < target must be a stop-loss, got %+v", dec)
	}
	if dec.Price != 95 {
		t.Fatalf("stop exit price = %f, want the level 95", dec.Price)
	}
}

func TestEvaluateRiskExitCandleCloserTriggerWins(t *testing.T) {
	// Long from 100 at 1x: target 103 (3%), stop 95 (5%). A wide bar touches
	// both; the target is closer to entry, so it wins.
	bar := types.CandleBar{Open: 100, High: 104, Low: 94, Close: 100}
	dec := EvaluateRiskExitCandle(types.Long, 100, bar, 0.03, 0.05, 1)
	if dec == nil || dec.Reason != ReasonTakeProfit {
		t.Fatalf("closer trigger should win, got %+v", dec)
	}
	// Flip the distances: target 108 (8%), stop 98 (2%); now the stop wins.
	wide := types.CandleBar{Open: 100, High: 109, Low: 97, Close: 100}
	dec = EvaluateRiskExitCandle(types.Long, 100, wide, 0.08, 0.02, 1)
	if dec == nil || dec.Reason != ReasonStopLoss {
		t.Fatalf("closer stop should win, got %+v", dec)
	}
}

func TestPositionMetrics(t *testing.T) {
	pnl, notional, ret := PositionMetrics(types.Long, 100, 110, 2, 1, 10)
	if pnl != 20 {
		t.Fatalf("pnl = %f, want 20", pnl)
	}
	if notional != 200 {
		t.Fatalf("notional = %f, want 200", notional)
	}
	// margin = 200/10 = 20, return = 20/20 = 1.
	if math.Abs(ret-1) > 1e-9 {
		t.Fatalf("returnPct = %f, want 1", ret)
	}
	pnl, _, _ = PositionMetrics(types.Short, 100, 110, 2, 1, 10)
	if pnl != -20 {
		t.Fatalf("short pnl = %f, want -20", pnl)
	}
}
