package backtest

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/risk"
	"github.com/quantfold/strata/strategy"
	"github.com/quantfold/strata/types"
)

var t0 = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func barsFromCloses(closes []float64) []types.CandleBar {
	bars := make([]types.CandleBar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = types.CandleBar{
			Time:   t0.Add(time.Duration(i) * time.Minute),
			Open:   open,
			High:   math.Max(open, c) + 0.5,
			Low:    math.Min(open, c) - 0.5,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func sineCloses(base, amplitude float64, period, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amplitude*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	return out
}

func rampCloses(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

/*
The canonical scenario: a clean sinusoidal path traded by mean reversion.
The final equity must be derived solely from the recorded trades, with one
equity-curve point per realized trade.
*/
func TestRunSineMeanReversion(t *testing.T) {
	res, err := Run(Request{
		StrategyID:     strategy.IDMeanReversion,
		Bars:           barsFromCloses(sineCloses(100, 10, 100, 100)),
		Lookback:       20,
		Threshold:      1.5,
		BaseSize:       1,
		InitialCapital: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.TradeCount == 0 {
		t.Fatal("sinusoidal path should produce trades")
	}
	if len(res.Trades) != res.Stats.TradeCount {
		t.Fatalf("trade list %d vs stats count %d", len(res.Trades), res.Stats.TradeCount)
	}
	if res.Stats.WinTrades+res.Stats.LossTrades != res.Stats.TradeCount {
		t.Fatalf("wins %d + losses %d != count %d", res.Stats.WinTrades, res.Stats.LossTrades, res.Stats.TradeCount)
	}

	sum := 0.0
	for _, tr := range res.Trades {
		sum += tr.PnL
	}
	if math.Abs(res.Stats.FinalEquity-(res.Stats.InitialCapital+sum)) > 1e-9 {
		t.Fatalf("finalEquity %f != initialCapital %f + trade pnl sum %f",
			res.Stats.FinalEquity, res.Stats.InitialCapital, sum)
	}

	if len(res.EquityCurve) != res.Stats.TradeCount {
		t.Fatalf("equity curve has %d points for %d trades", len(res.EquityCurve), res.Stats.TradeCount)
	}
	lastPoint := res.EquityCurve[len(res.EquityCurve)-1]
	if math.Abs(lastPoint.Equity-res.Stats.FinalEquity) > 1e-9 {
		t.Fatalf("curve ends at %f, finalEquity %f", lastPoint.Equity, res.Stats.FinalEquity)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	req := Request{
		StrategyID:     strategy.IDMeanReversion,
		Bars:           barsFromCloses(sineCloses(100, 10, 100, 100)),
		Lookback:       20,
		Threshold:      1.5,
		BaseSize:       1,
		InitialCapital: 1000,
	}
	a, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(req)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("repeated runs over the same request differ")
	}
}

/*
Walk-forward means a trade realized early in the series is identical
whether or not later bars exist.
*/
func TestRunHasNoLookahead(t *testing.T) {
	closes := rampCloses(100, -1, 60)
	full, err := Run(Request{
		StrategyID:  strategy.IDAlwaysSignal,
		Bars:        barsFromCloses(closes),
		Lookback:    10,
		BaseSize:    1,
		StopLossPct: 0.02,
	})
	if err != nil {
		t.Fatal(err)
	}
	trunc, err := Run(Request{
		StrategyID:  strategy.IDAlwaysSignal,
		Bars:        barsFromCloses(closes[:40]),
		Lookback:    10,
		BaseSize:    1,
		StopLossPct: 0.02,
	})
	if err != nil {
		t.Fatal(err)
	}

	shared := 0
	for j, tr := range trunc.Trades {
		if tr.Reason == ReasonEndOfData {
			break
		}
		if !reflect.DeepEqual(tr, full.Trades[j]) {
			t.Fatalf("trade %d differs with later bars present:\n%+v\n%+v", j, tr, full.Trades[j])
		}
		shared++
	}
	if shared == 0 {
		t.Fatal("expected realized trades in the shared prefix")
	}
}

/*
A steadily falling market under the diagnostic always-long strategy must be
carried out by its stop, not ride the loss to the end.
*/
func TestRunStopLossRealizesTrades(t *testing.T) {
	res, err := Run(Request{
		StrategyID:  strategy.IDAlwaysSignal,
		Bars:        barsFromCloses(rampCloses(100, -1, 60)),
		Lookback:    10,
		BaseSize:    1,
		StopLossPct: 0.02,
	})
	if err != nil {
		t.Fatal(err)
	}
	stops := 0
	for _, tr := range res.Trades {
		if tr.Reason == risk.ReasonStopLoss {
			stops++
			if tr.PnL >= 0 {
				t.Fatalf("stop-loss trade with non-negative pnl: %+v", tr)
			}
		}
	}
	if stops == 0 {
		t.Fatal("falling market with a stop configured should realize stop-loss trades")
	}
}

func TestRunRejectsUnknownStrategy(t *testing.T) {
	_, err := Run(Request{StrategyID: "nope", Bars: barsFromCloses(rampCloses(100, 1, 50))})
	if !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestRunRejectsShortSeries(t *testing.T) {
	_, err := Run(Request{StrategyID: strategy.IDMeanReversion, Bars: barsFromCloses(rampCloses(100, 1, 10)), Lookback: 20})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}
