// Package backtest replays a strategy over historical bars exactly as the
// live scheduler would run it: strict walk-forward, risk exits checked
// before new entries on every bar, one equity point per realized trade.
// The engine is synchronous and does no I/O; two runs over the same request
// produce identical results.
package backtest

import (
	"time"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/ledger"
	"github.com/quantfold/strata/risk"
	"github.com/quantfold/strata/strategy"
	"github.com/quantfold/strata/types"
)

// ErrInsufficientData is returned when the bar series cannot cover the
// lookback window.
var ErrInsufficientData = errors.New("not enough bars for lookback window")

// ReasonEndOfData marks the forced close of a position still open at the
// final bar.
const ReasonEndOfData = "end-of-data"

// Request describes one backtest run. Zero optional fields take the same
// defaults the live path uses.
type Request struct {
	StrategyID     string
	Bars           []types.CandleBar
	Lookback       int
	Threshold      float64
	BaseSize       float64
	UseHeikinAshi  bool
	InitialCapital float64
	TakeProfitPct  float64
	StopLossPct    float64
	Leverage       float64
	ContractSize   float64
}

func (r Request) normalized() Request {
	if r.Lookback <= 0 {
		r.Lookback = 20
	}
	if r.BaseSize <= 0 {
		r.BaseSize = 1
	}
	if r.Leverage < 1 {
		r.Leverage = 1
	}
	if r.ContractSize <= 0 {
		r.ContractSize = 1
	}
	if r.InitialCapital <= 0 {
		r.InitialCapital = 1000
	}
	return r
}

// EquityPoint is one realized-trade step of the equity curve.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Stats aggregates a finished run.
type Stats struct {
	TotalPnL       float64 `json:"totalPnl"`
	TotalReturn    float64 `json:"totalReturn"`
	WinTrades      int     `json:"winTrades"`
	LossTrades     int     `json:"lossTrades"`
	TradeCount     int     `json:"tradeCount"`
	InitialCapital float64 `json:"initialCapital"`
	FinalEquity    float64 `json:"finalEquity"`
}

// Result is the full outcome of one run. FinalEquity is derived solely from
// the recorded trades: initialCapital plus the sum of their pnl.
type Result struct {
	Stats       Stats         `json:"stats"`
	Trades      []types.Trade `json:"trades"`
	EquityCurve []EquityPoint `json:"equityCurve"`
}

// Run replays the strategy bar by bar. At index i the strategy sees only
// bars[0..i]; an open position's take-profit/stop-loss is checked against
// the bar's full range before any new signal is evaluated on that bar.
func Run(req Request) (Result, error) {
	req = req.normalized()

	strat, err := strategy.ForID(req.StrategyID)
	if err != nil {
		return Result{}, err
	}

	bars := types.SortBars(req.Bars)
	if len(bars) <= req.Lookback {
		return Result{}, errors.Wrapf(ErrInsufficientData, "have %d bars, lookback %d", len(bars), req.Lookback)
	}

	params := strategy.Params{
		Lookback:      req.Lookback,
		Threshold:     req.Threshold,
		BaseSize:      req.BaseSize,
		UseHeikinAshi: req.UseHeikinAshi,
	}
	spec := risk.ContractSpec{Multiplier: req.ContractSize, MinContracts: 1}

	led := ledger.New()
	equity := req.InitialCapital
	var curve []EquityPoint
	record := func(tr *types.Trade) {
		if tr == nil {
			return
		}
		equity += tr.PnL
		curve = append(curve, EquityPoint{Time: tr.ExitTime, Equity: equity})
	}

	for i := req.Lookback; i < len(bars); i++ {
		bar := bars[i]

		if pos := led.Open(); pos != nil {
			exit := risk.EvaluateRiskExitCandle(pos.Direction, pos.EntryPrice, bar, req.TakeProfitPct, req.StopLossPct, req.Leverage)
			if exit != nil {
				record(led.CloseAt(exit.Price, bar.Time, exit.Reason))
			}
		}

		sig := strat.Evaluate(bars[:i+1], params)
		if !sig.Actionable() {
			continue
		}
		// The balance is not forwarded: replay sizes on baseSize and the
		// signal's scale alone, like a live instance with autoExecute off.
		sized := risk.SizePosition(sig, req.BaseSize, 0, bar.Close, spec, req.Leverage)
		if sized.AppliedContracts <= 0 {
			continue
		}
		record(led.Apply(sig.Direction, float64(sized.AppliedContracts), bar.Close, bar.Time, req.Leverage, req.ContractSize))
	}

	last := bars[len(bars)-1]
	record(led.CloseAt(last.Close, last.Time, ReasonEndOfData))

	stats := led.Stats()
	trades := led.Trades()
	return Result{
		Stats: Stats{
			TotalPnL:       stats.TotalPnL,
			TotalReturn:    stats.TotalPnL / req.InitialCapital,
			WinTrades:      stats.WinTrades,
			LossTrades:     stats.LossTrades,
			TradeCount:     stats.TradeCount,
			InitialCapital: req.InitialCapital,
			FinalEquity:    req.InitialCapital + stats.TotalPnL,
		},
		Trades:      trades,
		EquityCurve: curve,
	}, nil
}
