// Package strategy holds the signal algorithms. Every strategy is a pure
// function of the bar window and its parameters: no clock, no randomness,
// no I/O. That purity is what lets the backtest engine replay the exact
// live decisions.
package strategy

import (
	"math"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/indicator"
	"github.com/quantfold/strata/types"
)

// Params are the tunables shared by all strategies. Callers pass the full
// available bar window; each strategy trims what it needs from Lookback.
type Params struct {
	Lookback      int
	Threshold     float64
	BaseSize      float64
	UseHeikinAshi bool
}

// normalized applies the defensive defaults so no algorithm has to fail on
// a bad shape.
func (p Params) normalized() Params {
	if p.Lookback <= 0 {
		p.Lookback = 20
	}
	if p.Threshold <= 0 {
		p.Threshold = 1.5
	}
	if p.BaseSize <= 0 {
		p.BaseSize = 1
	}
	return p
}

// Strategy evaluates a bar window into a signal.
type Strategy interface {
	Name() string
	Evaluate(bars []types.CandleBar, p Params) types.Signal
}

// Strategy identifiers. The set is closed; dispatch is a switch, not a
// registry.
const (
	IDMeanReversion = "mean_reversion"
	IDSMATrend      = "sma_trend"
	IDRSISwing      = "rsi_swing"
	IDUTBot         = "ut_bot"
	IDSAIScalper    = "sai_scalper"
	IDAlwaysSignal  = "always_signal"
)

// ErrUnknownStrategy is returned by ForID for ids outside the closed set.
var ErrUnknownStrategy = errors.New("unknown strategy id")

// ForID maps a strategy id to its implementation.
func ForID(id string) (Strategy, error) {
	switch id {
	case IDMeanReversion:
		return MeanReversion{}, nil
	case IDSMATrend:
		return SMATrend{}, nil
	case IDRSISwing:
		return RSISwing{}, nil
	case IDUTBot:
		return UTBot{}, nil
	case IDSAIScalper:
		return SAIScalper{}, nil
	case IDAlwaysSignal:
		return AlwaysSignal{}, nil
	}
	return nil, errors.Wrap(ErrUnknownStrategy, id)
}

// IDs lists the closed strategy set.
func IDs() []string {
	return []string{IDMeanReversion, IDSMATrend, IDRSISwing, IDUTBot, IDSAIScalper, IDAlwaysSignal}
}

// source returns the close series the strategy works on, optionally the
// Heikin-Ashi reconstruction.
func source(bars []types.CandleBar, p Params) []float64 {
	if p.UseHeikinAshi {
		return indicator.HeikinAshiClose(bars)
	}
	return types.Closes(bars)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
