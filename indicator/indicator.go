// Package indicator holds the stateless numeric transforms shared by every
// strategy and by the backtest engine. All functions are pure: given the
// same input series they return the same output, element-aligned with the
// input. Positions that cannot be computed yet (fewer samples than the
// period) are NaN instead of an error, so callers can guard on data
// sufficiency without special cases.
package indicator

import (
	"math"

	"github.com/quantfold/strata/types"
)

// SMA returns the simple moving average over the trailing period.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RMA is Wilder's smoothing: rma[i] = rma[i-1] + (v[i]-rma[i-1])/period,
// seeded with the first value.
func RMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + (values[i]-out[i-1])/float64(period)
	}
	return out
}

// TrueRange of each bar; the first bar falls back to high-low.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := minLen(highs, lows, closes)
	out := nanSlice(n)
	for i := 0; i < n; i++ {
		hl := highs[i] - lows[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR is the Wilder-smoothed true range.
func ATR(highs, lows, closes []float64, period int) []float64 {
	return RMA(TrueRange(highs, lows, closes), period)
}

// Std is the population standard deviation over a trailing window.
func Std(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		seg := values[i-window+1 : i+1]
		mean := 0.0
		for _, v := range seg {
			mean += v
		}
		mean /= float64(window)
		variance := 0.0
		for _, v := range seg {
			d := v - mean
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(window))
	}
	return out
}

// RollingMax returns the trailing-window maximum.
func RollingMax(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		m := values[i-window+1]
		for _, v := range values[i-window+2 : i+1] {
			if v > m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

// RollingMin returns the trailing-window minimum.
func RollingMin(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		m := values[i-window+1]
		for _, v := range values[i-window+2 : i+1] {
			if v < m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

// RSI implements Wilder's relative strength index: average gain/loss seeded
// over the first period bars, then recursively updated. By convention the
// value is 100 when the average loss is zero and 0 when the average gain is
// zero while losses exist.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	if avgGain == 0 {
		return 0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ADX is the average directional index: Wilder-smoothed directional
// movement turned into a 0-100 trend-strength reading. Values before
// 2*period samples are NaN.
func ADX(highs, lows, closes []float64, period int) []float64 {
	n := minLen(highs, lows, closes)
	out := nanSlice(n)
	if period <= 0 || n <= 2*period {
		return out
	}
	tr := TrueRange(highs, lows, closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	smTR := RMA(tr, period)
	smPlus := RMA(plusDM, period)
	smMinus := RMA(minusDM, period)

	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if smTR[i] == 0 || math.IsNaN(smTR[i]) {
			continue
		}
		pdi := 100 * smPlus[i] / smTR[i]
		mdi := 100 * smMinus[i] / smTR[i]
		if pdi+mdi == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
	}

	// Seed ADX with the mean DX over the second period window, then smooth.
	seed := 0.0
	for i := period + 1; i <= 2*period; i++ {
		seed += dx[i]
	}
	adx := seed / float64(period)
	out[2*period] = adx
	for i := 2*period + 1; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
		out[i] = adx
	}
	return out
}

// HeikinAshiClose reconstructs the Heikin-Ashi close series. The close of a
// Heikin-Ashi candle is ohlc4 of the raw bar; the recursive haOpen carry
// only affects the open/high/low components, which no caller consumes.
func HeikinAshiClose(bars []types.CandleBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = (b.Open + b.High + b.Low + b.Close) / 4
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func minLen(a, b, c []float64) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if len(c) < n {
		n = len(c)
	}
	return n
}
