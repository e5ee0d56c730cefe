package strategy

import (
	"math"
	"time"

	"github.com/quantfold/strata/types"
)

var t0 = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

// barsFromCloses builds one-minute bars around a close series with a small
// fixed range and unit volume.
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

// rampCloses returns n closes moving by step from start.
func rampCloses(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// sineCloses returns a clean sinusoidal path around base.
func sineCloses(base, amplitude float64, period, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amplitude*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	return out
}
