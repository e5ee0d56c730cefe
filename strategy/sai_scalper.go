package strategy

import (
	"fmt"
	"math"

	"github.com/quantfold/strata/indicator"
	"github.com/quantfold/strata/types"
)

// SAI scalper tuning. The composite score buckets are fixed; only the entry
// threshold derives from the instance's Threshold parameter.
const (
	saiATRPeriod    = 14
	saiKeyValue     = 2.0
	saiATRAvgWindow = 50
	saiVolWindow    = 20
	saiRangeWindow  = 14
	saiBBWindow     = 20
	saiFibWindow    = 34
	saiAlpha        = 0.3
	saiConfirmBars  = 3
)

// Trading sessions by UTC hour. Quality 0 is the worst tier and gates all
// entries.
type session struct {
	name    string
	quality int
}

func sessionOf(hour int) session {
	switch {
	case hour >= 13 && hour <= 16:
		return session{"overlap", 3}
	case hour >= 7 && hour <= 12:
		return session{"london", 2}
	case hour >= 17 && hour <= 21:
		return session{"newyork", 2}
	}
	return session{"offhours", 0}
}

// SAIScalper is the composite scalping strategy. It only proposes a trade
// when, at the same time: the hysteresis state machine is in its scalping
// regime, the smoothed compression score clears the entry threshold, the
// price sits inside the Fibonacci optimal-entry zone of the current swing,
// and the trading session (taken from the last bar's timestamp, never the
// wall clock) is not the worst tier.
type SAIScalper struct{}

func (SAIScalper) Name() string { return IDSAIScalper }

func (SAIScalper) Evaluate(bars []types.CandleBar, p Params) types.Signal {
	p = p.normalized()
	need := saiATRAvgWindow + 2
	if len(bars) < need {
		return types.HoldSignal(fmt.Sprintf("need %d bars, have %d", need, len(bars)))
	}

	src := source(bars, p)
	highs, lows, closes := types.Highs(bars), types.Lows(bars), types.Closes(bars)
	vols := types.Volumes(bars)
	last := len(bars) - 1

	atr := indicator.ATR(highs, lows, closes, saiATRPeriod)
	atrAvg := indicator.SMA(atr, saiATRAvgWindow)
	adx := indicator.ADX(highs, lows, closes, saiATRPeriod)
	volAvg := indicator.SMA(vols, saiVolWindow)
	rngHigh := indicator.RollingMax(highs, saiRangeWindow)
	rngLow := indicator.RollingMin(lows, saiRangeWindow)
	rsi := indicator.RSI(closes, rsiPeriod)
	bbStd := indicator.Std(closes, saiBBWindow)
	bbMid := indicator.SMA(closes, saiBBWindow)

	scoreAt := func(i int) float64 {
		s := 0
		s += bucketLow(atr[i]/nz(atrAvg[i]), 0.8, 1.0)
		s += bucketHigh(adx[i], 25, 18)
		s += bucketHigh(vols[i]/nz(volAvg[i]), 1.5, 1.1)
		if closes[i] > 0 {
			s += bucketLow((rngHigh[i]-rngLow[i])/closes[i], 0.02, 0.04)
		}
		s += bucketLow(math.Abs(rsi[i]-50), 10, 20)
		s += bucketLow(4*bbStd[i]/nz(bbMid[i]), 0.02, 0.04)
		if s > 10 {
			s = 10
		}
		return float64(s)
	}

	entry := clamp(p.Threshold*4, 3, 9)
	exit := entry - 1
	prime := math.Min(entry+2, 9)

	// Walk the window once: exponential smoothing of the raw score plus the
	// two hysteresis flags, each needing saiConfirmBars consecutive
	// confirmations to flip.
	start := saiATRAvgWindow - 1
	smoothed := scoreAt(start)
	isScalping, isPrime := false, false
	onStreak, offStreak, primeOn, primeOff := 0, 0, 0, 0
	for i := start + 1; i <= last; i++ {
		smoothed = saiAlpha*scoreAt(i) + (1-saiAlpha)*smoothed

		if smoothed >= entry {
			onStreak++
			offStreak = 0
		} else if smoothed < exit {
			offStreak++
			onStreak = 0
		} else {
			onStreak, offStreak = 0, 0
		}
		if onStreak >= saiConfirmBars {
			isScalping = true
		}
		if offStreak >= saiConfirmBars {
			isScalping = false
		}

		if smoothed >= prime {
			primeOn++
			primeOff = 0
		} else {
			primeOff++
			primeOn = 0
		}
		if primeOn >= saiConfirmBars {
			isPrime = true
		}
		if primeOff >= saiConfirmBars {
			isPrime = false
		}
	}

	_, side := atrTrailingStop(src, indicator.ATR(highs, lows, closes, saiATRPeriod), saiKeyValue)
	trend := side[last]

	swingHigh := indicator.RollingMax(highs, saiFibWindow)[last]
	swingLow := indicator.RollingMin(lows, saiFibWindow)[last]
	swing := swingHigh - swingLow
	price := closes[last]
	inZone := false
	if swing > 0 {
		if trend > 0 {
			inZone = price >= swingHigh-0.618*swing && price <= swingHigh-0.382*swing
		} else {
			inZone = price >= swingLow+0.382*swing && price <= swingLow+0.618*swing
		}
	}

	sess := sessionOf(bars[last].Time.UTC().Hour())
	diag := map[string]float64{
		"score":       smoothed,
		"entry":       entry,
		"trend":       float64(trend),
		"in_zone":     boolToFloat(inZone),
		"is_scalping": boolToFloat(isScalping),
		"is_prime":    boolToFloat(isPrime),
		"session_q":   float64(sess.quality),
	}

	tradable := isScalping && inZone && smoothed >= entry && sess.quality > 0
	if !tradable {
		return types.Signal{
			Direction:       types.Hold,
			RawScore:        smoothed,
			ScaleMultiplier: 1,
			Status: fmt.Sprintf("score %.1f/%.1f scalping=%t zone=%t session=%s",
				smoothed, entry, isScalping, inZone, sess.name),
			Diagnostics: diag,
		}
	}

	dir := types.Long
	if trend < 0 {
		dir = types.Short
	}
	scale := 1.0
	if isPrime {
		scale = 2
	}
	return types.Signal{
		Direction:       dir,
		Strength:        clamp(smoothed/10, 0, 1),
		RawScore:        smoothed,
		ScaleMultiplier: scale,
		Status: fmt.Sprintf("scalp %s: score %.1f, %s session, prime=%t",
			dir, smoothed, sess.name, isPrime),
		Diagnostics: diag,
	}
}

// bucketLow scores a "smaller is better" reading: 2 under tight, 1 under
// loose, else 0.
func bucketLow(v, tight, loose float64) int {
	if math.IsNaN(v) {
		return 0
	}
	if v <= tight {
		return 2
	}
	if v <= loose {
		return 1
	}
	return 0
}

// bucketHigh scores a "bigger is better" reading.
func bucketHigh(v, strong, moderate float64) int {
	if math.IsNaN(v) {
		return 0
	}
	if v >= strong {
		return 2
	}
	if v >= moderate {
		return 1
	}
	return 0
}

// nz poisons a missing or zero denominator so the resulting ratio reads as
// NaN and scores zero.
func nz(v float64) float64 {
	if math.IsNaN(v) || v == 0 {
		return math.NaN()
	}
	return v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
