package types

import (
	"sort"
	"time"
)

// Direction of a signal or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Hold  Direction = "HOLD"
)

// Sign returns +1 for Long, -1 for Short and 0 for Hold.
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	}
	return 0
}

// Opposite returns the flipped direction. Hold stays Hold.
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	}
	return Hold
}

// CandleBar is a single OHLCV sample. Immutable once constructed.
type CandleBar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Signal is the output of one strategy evaluation. Produced fresh on every
// call and never mutated afterwards.
type Signal struct {
	Direction Direction
	// Strength in [0,1]; 0 for Hold.
	Strength float64
	// RawScore is the unclamped score the strength was derived from
	// (z-score, RSI distance, composite score, ...).
	RawScore float64
	// ScaleMultiplier scales the configured base size, >= 1 for actionable
	// signals.
	ScaleMultiplier float64
	Status          string
	Diagnostics     map[string]float64
}

// HoldSignal builds a non-actionable signal with the supplied status text.
func HoldSignal(status string) Signal {
	return Signal{Direction: Hold, ScaleMultiplier: 1, Status: status}
}

// Actionable reports whether the signal requests a trade.
func (s Signal) Actionable() bool {
	return s.Direction == Long || s.Direction == Short
}

// OpenPosition is the single synthetic position an instance may hold.
type OpenPosition struct {
	Direction    Direction
	Size         float64
	EntryPrice   float64
	EntryTime    time.Time
	Leverage     float64
	ContractSize float64
}

// Trade is an immutable realized-trade record.
type Trade struct {
	Direction    Direction
	Size         float64
	EntryPrice   float64
	ExitPrice    float64
	EntryTime    time.Time
	ExitTime     time.Time
	PnL          float64
	ReturnPct    float64
	ContractSize float64
	Reason       string
}

// InstanceStatus is the lifecycle state of a strategy instance.
type InstanceStatus string

const (
	StatusRunning InstanceStatus = "running"
	StatusStopped InstanceStatus = "stopped"
)

// RunStatus is the state of a single scheduler tick.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunLogEntry is the append-only audit record of one tick.
type RunLogEntry struct {
	ID            int64
	InstanceID    int64
	Status        RunStatus
	Action        string
	ShouldTrade   bool
	OrderSize     int
	OrderNotional float64
	OrderID       string
	ErrorMessage  string
	Snapshot      map[string]any
	StartedAt     time.Time
	FinishedAt    time.Time
}

// SortBars returns the bars ordered by strictly increasing time. Duplicated
// timestamps keep the last occurrence. The input slice is not modified.
func SortBars(bars []CandleBar) []CandleBar {
	out := make([]CandleBar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Time.Equal(b.Time) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}

// Closes extracts the close series from bars.
func Closes(bars []CandleBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high series from bars.
func Highs(bars []CandleBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low series from bars.
func Lows(bars []CandleBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volume series from bars.
func Volumes(bars []CandleBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
