package strategy

import (
	"reflect"
	"testing"
	"time"

	"github.com/quantfold/strata/types"
)

func TestSessionTiers(t *testing.T) {
	cases := []struct {
		hour    int
		name    string
		quality int
	}{
		{14, "overlap", 3},
		{16, "overlap", 3},
		{7, "london", 2},
		{12, "london", 2},
		{18, "newyork", 2},
		{21, "newyork", 2},
		{2, "offhours", 0},
		{22, "offhours", 0},
	}
	for _, c := range cases {
		got := sessionOf(c.hour)
		if got.name != c.name || got.quality != c.quality {
			t.Errorf("hour %d: got %s/%d, want %s/%d", c.hour, got.name, got.quality, c.name, c.quality)
		}
	}
}

/*
A strong one-way trend is the opposite of a scalping regime: RSI pins at an
extreme and the range expands, so the composite score stays under the entry
threshold and the strategy holds.
*/
func TestSAIScalperHoldsInStrongTrend(t *testing.T) {
	bars := barsFromCloses(rampCloses(100, 1, 80))
	sig := SAIScalper{}.Evaluate(bars, Params{Threshold: 1.5})
	if sig.Direction != types.Hold {
		t.Fatalf("strong trend should hold, got %s (%s)", sig.Direction, sig.Status)
	}
	if _, ok := sig.Diagnostics["score"]; !ok {
		t.Fatal("diagnostics missing score")
	}
	if _, ok := sig.Diagnostics["session_q"]; !ok {
		t.Fatal("diagnostics missing session_q")
	}
}

/*
Session quality comes from the last bar's timestamp, never from the wall
clock, and the worst tier gates every entry.
*/
func TestSAIScalperOffHoursGatesEntries(t *testing.T) {
	bars := barsFromCloses(sineCloses(100, 0.3, 16, 80))
	for i := range bars {
		bars[i].Time = bars[i].Time.Add(12 * time.Hour) // land at 02:00 UTC
	}
	sig := SAIScalper{}.Evaluate(bars, Params{Threshold: 1})
	if sig.Direction != types.Hold {
		t.Fatalf("off-hours session must hold, got %s (%s)", sig.Direction, sig.Status)
	}
	if q := sig.Diagnostics["session_q"]; q != 0 {
		t.Fatalf("expected session quality 0 off hours, got %f", q)
	}
}

func TestSAIScalperDeterministic(t *testing.T) {
	bars := barsFromCloses(sineCloses(100, 0.3, 16, 80))
	p := Params{Threshold: 1.5}
	a := SAIScalper{}.Evaluate(bars, p)
	b := SAIScalper{}.Evaluate(bars, p)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same input evaluated differently:\n%+v\n%+v", a, b)
	}
}

func TestSAIScalperInsufficientDataHolds(t *testing.T) {
	sig := SAIScalper{}.Evaluate(barsFromCloses(rampCloses(100, 1, 30)), Params{})
	if sig.Direction != types.Hold {
		t.Fatalf("short window must hold, got %s", sig.Direction)
	}
}
