package exchange

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 14, 30, 17, 0, time.UTC)
}

func TestPaperCandlesAreDeterministic(t *testing.T) {
	p := NewPaper(30000, 10000)
	p.now = fixedNow

	q := CandleQuery{Contract: "BTC_USDT", Interval: "1m", Limit: 50}
	a, err := p.Candles(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Candles(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same query returned different bars")
	}
	if len(a) != 50 {
		t.Fatalf("expected 50 bars, got %d", len(a))
	}
	for i := 1; i < len(a); i++ {
		if !a[i].Time.After(a[i-1].Time) {
			t.Fatal("bars not strictly increasing")
		}
		if a[i].High < a[i].Low || a[i].Close <= 0 {
			t.Fatalf("malformed bar %+v", a[i])
		}
	}
}

func TestPaperCandlesHonorWindow(t *testing.T) {
	p := NewPaper(30000, 10000)
	p.now = fixedNow

	to := fixedNow().Add(-2 * time.Hour)
	q := CandleQuery{Contract: "BTC_USDT", Interval: "1m", Limit: 30, To: to}
	bars, err := p.Candles(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 30 {
		t.Fatalf("expected 30 bars, got %d", len(bars))
	}
	if last := bars[len(bars)-1].Time; !last.Equal(to.Truncate(time.Minute)) {
		t.Fatalf("window should end at To, got %v", last)
	}

	q.From = to.Truncate(time.Minute).Add(-10 * time.Minute)
	bars, err = p.Candles(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 11 {
		t.Fatalf("From should trim the window to 11 bars, got %d", len(bars))
	}
	if bars[0].Time.Before(q.From) {
		t.Fatalf("bar %v precedes From %v", bars[0].Time, q.From)
	}
}

func TestPaperOrdersTrackPosition(t *testing.T) {
	p := NewPaper(100, 10000)
	p.now = fixedNow
	ctx := context.Background()

	if _, err := p.PlaceOrder(ctx, "usdt", OrderRequest{Contract: "BTC_USDT", Size: 2, Price: 100}, Credentials{}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.PlaceOrder(ctx, "usdt", OrderRequest{Contract: "BTC_USDT", Size: 2, Price: 110}, Credentials{}); err != nil {
		t.Fatal(err)
	}
	positions, err := p.Positions(ctx, "usdt", Credentials{})
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected one position, got %d", len(positions))
	}
	if positions[0].Size != 4 || positions[0].EntryPrice != 105 {
		t.Fatalf("expected size 4 at vwap 105, got %+v", positions[0])
	}

	// Flip through zero: the remainder carries the fill price.
	if _, err := p.PlaceOrder(ctx, "usdt", OrderRequest{Contract: "BTC_USDT", Size: -6, Price: 120}, Credentials{}); err != nil {
		t.Fatal(err)
	}
	positions, _ = p.Positions(ctx, "usdt", Credentials{})
	if positions[0].Size != -2 || positions[0].EntryPrice != 120 {
		t.Fatalf("expected short 2 at 120 after flip, got %+v", positions[0])
	}
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"":    time.Minute,
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for in, want := range cases {
		got, err := parseInterval(in)
		if err != nil || got != want {
			t.Errorf("parseInterval(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseInterval("xx"); err == nil {
		t.Fatal("bad interval accepted")
	}
}
