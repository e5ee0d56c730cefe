package exchange_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/exchange"
	"github.com/quantfold/strata/testutils"
	"github.com/quantfold/strata/types"
)

var t0 = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func bar(i int) types.CandleBar {
	return types.CandleBar{
		Time:  t0.Add(time.Duration(i) * time.Minute),
		Open:  100, High: 101, Low: 99, Close: 100, Volume: 1,
	}
}

func TestFetchHistoryRetriesTransientFailures(t *testing.T) {
	ex := testutils.NewMockExchange([]types.CandleBar{bar(0), bar(1), bar(2)})
	ex.FailCandles = 2

	bars, err := exchange.FetchHistory(context.Background(), ex, exchange.CandleQuery{Contract: "BTC_USDT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if got := ex.CandleCalls(); got != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", got)
	}
}

func TestFetchHistoryGivesUpAfterThreeAttempts(t *testing.T) {
	ex := testutils.NewMockExchange(nil)
	ex.FailCandles = 100

	_, err := exchange.FetchHistory(context.Background(), ex, exchange.CandleQuery{Contract: "BTC_USDT"})
	if !errors.Is(err, exchange.ErrRequestFailed) {
		t.Fatalf("expected wrapped ErrRequestFailed, got %v", err)
	}
	if got := ex.CandleCalls(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestFetchHistorySortsAndDeduplicates(t *testing.T) {
	dup := bar(1)
	dup.Close = 123 // later occurrence wins
	ex := testutils.NewMockExchange([]types.CandleBar{bar(2), bar(0), bar(1), dup})

	bars, err := exchange.FetchHistory(context.Background(), ex, exchange.CandleQuery{Contract: "BTC_USDT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 deduplicated bars, got %d", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			t.Fatal("bars not strictly increasing in time")
		}
	}
	if bars[1].Close != 123 {
		t.Fatalf("duplicate timestamp should keep the last bar, got close %f", bars[1].Close)
	}
}

func TestFetchHistoryStopsOnCancelledContext(t *testing.T) {
	ex := testutils.NewMockExchange(nil)
	ex.FailCandles = 100

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := exchange.FetchHistory(ctx, ex, exchange.CandleQuery{Contract: "BTC_USDT"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if got := ex.CandleCalls(); got >= 3 {
		t.Fatalf("cancellation should cut retries short, got %d attempts", got)
	}
}
