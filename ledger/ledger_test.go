package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/quantfold/strata/types"
)

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func TestOpenExtendFlip(t *testing.T) {
	l := New()

	if trade := l.Apply(types.Long, 2, 100, at(0), 1, 1); trade != nil {
		t.Fatalf("first fill must open, not realize: %+v", trade)
	}
	pos := l.Open()
	if pos == nil || pos.Direction != types.Long || pos.Size != 2 {
		t.Fatalf("unexpected open position %+v", pos)
	}

	// Same direction extends with size-weighted entry: (100*2 + 130*1)/3 = 110.
	if trade := l.Apply(types.Long, 1, 130, at(60), 1, 1); trade != nil {
		t.Fatalf("same-direction fill must extend, not realize: %+v", trade)
	}
	pos = l.Open()
	if pos.Size != 3 || math.Abs(pos.EntryPrice-110) > 1e-9 {
		t.Fatalf("weighted entry wrong: %+v", pos)
	}

	// Opposite direction flips: realize (120-110)*3 = 30, then open short.
	trade := l.Apply(types.Short, 1, 120, at(120), 1, 1)
	if trade == nil {
		t.Fatal("flip must realize a trade")
	}
	if math.Abs(trade.PnL-30) > 1e-9 {
		t.Fatalf("flip pnl = %f, want 30", trade.PnL)
	}
	pos = l.Open()
	if pos == nil || pos.Direction != types.Short || pos.Size != 1 {
		t.Fatalf("flip should leave a short open, got %+v", pos)
	}

	stats := l.Stats()
	if stats.TradeCount != 1 || stats.WinTrades != 1 || stats.LossTrades != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCloseAt(t *testing.T) {
	l := New()
	l.Apply(types.Short, 2, 100, at(0), 2, 1)
	trade := l.CloseAt(90, at(60), "stop-loss")
	if trade == nil || trade.Reason != "stop-loss" {
		t.Fatalf("expected stop-loss close, got %+v", trade)
	}
	// short: (100-90)*2 = 20
	if math.Abs(trade.PnL-20) > 1e-9 {
		t.Fatalf("pnl = %f, want 20", trade.PnL)
	}
	if l.Open() != nil {
		t.Fatal("position must be flat after CloseAt")
	}
	if l.CloseAt(80, at(120), "again") != nil {
		t.Fatal("closing a flat ledger must be a no-op")
	}
}

func TestUnrealizedPnL(t *testing.T) {
	l := New()
	if l.UnrealizedPnL(100) != 0 {
		t.Fatal("flat ledger has no unrealized pnl")
	}
	l.Apply(types.Long, 2, 100, at(0), 1, 0.5)
	// (105-100)*2*0.5 = 5
	if got := l.UnrealizedPnL(105); math.Abs(got-5) > 1e-9 {
		t.Fatalf("unrealized = %f, want 5", got)
	}
}

func TestRestore(t *testing.T) {
	l := Restore(&types.OpenPosition{Direction: types.Long, Size: 1, EntryPrice: 50, Leverage: 1, ContractSize: 1})
	if pos := l.Open(); pos == nil || pos.EntryPrice != 50 {
		t.Fatalf("restore lost the position: %+v", pos)
	}
	if l := Restore(nil); l.Open() != nil {
		t.Fatal("restore of nil must be flat")
	}
}

func TestHoldAndZeroSizeIgnored(t *testing.T) {
	l := New()
	if l.Apply(types.Hold, 1, 100, at(0), 1, 1) != nil || l.Open() != nil {
		t.Fatal("hold must not open a position")
	}
	if l.Apply(types.Long, 0, 100, at(0), 1, 1) != nil || l.Open() != nil {
		t.Fatal("zero size must not open a position")
	}
}
