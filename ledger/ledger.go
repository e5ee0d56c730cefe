// Package ledger tracks the single synthetic position of a strategy
// instance and realizes trades when the direction flips or a risk exit
// fires. One ledger belongs to exactly one instance; its mutex enforces the
// at-most-one-writer rule for that instance's position state.
package ledger

import (
	"sync"
	"time"

	"github.com/quantfold/strata/risk"
	"github.com/quantfold/strata/types"
)

// Stats aggregates the realized history of one instance.
type Stats struct {
	TradeCount int
	WinTrades  int
	LossTrades int
	TotalPnL   float64
}

// Ledger is the per-instance performance ledger.
type Ledger struct {
	mu     sync.Mutex
	pos    *types.OpenPosition
	trades []types.Trade
	stats  Stats
}

// New returns an empty ledger.
func New() *Ledger { return &Ledger{} }

// Restore seeds the ledger with a persisted open position, if any.
func Restore(pos *types.OpenPosition) *Ledger {
	l := New()
	if pos != nil && pos.Size > 0 {
		cp := *pos
		l.pos = &cp
	}
	return l
}

// Open returns a copy of the current open position, or nil.
func (l *Ledger) Open() *types.OpenPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos == nil {
		return nil
	}
	cp := *l.pos
	return &cp
}

// Stats returns the running aggregates.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Trades returns a copy of the realized trade history.
func (l *Ledger) Trades() []types.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// UnrealizedPnL marks the open position at price. Zero when flat.
func (l *Ledger) UnrealizedPnL(price float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos == nil {
		return 0
	}
	pnl, _, _ := risk.PositionMetrics(l.pos.Direction, l.pos.EntryPrice, price, l.pos.Size, l.pos.ContractSize, l.pos.Leverage)
	return pnl
}

// Apply folds an executed signal into the position state. With no prior
// position it opens one; a same-direction fill extends it with a
// size-weighted average entry; an opposite-direction fill closes the whole
// position, realizes a trade and opens the new one. The realized trade is
// returned when a flip happened, nil otherwise.
func (l *Ledger) Apply(direction types.Direction, size, price float64, at time.Time, leverage, contractSize float64) *types.Trade {
	if size <= 0 || (direction != types.Long && direction != types.Short) {
		return nil
	}
	if contractSize <= 0 {
		contractSize = 1
	}
	if leverage < 1 {
		leverage = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == nil {
		l.pos = &types.OpenPosition{
			Direction:    direction,
			Size:         size,
			EntryPrice:   price,
			EntryTime:    at,
			Leverage:     leverage,
			ContractSize: contractSize,
		}
		return nil
	}

	if l.pos.Direction == direction {
		total := l.pos.Size + size
		l.pos.EntryPrice = (l.pos.EntryPrice*l.pos.Size + price*size) / total
		l.pos.Size = total
		return nil
	}

	trade := l.realize(price, at, "signal-flip")
	l.pos = &types.OpenPosition{
		Direction:    direction,
		Size:         size,
		EntryPrice:   price,
		EntryTime:    at,
		Leverage:     leverage,
		ContractSize: contractSize,
	}
	return trade
}

// CloseAt realizes the open position at price (risk exit or forced close).
// Returns nil when flat.
func (l *Ledger) CloseAt(price float64, at time.Time, reason string) *types.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos == nil {
		return nil
	}
	trade := l.realize(price, at, reason)
	l.pos = nil
	return trade
}

// realize assumes the lock is held and l.pos is non-nil.
func (l *Ledger) realize(price float64, at time.Time, reason string) *types.Trade {
	p := l.pos
	pnl, _, returnPct := risk.PositionMetrics(p.Direction, p.EntryPrice, price, p.Size, p.ContractSize, p.Leverage)
	trade := types.Trade{
		Direction:    p.Direction,
		Size:         p.Size,
		EntryPrice:   p.EntryPrice,
		ExitPrice:    price,
		EntryTime:    p.EntryTime,
		ExitTime:     at,
		PnL:          pnl,
		ReturnPct:    returnPct,
		ContractSize: p.ContractSize,
		Reason:       reason,
	}
	l.trades = append(l.trades, trade)
	l.stats.TradeCount++
	l.stats.TotalPnL += pnl
	if pnl >= 0 {
		l.stats.WinTrades++
	} else {
		l.stats.LossTrades++
	}
	return &trade
}
