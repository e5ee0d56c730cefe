package exchange

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/types"
)

// Paper is an in-process Client for dry runs: perfect fills at the synthetic
// mark price, no slippage, no network. Candles are generated from a
// deterministic function of the bar timestamp, so repeated queries over the
// same window return identical bars.
type Paper struct {
	mu        sync.Mutex
	basePrice float64
	available float64
	positions map[string]*paperPosition
	leverage  map[string]float64
	orderSeq  int

	// now is swapped out in tests.
	now func() time.Time
}

type paperPosition struct {
	size  float64 // signed, positive = long
	entry float64
}

// NewPaper creates a paper exchange around a base price and starting
// balance.
func NewPaper(basePrice, balance float64) *Paper {
	if basePrice <= 0 {
		basePrice = 100
	}
	if balance <= 0 {
		balance = 10000
	}
	return &Paper{
		basePrice: basePrice,
		available: balance,
		positions: make(map[string]*paperPosition),
		leverage:  make(map[string]float64),
		now:       time.Now,
	}
}

// priceAt is the synthetic mark: two superimposed cycles around the base
// price, a pure function of the timestamp.
func (p *Paper) priceAt(ts time.Time) float64 {
	t := float64(ts.Unix())
	return p.basePrice * (1 +
		0.02*math.Sin(2*math.Pi*t/3600) +
		0.005*math.Sin(2*math.Pi*t/540))
}

func (p *Paper) Candles(ctx context.Context, q CandleQuery) ([]types.CandleBar, error) {
	iv, err := parseInterval(q.Interval)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 120
	}
	end := p.now().UTC().Truncate(iv)
	if !q.To.IsZero() {
		end = q.To.UTC().Truncate(iv)
	}
	bars := make([]types.CandleBar, 0, limit)
	for i := 0; i < limit; i++ {
		ts := end.Add(-time.Duration(limit-1-i) * iv)
		if !q.From.IsZero() && ts.Before(q.From) {
			continue
		}
		open := p.priceAt(ts.Add(-iv))
		close := p.priceAt(ts)
		bars = append(bars, types.CandleBar{
			Time:   ts,
			Open:   open,
			High:   math.Max(open, close) * 1.001,
			Low:    math.Min(open, close) * 0.999,
			Close:  close,
			Volume: 1000,
		})
	}
	return bars, nil
}

func (p *Paper) Account(ctx context.Context, settle string, creds Credentials) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Account{Available: p.available, Total: p.available, Currency: settle}, nil
}

func (p *Paper) Positions(ctx context.Context, settle string, creds Credentials) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for contract, pos := range p.positions {
		if pos.size == 0 {
			continue
		}
		out = append(out, Position{
			Contract:   contract,
			Size:       pos.size,
			EntryPrice: pos.entry,
			Leverage:   p.leverage[contract],
		})
	}
	return out, nil
}

func (p *Paper) ContractDetail(ctx context.Context, settle, contract string) (ContractMeta, error) {
	return ContractMeta{
		Name:             contract,
		QuantoMultiplier: 1,
		OrderSizeMin:     1,
		LeverageMax:      100,
		LastPrice:        p.priceAt(p.now().UTC()),
	}, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, settle string, req OrderRequest, creds Credentials) (OrderAck, error) {
	if req.Size == 0 {
		return OrderAck{}, errors.Wrap(ErrRequestFailed, "zero-size order")
	}
	fill := req.Price
	if fill <= 0 {
		fill = p.priceAt(p.now().UTC())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[req.Contract]
	if !ok {
		pos = &paperPosition{}
		p.positions[req.Contract] = pos
	}
	size := float64(req.Size)
	if pos.size == 0 || (pos.size > 0) == (size > 0) {
		total := pos.size + size
		pos.entry = (pos.entry*math.Abs(pos.size) + fill*math.Abs(size)) / math.Abs(total)
		pos.size = total
	} else {
		// Opposite side reduces and may flip.
		pos.size += size
		if pos.size == 0 {
			pos.entry = 0
		} else if (pos.size > 0) != (pos.size-size > 0) {
			pos.entry = fill
		}
	}
	p.orderSeq++
	return OrderAck{ID: fmt.Sprintf("paper-%d", p.orderSeq), Status: "finished"}, nil
}

func (p *Paper) SetLeverage(ctx context.Context, settle, contract string, leverage float64, creds Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage[contract] = leverage
	return nil
}

// parseInterval accepts the usual exchange interval notation (30s, 1m, 4h,
// 1d).
func parseInterval(s string) (time.Duration, error) {
	if s == "" {
		return time.Minute, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, errors.Errorf("bad interval %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	iv, err := time.ParseDuration(s)
	if err != nil || iv <= 0 {
		return 0, errors.Errorf("bad interval %q", s)
	}
	return iv, nil
}
