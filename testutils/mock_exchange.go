package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/exchange"
	"github.com/quantfold/strata/types"
)

// MockExchange implements the exchange.Client interface in-memory. Canned
// responses are set directly on the struct; FailCandles makes the next N
// Candles calls fail for retry tests.
type MockExchange struct {
	mu sync.Mutex

	Bars     []types.CandleBar
	Acct     exchange.Account
	Pos      []exchange.Position
	Meta     exchange.ContractMeta
	AckID    string
	OrderErr error
	AcctErr  error

	FailCandles int
	// Delay stalls every Candles call, for tick-overlap tests.
	Delay time.Duration

	orders      []exchange.OrderRequest
	candleCalls int
	leverage    map[string]float64
}

// NewMockExchange creates an exchange with a reasonable default account and
// contract.
func NewMockExchange(bars []types.CandleBar) *MockExchange {
	return &MockExchange{
		Bars: bars,
		Acct: exchange.Account{Available: 10000, Total: 10000, Currency: "usdt"},
		Meta: exchange.ContractMeta{
			Name:             "BTC_USDT",
			QuantoMultiplier: 1,
			OrderSizeMin:     1,
			LeverageMax:      20,
		},
		AckID:    "mock-1",
		leverage: make(map[string]float64),
	}
}

func (m *MockExchange) Candles(ctx context.Context, q exchange.CandleQuery) ([]types.CandleBar, error) {
	m.mu.Lock()
	delay := m.Delay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candleCalls++
	if m.FailCandles > 0 {
		m.FailCandles--
		return nil, errors.Wrap(exchange.ErrRequestFailed, "mock candles failure")
	}
	out := make([]types.CandleBar, len(m.Bars))
	copy(out, m.Bars)
	return out, nil
}

func (m *MockExchange) Account(ctx context.Context, settle string, creds exchange.Credentials) (exchange.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcctErr != nil {
		return exchange.Account{}, m.AcctErr
	}
	return m.Acct, nil
}

func (m *MockExchange) Positions(ctx context.Context, settle string, creds exchange.Credentials) ([]exchange.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]exchange.Position, len(m.Pos))
	copy(out, m.Pos)
	return out, nil
}

func (m *MockExchange) ContractDetail(ctx context.Context, settle, contract string) (exchange.ContractMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Meta, nil
}

func (m *MockExchange) PlaceOrder(ctx context.Context, settle string, req exchange.OrderRequest, creds exchange.Credentials) (exchange.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OrderErr != nil {
		return exchange.OrderAck{}, m.OrderErr
	}
	m.orders = append(m.orders, req)
	return exchange.OrderAck{ID: fmt.Sprintf("%s-%d", m.AckID, len(m.orders)), Status: "finished"}, nil
}

func (m *MockExchange) SetLeverage(ctx context.Context, settle, contract string, leverage float64, creds exchange.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverage[contract] = leverage
	return nil
}

// Orders returns a copy of all placed orders (useful for assertions).
func (m *MockExchange) Orders() []exchange.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]exchange.OrderRequest, len(m.orders))
	copy(out, m.orders)
	return out
}

// CandleCalls reports how many times Candles was invoked, failures included.
func (m *MockExchange) CandleCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.candleCalls
}

// Leverage returns the last leverage set for a contract, 0 if never set.
func (m *MockExchange) Leverage(contract string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leverage[contract]
}
