// Package exchange defines the contract the engine needs from a derivatives
// exchange. The wire client lives elsewhere; the engine only depends on this
// interface and treats every transport failure uniformly.
package exchange

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/quantfold/strata/types"
)

// ErrRequestFailed wraps any exchange-side failure (network, auth, rate
// limit). Callers compare with errors.Is.
var ErrRequestFailed = errors.New("exchange request failed")

// Credentials authenticate account-scoped calls.
type Credentials struct {
	Key    string
	Secret string
}

// CandleQuery selects a window of historical bars.
type CandleQuery struct {
	Settle   string
	Contract string
	Interval string
	Limit    int
	From     time.Time
	To       time.Time
}

// Account is the subset of account state the sizing engine reads.
type Account struct {
	Available float64
	Total     float64
	Currency  string
}

// Position is an exchange-side open position.
type Position struct {
	Contract   string
	Size       float64
	EntryPrice float64
	Leverage   float64
}

// ContractMeta is raw contract metadata. Multiplier candidates are listed in
// resolution order; zero values mean "not provided by the exchange".
type ContractMeta struct {
	Name             string
	QuantoMultiplier float64
	ContractSize     float64
	Multiplier       float64
	OrderSizeMin     int
	LeverageMax      float64
	LastPrice        float64
}

// OrderRequest places a futures order. Size is signed: positive = long.
type OrderRequest struct {
	Contract   string
	Size       int
	Price      float64 // 0 = market
	TIF        string
	ReduceOnly bool
}

// OrderAck is the exchange acknowledgement of a placed order.
type OrderAck struct {
	ID     string
	Status string
}

// Client is the asynchronous exchange collaborator. Every method may fail
// with an error wrapping ErrRequestFailed.
type Client interface {
	Candles(ctx context.Context, q CandleQuery) ([]types.CandleBar, error)
	Account(ctx context.Context, settle string, creds Credentials) (Account, error)
	Positions(ctx context.Context, settle string, creds Credentials) ([]Position, error)
	ContractDetail(ctx context.Context, settle, contract string) (ContractMeta, error)
	PlaceOrder(ctx context.Context, settle string, req OrderRequest, creds Credentials) (OrderAck, error)
	SetLeverage(ctx context.Context, settle, contract string, leverage float64, creds Credentials) error
}

const (
	historyAttempts = 3
	historyBackoff  = 250 * time.Millisecond
)

// FetchHistory loads historical bars with bounded exponential backoff. This
// is the only retried exchange path; live-tick calls surface their first
// error and wait for the next scheduled tick.
func FetchHistory(ctx context.Context, c Client, q CandleQuery) ([]types.CandleBar, error) {
	var lastErr error
	delay := historyBackoff
	for attempt := 1; attempt <= historyAttempts; attempt++ {
		bars, err := c.Candles(ctx, q)
		if err == nil {
			return types.SortBars(bars), nil
		}
		lastErr = err
		if attempt == historyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "fetch history cancelled")
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, errors.Wrapf(lastErr, "fetch history for %s after %d attempts", q.Contract, historyAttempts)
}
