// Package broker defines the brokerage interface the trading system consumes
// and its Alpaca-backed implementation.
package broker

import (
	"context"
	"fmt"
	"time"

	"ovtrader/pkg/market"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderType selects market or limit execution.
type OrderType string

const (
	MarketOrder OrderType = "market"
	LimitOrder  OrderType = "limit"
)

// OrderRequest describes an order to place.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Qty        int
	Type       OrderType
	LimitPrice *float64
}

// OrderResult is the brokerage's acknowledgement of a placed order.
type OrderResult struct {
	ID             string
	Status         string
	FilledAvgPrice float64
}

// Account is a snapshot of the trading account's balances.
type Account struct {
	ID             string
	Cash           float64
	BuyingPower    float64
	PortfolioValue float64
}

// AvailableFunds is the cash usable for new entries.
func (a Account) AvailableFunds() float64 { return a.Cash }

// BarsRequest parameterizes a historical bar fetch.
type BarsRequest struct {
	TimeFrameMinutes int
	Start            time.Time
	End              time.Time
	Limit            int
}

// Client is the brokerage surface the trading system depends on.
type Client interface {
	Account(ctx context.Context) (Account, error)
	Quote(ctx context.Context, symbol string) (float64, error)
	HistoricalBars(ctx context.Context, symbol string, req BarsRequest) ([]market.Bar, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, id string) error
}

// AuthError marks a credential problem (expired or invalid token). The Alpaca
// client retries once transparently before surfacing it.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not authenticated: %v", e.Err)
	}
	return "not authenticated"
}

func (e *AuthError) Unwrap() error { return e.Err }

// ExecutionError marks a rejected or failed order. Signals that hit it are
// skipped, not retried.
type ExecutionError struct {
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("order for %s failed: %v", e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
