package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ovtrader/pkg/market"
)

// Alpaca implements Client against the Alpaca trading and market data APIs.
type Alpaca struct {
	trading *alpaca.Client
	data    *marketdata.Client
	log     *zap.Logger
}

// NewAlpaca builds an Alpaca-backed broker client.
func NewAlpaca(apiKey, apiSecret, baseURL string, logger *zap.Logger) *Alpaca {
	return &Alpaca{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		log: logger,
	}
}

// Account fetches the current account snapshot.
func (a *Alpaca) Account(ctx context.Context) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	acct, err := withAuthRetry(a, func() (*alpaca.Account, error) {
		return a.trading.GetAccount()
	})
	if err != nil {
		return Account{}, err
	}
	return Account{
		ID:             acct.ID,
		Cash:           acct.Cash.InexactFloat64(),
		BuyingPower:    acct.BuyingPower.InexactFloat64(),
		PortfolioValue: acct.PortfolioValue.InexactFloat64(),
	}, nil
}

// Quote returns the latest trade price for the symbol.
func (a *Alpaca) Quote(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	trade, err := withAuthRetry(a, func() (*marketdata.Trade, error) {
		return a.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	})
	if err != nil {
		return 0, fmt.Errorf("latest trade for %s: %w", symbol, err)
	}
	return trade.Price, nil
}

// HistoricalBars fetches intraday bars and converts them to the internal
// representation, oldest first.
func (a *Alpaca) HistoricalBars(ctx context.Context, symbol string, req BarsRequest) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	minutes := req.TimeFrameMinutes
	if minutes <= 0 {
		minutes = 5
	}
	raw, err := withAuthRetry(a, func() ([]marketdata.Bar, error) {
		return a.data.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.NewTimeFrame(minutes, marketdata.Min),
			Start:      req.Start,
			End:        req.End,
			TotalLimit: req.Limit,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bars for %s: %w", symbol, err)
	}
	bars := make([]market.Bar, len(raw))
	for i, b := range raw {
		bars[i] = market.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		}
	}
	return bars, nil
}

// PlaceOrder submits a day order. Rejections come back as *ExecutionError.
func (a *Alpaca) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	qty := decimal.NewFromInt(int64(req.Qty))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(req.Side),
		Type:        alpaca.OrderType(req.Type),
		TimeInForce: alpaca.Day,
	}
	if req.Type == LimitOrder && req.LimitPrice != nil {
		lp := decimal.NewFromFloat(*req.LimitPrice).Round(2)
		orderReq.LimitPrice = &lp
	}
	order, err := withAuthRetry(a, func() (*alpaca.Order, error) {
		return a.trading.PlaceOrder(orderReq)
	})
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return OrderResult{}, err
		}
		return OrderResult{}, &ExecutionError{Symbol: req.Symbol, Err: err}
	}
	res := OrderResult{ID: order.ID, Status: string(order.Status)}
	if order.FilledAvgPrice != nil {
		res.FilledAvgPrice = order.FilledAvgPrice.InexactFloat64()
	}
	a.log.Info("order placed",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Int("qty", req.Qty),
		zap.String("order_id", order.ID))
	return res, nil
}

// CancelOrder cancels an open order by id.
func (a *Alpaca) CancelOrder(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := withAuthRetry(a, func() (struct{}, error) {
		return struct{}{}, a.trading.CancelOrder(id)
	})
	return err
}

// withAuthRetry runs call, retrying exactly once on a credential failure.
// A second failure surfaces as *AuthError.
func withAuthRetry[T any](a *Alpaca, call func() (T, error)) (T, error) {
	v, err := call()
	if err == nil || !isAuthFailure(err) {
		return v, err
	}
	a.log.Warn("brokerage auth failure, retrying once", zap.Error(err))
	v, err = call()
	if err != nil && isAuthFailure(err) {
		var zero T
		return zero, &AuthError{Err: err}
	}
	return v, err
}

func isAuthFailure(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	// The market data client does not expose a typed error.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden")
}
