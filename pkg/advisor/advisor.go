// Package advisor provides the AI advisory gate. Every signal the indicator
// engine produces must be approved here before any order is placed.
package advisor

import (
	"context"
	"errors"

	"ovtrader/pkg/market"
)

// ErrUnavailable is returned when the advisor service cannot be reached or
// returns garbage. The scheduler degrades to the null advisor on it.
var ErrUnavailable = errors.New("advisor unavailable")

// Action is the advisor's verdict on a setup.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	// ActionShort is a valid advisor verdict but never clears the
	// execution gate; short entries execute as Sell.
	ActionShort Action = "SHORT"
)

// Signal is the advisor's full response for one symbol.
type Signal struct {
	Symbol       string  `json:"symbol"`
	Action       Action  `json:"action"`
	Entry        float64 `json:"entry"`
	Stop         float64 `json:"stop"`
	Target       float64 `json:"target"`
	PositionSize int     `json:"position_size"`
	Confidence   float64 `json:"confidence"`
	SetupType    string  `json:"setup_type"`
	Reasoning    string  `json:"reasoning"`
}

// Executable reports whether the signal clears the execution gate: a
// directional action with confidence strictly above the threshold.
func (s Signal) Executable() bool {
	return (s.Action == ActionBuy || s.Action == ActionSell) && s.Confidence > 0.7
}

// Advisor evaluates a market snapshot plus a candidate setup and returns a
// trading signal.
type Advisor interface {
	Evaluate(ctx context.Context, symbol string, sum market.Summary, setup *market.Setup) (Signal, error)
}

// Null is the degraded-mode advisor: it holds on everything.
type Null struct{}

// Evaluate always returns a Hold with zero confidence, so nothing executes.
func (Null) Evaluate(_ context.Context, symbol string, _ market.Summary, _ *market.Setup) (Signal, error) {
	return Signal{
		Symbol:     symbol,
		Action:     ActionHold,
		Confidence: 0,
		Reasoning:  "advisor unavailable, holding",
	}, nil
}
