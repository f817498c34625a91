// Package risk sizes positions from the account's value and a fixed per-trade
// risk budget.
package risk

import (
	"errors"
	"math"
)

var (
	// ErrNoAccountValue means sizing was attempted without a fresh,
	// positive account value. There is no fallback; the trade is skipped.
	ErrNoAccountValue = errors.New("account value unavailable for position sizing")
	// ErrZeroStopDistance means entry and stop coincide, so risk per share
	// is undefined.
	ErrZeroStopDistance = errors.New("entry and stop price coincide")
)

// PositionSize returns the share count such that a move from entry to stop
// loses at most riskPerTrade, capped so the position cost never exceeds the
// account value. A zero result means the trade does not fit and should be
// skipped.
func PositionSize(accountValue, riskPerTrade, entry, stop float64) (int, error) {
	if accountValue <= 0 {
		return 0, ErrNoAccountValue
	}
	if entry <= 0 || riskPerTrade <= 0 {
		return 0, errors.New("entry price and risk budget must be positive")
	}
	dist := math.Abs(entry - stop)
	if dist == 0 {
		return 0, ErrZeroStopDistance
	}

	shares := int(riskPerTrade / dist)
	if maxAffordable := int(accountValue / entry); shares > maxAffordable {
		shares = maxAffordable
	}
	if shares < 0 {
		shares = 0
	}
	return shares, nil
}
