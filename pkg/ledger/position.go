// Package ledger tracks open positions through their whole lifecycle: entry,
// trailing stop maintenance, breakeven, scaling, and the end-of-day close.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"ovtrader/pkg/market"
)

// Position status values.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// maxAdditions caps pyramiding per position.
const maxAdditions = 2

// Addition is one scale-in fill on an existing position.
type Addition struct {
	Shares int       `json:"shares"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

// Position is one open or closed trade.
type Position struct {
	ID               string           `json:"id"`
	Symbol           string           `json:"symbol"`
	AccountID        string           `json:"account_id"`
	Direction        market.Direction `json:"direction"`
	SetupType        market.SetupType `json:"setup_type"`
	EntryPrice       float64          `json:"entry_price"`
	AverageEntry     float64          `json:"average_entry"`
	Quantity         int              `json:"quantity"`
	InitialStop      float64          `json:"initial_stop"`
	CurrentStop      float64          `json:"current_stop"`
	Target           float64          `json:"target"`
	ATRAtEntry       float64          `json:"atr_at_entry"`
	FavorableExtreme float64          `json:"favorable_extreme"`
	BreakevenSet     bool             `json:"breakeven_set"`
	Additions        []Addition       `json:"additions,omitempty"`
	EntryTime        time.Time        `json:"entry_time"`
	ExitTime         time.Time        `json:"exit_time,omitzero"`
	ExitPrice        float64          `json:"exit_price,omitempty"`
	PnL              float64          `json:"pnl,omitempty"`
	Status           string           `json:"status"`
}

// NewPosition opens a position record for a fresh fill.
func NewPosition(symbol, accountID string, dir market.Direction, setup market.SetupType,
	entry, stop, target, atr float64, qty int, at time.Time) *Position {
	return &Position{
		ID:               uuid.NewString(),
		Symbol:           symbol,
		AccountID:        accountID,
		Direction:        dir,
		SetupType:        setup,
		EntryPrice:       entry,
		AverageEntry:     entry,
		Quantity:         qty,
		InitialStop:      stop,
		CurrentStop:      stop,
		Target:           target,
		ATRAtEntry:       atr,
		FavorableExtreme: entry,
		EntryTime:        at,
		Status:           StatusOpen,
	}
}

// TotalQuantity is the initial fill plus all additions.
func (p *Position) TotalQuantity() int {
	qty := p.Quantity
	for _, a := range p.Additions {
		qty += a.Shares
	}
	return qty
}

// UnrealizedPnL values the position at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	qty := float64(p.TotalQuantity())
	if p.Direction == market.Short {
		return (p.AverageEntry - price) * qty
	}
	return (price - p.AverageEntry) * qty
}

// favorableMove is how far price has moved in the position's favor, in ATRs
// at entry. Zero when ATR was unknown.
func (p *Position) favorableMove(price float64) float64 {
	if p.ATRAtEntry <= 0 {
		return 0
	}
	if p.Direction == market.Short {
		return (p.AverageEntry - price) / p.ATRAtEntry
	}
	return (price - p.AverageEntry) / p.ATRAtEntry
}
