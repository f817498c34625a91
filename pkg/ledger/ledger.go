package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"ovtrader/pkg/broker"
	"ovtrader/pkg/market"
	"ovtrader/pkg/perf"
	"ovtrader/pkg/store"
)

// OutcomeSink receives every closed trade.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, tr perf.Trade)
}

// Ledger owns all open positions. A single mutex guards the set; the
// scheduler goroutine is the only writer in production.
type Ledger struct {
	mu        sync.Mutex
	positions []*Position
	params    perf.Parameters

	broker broker.Client
	sink   OutcomeSink
	store  store.Store
	log    *zap.Logger
	now    func() time.Time
	loc    *time.Location
}

// New builds a ledger. The clock defaults to time.Now and the session
// timezone to New York.
func New(b broker.Client, sink OutcomeSink, st store.Store, logger *zap.Logger) *Ledger {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// The tzdata is compiled in via cmd; this only trips on a broken build.
		panic(fmt.Sprintf("load New York timezone: %v", err))
	}
	return &Ledger{
		params: perf.DefaultParameters(),
		broker: b,
		sink:   sink,
		store:  st,
		log:    logger,
		now:    time.Now,
		loc:    loc,
	}
}

// SetClock overrides the ledger's clock. Intended for tests.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// SetParams swaps in freshly tuned risk parameters.
func (l *Ledger) SetParams(p perf.Parameters) {
	l.mu.Lock()
	l.params = p
	l.mu.Unlock()
}

// Add registers a new open position. A second open position for the same
// symbol and account is rejected.
func (l *Ledger) Add(ctx context.Context, p *Position) error {
	l.mu.Lock()
	for _, existing := range l.positions {
		if existing.Status == StatusOpen &&
			existing.Symbol == p.Symbol && existing.AccountID == p.AccountID {
			l.mu.Unlock()
			return fmt.Errorf("open position already exists for %s", p.Symbol)
		}
	}
	l.positions = append(l.positions, p)
	l.mu.Unlock()

	l.log.Info("position opened",
		zap.String("symbol", p.Symbol),
		zap.String("direction", string(p.Direction)),
		zap.String("setup", string(p.SetupType)),
		zap.Int("qty", p.Quantity),
		zap.Float64("entry", p.EntryPrice),
		zap.Float64("stop", p.CurrentStop))
	return l.persist(ctx)
}

// Open returns copies of all open positions.
func (l *Ledger) Open() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		if p.Status == StatusOpen {
			out = append(out, *p)
		}
	}
	return out
}

// OpenCount reports the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.positions {
		if p.Status == StatusOpen {
			n++
		}
	}
	return n
}

// UpdateTrailingStop advances the favorable extreme and ratchets the stop
// toward price by the trailing ATR multiple. The stop only ever tightens; a
// widening candidate is ignored. Returns true when the stop moved.
func (l *Ledger) UpdateTrailingStop(p *Position, price float64) bool {
	if p.Direction == market.Short {
		p.FavorableExtreme = math.Min(p.FavorableExtreme, price)
	} else {
		p.FavorableExtreme = math.Max(p.FavorableExtreme, price)
	}
	trail := l.params.TrailingStopATR * p.ATRAtEntry
	if trail <= 0 {
		return false
	}
	if p.Direction == market.Short {
		if candidate := price + trail; candidate < p.CurrentStop {
			p.CurrentStop = candidate
			return true
		}
		return false
	}
	if candidate := price - trail; candidate > p.CurrentStop {
		p.CurrentStop = candidate
		return true
	}
	return false
}

// CheckBreakeven moves the stop to the average entry once price has moved
// the breakeven ATR multiple in the position's favor. Fires at most once per
// position and never loosens the stop.
func (l *Ledger) CheckBreakeven(p *Position, price float64) bool {
	if p.BreakevenSet || p.favorableMove(price) < l.params.BreakevenATR {
		return false
	}
	p.BreakevenSet = true
	if p.Direction == market.Short {
		if p.AverageEntry < p.CurrentStop {
			p.CurrentStop = p.AverageEntry
		}
	} else if p.AverageEntry > p.CurrentStop {
		p.CurrentStop = p.AverageEntry
	}
	return true
}

// CanAdd authorizes a scale-in: fewer than the addition cap, and price at
// least the scaling threshold (in ATRs) in the position's favor.
func (l *Ledger) CanAdd(p *Position, price float64) bool {
	return len(p.Additions) < maxAdditions &&
		p.favorableMove(price) >= l.params.PositionScalingThreshold
}

// AddToPosition records a filled scale-in and recomputes the volume-weighted
// average entry.
func (l *Ledger) AddToPosition(ctx context.Context, id string, shares int, price float64) error {
	l.mu.Lock()
	p := l.findLocked(id)
	if p == nil || p.Status != StatusOpen {
		l.mu.Unlock()
		return fmt.Errorf("no open position %s", id)
	}
	if len(p.Additions) >= maxAdditions {
		l.mu.Unlock()
		return fmt.Errorf("position %s already has %d additions", p.Symbol, maxAdditions)
	}
	prevQty := float64(p.TotalQuantity())
	p.Additions = append(p.Additions, Addition{Shares: shares, Price: price, Time: l.now()})
	p.AverageEntry = (p.AverageEntry*prevQty + price*float64(shares)) / (prevQty + float64(shares))
	symbol := p.Symbol
	l.mu.Unlock()

	l.log.Info("position scaled in",
		zap.String("symbol", symbol),
		zap.Int("shares", shares),
		zap.Float64("price", price))
	return l.persist(ctx)
}

// UpdateReport summarizes one UpdateAll pass.
type UpdateReport struct {
	StopsMoved    int
	BreakevensSet int
	StopHits      int
	TargetHits    int
	// AddEligible holds copies of open positions authorized for a scale-in.
	AddEligible []Position
}

// UpdateAll runs the per-position maintenance against the latest prices.
// A price through the stop or target closes the position with an opposing
// market order; otherwise the pass advances the favorable extreme, trailing
// stop, breakeven, and scale-in eligibility. Positions without a quote are
// left untouched.
func (l *Ledger) UpdateAll(ctx context.Context, prices map[string]float64) UpdateReport {
	l.mu.Lock()
	var report UpdateReport
	type exit struct {
		pos   *Position
		price float64
	}
	var exits []exit
	for _, p := range l.positions {
		if p.Status != StatusOpen {
			continue
		}
		price, ok := prices[p.Symbol]
		if !ok || price <= 0 {
			continue
		}

		if stopHit, targetHit := exitBreached(p, price); stopHit || targetHit {
			if stopHit {
				report.StopHits++
			} else {
				report.TargetHits++
			}
			exits = append(exits, exit{pos: p, price: price})
			continue
		}
		if l.UpdateTrailingStop(p, price) {
			report.StopsMoved++
		}
		if l.CheckBreakeven(p, price) {
			report.BreakevensSet++
			l.log.Info("stop moved to breakeven",
				zap.String("symbol", p.Symbol),
				zap.Float64("stop", p.CurrentStop))
		}
		if l.CanAdd(p, price) {
			report.AddEligible = append(report.AddEligible, *p)
		}
	}
	l.mu.Unlock()

	for _, e := range exits {
		if err := l.closeOne(ctx, e.pos, e.price); err != nil {
			// Stays open; the next pass sees the breach again and retries.
			l.log.Error("exit order failed, will retry",
				zap.String("symbol", e.pos.Symbol), zap.Error(err))
		}
	}

	if err := l.persist(ctx); err != nil {
		l.log.Error("persist positions", zap.Error(err))
	}
	return report
}

// exitBreached reports whether price has crossed the position's stop or
// target. The stop wins when a single print crosses both.
func exitBreached(p *Position, price float64) (stopHit, targetHit bool) {
	if p.Direction == market.Short {
		if price >= p.CurrentStop {
			return true, false
		}
		return false, p.Target > 0 && price <= p.Target
	}
	if price <= p.CurrentStop {
		return true, false
	}
	return false, p.Target > 0 && price >= p.Target
}

// ShouldAutoClose reports whether the session has reached the forced flat
// time, 16:00 New York.
func (l *Ledger) ShouldAutoClose() bool {
	now := l.now().In(l.loc)
	return now.Hour() >= 16
}

// CloseAll flattens every open position with an opposing market order. A
// failed close leaves that position open for the next attempt and does not
// stop the rest. Returns the number of positions closed.
func (l *Ledger) CloseAll(ctx context.Context) int {
	l.mu.Lock()
	open := make([]*Position, 0, len(l.positions))
	for _, p := range l.positions {
		if p.Status == StatusOpen {
			open = append(open, p)
		}
	}
	l.mu.Unlock()

	closed := 0
	for _, p := range open {
		if err := l.closeOne(ctx, p, 0); err != nil {
			l.log.Error("close position failed, will retry",
				zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		closed++
	}
	if closed > 0 {
		if err := l.persist(ctx); err != nil {
			l.log.Error("persist positions", zap.Error(err))
		}
	}
	return closed
}

// closeOne flattens a single position. knownPrice, when positive, is used as
// the exit price instead of a fresh quote.
func (l *Ledger) closeOne(ctx context.Context, p *Position, knownPrice float64) error {
	side := broker.Sell
	if p.Direction == market.Short {
		side = broker.Buy
	}
	_, err := l.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol: p.Symbol,
		Side:   side,
		Qty:    p.TotalQuantity(),
		Type:   broker.MarketOrder,
	})
	if err != nil {
		return err
	}

	exit := knownPrice
	if exit <= 0 {
		exit, err = l.broker.Quote(ctx, p.Symbol)
		if err != nil || exit <= 0 {
			// Order is in; value the close at the last known favorable extreme.
			exit = p.FavorableExtreme
		}
	}

	l.mu.Lock()
	p.Status = StatusClosed
	p.ExitTime = l.now()
	p.ExitPrice = exit
	p.PnL = p.UnrealizedPnL(exit)
	tr := perf.Trade{
		Symbol:     p.Symbol,
		SetupType:  p.SetupType,
		Direction:  p.Direction,
		EntryPrice: p.AverageEntry,
		ExitPrice:  exit,
		Quantity:   p.TotalQuantity(),
		PnL:        p.PnL,
		EntryTime:  p.EntryTime,
		ExitTime:   p.ExitTime,
	}
	l.mu.Unlock()

	l.sink.RecordOutcome(ctx, tr)
	l.log.Info("position closed",
		zap.String("symbol", p.Symbol),
		zap.Float64("exit", exit),
		zap.Float64("pnl", p.PnL))
	return nil
}

// Snapshot persists the full position set.
func (l *Ledger) Snapshot(ctx context.Context) error { return l.persist(ctx) }

// Restore loads positions from the store. Missing state is not an error.
func (l *Ledger) Restore(ctx context.Context) error {
	var positions []*Position
	err := l.store.Get(ctx, store.KeyPositions, &positions)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.positions = positions
	l.mu.Unlock()
	l.log.Info("positions restored", zap.Int("count", len(positions)))
	return nil
}

func (l *Ledger) findLocked(id string) *Position {
	for _, p := range l.positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (l *Ledger) persist(ctx context.Context) error {
	l.mu.Lock()
	snapshot := make([]*Position, len(l.positions))
	copy(snapshot, l.positions)
	l.mu.Unlock()
	if err := l.store.Set(ctx, store.KeyPositions, snapshot); err != nil {
		return fmt.Errorf("snapshot positions: %w", err)
	}
	return nil
}
