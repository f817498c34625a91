// Package perf closes the feedback loop: it records trade outcomes, analyzes
// them, re-weights setup types by their realized edge, and retunes the risk
// parameters for current volatility.
package perf

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"ovtrader/pkg/market"
	"ovtrader/pkg/store"
)

// maxTrades bounds the in-memory trade history. Older outcomes roll off.
const maxTrades = 1000

// Trade is one closed trade outcome.
type Trade struct {
	Symbol     string           `json:"symbol"`
	SetupType  market.SetupType `json:"setup_type"`
	Direction  market.Direction `json:"direction"`
	EntryPrice float64          `json:"entry_price"`
	ExitPrice  float64          `json:"exit_price"`
	Quantity   int              `json:"quantity"`
	PnL        float64          `json:"pnl"`
	EntryTime  time.Time        `json:"entry_time"`
	ExitTime   time.Time        `json:"exit_time"`
}

// SetupStats aggregates outcomes for one setup type.
type SetupStats struct {
	Total    int     `json:"total"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	WinRate  float64 `json:"win_rate"`
	TotalPnL float64 `json:"total_pnl"`
	AvgPnL   float64 `json:"avg_pnl"`
}

// Analysis is a window summary of trading performance. All fields are zero
// when the window holds no trades.
type Analysis struct {
	PeriodDays    int                              `json:"period_days"`
	TotalTrades   int                              `json:"total_trades"`
	WinningTrades int                              `json:"winning_trades"`
	LosingTrades  int                              `json:"losing_trades"`
	WinRate       float64                          `json:"win_rate"`
	TotalPnL      float64                          `json:"total_pnl"`
	AvgWin        float64                          `json:"avg_win"`
	AvgLoss       float64                          `json:"avg_loss"`
	BySetup       map[market.SetupType]*SetupStats `json:"by_setup"`
}

// Parameters are the tunable risk knobs, expressed as ATR multiples except
// for the two dimensionless adjustment factors.
type Parameters struct {
	ATRMultiplier            float64 `json:"atr_multiplier"`
	StopDistanceATR          float64 `json:"stop_distance_atr"`
	TargetDistanceATR        float64 `json:"target_distance_atr"`
	TrailingStopATR          float64 `json:"trailing_stop_atr"`
	BreakevenATR             float64 `json:"breakeven_atr"`
	PositionScalingThreshold float64 `json:"position_scaling_threshold"`
	VolatilityAdjustment     float64 `json:"volatility_adjustment"`
}

// DefaultParameters are the untuned baseline.
func DefaultParameters() Parameters {
	return Parameters{
		ATRMultiplier:            1.0,
		StopDistanceATR:          1.5,
		TargetDistanceATR:        3.0,
		TrailingStopATR:          0.5,
		BreakevenATR:             1.0,
		PositionScalingThreshold: 1.0,
		VolatilityAdjustment:     1.0,
	}
}

// Tracker holds the trade history, setup weights, and tuned parameters.
// All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	trades  []Trade
	weights map[market.SetupType]float64
	params  Parameters
	store   store.Store
	log     *zap.Logger
	now     func() time.Time
}

// NewTracker builds a tracker with default weights and parameters.
func NewTracker(st store.Store, logger *zap.Logger) *Tracker {
	weights := make(map[market.SetupType]float64, len(market.SetupTypes))
	for _, typ := range market.SetupTypes {
		weights[typ] = 1.0
	}
	return &Tracker{
		weights: weights,
		params:  DefaultParameters(),
		store:   st,
		log:     logger,
		now:     time.Now,
	}
}

// SetClock overrides the tracker's clock. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

type persistedState struct {
	Trades []Trade `json:"trades"`
}

// Load restores history, weights, and parameters from the store. A missing
// key is not an error; the tracker starts fresh.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var state persistedState
	switch err := t.store.Get(ctx, store.KeyPerformance, &state); {
	case err == nil:
		t.trades = state.Trades
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	weights := make(map[market.SetupType]float64)
	switch err := t.store.Get(ctx, store.KeyWeights, &weights); {
	case err == nil:
		for st, w := range weights {
			t.weights[st] = w
		}
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	var params Parameters
	switch err := t.store.Get(ctx, store.KeyParameters, &params); {
	case err == nil:
		t.params = params
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	return nil
}

// RecordOutcome appends a closed trade, trimming history to the cap, and
// persists.
func (t *Tracker) RecordOutcome(ctx context.Context, tr Trade) {
	t.mu.Lock()
	t.trades = append(t.trades, tr)
	if len(t.trades) > maxTrades {
		t.trades = t.trades[len(t.trades)-maxTrades:]
	}
	t.mu.Unlock()

	if err := t.persist(ctx); err != nil {
		t.log.Error("persist trade history", zap.Error(err))
	}
	t.log.Info("trade outcome recorded",
		zap.String("symbol", tr.Symbol),
		zap.String("setup", string(tr.SetupType)),
		zap.Float64("pnl", tr.PnL))
}

// AnalyzePerformance summarizes the closed trades of the last days. It reads
// but never mutates, so repeated calls over unchanged history agree.
func (t *Tracker) AnalyzePerformance(days int) Analysis {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.analyzeLocked(days)
}

func (t *Tracker) analyzeLocked(days int) Analysis {
	a := Analysis{
		PeriodDays: days,
		BySetup:    make(map[market.SetupType]*SetupStats),
	}
	cutoff := t.now().AddDate(0, 0, -days)

	var winSum, lossSum float64
	for _, tr := range t.trades {
		if tr.EntryTime.Before(cutoff) {
			continue
		}
		a.TotalTrades++
		a.TotalPnL += tr.PnL
		if tr.PnL > 0 {
			a.WinningTrades++
			winSum += tr.PnL
		} else {
			a.LosingTrades++
			lossSum += tr.PnL
		}

		s := a.BySetup[tr.SetupType]
		if s == nil {
			s = &SetupStats{}
			a.BySetup[tr.SetupType] = s
		}
		s.Total++
		s.TotalPnL += tr.PnL
		if tr.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}

	if a.TotalTrades == 0 {
		return a
	}
	a.WinRate = float64(a.WinningTrades) / float64(a.TotalTrades) * 100
	if a.WinningTrades > 0 {
		a.AvgWin = winSum / float64(a.WinningTrades)
	}
	if a.LosingTrades > 0 {
		a.AvgLoss = lossSum / float64(a.LosingTrades)
	}
	for _, s := range a.BySetup {
		s.WinRate = float64(s.Wins) / float64(s.Total) * 100
		s.AvgPnL = s.TotalPnL / float64(s.Total)
	}
	return a
}

// AdjustSetupWeights recomputes the per-setup weights from the last 30 days.
// Setups with fewer than minTrades closed trades keep their current weight.
func (t *Tracker) AdjustSetupWeights(ctx context.Context, minTrades int) map[market.SetupType]float64 {
	t.mu.Lock()
	a := t.analyzeLocked(30)
	if a.TotalTrades > 0 && a.WinRate > 0 {
		for st, stats := range a.BySetup {
			if stats.Total < minTrades {
				continue
			}
			t.weights[st] = clamp(stats.WinRate/a.WinRate, 0.3, 2.0)
		}
	}
	out := t.weightsLocked()
	t.mu.Unlock()

	if err := t.persist(ctx); err != nil {
		t.log.Error("persist setup weights", zap.Error(err))
	}
	return out
}

// SetupWeight returns the current weight for a setup type, defaulting to 1.
func (t *Tracker) SetupWeight(st market.SetupType) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.weights[st]; ok {
		return w
	}
	return 1.0
}

// Weights returns a copy of the current weight map.
func (t *Tracker) Weights() map[market.SetupType]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.weightsLocked()
}

func (t *Tracker) weightsLocked() map[market.SetupType]float64 {
	out := make(map[market.SetupType]float64, len(t.weights))
	for st, w := range t.weights {
		out[st] = w
	}
	return out
}

// Parameters returns the current tuned parameters.
func (t *Tracker) Parameters() Parameters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

func (t *Tracker) persist(ctx context.Context) error {
	t.mu.Lock()
	state := persistedState{Trades: t.trades}
	weights := t.weightsLocked()
	params := t.params
	t.mu.Unlock()

	if err := t.store.Set(ctx, store.KeyPerformance, state); err != nil {
		return err
	}
	if err := t.store.Set(ctx, store.KeyWeights, weights); err != nil {
		return err
	}
	return t.store.Set(ctx, store.KeyParameters, params)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
