package perf

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"ovtrader/pkg/market"
	"ovtrader/pkg/store"
)

type memStore struct {
	m map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, key string, v any) error {
	data, ok := s.m[key]
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func (s *memStore) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.m[key] = data
	return nil
}

var testNow = time.Date(2026, 8, 28, 17, 0, 0, 0, time.UTC)

func newTestTracker() *Tracker {
	tr := NewTracker(newMemStore(), zap.NewNop())
	tr.SetClock(func() time.Time { return testNow })
	return tr
}

// addTrades records n recent trades of one setup type, wins of them winners.
func addTrades(t *Tracker, setup market.SetupType, n, wins int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		pnl := -50.0
		if i < wins {
			pnl = 100.0
		}
		t.RecordOutcome(ctx, Trade{
			Symbol:     "AAPL",
			SetupType:  setup,
			Direction:  market.Long,
			EntryPrice: 100,
			ExitPrice:  100 + pnl/10,
			Quantity:   10,
			PnL:        pnl,
			EntryTime:  testNow.Add(-48 * time.Hour),
			ExitTime:   testNow.Add(-47 * time.Hour),
		})
	}
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	tr := newTestTracker()
	a := tr.AnalyzePerformance(30)
	if a.TotalTrades != 0 || a.WinRate != 0 || a.TotalPnL != 0 {
		t.Errorf("empty history must analyze to zeros, got %+v", a)
	}
}

func TestAnalyzePerformance(t *testing.T) {
	tr := newTestTracker()
	addTrades(tr, market.PullbackLong, 10, 8)
	addTrades(tr, market.BreakoutLong, 10, 2)

	a := tr.AnalyzePerformance(30)
	if a.TotalTrades != 20 || a.WinningTrades != 10 || a.LosingTrades != 10 {
		t.Fatalf("totals: %+v", a)
	}
	if a.WinRate != 50 {
		t.Errorf("win rate: got %v, want 50", a.WinRate)
	}
	if a.AvgWin != 100 || a.AvgLoss != -50 {
		t.Errorf("avg win/loss: got %v/%v", a.AvgWin, a.AvgLoss)
	}
	pb := a.BySetup[market.PullbackLong]
	if pb == nil || pb.Total != 10 || pb.Wins != 8 || pb.WinRate != 80 {
		t.Errorf("pullback stats: %+v", pb)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	tr := newTestTracker()
	addTrades(tr, market.PullbackLong, 7, 4)
	first := tr.AnalyzePerformance(30)
	second := tr.AnalyzePerformance(30)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated analysis over unchanged history differs:\n%+v\n%+v", first, second)
	}
}

func TestAnalyzeWindowExcludesOldTrades(t *testing.T) {
	tr := newTestTracker()
	tr.RecordOutcome(context.Background(), Trade{
		SetupType: market.PullbackLong,
		PnL:       100,
		EntryTime: testNow.AddDate(0, 0, -40),
		ExitTime:  testNow.AddDate(0, 0, -40),
	})
	if a := tr.AnalyzePerformance(30); a.TotalTrades != 0 {
		t.Errorf("40-day-old trade leaked into a 30-day window: %+v", a)
	}
}

func TestAdjustSetupWeights(t *testing.T) {
	tr := newTestTracker()
	addTrades(tr, market.PullbackLong, 10, 8)  // 80% win rate
	addTrades(tr, market.BreakoutLong, 10, 2)  // 20% win rate
	addTrades(tr, market.PullbackShort, 3, 3)  // below minTrades
	ctx := context.Background()

	weights := tr.AdjustSetupWeights(ctx, 5)
	// Overall win rate is 13/23; ratios are setupWR / overallWR.
	overall := 13.0 / 23.0 * 100
	if got, want := weights[market.PullbackLong], 80/overall; math.Abs(got-want) > 1e-9 {
		t.Errorf("pullback long weight: got %v, want %v", got, want)
	}
	if got, want := weights[market.BreakoutLong], 0.3540; math.Abs(got-want) > 0.001 {
		t.Errorf("breakout long weight: got %v, want about %v", got, want)
	}
	if got := weights[market.PullbackShort]; got != 1.0 {
		t.Errorf("setup below min trades must keep its weight, got %v", got)
	}
}

func TestWeightsStayClamped(t *testing.T) {
	tr := newTestTracker()
	addTrades(tr, market.PullbackLong, 5, 5)   // 100% winners
	addTrades(tr, market.BreakoutLong, 45, 0)  // all losers
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		weights := tr.AdjustSetupWeights(ctx, 5)
		for st, w := range weights {
			if w < 0.3 || w > 2.0 {
				t.Fatalf("iteration %d: weight for %s out of bounds: %v", i, st, w)
			}
		}
	}
	if got := tr.SetupWeight(market.PullbackLong); got != 2.0 {
		t.Errorf("dominant setup should clamp to 2.0, got %v", got)
	}
	if got := tr.SetupWeight(market.BreakoutLong); got != 0.3 {
		t.Errorf("losing setup should clamp to 0.3, got %v", got)
	}
}

func TestHistoryCap(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()
	for i := 0; i < maxTrades+50; i++ {
		tr.RecordOutcome(ctx, Trade{Symbol: "AAPL", SetupType: market.PullbackLong, PnL: 1,
			EntryTime: testNow, ExitTime: testNow})
	}
	if len(tr.trades) != maxTrades {
		t.Errorf("history length: got %d, want %d", len(tr.trades), maxTrades)
	}
}

// zigzagPrices yields unit-volatility prices: alternating +1% and -1% moves.
func zigzagPrices(n int) []float64 {
	prices := make([]float64, n)
	prices[0] = 100
	for i := 1; i < n; i++ {
		if i%2 == 1 {
			prices[i] = prices[i-1] * 1.01
		} else {
			prices[i] = prices[i-1] * 0.99
		}
	}
	return prices
}

func TestAutoTuneNeutralVolatility(t *testing.T) {
	tr := newTestTracker()
	p := tr.AutoTuneParameters(context.Background(), zigzagPrices(21))
	if math.Abs(p.VolatilityAdjustment-1.0) > 0.02 {
		t.Fatalf("volatility: got %v, want about 1.0", p.VolatilityAdjustment)
	}
	if math.Abs(p.StopDistanceATR-1.5) > 0.05 {
		t.Errorf("stop distance: got %v, want about 1.5", p.StopDistanceATR)
	}
	if math.Abs(p.TargetDistanceATR-3.0) > 0.05 {
		t.Errorf("target distance: got %v, want about 3.0", p.TargetDistanceATR)
	}
}

func TestAutoTuneLosingWeekTightens(t *testing.T) {
	tr := newTestTracker()
	addTrades(tr, market.PullbackLong, 6, 0) // 0% win rate this week
	p := tr.AutoTuneParameters(context.Background(), zigzagPrices(21))
	if math.Abs(p.StopDistanceATR-1.35) > 0.05 {
		t.Errorf("losing week should tighten stops: got %v, want about 1.35", p.StopDistanceATR)
	}
	if math.Abs(p.TrailingStopATR-0.45) > 0.05 {
		t.Errorf("losing week should tighten trailing: got %v, want about 0.45", p.TrailingStopATR)
	}
}

func TestAutoTuneParametersStayBounded(t *testing.T) {
	// Wild series: huge swings should clamp, flat should clamp the other way.
	wild := []float64{100, 150, 95, 160, 90, 170, 85, 180}
	flat := []float64{100, 100, 100, 100, 100, 100}

	tr := newTestTracker()
	for i := 0; i < 10; i++ {
		for _, prices := range [][]float64{wild, flat, zigzagPrices(21)} {
			p := tr.AutoTuneParameters(context.Background(), prices)
			checkBounds(t, p)
		}
	}
}

func checkBounds(t *testing.T, p Parameters) {
	t.Helper()
	cases := []struct {
		name   string
		v      float64
		lo, hi float64
	}{
		{"atr_multiplier", p.ATRMultiplier, 0.5, 2.0},
		{"stop", p.StopDistanceATR, 1.0, 3.0},
		{"target", p.TargetDistanceATR, 2.0, 5.0},
		{"trailing", p.TrailingStopATR, 0.3, 1.0},
		{"breakeven", p.BreakevenATR, 0.5, 2.0},
		{"scaling", p.PositionScalingThreshold, 0.5, 2.0},
		{"volatility", p.VolatilityAdjustment, 0.1, 2.0},
	}
	for _, c := range cases {
		if c.v < c.lo || c.v > c.hi {
			t.Errorf("%s out of bounds: %v not in [%v, %v]", c.name, c.v, c.lo, c.hi)
		}
	}
}

func TestLoadRestoresState(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	tr := NewTracker(st, zap.NewNop())
	tr.SetClock(func() time.Time { return testNow })
	addTrades(tr, market.PullbackLong, 10, 8)
	addTrades(tr, market.BreakoutLong, 10, 2)
	tr.AdjustSetupWeights(ctx, 5)
	tr.AutoTuneParameters(ctx, zigzagPrices(21))

	restored := NewTracker(st, zap.NewNop())
	restored.SetClock(func() time.Time { return testNow })
	if err := restored.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := restored.AnalyzePerformance(30).TotalTrades; got != 20 {
		t.Errorf("restored trades: got %d, want 20", got)
	}
	if got, want := restored.SetupWeight(market.PullbackLong), tr.SetupWeight(market.PullbackLong); got != want {
		t.Errorf("restored weight: got %v, want %v", got, want)
	}
	if restored.Parameters() != tr.Parameters() {
		t.Errorf("restored parameters differ: %+v vs %+v", restored.Parameters(), tr.Parameters())
	}
}
