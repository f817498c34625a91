package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ovtrader/pkg/advisor"
	"ovtrader/pkg/broker"
	"ovtrader/pkg/ledger"
	"ovtrader/pkg/market"
	"ovtrader/pkg/risk"
)

// outOfFavorWeight is the setup weight below which the feedback loop has
// demoted a setup type hard enough that we stop trading it.
const outOfFavorWeight = 0.5

// analyzeAndTrade walks the watchlist: fetch bars, compute indicators,
// identify a setup, gate it, consult the advisor, and execute approved
// signals. Per-symbol failures are logged and skipped; an auth failure
// aborts the whole pass.
func (s *Scheduler) analyzeAndTrade(ctx context.Context) {
	for i, symbol := range s.Watchlist() {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.InterSymbolDelay):
			}
		}
		if err := s.analyzeSymbol(ctx, symbol); err != nil {
			var authErr *broker.AuthError
			if errors.As(err, &authErr) {
				s.log.Error("brokerage auth failed, aborting analysis pass", zap.Error(err))
				s.logActivity("error", symbol, "brokerage not authenticated")
				return
			}
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("symbol analysis failed", zap.String("symbol", symbol), zap.Error(err))
			s.logActivity("error", symbol, err.Error())
		}
	}
}

func (s *Scheduler) analyzeSymbol(ctx context.Context, symbol string) error {
	analysesTotal.Inc()

	// No Limit: the data client truncates oldest-first, which would leave
	// the newest bars behind and classify a stale setup.
	end := s.now()
	bars, err := s.broker.HistoricalBars(ctx, symbol, broker.BarsRequest{
		TimeFrameMinutes: 5,
		Start:            end.AddDate(0, 0, -7),
		End:              end,
	})
	if err != nil {
		return err
	}
	rows, err := market.ComputeIndicators(bars)
	if err != nil {
		if errors.Is(err, market.ErrInsufficientData) {
			skipsTotal.WithLabelValues("insufficient_data").Inc()
			s.logActivity("info", symbol, "insufficient bar history, skipping")
			return nil
		}
		return err
	}

	setup := market.IdentifySetup(bars, rows)
	if setup == nil {
		return nil
	}
	setupsTotal.WithLabelValues(string(setup.Type)).Inc()
	s.logActivity("info", symbol, fmt.Sprintf("setup identified: %s", setup.Type))

	// Setups that fail any confirmation gate never reach the advisor.
	if !setup.Gates.All() {
		skipsTotal.WithLabelValues("gates").Inc()
		s.logActivity("info", symbol, "setup failed confirmation gates")
		return nil
	}
	if w := s.perf.SetupWeight(setup.Type); w < outOfFavorWeight {
		skipsTotal.WithLabelValues("setup_out_of_favor").Inc()
		s.logActivity("info", symbol, fmt.Sprintf("setup %s out of favor (weight %.2f)", setup.Type, w))
		return nil
	}
	if s.lateForEntries(s.now().In(s.loc)) {
		skipsTotal.WithLabelValues("late_session").Inc()
		s.logActivity("info", symbol, "no new entries this late in the session")
		return nil
	}

	summary := market.Summarize(symbol, bars, rows)
	sig, err := s.advisorFor().Evaluate(ctx, symbol, summary, setup)
	if err != nil {
		if errors.Is(err, advisor.ErrUnavailable) {
			s.degrade()
			return nil
		}
		return fmt.Errorf("advisor: %w", err)
	}

	if !sig.Executable() {
		skipsTotal.WithLabelValues("not_executable").Inc()
		s.logActivity("info", symbol,
			fmt.Sprintf("signal %s (confidence %.2f) not executed", sig.Action, sig.Confidence))
		return nil
	}
	return s.execute(ctx, symbol, summary, setup, sig)
}

// execute sizes and places the entry order for an approved signal, then
// registers the position.
func (s *Scheduler) execute(ctx context.Context, symbol string, sum market.Summary,
	setup *market.Setup, sig advisor.Signal) error {
	account, err := s.broker.Account(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}

	entry := sig.Entry
	if entry <= 0 {
		entry = setup.Entry
	}
	stop := sig.Stop
	if stop <= 0 {
		stop = setup.Stop
	}
	target := sig.Target
	if target <= 0 {
		target = setup.Target
	}

	qty := sig.PositionSize
	if qty <= 0 {
		qty, err = risk.PositionSize(account.PortfolioValue, s.cfg.MaxRiskPerTrade, entry, stop)
		if err != nil {
			return fmt.Errorf("size position: %w", err)
		}
	}
	if qty <= 0 || entry*float64(qty) > account.AvailableFunds() {
		skipsTotal.WithLabelValues("insufficient_funds").Inc()
		s.logActivity("info", symbol, "insufficient funds, trade skipped")
		return nil
	}

	side := broker.Buy
	dir := market.Long
	if sig.Action == advisor.ActionSell {
		side = broker.Sell
		dir = market.Short
	}
	if _, err := s.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol: symbol,
		Side:   side,
		Qty:    qty,
		Type:   broker.MarketOrder,
	}); err != nil {
		return err
	}
	signalsExecutedTotal.WithLabelValues(string(sig.Action)).Inc()

	pos := ledger.NewPosition(symbol, account.ID, dir, setup.Type,
		entry, stop, target, sum.ATR, qty, s.now())
	if err := s.ledger.Add(ctx, pos); err != nil {
		return fmt.Errorf("register position: %w", err)
	}
	s.logActivity("trade", symbol,
		fmt.Sprintf("%s %d shares at %.2f (stop %.2f, target %.2f)", sig.Action, qty, entry, stop, target))
	return nil
}

// updatePositions refreshes quotes for every open symbol and runs the
// ledger's maintenance pass, then executes any authorized scale-ins.
func (s *Scheduler) updatePositions(ctx context.Context) {
	open := s.ledger.Open()
	if len(open) == 0 {
		return
	}

	prices := make(map[string]float64, len(open))
	for _, p := range open {
		price, err := s.broker.Quote(ctx, p.Symbol)
		if err != nil {
			s.log.Warn("quote failed", zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		prices[p.Symbol] = price
	}

	report := s.ledger.UpdateAll(ctx, prices)
	if report.StopsMoved > 0 || report.BreakevensSet > 0 {
		s.logActivity("info", "",
			fmt.Sprintf("stops tightened: %d, breakevens set: %d", report.StopsMoved, report.BreakevensSet))
	}
	if report.StopHits > 0 || report.TargetHits > 0 {
		s.logActivity("trade", "",
			fmt.Sprintf("exits triggered: %d stop, %d target", report.StopHits, report.TargetHits))
	}
	for _, p := range report.AddEligible {
		if err := s.scaleIn(ctx, p, prices[p.Symbol]); err != nil {
			s.log.Warn("scale-in failed", zap.String("symbol", p.Symbol), zap.Error(err))
			s.logActivity("error", p.Symbol, fmt.Sprintf("scale-in failed: %v", err))
		}
	}
}

// scaleIn adds half the original size to a winning position, funds allowing.
func (s *Scheduler) scaleIn(ctx context.Context, p ledger.Position, price float64) error {
	shares := p.Quantity / 2
	if shares < 1 || price <= 0 {
		return nil
	}
	account, err := s.broker.Account(ctx)
	if err != nil {
		return err
	}
	if price*float64(shares) > account.AvailableFunds() {
		skipsTotal.WithLabelValues("insufficient_funds").Inc()
		return nil
	}

	side := broker.Buy
	if p.Direction == market.Short {
		side = broker.Sell
	}
	if _, err := s.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol: p.Symbol,
		Side:   side,
		Qty:    shares,
		Type:   broker.MarketOrder,
	}); err != nil {
		return err
	}
	if err := s.ledger.AddToPosition(ctx, p.ID, shares, price); err != nil {
		return err
	}
	s.logActivity("trade", p.Symbol, fmt.Sprintf("added %d shares at %.2f", shares, price))
	return nil
}

// autoClose flattens the book at the end of the session. Returns true when
// no open positions remain.
func (s *Scheduler) autoClose(ctx context.Context) bool {
	if !s.ledger.ShouldAutoClose() {
		return false
	}
	closed := s.ledger.CloseAll(ctx)
	if closed > 0 {
		s.logActivity("trade", "", fmt.Sprintf("auto-closed %d positions", closed))
	}
	remaining := s.ledger.OpenCount()
	if remaining > 0 {
		s.log.Warn("positions still open after auto-close", zap.Int("remaining", remaining))
	}
	return remaining == 0
}

// dailyOptimization reviews the last 30 days and re-weights setup types.
func (s *Scheduler) dailyOptimization(ctx context.Context) {
	a := s.perf.AnalyzePerformance(30)
	weights := s.perf.AdjustSetupWeights(ctx, 5)
	s.log.Info("daily optimization complete",
		zap.Int("trades", a.TotalTrades),
		zap.Float64("win_rate", a.WinRate),
		zap.Any("weights", weights))
	s.logActivity("info", "", fmt.Sprintf("daily optimization: %d trades, %.1f%% win rate", a.TotalTrades, a.WinRate))
}

// weeklyTuning retunes the risk parameters from recent closes across the
// first few watchlist symbols.
func (s *Scheduler) weeklyTuning(ctx context.Context) {
	symbols := s.Watchlist()
	if len(symbols) > 5 {
		symbols = symbols[:5]
	}

	var closes []float64
	end := s.now()
	for _, symbol := range symbols {
		bars, err := s.broker.HistoricalBars(ctx, symbol, broker.BarsRequest{
			TimeFrameMinutes: 5,
			Start:            end.AddDate(0, 0, -5),
			End:              end,
		})
		if err != nil {
			s.log.Warn("tuning bars failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		for _, b := range bars {
			closes = append(closes, b.Close)
		}
	}

	params := s.perf.AutoTuneParameters(ctx, closes)
	s.ledger.SetParams(params)
	s.logActivity("info", "", fmt.Sprintf("weekly tuning: volatility %.2f, stop %.2f ATR",
		params.VolatilityAdjustment, params.StopDistanceATR))
}

// advisorFor returns the live advisor, or the null advisor once degraded.
// Degraded mode is sticky: recovery requires a process restart.
func (s *Scheduler) advisorFor() advisor.Advisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return advisor.Null{}
	}
	return s.adv
}

// degrade switches to the Hold-only null advisor after an advisor outage.
func (s *Scheduler) degrade() {
	s.mu.Lock()
	already := s.degraded
	s.degraded = true
	s.mu.Unlock()
	if !already {
		s.log.Error("advisor unavailable, degrading to hold-only mode")
		s.logActivity("error", "", "advisor unavailable, degraded to hold-only mode")
	}
}
