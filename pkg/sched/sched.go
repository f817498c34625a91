// Package sched runs the trading loop: a single goroutine ticks every 30
// seconds and fires the due jobs in order, so no two jobs ever overlap.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ovtrader/pkg/advisor"
	"ovtrader/pkg/broker"
	"ovtrader/pkg/ledger"
	"ovtrader/pkg/perf"
)

// Config carries the scheduler's tunables.
type Config struct {
	Watchlist        []string
	MaxRiskPerTrade  float64
	TickEvery        time.Duration
	AnalyzeEvery     time.Duration
	UpdateEvery      time.Duration
	InterSymbolDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.TickEvery <= 0 {
		c.TickEvery = 30 * time.Second
	}
	if c.AnalyzeEvery <= 0 {
		c.AnalyzeEvery = 5 * time.Minute
	}
	if c.UpdateEvery <= 0 {
		c.UpdateEvery = time.Minute
	}
	if c.InterSymbolDelay <= 0 {
		c.InterSymbolDelay = time.Second
	}
	if c.MaxRiskPerTrade <= 0 {
		c.MaxRiskPerTrade = 300
	}
}

// Scheduler drives analysis, position maintenance, the end-of-day close, and
// the optimization jobs.
type Scheduler struct {
	cfg    Config
	broker broker.Client
	adv    advisor.Advisor
	ledger *ledger.Ledger
	perf   *perf.Tracker
	log    *zap.Logger
	now    func() time.Time
	loc    *time.Location

	mu        sync.Mutex
	watchlist []string
	running   bool
	degraded  bool
	cancel    context.CancelFunc
	done      chan struct{}
	activity  []Event

	lastAnalyze  time.Time
	lastUpdate   time.Time
	autoCloseDay string
	dailyOptDay  string
	tuningWeek   string
}

// New wires a scheduler. The clock defaults to time.Now.
func New(cfg Config, b broker.Client, adv advisor.Advisor, led *ledger.Ledger,
	tracker *perf.Tracker, logger *zap.Logger) (*Scheduler, error) {
	cfg.applyDefaults()
	if len(cfg.Watchlist) == 0 {
		return nil, errors.New("watchlist is empty")
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load New York timezone: %w", err)
	}
	return &Scheduler{
		cfg:       cfg,
		broker:    b,
		adv:       adv,
		ledger:    led,
		perf:      tracker,
		log:       logger,
		now:       time.Now,
		loc:       loc,
		watchlist: append([]string(nil), cfg.Watchlist...),
	}, nil
}

// SetClock overrides the scheduler's clock. Intended for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Start launches the tick loop. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("scheduler started", zap.Strings("watchlist", s.Watchlist()))
	go s.loop(ctx)
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.lastAnalyze, s.lastUpdate = time.Time{}, time.Time{}
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.TickEvery)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every due job, in order, synchronously.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	ny := now.In(s.loc)

	if s.sessionOpen(ny) {
		s.mu.Lock()
		analyzeDue := now.Sub(s.lastAnalyze) >= s.cfg.AnalyzeEvery
		updateDue := now.Sub(s.lastUpdate) >= s.cfg.UpdateEvery
		if analyzeDue {
			s.lastAnalyze = now
		}
		if updateDue {
			s.lastUpdate = now
		}
		s.mu.Unlock()

		if analyzeDue {
			jobRunsTotal.WithLabelValues("analyze").Inc()
			s.analyzeAndTrade(ctx)
		}
		if updateDue {
			jobRunsTotal.WithLabelValues("update_positions").Inc()
			s.updatePositions(ctx)
		}
	}

	day := ny.Format("2006-01-02")
	if ny.Hour() >= 16 && s.dueOnce(&s.autoCloseDay, day) {
		jobRunsTotal.WithLabelValues("auto_close").Inc()
		if !s.autoClose(ctx) {
			// Positions remain; try again next tick.
			s.clearOnce(&s.autoCloseDay)
		}
	}
	if (ny.Hour() > 16 || (ny.Hour() == 16 && ny.Minute() >= 30)) && s.dueOnce(&s.dailyOptDay, day) {
		jobRunsTotal.WithLabelValues("daily_optimization").Inc()
		s.dailyOptimization(ctx)
	}
	year, week := ny.ISOWeek()
	weekStamp := fmt.Sprintf("%d-%02d", year, week)
	if ny.Weekday() == time.Sunday && ny.Hour() >= 20 && s.dueOnce(&s.tuningWeek, weekStamp) {
		jobRunsTotal.WithLabelValues("weekly_tuning").Inc()
		s.weeklyTuning(ctx)
	}

	openPositions.Set(float64(s.ledger.OpenCount()))
}

// sessionOpen reports whether t (already in New York time) is inside regular
// trading hours, 9:30 to 16:00 on a weekday.
func (s *Scheduler) sessionOpen(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	mins := t.Hour()*60 + t.Minute()
	return mins >= 9*60+30 && mins < 16*60
}

// lateForEntries blocks fresh entries in the last half hour of the session.
func (s *Scheduler) lateForEntries(t time.Time) bool {
	return t.Hour() > 15 || (t.Hour() == 15 && t.Minute() >= 30)
}

func (s *Scheduler) dueOnce(stamp *string, current string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *stamp == current {
		return false
	}
	*stamp = current
	return true
}

func (s *Scheduler) clearOnce(stamp *string) {
	s.mu.Lock()
	*stamp = ""
	s.mu.Unlock()
}

// Watchlist returns a copy of the current watchlist.
func (s *Scheduler) Watchlist() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.watchlist...)
}

// SetWatchlist replaces the watchlist. Empty input is ignored.
func (s *Scheduler) SetWatchlist(symbols []string) {
	if len(symbols) == 0 {
		return
	}
	s.mu.Lock()
	s.watchlist = append([]string(nil), symbols...)
	s.mu.Unlock()
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running         bool     `json:"running"`
	Degraded        bool     `json:"degraded"`
	MarketHoursOpen bool     `json:"market_hours_open"`
	Watchlist       []string `json:"watchlist"`
	OpenPositions   int      `json:"open_positions"`
	Activity        []Event  `json:"recent_activity"`
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() Status {
	ny := s.now().In(s.loc)
	s.mu.Lock()
	st := Status{
		Running:         s.running,
		Degraded:        s.degraded,
		MarketHoursOpen: s.sessionOpen(ny),
		Watchlist:       append([]string(nil), s.watchlist...),
		Activity:        append([]Event(nil), s.activity...),
	}
	s.mu.Unlock()
	st.OpenPositions = s.ledger.OpenCount()
	return st
}

// PerformanceSummary exposes the 30-day analysis for the status surface.
func (s *Scheduler) PerformanceSummary() perf.Analysis {
	return s.perf.AnalyzePerformance(30)
}
