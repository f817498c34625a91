package sched

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	analysesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_analyses_total",
		Help: "Symbol analyses performed.",
	})
	setupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_setups_total",
		Help: "Setups identified, by type.",
	}, []string{"type"})
	signalsExecutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_signals_executed_total",
		Help: "Advisor signals executed, by action.",
	}, []string{"action"})
	skipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_skips_total",
		Help: "Signals or symbols skipped, by reason.",
	}, []string{"reason"})
	openPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trader_open_positions",
		Help: "Currently open positions.",
	})
	closedTradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_closed_trades_total",
		Help: "Closed trades, by result.",
	}, []string{"result"})
	jobRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_job_runs_total",
		Help: "Scheduler job executions, by job.",
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(
		analysesTotal,
		setupsTotal,
		signalsExecutedTotal,
		skipsTotal,
		openPositions,
		closedTradesTotal,
		jobRunsTotal,
	)
}
