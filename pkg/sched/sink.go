package sched

import (
	"context"

	"ovtrader/pkg/ledger"
	"ovtrader/pkg/perf"
)

// MeterOutcomes wraps an outcome sink so every closed trade is also counted
// in the metrics.
func MeterOutcomes(inner ledger.OutcomeSink) ledger.OutcomeSink {
	return meteredSink{inner: inner}
}

type meteredSink struct {
	inner ledger.OutcomeSink
}

func (m meteredSink) RecordOutcome(ctx context.Context, tr perf.Trade) {
	result := "loss"
	if tr.PnL > 0 {
		result = "win"
	}
	closedTradesTotal.WithLabelValues(result).Inc()
	m.inner.RecordOutcome(ctx, tr)
}
