package perf

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// Parameter bounds applied after every tune. Tuning can therefore never walk
// the knobs outside a sane range, no matter how many times it runs.
const (
	minStopATR, maxStopATR           = 1.0, 3.0
	minTargetATR, maxTargetATR       = 2.0, 5.0
	minTrailingATR, maxTrailingATR   = 0.3, 1.0
	minBreakevenATR, maxBreakevenATR = 0.5, 2.0
	minFactor, maxFactor             = 0.5, 2.0
	minVolatility, maxVolatility     = 0.1, 2.0
)

// AutoTuneParameters recomputes the risk parameters from recent price
// volatility, then tilts stops and targets by the recent win rate. The result
// is clamped, rounded, persisted, and returned.
func (t *Tracker) AutoTuneParameters(ctx context.Context, prices []float64) Parameters {
	vol := volatility(prices)
	vadj := 1.0 / vol
	base := DefaultParameters()

	p := Parameters{
		ATRMultiplier:            base.ATRMultiplier * vadj,
		StopDistanceATR:          base.StopDistanceATR * vol,
		TargetDistanceATR:        base.TargetDistanceATR * vol,
		TrailingStopATR:          base.TrailingStopATR * vol,
		BreakevenATR:             base.BreakevenATR * vol,
		PositionScalingThreshold: base.PositionScalingThreshold * vadj,
		VolatilityAdjustment:     vol,
	}

	// Tilt by last week's results: tighten when losing, loosen when winning.
	t.mu.Lock()
	a := t.analyzeLocked(7)
	t.mu.Unlock()
	if a.TotalTrades >= 5 {
		switch {
		case a.WinRate < 40:
			p.StopDistanceATR *= 0.9
			p.TrailingStopATR *= 0.9
		case a.WinRate > 60:
			p.StopDistanceATR *= 1.1
			p.TargetDistanceATR *= 1.1
		}
	}

	p.ATRMultiplier = round2(clamp(p.ATRMultiplier, minFactor, maxFactor))
	p.StopDistanceATR = round2(clamp(p.StopDistanceATR, minStopATR, maxStopATR))
	p.TargetDistanceATR = round2(clamp(p.TargetDistanceATR, minTargetATR, maxTargetATR))
	p.TrailingStopATR = round2(clamp(p.TrailingStopATR, minTrailingATR, maxTrailingATR))
	p.BreakevenATR = round2(clamp(p.BreakevenATR, minBreakevenATR, maxBreakevenATR))
	p.PositionScalingThreshold = round2(clamp(p.PositionScalingThreshold, minFactor, maxFactor))
	p.VolatilityAdjustment = round2(clamp(p.VolatilityAdjustment, minVolatility, maxVolatility))

	t.mu.Lock()
	t.params = p
	t.mu.Unlock()

	if err := t.persist(ctx); err != nil {
		t.log.Error("persist tuned parameters", zap.Error(err))
	}
	t.log.Info("parameters tuned",
		zap.Float64("volatility", p.VolatilityAdjustment),
		zap.Float64("stop_atr", p.StopDistanceATR),
		zap.Float64("target_atr", p.TargetDistanceATR))
	return p
}

// volatility scores the price series by the standard deviation of its simple
// returns, scaled so that roughly 1.0 means normal intraday movement.
func volatility(prices []float64) float64 {
	if len(prices) < 3 {
		return 1.0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
		}
	}
	if len(returns) < 2 {
		return 1.0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return clamp(math.Sqrt(variance)*100, minVolatility, maxVolatility)
}
