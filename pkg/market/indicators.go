package market

import "math"

// ComputeIndicators derives the full indicator set for each bar, aligned to
// the input. It returns ErrInsufficientData when the series is shorter than
// the slowest window; callers should skip the symbol and retry once more
// history has accrued.
func ComputeIndicators(bars []Bar) ([]Row, error) {
	if len(bars) < MinBars {
		return nil, ErrInsufficientData
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	smaFast := sma(closes, SMAFastPeriod)
	smaMid := sma(closes, SMAMidPeriod)
	smaSlow := sma(closes, SMASlowPeriod)
	atrVals := atr(bars, ATRPeriod)
	rsiVals := rsi(closes, RSIPeriod)
	volMA := sma(volumes, VolumeMAPeriod)

	rows := make([]Row, len(bars))
	for i := range bars {
		rows[i] = Row{
			SMAFast:  smaFast[i],
			SMAMid:   smaMid[i],
			SMASlow:  smaSlow[i],
			ATR:      atrVals[i],
			RSI:      rsiVals[i],
			VolumeMA: volMA[i],
		}
	}
	return rows, nil
}

// sma returns the n-period simple moving average aligned to vs.
// Indices before the first full window are NaN.
func sma(vs []float64, n int) []float64 {
	out := make([]float64, len(vs))
	var sum float64
	for i, v := range vs {
		sum += v
		if i >= n {
			sum -= vs[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// atr returns the n-period average true range with Wilder smoothing.
func atr(bars []Bar, n int) []float64 {
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(bars) <= n {
		return out
	}

	tr := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var sum float64
	for i := 1; i <= n; i++ {
		sum += tr[i]
	}
	out[n] = sum / float64(n)
	for i := n + 1; i < len(bars); i++ {
		out[i] = (out[i-1]*float64(n-1) + tr[i]) / float64(n)
	}
	return out
}

// rsi returns the n-period relative strength index with Wilder smoothing.
func rsi(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(closes) <= n {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)
	out[n] = rsiValue(avgGain, avgLoss)

	for i := n + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
