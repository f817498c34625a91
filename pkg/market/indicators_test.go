package market

import (
	"errors"
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	got := sma([]float64{1, 2, 3, 4, 5}, 2)
	want := []float64{math.NaN(), 1.5, 2.5, 3.5, 4.5}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Errorf("index %d: want NaN, got %v", i, got[i])
			}
			continue
		}
		if !almostEqual(got[i], want[i]) {
			t.Errorf("index %d: want %v, got %v", i, want[i], got[i])
		}
	}
}

func TestATRConstantRange(t *testing.T) {
	bars := make([]Bar, 20)
	for i := range bars {
		bars[i] = Bar{Open: 11, High: 12, Low: 10, Close: 11, Volume: 1000}
	}
	got := atr(bars, ATRPeriod)
	for i := 0; i < ATRPeriod; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("index %d: want NaN before warmup, got %v", i, got[i])
		}
	}
	for i := ATRPeriod; i < len(bars); i++ {
		if !almostEqual(got[i], 2) {
			t.Errorf("index %d: want ATR 2, got %v", i, got[i])
		}
	}
}

func TestRSIExtremes(t *testing.T) {
	rising := make([]float64, 20)
	falling := make([]float64, 20)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
	}
	if got := rsi(rising, RSIPeriod); got[len(got)-1] != 100 {
		t.Errorf("all-gains RSI: want 100, got %v", got[len(got)-1])
	}
	if got := rsi(falling, RSIPeriod); got[len(got)-1] != 0 {
		t.Errorf("all-losses RSI: want 0, got %v", got[len(got)-1])
	}
}

func TestComputeIndicatorsShortHistory(t *testing.T) {
	bars := make([]Bar, 50)
	if _, err := ComputeIndicators(bars); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("want ErrInsufficientData, got %v", err)
	}
}

func TestComputeIndicatorsTrend(t *testing.T) {
	bars := trendBars(250, 1000)
	rows, err := ComputeIndicators(bars)
	if err != nil {
		t.Fatal(err)
	}
	r := rows[len(rows)-1]
	if !(r.SMAFast > r.SMAMid && r.SMAMid > r.SMASlow) {
		t.Errorf("uptrend should align SMAs: fast %v mid %v slow %v", r.SMAFast, r.SMAMid, r.SMASlow)
	}
	if r.ATR <= 0 || math.IsNaN(r.ATR) {
		t.Errorf("want positive ATR, got %v", r.ATR)
	}
	if r.RSI <= 30 || r.RSI >= 70 {
		t.Errorf("zigzag uptrend RSI should be mid-range, got %v", r.RSI)
	}
}

// trendBars builds a zigzag uptrend: 0.3/bar drift with alternating +-0.5
// swings, closing on a dip back between the fast and mid SMAs. lastVolume
// controls whether the volume gate confirms.
func trendBars(n int, lastVolume float64) []Bar {
	bars := make([]Bar, n)
	start := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	for i := range bars {
		z := -0.5
		if i%2 == 1 {
			z = 0.5
		}
		close := 100 + 0.3*float64(i) + z
		if i == n-1 {
			close = 100 + 0.3*float64(i) - 1.5
		}
		vol := 1000.0
		if i == n-1 {
			vol = lastVolume
		}
		bars[i] = Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      close - 0.2,
			High:      close + 0.5,
			Low:       close - 0.5,
			Close:     close,
			Volume:    vol,
		}
	}
	return bars
}
