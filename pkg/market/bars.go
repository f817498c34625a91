// Package market computes technical indicators over OHLCV bar series and
// identifies tradeable intraday setups from them. Everything here is a pure
// function of the bar series; no I/O happens in this package.
package market

import (
	"errors"
	"math"
	"time"
)

// Indicator window sizes.
const (
	SMAFastPeriod  = 8
	SMAMidPeriod   = 20
	SMASlowPeriod  = 200
	ATRPeriod      = 14
	RSIPeriod      = 14
	VolumeMAPeriod = 20
)

// MinBars is the minimum history needed before a Setup can be produced.
const MinBars = SMASlowPeriod

// ErrInsufficientData is returned when a bar series is too short for the
// slowest indicator window. It self-resolves as more bars accrue.
var ErrInsufficientData = errors.New("insufficient bar history")

// Bar is a single OHLCV candle.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Row holds the derived indicator values for one bar. Values are NaN until
// enough history exists for their window.
type Row struct {
	SMAFast  float64
	SMAMid   float64
	SMASlow  float64
	ATR      float64
	RSI      float64
	VolumeMA float64
}

// Direction of a setup or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// SetupType labels the chart pattern a Setup was classified as.
type SetupType string

const (
	PullbackLong   SetupType = "PULLBACK_LONG"
	BreakoutLong   SetupType = "BREAKOUT_LONG"
	PullbackShort  SetupType = "PULLBACK_SHORT"
	BreakdownShort SetupType = "BREAKDOWN_SHORT"
)

// SetupTypes lists every known setup type, in classification order.
var SetupTypes = []SetupType{PullbackLong, BreakoutLong, PullbackShort, BreakdownShort}

// Gates are the four independent confirmation conditions. A Setup may only be
// forwarded for AI validation when all four are true.
type Gates struct {
	PriceVsSlowSMA  bool `json:"price_vs_slow_sma"`
	SMAAlignment    bool `json:"sma_alignment"`
	VolumeConfirmed bool `json:"volume_confirmed"`
	RSIInRange      bool `json:"rsi_in_range"`
}

// All reports whether every gate is open.
func (g Gates) All() bool {
	return g.PriceVsSlowSMA && g.SMAAlignment && g.VolumeConfirmed && g.RSIInRange
}

// Setup is a classified chart pattern with its suggested entry levels.
type Setup struct {
	Type          SetupType `json:"type"`
	Direction     Direction `json:"direction"`
	Entry         float64   `json:"entry"`
	Stop          float64   `json:"stop"`
	Target        float64   `json:"target"`
	Confidence    float64   `json:"confidence"`
	Gates         Gates     `json:"gates"`
	MeetsBodyRule bool      `json:"meets_body_rule"`
}

// Confirmed reports whether the setup passed all four gates.
func (s *Setup) Confirmed() bool { return s != nil && s.Gates.All() }

// BodyRule checks the 75% candle rule: the body must cover at least 75% of
// the bar's total range.
func BodyRule(b Bar) bool {
	rng := b.High - b.Low
	if rng <= 0 {
		return false
	}
	body := math.Abs(b.Close - b.Open)
	return body/rng >= 0.75
}
