package market

import "math"

// Summary is a compact snapshot of the latest market state, handed to the AI
// advisor alongside the identified setup.
type Summary struct {
	Symbol         string  `json:"symbol"`
	CurrentPrice   float64 `json:"current_price"`
	SMAFast        float64 `json:"sma_8"`
	SMAMid         float64 `json:"sma_20"`
	SMASlow        float64 `json:"sma_200"`
	ATR            float64 `json:"atr_14"`
	RSI            float64 `json:"rsi_14"`
	Volume         float64 `json:"volume"`
	VolumeMA       float64 `json:"volume_ma"`
	Trend          string  `json:"trend"`
	AboveSlowSMA   bool    `json:"above_sma_200"`
	PriceChangePct float64 `json:"price_change_pct"`
}

// Summarize builds a Summary from the last bars of the series. rows must be
// aligned to bars.
func Summarize(symbol string, bars []Bar, rows []Row) Summary {
	if len(bars) == 0 || len(rows) != len(bars) {
		return Summary{Symbol: symbol}
	}
	latest := bars[len(bars)-1]
	r := rows[len(rows)-1]

	trend := "NEUTRAL"
	if r.SMAFast > r.SMAMid && r.SMAMid > r.SMASlow {
		trend = "BULLISH"
	} else if r.SMAFast < r.SMAMid && r.SMAMid < r.SMASlow {
		trend = "BEARISH"
	}

	var changePct float64
	if len(bars) > 1 && bars[len(bars)-2].Close > 0 {
		prevClose := bars[len(bars)-2].Close
		changePct = (latest.Close - prevClose) / prevClose * 100
	}

	return Summary{
		Symbol:         symbol,
		CurrentPrice:   latest.Close,
		SMAFast:        zeroNaN(r.SMAFast),
		SMAMid:         zeroNaN(r.SMAMid),
		SMASlow:        zeroNaN(r.SMASlow),
		ATR:            zeroNaN(r.ATR),
		RSI:            zeroNaN(r.RSI),
		Volume:         latest.Volume,
		VolumeMA:       zeroNaN(r.VolumeMA),
		Trend:          trend,
		AboveSlowSMA:   latest.Close > r.SMASlow,
		PriceChangePct: changePct,
	}
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
