package market

import "math"

// EvalGates evaluates the four confirmation conditions for the given bar and
// its indicator row.
func EvalGates(b Bar, r Row) Gates {
	bullAligned := r.SMAFast > r.SMAMid && r.SMAMid > r.SMASlow
	bearAligned := r.SMAFast < r.SMAMid && r.SMAMid < r.SMASlow
	aboveSlow := b.Close > r.SMASlow

	return Gates{
		PriceVsSlowSMA:  (bullAligned && aboveSlow) || (bearAligned && !aboveSlow),
		SMAAlignment:    bullAligned || bearAligned,
		VolumeConfirmed: b.Volume > r.VolumeMA*1.2,
		RSIInRange:      r.RSI > 30 && r.RSI < 70,
	}
}

// IdentifySetup classifies the latest bars into a Setup, or returns nil when
// no pattern matches or history is too short. Rules are checked in a fixed
// order; the first match wins.
func IdentifySetup(bars []Bar, rows []Row) *Setup {
	if len(bars) < MinBars || len(rows) != len(bars) {
		return nil
	}
	latest := bars[len(bars)-1]
	prev := bars[len(bars)-2]
	r := rows[len(rows)-1]
	pr := rows[len(rows)-2]
	if math.IsNaN(r.SMASlow) || math.IsNaN(r.ATR) || math.IsNaN(r.RSI) || math.IsNaN(r.VolumeMA) {
		return nil
	}
	return classify(prev, latest, pr, r)
}

// classify applies the setup rules to the last two bars and their indicator
// rows. Split out from IdentifySetup so the numeric rules can be exercised
// directly with hand-built rows.
func classify(prev, latest Bar, pr, r Row) *Setup {
	bullAligned := r.SMAFast > r.SMAMid && r.SMAMid > r.SMASlow
	bearAligned := r.SMAFast < r.SMAMid && r.SMAMid < r.SMASlow
	aboveSlow := latest.Close > r.SMASlow
	gates := EvalGates(latest, r)
	body := BodyRule(latest)

	between := func(v, a, b float64) bool {
		lo, hi := math.Min(a, b), math.Max(a, b)
		return v >= lo && v <= hi
	}

	switch {
	// Pullback long: uptrend, price resting between the fast and mid SMAs.
	case aboveSlow && bullAligned && r.RSI < 70 && between(latest.Close, r.SMAFast, r.SMAMid):
		return &Setup{
			Type:          PullbackLong,
			Direction:     Long,
			Entry:         latest.Close,
			Stop:          r.SMAMid - r.ATR*1.5,
			Target:        latest.Close + r.ATR*2,
			Confidence:    confidence(0.7, 0.5, gates),
			Gates:         gates,
			MeetsBodyRule: body,
		}

	// Breakout long: close crosses above the fast SMA on heavy volume.
	case aboveSlow && bullAligned &&
		prev.Close <= pr.SMAFast && latest.Close > r.SMAFast &&
		latest.Volume > r.VolumeMA*1.5:
		return &Setup{
			Type:          BreakoutLong,
			Direction:     Long,
			Entry:         latest.Close,
			Stop:          r.SMAFast - r.ATR,
			Target:        latest.Close + r.ATR*2.5,
			Confidence:    confidence(0.75, 0.6, gates),
			Gates:         gates,
			MeetsBodyRule: body,
		}

	// Pullback short: mirror of pullback long in a downtrend.
	case !aboveSlow && bearAligned && r.RSI > 30 && between(latest.Close, r.SMAFast, r.SMAMid):
		return &Setup{
			Type:          PullbackShort,
			Direction:     Short,
			Entry:         latest.Close,
			Stop:          r.SMAMid + r.ATR*1.5,
			Target:        latest.Close - r.ATR*2,
			Confidence:    confidence(0.7, 0.5, gates),
			Gates:         gates,
			MeetsBodyRule: body,
		}

	// Breakdown short: close crosses below the fast SMA on heavy volume.
	case !aboveSlow && bearAligned &&
		prev.Close >= pr.SMAFast && latest.Close < r.SMAFast &&
		latest.Volume > r.VolumeMA*1.5:
		return &Setup{
			Type:          BreakdownShort,
			Direction:     Short,
			Entry:         latest.Close,
			Stop:          r.SMAFast + r.ATR,
			Target:        latest.Close - r.ATR*2.5,
			Confidence:    confidence(0.75, 0.6, gates),
			Gates:         gates,
			MeetsBodyRule: body,
		}
	}
	return nil
}

func confidence(confirmed, base float64, g Gates) float64 {
	if g.All() {
		return confirmed
	}
	return base
}
