package detector

import (
	"math"
	"time"

	"github.com/whalepulse/engine/internal/market"
	"github.com/whalepulse/engine/internal/store"
)

// consolidationRange returns the close-to-close range of the last 20 candles
// as a percentage of their mean close.
func consolidationRange(candles []store.Candle) float64 {
	window := candles
	if len(window) > 20 {
		window = window[len(window)-20:]
	}

	lo := math.Inf(1)
	hi := math.Inf(-1)
	sum := 0.0
	for _, c := range window {
		if c.Close < lo {
			lo = c.Close
		}
		if c.Close > hi {
			hi = c.Close
		}
		sum += c.Close
	}
	avg := sum / float64(len(window))
	if avg == 0 {
		return 0
	}
	return (hi - lo) / avg * 100
}

// trendConfirmed reports whether the most recent candles all moved with the
// breakout direction, with a 0.1% tolerance per candle.
func (d *Detector) trendConfirmed(candles []store.Candle, bullish bool) bool {
	n := d.cfg.TrendConfirmCandles + 1
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	for _, c := range candles {
		if bullish {
			if c.Close < c.Open*0.999 {
				return false
			}
		} else {
			if c.Close > c.Open*1.001 {
				return false
			}
		}
	}
	return true
}

// smaContextOK checks that the 7-candle SMA does not contradict the breakout
// direction against the 15-candle SMA by more than 3%. Vacuously true with
// fewer than 15 candles.
func smaContextOK(candles []store.Candle, bullish bool) bool {
	if len(candles) < 15 {
		return true
	}

	sma := func(n int) float64 {
		sum := 0.0
		for _, c := range candles[len(candles)-n:] {
			sum += c.Close
		}
		return sum / float64(n)
	}

	sma7, sma15 := sma(7), sma(15)
	if bullish {
		return sma7 >= sma15*0.97
	}
	return sma7 <= sma15*1.03
}

// checkTrendStart runs the trend-start detector: a breakout out of a tight
// consolidation, backed by at least one bonus confirmation. Callers hold d.mu.
func (d *Detector) checkTrendStart(state market.TickState, now time.Time) (store.Alert, bool) {
	candles := state.Candles
	if len(candles) < d.cfg.TrendMinCandles {
		return store.Alert{}, false
	}

	rangePct := consolidationRange(candles)
	if rangePct >= d.cfg.TrendConsolidationMax {
		return store.Alert{}, false
	}

	if math.Abs(state.CandleChangePct) < d.cfg.TrendBreakoutMin {
		return store.Alert{}, false
	}

	bullish := state.CandleChangePct > 0

	confirmed := d.trendConfirmed(candles, bullish)
	// The volume-spike bonus reuses the pump minute buckets with zero tick
	// volume, so only the bucket comparison feeds the ratio.
	_, volumeRatio := d.pumpVolumeCheck(state.Symbol, 0, state.CandleChangePct, state.Minute, now)
	volumeSpike := volumeRatio >= 1.3
	contextOK := smaContextOK(candles, bullish)

	if !confirmed && !volumeSpike && !contextOK {
		return store.Alert{}, false
	}

	if now.Sub(d.lastTrend[state.Symbol]) <= d.cfg.TrendCooldown {
		return store.Alert{}, false
	}
	d.lastTrend[state.Symbol] = now

	context := "BEARISH"
	if bullish {
		context = "BULLISH"
	}

	a := newAlert(state, store.AlertTrendStart, "TREND START", true, true, now)
	a.VolumeRatio = volumeRatio
	a.TrendDetails = &store.TrendDetails{
		ConsolidationRange: rangePct,
		BreakoutPercent:    state.CandleChangePct,
		VolumeRatio:        volumeRatio,
		TrendConfirmed:     confirmed,
		VolumeSpike:        volumeSpike,
		ContextOK:          contextOK,
		Context:            context,
	}
	return a, true
}
