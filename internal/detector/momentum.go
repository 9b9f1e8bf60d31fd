package detector

import (
	"math"
	"time"

	"github.com/whalepulse/engine/internal/market"
	"github.com/whalepulse/engine/internal/store"
)

// momentumTier is the classification outcome of the momentum detector.
type momentumTier struct {
	kind     string
	strength float64
}

// classifyMomentum matches the state against the tiers in priority order:
// PARABOLIC, STAIRCASE, INSTITUTIONAL, then baseline MOMENTUM. The strength
// score is capped at 100 and used only for display and priority.
func (d *Detector) classifyMomentum(state market.TickState) (momentumTier, bool) {
	hist := state.History
	if len(hist.Prices) < 5 {
		return momentumTier{}, false
	}

	volumeRatio := 0.0
	if avg := mean(hist.Volumes[:len(hist.Volumes)-1]); avg > 0 {
		volumeRatio = state.QuoteVolume / avg
	}

	recent := hist.Prices[len(hist.Prices)-5:]
	change5 := 0.0
	if recent[0] > 0 {
		change5 = (state.Price - recent[0]) / recent[0] * 100
	}

	rising, falling := true, true
	for i := 1; i < len(recent); i++ {
		if recent[i] < recent[i-1]*0.998 {
			rising = false
		}
		if recent[i] > recent[i-1]*1.002 {
			falling = false
		}
	}

	absChange := math.Abs(state.CandleChangePct)

	switch {
	case volumeRatio > d.cfg.ParabolicVolumeRatio && absChange >= d.cfg.ParabolicPriceChange:
		return momentumTier{store.AlertParabolic, math.Min(100, volumeRatio*30)}, true
	case (rising || falling) && volumeRatio > d.cfg.StaircaseVolumeRatio:
		return momentumTier{store.AlertStaircase, math.Min(100, math.Abs(change5)*20+volumeRatio*10)}, true
	case volumeRatio > d.cfg.InstitutionalVolumeRatio && absChange >= d.cfg.InstitutionalPriceChange:
		return momentumTier{store.AlertInstitutional, math.Min(100, volumeRatio*25+absChange*15)}, true
	case absChange >= d.cfg.BasicPriceChange && volumeRatio > d.cfg.BasicVolumeRatio:
		return momentumTier{store.AlertMomentum, math.Min(100, absChange*30+volumeRatio*15)}, true
	}

	return momentumTier{}, false
}

// checkMomentum runs the momentum classifier, gated by the configurable
// price-change threshold and an 8-second per-symbol cooldown. Callers hold
// d.mu.
func (d *Detector) checkMomentum(state market.TickState, strat store.StrategyConfig, now time.Time) (store.Alert, bool) {
	if math.Abs(state.CandleChangePct) < strat.PriceChangeThreshold {
		return store.Alert{}, false
	}

	if now.Sub(d.lastMomentum[state.Symbol]) <= d.cfg.MomentumCooldown {
		return store.Alert{}, false
	}

	tier, ok := d.classifyMomentum(state)
	if !ok {
		return store.Alert{}, false
	}
	d.lastMomentum[state.Symbol] = now

	elite := tier.kind != store.AlertMomentum
	reason := "PULSE MOMENTUM"
	if elite {
		reason = "ELITE " + tier.kind
	}

	a := newAlert(state, tier.kind, reason, elite, true, now)
	a.Strength = tier.strength
	if avg := mean(state.History.Volumes[:len(state.History.Volumes)-1]); avg > 0 {
		a.VolumeRatio = state.QuoteVolume / avg
	}
	return a, true
}
