package detector

import (
	"math"
	"time"

	"github.com/whalepulse/engine/internal/market"
	"github.com/whalepulse/engine/internal/store"
)

// pumpTracker accumulates per-minute quote volume for one symbol. The
// accumulator becomes a completed bucket exactly when the minute index
// changes.
type pumpTracker struct {
	minuteVolumes []float64
	lastAlert     time.Time
	currentVolume float64
	currentMinute int64
}

// pumpVolumeCheck rolls the minute buckets, adds tickVolume to the current
// accumulator, and evaluates the pump conditions. It returns whether all
// conditions hold and the ratio of the current minute's volume to the last
// completed minute's (zero when undefined). Firing resets the cooldown as a
// side effect, even when invoked from the trend detector's bonus check.
// Callers hold d.mu.
func (d *Detector) pumpVolumeCheck(symbol string, tickVolume, changePct float64, minute int64, now time.Time) (bool, float64) {
	tr, ok := d.pumps[symbol]
	if !ok {
		tr = &pumpTracker{currentMinute: minute}
		d.pumps[symbol] = tr
	}

	if tr.currentMinute != minute {
		tr.minuteVolumes = append(tr.minuteVolumes, tr.currentVolume)
		if len(tr.minuteVolumes) > d.cfg.PumpVolumeBucketCap {
			tr.minuteVolumes = tr.minuteVolumes[1:]
		}
		tr.currentVolume = 0
		tr.currentMinute = minute
	}
	tr.currentVolume += tickVolume

	priceCondition := math.Abs(changePct) >= d.cfg.PumpPriceChangeMin

	volumeCondition := false
	volumeRatio := 0.0
	if n := len(tr.minuteVolumes); n >= 2 {
		lastMinute := tr.minuteVolumes[n-1]
		current := tr.currentVolume

		cond := current > lastMinute*d.cfg.PumpVolumeRatioMin
		if !cond && n >= 5 {
			avg5 := mean(tr.minuteVolumes[n-5:])
			cond = current > avg5*d.cfg.PumpVolumeRatio5m
		}
		if !cond && n >= 10 {
			avg10 := mean(tr.minuteVolumes[n-10:])
			cond = current > avg10*d.cfg.PumpVolumeRatio10m
		}
		volumeCondition = cond

		if lastMinute > 0 {
			volumeRatio = current / lastMinute
		}
	}

	cooldownPassed := now.Sub(tr.lastAlert) > d.cfg.PumpCooldown
	isPump := priceCondition && volumeCondition && cooldownPassed

	if isPump {
		tr.lastAlert = now
	}

	return isPump, volumeRatio
}

// pumpAlert builds the PUMP_START alert from a fired volume check. Pump
// alerts always require manual confirmation, so AutoTrade is false.
func (d *Detector) pumpAlert(state market.TickState, volumeRatio float64, now time.Time) store.Alert {
	a := newAlert(state, store.AlertPumpStart, "PUMP DETECTED", true, false, now)
	a.VolumeRatio = volumeRatio
	return a
}
