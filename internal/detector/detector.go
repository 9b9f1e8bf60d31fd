// Package detector implements the signal detection engine: pump, trend-start
// and momentum detectors over the rolling market state.
package detector

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whalepulse/engine/internal/config"
	"github.com/whalepulse/engine/internal/market"
	"github.com/whalepulse/engine/internal/store"
)

// Detector evaluates all three detectors for a symbol's post-tick state.
// Each detector keeps its own per-symbol cooldown slot so that one firing
// never suppresses the others.
type Detector struct {
	cfg *config.Config

	mu           sync.Mutex
	pumps        map[string]*pumpTracker
	lastMomentum map[string]time.Time
	lastTrend    map[string]time.Time
}

// New creates a Detector.
func New(cfg *config.Config) *Detector {
	return &Detector{
		cfg:          cfg,
		pumps:        make(map[string]*pumpTracker),
		lastMomentum: make(map[string]time.Time),
		lastTrend:    make(map[string]time.Time),
	}
}

// Evaluate runs the detectors for one symbol and returns zero or more alerts.
// With the independent policy every detector is checked; with first-wins the
// first detector that fires short-circuits the rest for this tick.
func (d *Detector) Evaluate(state market.TickState, strat store.StrategyConfig, now time.Time) []store.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	var alerts []store.Alert
	firstWins := strings.ToLower(d.cfg.SignalPolicy) == config.PolicyFirstWins

	// The minute buckets must see every tick's volume regardless of the
	// policy or the pump toggle, so the accumulator runs before anything
	// can short-circuit.
	pumpFired, volumeRatio := d.pumpVolumeCheck(state.Symbol, state.TickVolume, state.CandleChangePct, state.Minute, now)

	if a, ok := d.checkMomentum(state, strat, now); ok {
		alerts = append(alerts, a)
		if firstWins {
			return alerts
		}
	}

	if strat.PumpDetectionEnabled && pumpFired {
		alerts = append(alerts, d.pumpAlert(state, volumeRatio, now))
		if firstWins {
			return alerts
		}
	}

	if a, ok := d.checkTrendStart(state, now); ok {
		alerts = append(alerts, a)
	}

	return alerts
}

// newAlert fills the fields shared by every detector.
func newAlert(state market.TickState, kind, reason string, elite, autoTrade bool, now time.Time) store.Alert {
	side := store.SideLong
	if state.CandleChangePct < 0 {
		side = store.SideShort
	}
	return store.Alert{
		ID:            uuid.NewString(),
		Symbol:        state.Symbol,
		Side:          side,
		Kind:          kind,
		Reason:        reason,
		Change:        state.CandleChangePct,
		Price:         state.Price,
		PreviousPrice: state.CandleOpen,
		Timestamp:     now,
		Elite:         elite,
		AutoTrade:     autoTrade,
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
