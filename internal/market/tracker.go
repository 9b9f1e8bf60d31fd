// Package market maintains per-symbol rolling price/volume state and
// synthetic one-minute candles built from the ticker stream.
package market

import (
	"sync"
	"time"

	"github.com/whalepulse/engine/internal/store"
)

const (
	// RollingWindow is the number of (price, volume) samples kept per symbol.
	RollingWindow = 30
	// CandleHistoryCap is the number of closed one-minute candles kept per symbol.
	CandleHistoryCap = 60
)

// RollingHistory is a bounded window of recent ticker samples for one symbol.
// Volumes are the cumulative quote volumes as reported by the exchange.
type RollingHistory struct {
	Prices  []float64
	Volumes []float64
}

// TickState is the post-update view of one symbol after ingesting a tick.
// Downstream detectors read only from this snapshot.
type TickState struct {
	Symbol          string
	Price           float64
	CandleOpen      float64
	CandleChangePct float64
	TickVolume      float64
	QuoteVolume     float64
	Minute          int64
	History         RollingHistory
	Candles         []store.Candle
}

// symbolState is the mutable per-symbol record.
type symbolState struct {
	history       RollingHistory
	candles       []store.Candle
	candleOpen    float64
	candleHigh    float64
	candleLow     float64
	candleVolume  float64
	candleMinute  int64
	hasCandle     bool
	lastQuoteVol  float64
	seenQuoteVol  bool
	lastPrice     float64
	lastUpdate    time.Time
}

// Tracker provides thread-safe rolling market state per symbol.
type Tracker struct {
	mu      sync.RWMutex
	symbols map[string]*symbolState
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		symbols: make(map[string]*symbolState),
	}
}

// Ingest applies one tick and returns the updated state for that symbol.
// The tick volume delta is clamped at zero so a resetting upstream counter
// never produces negative volume.
func (t *Tracker) Ingest(tick store.Tick) TickState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.symbols[tick.Symbol]
	if !ok {
		st = &symbolState{}
		t.symbols[tick.Symbol] = st
	}

	// Volume delta against the previous cumulative reading. The first
	// observation yields zero.
	tickVolume := 0.0
	if st.seenQuoteVol {
		if d := tick.QuoteVolume - st.lastQuoteVol; d > 0 {
			tickVolume = d
		}
	}
	st.lastQuoteVol = tick.QuoteVolume
	st.seenQuoteVol = true

	// Rolling window of raw samples.
	st.history.Prices = append(st.history.Prices, tick.Price)
	st.history.Volumes = append(st.history.Volumes, tick.QuoteVolume)
	if len(st.history.Prices) > RollingWindow {
		st.history.Prices = st.history.Prices[1:]
		st.history.Volumes = st.history.Volumes[1:]
	}

	// Candle update or rollover.
	minute := tick.Time.Unix() / 60
	if !st.hasCandle {
		st.candleOpen = tick.Price
		st.candleHigh = tick.Price
		st.candleLow = tick.Price
		st.candleVolume = 0
		st.candleMinute = minute
		st.hasCandle = true
	} else if st.candleMinute != minute {
		st.candles = append(st.candles, store.Candle{
			Open:   st.candleOpen,
			High:   st.candleHigh,
			Low:    st.candleLow,
			Close:  st.lastPrice,
			Volume: st.candleVolume,
			Minute: st.candleMinute,
		})
		if len(st.candles) > CandleHistoryCap {
			st.candles = st.candles[1:]
		}
		st.candleOpen = tick.Price
		st.candleHigh = tick.Price
		st.candleLow = tick.Price
		st.candleVolume = 0
		st.candleMinute = minute
	}

	if tick.Price > st.candleHigh {
		st.candleHigh = tick.Price
	}
	if tick.Price < st.candleLow {
		st.candleLow = tick.Price
	}
	st.candleVolume += tickVolume
	st.lastPrice = tick.Price
	st.lastUpdate = tick.Time

	changePct := 0.0
	if st.candleOpen > 0 {
		changePct = (tick.Price - st.candleOpen) / st.candleOpen * 100
	}

	return TickState{
		Symbol:          tick.Symbol,
		Price:           tick.Price,
		CandleOpen:      st.candleOpen,
		CandleChangePct: changePct,
		TickVolume:      tickVolume,
		QuoteVolume:     tick.QuoteVolume,
		Minute:          minute,
		History: RollingHistory{
			Prices:  append([]float64(nil), st.history.Prices...),
			Volumes: append([]float64(nil), st.history.Volumes...),
		},
		Candles: append([]store.Candle(nil), st.candles...),
	}
}

// Price returns the most recent price for a symbol, if any tick has been seen.
func (t *Tracker) Price(symbol string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.symbols[symbol]
	if !ok || st.lastUpdate.IsZero() {
		return 0, false
	}
	return st.lastPrice, true
}

// Candles returns a copy of the closed candle history for a symbol.
func (t *Tracker) Candles(symbol string) []store.Candle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.symbols[symbol]
	if !ok {
		return nil
	}
	return append([]store.Candle(nil), st.candles...)
}

// Symbols returns all tracked symbol names.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.symbols))
	for s := range t.symbols {
		out = append(out, s)
	}
	return out
}

// Cleanup drops symbols with no updates past the cutoff.
func (t *Tracker) Cleanup(maxAge time.Duration, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-maxAge)
	for s, st := range t.symbols {
		if st.lastUpdate.Before(cutoff) {
			delete(t.symbols, s)
		}
	}
}
