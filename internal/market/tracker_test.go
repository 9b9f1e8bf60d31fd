package market

import (
	"testing"
	"time"

	"github.com/whalepulse/engine/internal/store"
)

func tickAt(symbol string, price, quoteVolume float64, ts time.Time) store.Tick {
	return store.Tick{Symbol: symbol, Price: price, QuoteVolume: quoteVolume, Time: ts}
}

func TestVolumeDeltaNonNegative(t *testing.T) {
	tr := NewTracker()
	base := time.Unix(1_700_000_040, 0)

	// First observation yields zero delta.
	state := tr.Ingest(tickAt("BTCUSDT", 100, 5000, base))
	if state.TickVolume != 0 {
		t.Errorf("Expected zero delta on first tick, got %f", state.TickVolume)
	}

	state = tr.Ingest(tickAt("BTCUSDT", 101, 5300, base.Add(time.Second)))
	if state.TickVolume != 300 {
		t.Errorf("Expected delta 300, got %f", state.TickVolume)
	}

	// Upstream counter reset must clamp to zero, not go negative.
	state = tr.Ingest(tickAt("BTCUSDT", 102, 100, base.Add(2*time.Second)))
	if state.TickVolume != 0 {
		t.Errorf("Expected clamped delta 0 after counter reset, got %f", state.TickVolume)
	}
}

func TestRollingWindowCap(t *testing.T) {
	tr := NewTracker()
	base := time.Unix(1_700_000_040, 0)

	var state TickState
	for i := 0; i < RollingWindow+10; i++ {
		state = tr.Ingest(tickAt("ETHUSDT", 100+float64(i), float64(1000+i), base.Add(time.Duration(i)*time.Second)))
	}

	if len(state.History.Prices) != RollingWindow {
		t.Errorf("Expected %d samples, got %d", RollingWindow, len(state.History.Prices))
	}
	// Oldest sample must have been evicted.
	if state.History.Prices[0] != 110 {
		t.Errorf("Expected oldest surviving price 110, got %f", state.History.Prices[0])
	}
}

func TestCandleRollover(t *testing.T) {
	tr := NewTracker()
	base := time.Unix(1_700_000_040, 0) // minute-aligned

	tr.Ingest(tickAt("BTCUSDT", 100, 1000, base))
	tr.Ingest(tickAt("BTCUSDT", 105, 1200, base.Add(10*time.Second)))
	tr.Ingest(tickAt("BTCUSDT", 95, 1300, base.Add(20*time.Second)))
	tr.Ingest(tickAt("BTCUSDT", 102, 1500, base.Add(30*time.Second)))

	// Crossing the minute boundary closes the candle.
	state := tr.Ingest(tickAt("BTCUSDT", 103, 1600, base.Add(61*time.Second)))

	if len(state.Candles) != 1 {
		t.Fatalf("Expected 1 closed candle, got %d", len(state.Candles))
	}
	c := state.Candles[0]

	if c.Open != 100 || c.Close != 102 {
		t.Errorf("Expected open=100 close=102, got open=%f close=%f", c.Open, c.Close)
	}
	if c.High < c.Open || c.High < c.Close {
		t.Errorf("High %f below open/close", c.High)
	}
	if c.Low > c.Open || c.Low > c.Close {
		t.Errorf("Low %f above open/close", c.Low)
	}
	// Volume is the sum of per-tick deltas within the minute: 200+100+200.
	if c.Volume != 500 {
		t.Errorf("Expected candle volume 500, got %f", c.Volume)
	}

	// The new candle opens at the first tick of the new minute.
	if state.CandleOpen != 103 {
		t.Errorf("Expected new candle open 103, got %f", state.CandleOpen)
	}
}

func TestCandleHistoryCap(t *testing.T) {
	tr := NewTracker()
	base := time.Unix(1_700_000_040, 0)

	var state TickState
	for i := 0; i < CandleHistoryCap+5; i++ {
		state = tr.Ingest(tickAt("BTCUSDT", 100, float64(1000+i), base.Add(time.Duration(i)*time.Minute)))
	}

	if len(state.Candles) != CandleHistoryCap {
		t.Errorf("Expected %d candles, got %d", CandleHistoryCap, len(state.Candles))
	}
}

func TestPriceLookup(t *testing.T) {
	tr := NewTracker()

	if _, ok := tr.Price("BTCUSDT"); ok {
		t.Error("Expected no price before any tick")
	}

	tr.Ingest(tickAt("BTCUSDT", 123.45, 1000, time.Unix(1_700_000_040, 0)))
	price, ok := tr.Price("BTCUSDT")
	if !ok || price != 123.45 {
		t.Errorf("Expected price 123.45, got %f (ok=%v)", price, ok)
	}
}

func TestCleanupDropsStaleSymbols(t *testing.T) {
	tr := NewTracker()
	base := time.Unix(1_700_000_040, 0)

	tr.Ingest(tickAt("OLDUSDT", 1, 100, base))
	tr.Ingest(tickAt("NEWUSDT", 2, 200, base.Add(2*time.Hour)))

	tr.Cleanup(time.Hour, base.Add(2*time.Hour))

	if _, ok := tr.Price("OLDUSDT"); ok {
		t.Error("Expected stale symbol to be dropped")
	}
	if _, ok := tr.Price("NEWUSDT"); !ok {
		t.Error("Expected fresh symbol to survive cleanup")
	}
}
