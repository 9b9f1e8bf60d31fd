package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/whalepulse/engine/internal/config"
	"github.com/whalepulse/engine/internal/store"
	"github.com/whalepulse/engine/internal/trading"
)

func testConfig() *config.Config {
	return &config.Config{
		QuoteAsset: "USDT",

		PumpPriceChangeMin:  1.0,
		PumpVolumeRatioMin:  2.0,
		PumpVolumeRatio5m:   1.8,
		PumpVolumeRatio10m:  2.2,
		PumpCooldown:        180 * time.Second,
		PumpVolumeBucketCap: 20,

		TrendMinCandles:       10,
		TrendConsolidationMax: 1.5,
		TrendBreakoutMin:      1.0,
		TrendConfirmCandles:   2,
		TrendCooldown:         60 * time.Second,

		ParabolicVolumeRatio:     2.5,
		ParabolicPriceChange:     0.8,
		StaircaseVolumeRatio:     1.5,
		InstitutionalVolumeRatio: 1.8,
		InstitutionalPriceChange: 0.6,
		BasicPriceChange:         0.8,
		BasicVolumeRatio:         1.3,
		MomentumCooldown:         8 * time.Second,

		SignalPolicy: config.PolicyIndependent,

		FeeRate:            0.0005,
		TrailingStopPct:    1.5,
		InitialBalance:     10000,
		MaxAlerts:          1000,
		MaxHistory:         500,
		EvaluationInterval: time.Second,
	}
}

func newTestEngine(cfg *config.Config) *Engine {
	return New(cfg, make(chan []store.Tick), nil)
}

// feedMomentumRamp pushes five single-tick batches that end in a parabolic
// momentum signal for the symbol.
func feedMomentumRamp(e *Engine, symbol string, t0 time.Time) {
	prices := []float64{100, 100.2, 100.4, 100.6, 101.5}
	volumes := []float64{100, 200, 300, 400, 1600} // final reading far above the window mean
	for i := range prices {
		e.processBatch([]store.Tick{{
			Symbol:      symbol,
			Price:       prices[i],
			QuoteVolume: volumes[i],
			Time:        t0.Add(time.Duration(i) * time.Second),
		}})
	}
}

func TestProcessBatchEmitsAlertsAndTrades(t *testing.T) {
	e := newTestEngine(testConfig())
	t0 := time.Unix(1_700_000_040, 0)

	feedMomentumRamp(e, "MOMUSDT", t0)

	alerts := e.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("Expected one alert, got %d", len(alerts))
	}
	if alerts[0].Kind != store.AlertParabolic {
		t.Errorf("Expected PARABOLIC alert, got %s", alerts[0].Kind)
	}

	positions := e.Positions()
	if len(positions) != 1 {
		t.Fatalf("Expected auto-trade to open a position, got %d", len(positions))
	}
	if positions[0].Symbol != "MOMUSDT" || positions[0].EntryPrice != 101.5 {
		t.Errorf("Unexpected position: %+v", positions[0])
	}
}

func TestBlacklistedSymbolStillTracked(t *testing.T) {
	e := newTestEngine(testConfig())
	t0 := time.Unix(1_700_000_040, 0)

	// FLOW is on the default blacklist: no alerts, no trades.
	feedMomentumRamp(e, "FLOWUSDT", t0)
	if len(e.Alerts()) != 0 {
		t.Error("Expected no alerts for a blacklisted symbol")
	}
	if len(e.Positions()) != 0 {
		t.Error("Expected no auto-trade for a blacklisted symbol")
	}

	// But its ticks still feed the tracker, so manual trades work.
	if _, err := e.OpenManual(trading.ManualOpenRequest{Symbol: "flow", Side: store.SideLong}); err != nil {
		t.Errorf("Expected manual open on blacklisted symbol, got %v", err)
	}
}

func TestAlertRingNewestFirstAndCapped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAlerts = 2
	e := newTestEngine(cfg)
	t0 := time.Unix(1_700_000_040, 0)

	feedMomentumRamp(e, "AAAUSDT", t0)
	feedMomentumRamp(e, "BBBUSDT", t0.Add(time.Minute))
	feedMomentumRamp(e, "CCCUSDT", t0.Add(2*time.Minute))

	alerts := e.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("Expected ring capped at 2, got %d", len(alerts))
	}
	if alerts[0].Symbol != "CCCUSDT" || alerts[1].Symbol != "BBBUSDT" {
		t.Errorf("Expected newest first, got %s / %s", alerts[0].Symbol, alerts[1].Symbol)
	}
}

func TestCappedAlertOpensWhenSlotFrees(t *testing.T) {
	e := newTestEngine(testConfig())
	strat := e.Strategy()
	strat.MaxConcurrentTrades = 1
	e.SetStrategy(strat)
	t0 := time.Unix(1_700_000_040, 0)

	feedMomentumRamp(e, "AAAUSDT", t0)
	if len(e.Positions()) != 1 {
		t.Fatalf("Expected the first alert to open a position, got %d", len(e.Positions()))
	}

	// A valid alert arriving while the cap is saturated opens nothing, but
	// stays unconsumed in the ring.
	feedMomentumRamp(e, "BBBUSDT", t0.Add(time.Minute))
	if len(e.Positions()) != 1 {
		t.Fatalf("Expected the cap to hold at 1 position, got %d", len(e.Positions()))
	}
	if len(e.Alerts()) != 2 {
		t.Fatalf("Expected both alerts in the ring, got %d", len(e.Alerts()))
	}

	if err := e.ClosePosition(e.Positions()[0].ID); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}

	// The next evaluation pass picks the waiting alert up.
	e.evaluateCycle(time.Now())

	positions := e.Positions()
	if len(positions) != 1 || positions[0].Symbol != "BBBUSDT" {
		t.Fatalf("Expected the capped alert to open once a slot freed, got %+v", positions)
	}

	// And a further pass does not double-open from the same alert.
	e.evaluateCycle(time.Now())
	if len(e.Positions()) != 1 {
		t.Errorf("Expected re-offer to stay idempotent, got %d positions", len(e.Positions()))
	}
}

func TestOpenManualNormalizesSymbol(t *testing.T) {
	e := newTestEngine(testConfig())
	t0 := time.Unix(1_700_000_040, 0)

	if _, err := e.OpenManual(trading.ManualOpenRequest{Symbol: "btc", Side: store.SideLong}); err == nil {
		t.Fatal("Expected error without market data")
	} else if !strings.Contains(err.Error(), "no market data") {
		t.Errorf("Unexpected error: %v", err)
	}

	e.processBatch([]store.Tick{{Symbol: "BTCUSDT", Price: 45000, QuoteVolume: 1000, Time: t0}})

	pos, err := e.OpenManual(trading.ManualOpenRequest{Symbol: " btc ", Side: store.SideLong})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pos.Symbol != "BTCUSDT" {
		t.Errorf("Expected normalized BTCUSDT, got %s", pos.Symbol)
	}
	if pos.EntryPrice != 45000 {
		t.Errorf("Expected entry at the tracked price, got %f", pos.EntryPrice)
	}
}

func TestStrategyRoundTrip(t *testing.T) {
	e := newTestEngine(testConfig())

	strat := e.Strategy()
	strat.Leverage = 5
	strat.AutoTrading = false
	e.SetStrategy(strat)

	got := e.Strategy()
	if got.Leverage != 5 || got.AutoTrading {
		t.Errorf("Expected updated strategy, got %+v", got)
	}
}

func TestCandidateWithoutEnricher(t *testing.T) {
	e := newTestEngine(testConfig())
	if _, ok := e.Candidate("BTCUSDT"); ok {
		t.Error("Expected no candidate without an enricher")
	}
}
