// Package engine runs the core event loop: tick batches feed the market
// tracker and detectors, alerts feed auto-trading, and a fixed-interval pass
// re-evaluates open positions. Batches and the evaluation timer are handled
// on one goroutine, so no evaluation ever observes a half-applied batch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/whalepulse/engine/internal/config"
	"github.com/whalepulse/engine/internal/detector"
	"github.com/whalepulse/engine/internal/enrich"
	"github.com/whalepulse/engine/internal/market"
	"github.com/whalepulse/engine/internal/store"
	"github.com/whalepulse/engine/internal/trading"
)

// Engine wires the tracker, detectors, position manager and enrichment
// together and owns the alert ring.
type Engine struct {
	cfg      *config.Config
	tracker  *market.Tracker
	detector *detector.Detector
	manager  *trading.Manager
	enricher *enrich.Service // may be nil

	batchChan <-chan []store.Tick

	mu     sync.RWMutex
	strat  store.StrategyConfig
	alerts []store.Alert // newest first, capped
}

// New creates an Engine. enricher may be nil to disable candidate fetches.
func New(cfg *config.Config, batchChan <-chan []store.Tick, enricher *enrich.Service) *Engine {
	return &Engine{
		cfg:       cfg,
		tracker:   market.NewTracker(),
		detector:  detector.New(cfg),
		manager:   trading.NewManager(cfg),
		enricher:  enricher,
		batchChan: batchChan,
		strat:     store.DefaultStrategyConfig(),
	}
}

// Run processes tick batches and evaluation ticks until the context ends.
func (e *Engine) Run(ctx context.Context) {
	evalTicker := time.NewTicker(e.cfg.EvaluationInterval)
	defer evalTicker.Stop()

	cleanupTicker := time.NewTicker(5 * time.Minute)
	defer cleanupTicker.Stop()

	slog.Info("engine_started",
		"signal_policy", e.cfg.SignalPolicy,
		"evaluation_interval", e.cfg.EvaluationInterval,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine_stopped")
			return
		case batch := <-e.batchChan:
			e.processBatch(batch)
		case <-evalTicker.C:
			e.evaluateCycle(time.Now())
		case <-cleanupTicker.C:
			e.tracker.Cleanup(time.Hour, time.Now())
		}
	}
}

// evaluateCycle runs one timer-driven pass: open positions are re-checked
// against current prices, then the alert ring is offered to auto-trading
// again. Alerts that arrived while the position cap was saturated stay
// unconsumed, so they open as soon as a slot frees; the processed-ID set
// keeps the re-offer idempotent.
func (e *Engine) evaluateCycle(now time.Time) {
	e.manager.EvaluateAll(e.tracker.Price, now)
	e.manager.HandleAlerts(e.Alerts(), e.Strategy(), now)
}

// processBatch ingests every tick, runs the detectors, and hands new alerts
// to auto-trading. One symbol's failure never aborts the batch.
func (e *Engine) processBatch(batch []store.Tick) {
	strat := e.Strategy()

	var newAlerts []store.Alert
	for _, tick := range batch {
		state := e.tracker.Ingest(tick)

		if e.isBlacklisted(strat, tick.Symbol) {
			continue
		}

		alerts := e.detector.Evaluate(state, strat, tick.Time)
		for _, a := range alerts {
			slog.Info("alert_emitted",
				"kind", a.Kind,
				"symbol", a.Symbol,
				"side", a.Side,
				"change", a.Change,
				"volume_ratio", a.VolumeRatio,
			)
			if a.Kind == store.AlertPumpStart && e.enricher != nil {
				e.enricher.Trigger(context.Background(), a.Symbol)
			}
		}
		newAlerts = append(newAlerts, alerts...)
	}

	if len(newAlerts) == 0 {
		return
	}

	e.mu.Lock()
	e.alerts = append(append([]store.Alert(nil), newAlerts...), e.alerts...)
	if len(e.alerts) > e.cfg.MaxAlerts {
		e.alerts = e.alerts[:e.cfg.MaxAlerts]
	}
	e.mu.Unlock()

	e.manager.HandleAlerts(newAlerts, strat, time.Now())
}

// isBlacklisted matches a symbol against the blacklist with the quote-asset
// suffix stripped, so "FLOW" blocks "FLOWUSDT".
func (e *Engine) isBlacklisted(strat store.StrategyConfig, symbol string) bool {
	clean := strings.TrimSuffix(strings.ToUpper(symbol), e.cfg.QuoteAsset)
	for _, b := range strat.Blacklist {
		if strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(b)), e.cfg.QuoteAsset) == clean {
			return true
		}
	}
	return false
}

// Alerts returns a snapshot of the alert ring, newest first.
func (e *Engine) Alerts() []store.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]store.Alert(nil), e.alerts...)
}

// Strategy returns the current strategy configuration.
func (e *Engine) Strategy() store.StrategyConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strat
}

// SetStrategy replaces the strategy configuration. The next evaluation cycle
// observes the new values.
func (e *Engine) SetStrategy(strat store.StrategyConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strat = strat
	slog.Info("strategy_updated",
		"auto_trading", strat.AutoTrading,
		"elite_mode", strat.EliteMode,
		"leverage", strat.Leverage,
		"risk_per_trade", strat.RiskPerTrade,
	)
}

// Positions returns the open positions.
func (e *Engine) Positions() []store.Position {
	return e.manager.Positions()
}

// History returns the closed trade history.
func (e *Engine) History() []store.TradeHistoryItem {
	return e.manager.History()
}

// Account returns the account state with equity marked to current prices.
func (e *Engine) Account() store.AccountState {
	return e.manager.Account(e.tracker.Price)
}

// OpenManual opens a manual position at the current market price.
func (e *Engine) OpenManual(req trading.ManualOpenRequest) (store.Position, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return store.Position{}, fmt.Errorf("symbol is required")
	}
	if !strings.HasSuffix(symbol, e.cfg.QuoteAsset) {
		symbol += e.cfg.QuoteAsset
	}
	req.Symbol = symbol

	price, ok := e.tracker.Price(symbol)
	if !ok {
		return store.Position{}, fmt.Errorf("no market data for %s", symbol)
	}
	return e.manager.OpenManual(req, price, e.Strategy(), time.Now())
}

// ClosePosition closes one position by id at the current market price.
func (e *Engine) ClosePosition(id string) error {
	return e.manager.ClosePosition(id, e.tracker.Price, time.Now())
}

// EmergencyStop closes all open positions. Returns how many were closed.
func (e *Engine) EmergencyStop() int {
	n := e.manager.EmergencyStop(e.tracker.Price, time.Now())
	slog.Warn("emergency_stop", "closed", n)
	return n
}

// Candidate returns the cached enrichment for a symbol, if any.
func (e *Engine) Candidate(symbol string) (enrich.Candidate, bool) {
	if e.enricher == nil {
		return enrich.Candidate{}, false
	}
	return e.enricher.Candidate(strings.ToUpper(symbol))
}
