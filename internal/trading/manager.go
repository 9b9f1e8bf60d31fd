// Package trading implements the position lifecycle manager: risk-based
// sizing, the stop-loss / take-profit / trailing-stop state machine, and the
// account ledger behind it.
package trading

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whalepulse/engine/internal/config"
	"github.com/whalepulse/engine/internal/store"
)

// TP1CloseFraction of the initial quantity closes at the first target;
// TP2CloseFraction of the then-remaining quantity closes at the second.
const (
	TP1CloseFraction = 0.40
	TP2CloseFraction = 0.50
)

// PriceFunc resolves the current price for a symbol. The second return is
// false when no tick has been seen yet; evaluation for that position is then
// deferred to the next cycle.
type PriceFunc func(symbol string) (float64, bool)

// ManualOpenRequest is a manual trade command. Zero-valued overrides fall
// back to the strategy config.
type ManualOpenRequest struct {
	Symbol          string
	Side            store.Side
	Leverage        float64
	RiskPerTrade    float64
	StopLossPercent float64
	TP1Percent      float64
	TP2Percent      float64
}

// Manager owns all open positions and the account ledger. All mutations run
// behind one mutex: the engine is the single writer, the API reads snapshots.
type Manager struct {
	cfg *config.Config

	mu        sync.Mutex
	positions map[string]*store.Position // symbol -> open position
	history   []store.TradeHistoryItem   // newest first, capped
	ledger    *ledger
	processed map[string]struct{} // consumed alert IDs
}

// NewManager creates a Manager with the configured starting balance.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:       cfg,
		positions: make(map[string]*store.Position),
		ledger:    newLedger(cfg.InitialBalance),
		processed: make(map[string]struct{}),
	}
}

// HandleAlerts consumes alerts for auto-trading in arrival order. Consumption
// is idempotent via the processed-ID set, so re-delivery never double-opens.
func (m *Manager) HandleAlerts(alerts []store.Alert, strat store.StrategyConfig, now time.Time) {
	if !strat.AutoTrading {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, alert := range alerts {
		if _, done := m.processed[alert.ID]; done {
			continue
		}
		if len(m.positions) >= strat.MaxConcurrentTrades {
			break
		}
		if _, open := m.positions[alert.Symbol]; open {
			m.processed[alert.ID] = struct{}{}
			continue
		}

		directionEnabled := strat.LongEnabled
		if alert.Side == store.SideShort {
			directionEnabled = strat.ShortEnabled
		}
		elitePassed := !strat.EliteMode || alert.Elite

		if !directionEnabled || !elitePassed || !alert.AutoTrade {
			continue
		}

		m.processed[alert.ID] = struct{}{}

		pos, ok := m.open(alert.Symbol, alert.Side, alert.Price, openParams{
			leverage:  strat.Leverage,
			riskPct:   strat.RiskPerTrade,
			slPct:     strat.StopLossPercent,
			tp1Pct:    strat.TP1Percent,
			tp2Pct:    strat.TP2Percent,
			source:    store.SourceAuto,
			alertKind: alert.Kind,
		}, now)
		if !ok {
			// Insufficient balance is a silent no-op; the alert stays
			// processed to avoid retry storms.
			slog.Info("auto_trade_rejected", "symbol", alert.Symbol, "reason", "insufficient balance")
			continue
		}

		slog.Info("position_opened",
			"symbol", pos.Symbol,
			"side", pos.Side,
			"entry", pos.EntryPrice,
			"quantity", pos.Quantity,
			"margin", pos.Margin,
			"source", pos.Source,
			"alert_kind", pos.AlertKind,
		)
	}
}

// OpenManual opens a position from a manual command at the given market price.
func (m *Manager) OpenManual(req ManualOpenRequest, price float64, strat store.StrategyConfig, now time.Time) (store.Position, error) {
	if req.Side != store.SideLong && req.Side != store.SideShort {
		return store.Position{}, fmt.Errorf("invalid side %q", req.Side)
	}

	params := openParams{
		leverage: req.Leverage,
		riskPct:  req.RiskPerTrade,
		slPct:    req.StopLossPercent,
		tp1Pct:   req.TP1Percent,
		tp2Pct:   req.TP2Percent,
		source:   store.SourceManual,
	}
	if params.leverage == 0 {
		params.leverage = strat.Leverage
	}
	if params.riskPct == 0 {
		params.riskPct = strat.RiskPerTrade
	}
	if params.slPct == 0 {
		params.slPct = strat.StopLossPercent
	}
	if params.tp1Pct == 0 {
		params.tp1Pct = strat.TP1Percent
	}
	if params.tp2Pct == 0 {
		params.tp2Pct = strat.TP2Percent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, open := m.positions[req.Symbol]; open {
		return store.Position{}, fmt.Errorf("position already open for %s", req.Symbol)
	}

	pos, ok := m.open(req.Symbol, req.Side, price, params, now)
	if !ok {
		return store.Position{}, fmt.Errorf("insufficient balance")
	}
	return *pos, nil
}

type openParams struct {
	leverage  float64
	riskPct   float64
	slPct     float64
	tp1Pct    float64
	tp2Pct    float64
	source    store.PositionSource
	alertKind string
}

// open sizes and books a new position. Callers hold m.mu.
func (m *Manager) open(symbol string, side store.Side, entry float64, p openParams, now time.Time) (*store.Position, bool) {
	riskUSD := m.ledger.balance * (p.riskPct / 100)
	slDist := entry * (p.slPct / 100)
	if slDist <= 0 {
		return nil, false
	}
	quantity := riskUSD / slDist
	margin := quantity * entry / p.leverage
	fee := quantity * entry * m.cfg.FeeRate

	if !m.ledger.debitOpen(margin, fee) {
		return nil, false
	}

	long := side == store.SideLong
	sign := 1.0
	if !long {
		sign = -1.0
	}

	pos := &store.Position{
		ID:              uuid.NewString(),
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      entry,
		Quantity:        quantity,
		InitialQuantity: quantity,
		Leverage:        p.leverage,
		Margin:          margin,
		Fees:            fee,
		StopLoss:        entry - sign*slDist,
		TP1:             entry * (1 + sign*p.tp1Pct/100),
		TP2:             entry * (1 + sign*p.tp2Pct/100),
		MinPrice:        entry,
		MaxPrice:        entry,
		OpenedAt:        now,
		Source:          p.source,
		AlertKind:       p.alertKind,
	}
	m.positions[symbol] = pos
	return pos, true
}

// EvaluateAll runs the per-cycle checks for every open position with fresh
// market data. Positions without a current price are deferred, not failed.
func (m *Manager) EvaluateAll(price PriceFunc, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, pos := range m.positions {
		current, ok := price(symbol)
		if !ok {
			slog.Debug("evaluation_deferred", "symbol", symbol, "reason", "no current price")
			continue
		}
		m.evaluate(pos, current, now)
	}
}

// evaluate applies at most one state transition to a position for this cycle:
// stop-loss, TP1, TP2, or a trailing/extreme update. Callers hold m.mu.
func (m *Manager) evaluate(pos *store.Position, current float64, now time.Time) {
	long := pos.Side == store.SideLong

	slHit := current <= pos.StopLoss
	if !long {
		slHit = current >= pos.StopLoss
	}
	if slHit {
		reason := store.ReasonStopLoss
		switch {
		case pos.TrailingActive:
			reason = store.ReasonTrailing
		case pos.TP1Hit:
			reason = store.ReasonBreakeven
		}
		m.closeFull(pos, current, reason, now)
		return
	}

	tp1Reached := current >= pos.TP1
	if !long {
		tp1Reached = current <= pos.TP1
	}
	if tp1Reached && !pos.TP1Hit {
		closeQty := pos.InitialQuantity * TP1CloseFraction
		m.closeSlice(pos, closeQty, current, store.ReasonTP1, "TP1 reached, 40% closed, stop moved to entry", now)
		pos.Quantity -= closeQty
		pos.PartialCloses.TP1 = closeQty
		pos.TP1Hit = true
		pos.StopLoss = pos.EntryPrice
		return
	}

	tp2Reached := current >= pos.TP2
	if !long {
		tp2Reached = current <= pos.TP2
	}
	if tp2Reached && pos.TP1Hit && !pos.TP2Hit {
		closeQty := pos.Quantity * TP2CloseFraction
		m.closeSlice(pos, closeQty, current, store.ReasonTP2, "TP2 reached, 50% of remainder closed, trailing stop active", now)
		pos.Quantity -= closeQty
		pos.PartialCloses.TP2 = closeQty
		pos.TP2Hit = true
		pos.StopLoss = pos.TP1
		pos.TrailingActive = true
		return
	}

	if current > pos.MaxPrice {
		pos.MaxPrice = current
	}
	if current < pos.MinPrice {
		pos.MinPrice = current
	}

	if pos.TrailingActive {
		// The trailing stop only ever tightens toward the extreme.
		trail := m.cfg.TrailingStopPct / 100
		if long {
			if sl := pos.MaxPrice * (1 - trail); sl > pos.StopLoss {
				pos.StopLoss = sl
			}
		} else {
			if sl := pos.MinPrice * (1 + trail); sl < pos.StopLoss {
				pos.StopLoss = sl
			}
		}
	}
}

// ClosePosition closes one position by id at the current market price.
func (m *Manager) ClosePosition(id string, price PriceFunc, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pos := range m.positions {
		if pos.ID != id {
			continue
		}
		current, ok := price(pos.Symbol)
		if !ok {
			current = pos.EntryPrice
		}
		m.closeFull(pos, current, store.ReasonManual, now)
		return nil
	}
	return fmt.Errorf("position %s not found", id)
}

// EmergencyStop closes every open position immediately. Returns the number of
// positions closed.
func (m *Manager) EmergencyStop(price PriceFunc, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	closed := 0
	for _, pos := range m.positions {
		current, ok := price(pos.Symbol)
		if !ok {
			current = pos.EntryPrice
		}
		m.closeFull(pos, current, store.ReasonEmergency, now)
		closed++
	}
	return closed
}

// closeSlice realizes pnl on a partial exit: credits the proportional margin
// share plus the net pnl and appends a history record. Callers hold m.mu.
func (m *Manager) closeSlice(pos *store.Position, qty, exit float64, reason, details string, now time.Time) {
	diff := exit - pos.EntryPrice
	if pos.Side == store.SideShort {
		diff = pos.EntryPrice - exit
	}
	exitFee := qty * exit * m.cfg.FeeRate
	netPnL := diff*qty - exitFee
	marginShare := pos.Margin * (qty / pos.InitialQuantity)

	m.ledger.creditClose(marginShare, netPnL)
	pos.Fees += exitFee

	pnlPct := 0.0
	if marginShare > 0 {
		pnlPct = netPnL / marginShare * 100
	}

	m.appendHistory(store.TradeHistoryItem{
		ID:            pos.ID + "-" + reasonSlug(reason),
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		Leverage:      pos.Leverage,
		Quantity:      qty,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exit,
		StopLoss:      pos.StopLoss,
		TP1:           pos.TP1,
		TP2:           pos.TP2,
		PnL:           netPnL,
		PnLPercent:    pnlPct,
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      now,
		Duration:      now.Sub(pos.OpenedAt),
		BalanceAfter:  m.ledger.balance,
		Reason:        reason,
		Efficiency:    store.EfficiencyPartial,
		Details:       details,
		TotalFees:     exitFee,
		MinPrice:      pos.MinPrice,
		MaxPrice:      pos.MaxPrice,
		InitialMargin: pos.Margin,
		Source:        pos.Source,
	})

	slog.Info("partial_close",
		"symbol", pos.Symbol,
		"reason", reason,
		"quantity", qty,
		"exit", exit,
		"pnl", netPnL,
	)
}

// closeFull realizes pnl on the entire remaining quantity, releases the
// remaining margin share, and deletes the position. Callers hold m.mu.
func (m *Manager) closeFull(pos *store.Position, exit float64, reason string, now time.Time) {
	diff := exit - pos.EntryPrice
	if pos.Side == store.SideShort {
		diff = pos.EntryPrice - exit
	}
	exitFee := pos.Quantity * exit * m.cfg.FeeRate
	netPnL := diff*pos.Quantity - exitFee
	marginShare := pos.Margin * (pos.Quantity / pos.InitialQuantity)

	m.ledger.creditClose(marginShare, netPnL)
	pos.Fees += exitFee

	efficiency := store.EfficiencyLoss
	switch {
	case reason == store.ReasonBreakeven:
		efficiency = store.EfficiencyBE
	case netPnL > 0:
		efficiency = store.EfficiencyPerfect
	}

	m.appendHistory(store.TradeHistoryItem{
		ID:            pos.ID,
		Symbol:        pos.Symbol,
		Side:          pos.Side,
		Leverage:      pos.Leverage,
		Quantity:      pos.Quantity,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exit,
		StopLoss:      pos.StopLoss,
		TP1:           pos.TP1,
		TP2:           pos.TP2,
		PnL:           netPnL,
		PnLPercent:    netPnL / pos.Margin * 100,
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      now,
		Duration:      now.Sub(pos.OpenedAt),
		BalanceAfter:  m.ledger.balance,
		Reason:        reason,
		Efficiency:    efficiency,
		Details:       reason,
		TotalFees:     pos.Fees,
		MinPrice:      pos.MinPrice,
		MaxPrice:      pos.MaxPrice,
		InitialMargin: pos.Margin,
		Source:        pos.Source,
	})

	delete(m.positions, pos.Symbol)

	slog.Info("position_closed",
		"symbol", pos.Symbol,
		"reason", reason,
		"exit", exit,
		"pnl", netPnL,
		"balance", m.ledger.balance,
	)
}

// appendHistory prepends a record, evicting past the cap. Callers hold m.mu.
func (m *Manager) appendHistory(item store.TradeHistoryItem) {
	m.history = append([]store.TradeHistoryItem{item}, m.history...)
	if len(m.history) > m.cfg.MaxHistory {
		m.history = m.history[:m.cfg.MaxHistory]
	}
}

// Positions returns a snapshot of all open positions.
func (m *Manager) Positions() []store.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]store.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	return out
}

// History returns a snapshot of the trade history, newest first.
func (m *Manager) History() []store.TradeHistoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.TradeHistoryItem(nil), m.history...)
}

// Account returns the account state with equity marked against the given
// prices: balance plus each position's remaining margin share and unrealized
// pnl.
func (m *Manager) Account(price PriceFunc) store.AccountState {
	m.mu.Lock()
	defer m.mu.Unlock()

	equity := m.ledger.balance
	for _, pos := range m.positions {
		current, ok := price(pos.Symbol)
		if !ok {
			current = pos.EntryPrice
		}
		diff := current - pos.EntryPrice
		if pos.Side == store.SideShort {
			diff = pos.EntryPrice - current
		}
		equity += pos.Margin*(pos.Quantity/pos.InitialQuantity) + diff*pos.Quantity
	}
	return m.ledger.state(equity)
}

// reasonSlug turns a close reason into a short id suffix.
func reasonSlug(reason string) string {
	s := strings.ToLower(reason)
	s = strings.Fields(s)[0]
	return s
}
