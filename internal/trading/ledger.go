package trading

import (
	"github.com/whalepulse/engine/internal/store"
)

// ledger holds the realized balance bookkeeping. Balance moves only at
// position open (debit margin + fee) and on every quantity removal (credit
// margin share + net pnl), so releasing margin proportionally to the closed
// slice keeps the books conserved across partial exits.
type ledger struct {
	balance        float64
	initialBalance float64
	dailyLoss      float64
}

func newLedger(initialBalance float64) *ledger {
	return &ledger{
		balance:        initialBalance,
		initialBalance: initialBalance,
	}
}

// debitOpen reserves margin and the opening fee. Reports false when the
// account cannot cover it; the caller treats that as a silent sizing
// rejection.
func (l *ledger) debitOpen(margin, fee float64) bool {
	if margin+fee > l.balance {
		return false
	}
	l.balance -= margin + fee
	return true
}

// creditClose returns a margin share plus the net pnl of a closed slice.
func (l *ledger) creditClose(marginShare, netPnL float64) {
	l.balance += marginShare + netPnL
	if netPnL < 0 {
		l.dailyLoss += -netPnL
	}
}

// state reports the ledger as an AccountState with the given equity.
func (l *ledger) state(equity float64) store.AccountState {
	return store.AccountState{
		Balance:        l.balance,
		Equity:         equity,
		DailyLoss:      l.dailyLoss,
		InitialBalance: l.initialBalance,
	}
}
