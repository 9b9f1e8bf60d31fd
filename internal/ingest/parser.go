// Package ingest handles the WebSocket connection and message parsing for
// the futures ticker stream.
package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/whalepulse/engine/internal/store"
)

// tickerEvent is one entry of the !ticker@arr stream payload.
type tickerEvent struct {
	EventType   string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	LastPrice   string `json:"c"`
	ChangePct   string `json:"P"`
	QuoteVolume string `json:"q"`
}

// ParseTickerBatch parses a ticker-array message into a tick batch, keeping
// only symbols quoted in quoteAsset. Entries with unparseable numeric fields
// are dropped.
func ParseTickerBatch(data []byte, quoteAsset string) ([]store.Tick, error) {
	var events []tickerEvent
	if err := json.Unmarshal(data, &events); err != nil {
		// Single-object control frames arrive on the same stream; they are
		// not tick data.
		return nil, fmt.Errorf("not a ticker batch: %w", err)
	}

	ticks := make([]store.Tick, 0, len(events))
	for _, ev := range events {
		if !strings.HasSuffix(ev.Symbol, quoteAsset) {
			continue
		}

		price, err := strconv.ParseFloat(ev.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		change, err := strconv.ParseFloat(ev.ChangePct, 64)
		if err != nil {
			continue
		}
		volume, err := strconv.ParseFloat(ev.QuoteVolume, 64)
		if err != nil {
			continue
		}

		ts := time.UnixMilli(ev.EventTime)
		if ev.EventTime == 0 {
			ts = time.Now()
		}

		ticks = append(ticks, store.Tick{
			Symbol:      ev.Symbol,
			Price:       price,
			Change24h:   change,
			QuoteVolume: volume,
			Time:        ts,
		})
	}
	return ticks, nil
}
