// Package enrich fetches on-demand market detail for pump candidates:
// historical klines, recent trades, open interest and funding rate, plus the
// support/resistance and trade-flow analysis derived from them. Fetches are
// fire-and-forget and never block detection or position evaluation.
package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/whalepulse/engine/internal/config"
)

// Candidate is the enriched record built for a symbol after a pump alert.
type Candidate struct {
	Symbol          string        `json:"symbol"`
	FetchedAt       time.Time     `json:"fetchedAt"`
	Klines1m        []Kline       `json:"klines1m"`
	Klines5m        []Kline       `json:"klines5m"`
	RecentTrades    []RecentTrade `json:"-"`
	OpenInterest    float64       `json:"openInterest"`
	FundingRate     float64       `json:"fundingRate"`
	Support         float64       `json:"support"`
	Resistance      float64       `json:"resistance"`
	AvgTradeSize    float64       `json:"avgTradeSize"`
	LargeTradeCount int           `json:"largeTradeCount"`
	BuyPressure     float64       `json:"buyPressure"`
	SellPressure    float64       `json:"sellPressure"`
}

// Service coordinates candidate fetches: a symbol is fetched at most once
// concurrently and results are cached for the configured TTL.
type Service struct {
	cfg    *config.Config
	client *Client
	cache  *candidateCache

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService creates a Service around the given REST client.
func NewService(cfg *config.Config, client *Client) *Service {
	return &Service{
		cfg:      cfg,
		client:   client,
		cache:    newCandidateCache(cfg.EnrichCacheTTL),
		inFlight: make(map[string]struct{}),
	}
}

// Candidate returns the cached enrichment for a symbol, if fresh.
func (s *Service) Candidate(symbol string) (Candidate, bool) {
	return s.cache.Get(symbol, time.Now())
}

// Trigger starts an async fetch for a symbol unless a fresh cached result or
// an in-flight fetch already exists. Failures are logged and otherwise
// absent; nothing downstream depends on enrichment succeeding.
func (s *Service) Trigger(ctx context.Context, symbol string) {
	if _, ok := s.cache.Get(symbol, time.Now()); ok {
		return
	}

	s.mu.Lock()
	if _, busy := s.inFlight[symbol]; busy {
		s.mu.Unlock()
		return
	}
	s.inFlight[symbol] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, symbol)
			s.mu.Unlock()
		}()

		candidate, err := s.fetch(ctx, symbol)
		if err != nil {
			slog.Warn("enrichment_failed", "symbol", symbol, "error", err)
			return
		}
		s.cache.Set(candidate, time.Now())
		slog.Info("candidate_ready",
			"symbol", symbol,
			"support", candidate.Support,
			"resistance", candidate.Resistance,
			"buy_pressure", candidate.BuyPressure,
			"large_trades", candidate.LargeTradeCount,
		)
	}()
}

// fetch pulls all detail endpoints and derives the analysis fields.
func (s *Service) fetch(ctx context.Context, symbol string) (Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	klines1m, err := s.client.Klines(ctx, symbol, "1m", s.cfg.Klines1mLimit)
	if err != nil {
		return Candidate{}, err
	}
	klines5m, err := s.client.Klines(ctx, symbol, "5m", s.cfg.Klines5mLimit)
	if err != nil {
		return Candidate{}, err
	}
	trades, err := s.client.RecentTrades(ctx, symbol, s.cfg.RecentTradesLimit)
	if err != nil {
		return Candidate{}, err
	}

	// Open interest and funding are best-effort extras.
	openInterest, err := s.client.OpenInterest(ctx, symbol)
	if err != nil {
		slog.Debug("open_interest_unavailable", "symbol", symbol, "error", err)
	}
	funding, err := s.client.FundingRate(ctx, symbol)
	if err != nil {
		slog.Debug("funding_rate_unavailable", "symbol", symbol, "error", err)
	}

	candidate := Candidate{
		Symbol:       symbol,
		FetchedAt:    time.Now(),
		Klines1m:     klines1m,
		Klines5m:     klines5m,
		RecentTrades: trades,
		OpenInterest: openInterest,
		FundingRate:  funding,
	}
	candidate.Support, candidate.Resistance = supportResistance(klines5m)
	candidate.AvgTradeSize, candidate.LargeTradeCount, candidate.BuyPressure, candidate.SellPressure = analyzeTrades(trades)
	return candidate, nil
}

// supportResistance takes the min and max close of the last 10 five-minute
// candles as naive support and resistance.
func supportResistance(klines []Kline) (support, resistance float64) {
	if len(klines) == 0 {
		return 0, 0
	}
	window := klines
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	support = window[0].Close
	resistance = window[0].Close
	for _, k := range window[1:] {
		if k.Close < support {
			support = k.Close
		}
		if k.Close > resistance {
			resistance = k.Close
		}
	}
	return support, resistance
}

// analyzeTrades derives average trade size, the count of trades above five
// times that average, and the buy/sell pressure split. A maker on the buy
// side means the aggressor sold.
func analyzeTrades(trades []RecentTrade) (avgSize float64, largeCount int, buyPressure, sellPressure float64) {
	if len(trades) == 0 {
		return 0, 0, 0, 0
	}

	total := 0.0
	buyVolume := 0.0
	sellVolume := 0.0
	for _, t := range trades {
		total += t.QuoteQty
		if t.IsBuyerMaker {
			sellVolume += t.QuoteQty
		} else {
			buyVolume += t.QuoteQty
		}
	}
	avgSize = total / float64(len(trades))

	threshold := avgSize * 5
	for _, t := range trades {
		if t.QuoteQty > threshold {
			largeCount++
		}
	}

	if flow := buyVolume + sellVolume; flow > 0 {
		buyPressure = buyVolume / flow
		sellPressure = sellVolume / flow
	}
	return avgSize, largeCount, buyPressure, sellPressure
}
