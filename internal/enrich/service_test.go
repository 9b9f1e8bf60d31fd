package enrich

import (
	"testing"
	"time"
)

func TestCandidateCacheTTL(t *testing.T) {
	cache := newCandidateCache(time.Minute)
	t0 := time.Unix(1_700_000_000, 0)

	cache.Set(Candidate{Symbol: "BTCUSDT", Support: 95}, t0)

	if c, ok := cache.Get("BTCUSDT", t0.Add(30*time.Second)); !ok || c.Support != 95 {
		t.Errorf("Expected fresh cache hit, got ok=%v %+v", ok, c)
	}
	if _, ok := cache.Get("BTCUSDT", t0.Add(2*time.Minute)); ok {
		t.Error("Expected expired entry to miss")
	}
	if _, ok := cache.Get("ETHUSDT", t0); ok {
		t.Error("Expected unknown symbol to miss")
	}
}

func TestCandidateCacheCleanup(t *testing.T) {
	cache := newCandidateCache(time.Minute)
	t0 := time.Unix(1_700_000_000, 0)

	cache.Set(Candidate{Symbol: "OLDUSDT"}, t0)
	cache.Set(Candidate{Symbol: "NEWUSDT"}, t0.Add(90*time.Second))
	cache.Cleanup(t0.Add(2 * time.Minute))

	if _, ok := cache.entries["OLDUSDT"]; ok {
		t.Error("Expected expired entry swept")
	}
	if _, ok := cache.entries["NEWUSDT"]; !ok {
		t.Error("Expected live entry kept")
	}
}

func TestSupportResistance(t *testing.T) {
	var klines []Kline
	// Older candles outside the 10-candle window must not count.
	klines = append(klines, Kline{Close: 1})
	for _, close := range []float64{100, 98, 103, 101, 99, 102, 100, 97, 104, 100} {
		klines = append(klines, Kline{Close: close})
	}

	support, resistance := supportResistance(klines)
	if support != 97 {
		t.Errorf("Expected support 97, got %f", support)
	}
	if resistance != 104 {
		t.Errorf("Expected resistance 104, got %f", resistance)
	}

	if s, r := supportResistance(nil); s != 0 || r != 0 {
		t.Errorf("Expected zeros without klines, got %f/%f", s, r)
	}
}

func TestAnalyzeTrades(t *testing.T) {
	trades := []RecentTrade{
		{QuoteQty: 100, IsBuyerMaker: false}, // aggressive buy
		{QuoteQty: 100, IsBuyerMaker: false},
		{QuoteQty: 100, IsBuyerMaker: true}, // aggressive sell
		{QuoteQty: 2000, IsBuyerMaker: false},
	}

	avg, large, buy, sell := analyzeTrades(trades)
	if avg != 575 {
		t.Errorf("Expected avg size 575, got %f", avg)
	}
	// 2000 is below 5x the 575 average, so nothing counts as large here.
	if large != 0 {
		t.Errorf("Expected no large trades above 5x avg, got %d", large)
	}
	if buy <= sell {
		t.Errorf("Expected buy pressure to dominate, got buy=%f sell=%f", buy, sell)
	}
	if diff := buy + sell - 1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected pressures to sum to 1, got %f", buy+sell)
	}
}

func TestAnalyzeTradesFlagsWhales(t *testing.T) {
	var trades []RecentTrade
	for i := 0; i < 9; i++ {
		trades = append(trades, RecentTrade{QuoteQty: 100})
	}
	// avg = 1090, threshold 5450: only the 10000 trade qualifies.
	trades = append(trades, RecentTrade{QuoteQty: 10000})

	_, large, _, _ := analyzeTrades(trades)
	if large != 1 {
		t.Errorf("Expected one whale trade, got %d", large)
	}
}
