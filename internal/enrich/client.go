package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Kline is one historical candle from the exchange REST API.
type Kline struct {
	OpenTime    int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	CloseTime   int64
	QuoteVolume float64
	Trades      int64
}

// RecentTrade is one executed trade from the exchange REST API.
type RecentTrade struct {
	ID           int64   `json:"id"`
	Price        float64 `json:"price,string"`
	Qty          float64 `json:"qty,string"`
	QuoteQty     float64 `json:"quoteQty,string"`
	Time         int64   `json:"time"`
	IsBuyerMaker bool    `json:"isBuyerMaker"`
}

// openInterestResponse mirrors the futures openInterest endpoint.
type openInterestResponse struct {
	Symbol       string  `json:"symbol"`
	OpenInterest float64 `json:"openInterest,string"`
	Time         int64   `json:"time"`
}

// premiumIndexResponse mirrors the futures premiumIndex endpoint.
type premiumIndexResponse struct {
	Symbol          string  `json:"symbol"`
	MarkPrice       float64 `json:"markPrice,string"`
	LastFundingRate float64 `json:"lastFundingRate,string"`
	Time            int64   `json:"time"`
}

// Client fetches on-demand market detail from the futures REST API under a
// shared request budget.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Client budgeted to perMinute requests.
func NewClient(baseURL string, perMinute int) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}
}

// get performs a rate-limited GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	return nil
}

// Klines fetches historical candles for the given interval ("1m", "5m", ...).
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	var raw [][]any
	path := fmt.Sprintf("/fapi/v1/klines?symbol=%s&interval=%s&limit=%d", symbol, interval, limit)
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}

	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 9 {
			continue
		}
		klines = append(klines, Kline{
			OpenTime:    int64(asFloat(row[0])),
			Open:        asFloat(row[1]),
			High:        asFloat(row[2]),
			Low:         asFloat(row[3]),
			Close:       asFloat(row[4]),
			Volume:      asFloat(row[5]),
			CloseTime:   int64(asFloat(row[6])),
			QuoteVolume: asFloat(row[7]),
			Trades:      int64(asFloat(row[8])),
		})
	}
	return klines, nil
}

// RecentTrades fetches the most recent executed trades for a symbol.
func (c *Client) RecentTrades(ctx context.Context, symbol string, limit int) ([]RecentTrade, error) {
	var trades []RecentTrade
	path := fmt.Sprintf("/fapi/v1/trades?symbol=%s&limit=%d", symbol, limit)
	if err := c.get(ctx, path, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// OpenInterest fetches the current open interest for a symbol.
func (c *Client) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	var resp openInterestResponse
	if err := c.get(ctx, "/fapi/v1/openInterest?symbol="+symbol, &resp); err != nil {
		return 0, err
	}
	return resp.OpenInterest, nil
}

// FundingRate fetches the latest funding rate for a symbol.
func (c *Client) FundingRate(ctx context.Context, symbol string) (float64, error) {
	var resp premiumIndexResponse
	if err := c.get(ctx, "/fapi/v1/premiumIndex?symbol="+symbol, &resp); err != nil {
		return 0, err
	}
	return resp.LastFundingRate, nil
}

// asFloat converts the mixed number/string values the klines endpoint returns.
func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}
