// Package store provides the shared data model for the trading engine.
package store

import "time"

// Side is the direction of a position or alert.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Tick is a single ticker update for one symbol. QuoteVolume is the
// cumulative quote-asset volume for the current trading day.
type Tick struct {
	Symbol      string
	Price       float64
	Change24h   float64
	QuoteVolume float64
	Time        time.Time
}

// Candle is a synthetic one-minute OHLCV aggregate built from ticks.
type Candle struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Minute int64   `json:"minute"`
}

// Alert kinds emitted by the detection engine.
const (
	AlertMomentum      = "MOMENTUM"
	AlertParabolic     = "PARABOLIC"
	AlertStaircase     = "STAIRCASE"
	AlertInstitutional = "INSTITUTIONAL"
	AlertPumpStart     = "PUMP_START"
	AlertTrendStart    = "TREND_START"
)

// TrendDetails carries the evidence behind a TREND_START alert.
type TrendDetails struct {
	ConsolidationRange float64 `json:"consolidationRange"`
	BreakoutPercent    float64 `json:"breakoutPercent"`
	VolumeRatio        float64 `json:"volumeRatio"`
	TrendConfirmed     bool    `json:"trendConfirmed"`
	VolumeSpike        bool    `json:"volumeSpike"`
	ContextOK          bool    `json:"contextOK"`
	Context            string  `json:"context"`
}

// Alert is an immutable signal produced by a detector. An alert is consumed
// at most once by auto-trading but may drive manual actions any number of
// times.
type Alert struct {
	ID            string        `json:"id"`
	Symbol        string        `json:"symbol"`
	Side          Side          `json:"side"`
	Kind          string        `json:"kind"`
	Reason        string        `json:"reason"`
	Change        float64       `json:"change"`
	Price         float64       `json:"price"`
	PreviousPrice float64       `json:"previousPrice"`
	Timestamp     time.Time     `json:"timestamp"`
	Elite         bool          `json:"elite"`
	VolumeRatio   float64       `json:"volumeRatio"`
	Strength      float64       `json:"strength,omitempty"`
	AutoTrade     bool          `json:"autoTrade"`
	TrendDetails  *TrendDetails `json:"trendDetails,omitempty"`
}

// PartialCloses records quantity removed by each take-profit stage.
type PartialCloses struct {
	TP1 float64 `json:"tp1"`
	TP2 float64 `json:"tp2"`
}

// PositionSource distinguishes auto-opened from manually opened positions.
type PositionSource string

const (
	SourceAuto   PositionSource = "AUTO"
	SourceManual PositionSource = "MANUAL"
)

// Position is an open simulated leveraged position. Quantity only ever
// decreases; InitialQuantity is fixed at open time.
type Position struct {
	ID              string         `json:"id"`
	Symbol          string         `json:"symbol"`
	Side            Side           `json:"side"`
	EntryPrice      float64        `json:"entryPrice"`
	Quantity        float64        `json:"quantity"`
	InitialQuantity float64        `json:"initialQuantity"`
	Leverage        float64        `json:"leverage"`
	Margin          float64        `json:"margin"`
	Fees            float64        `json:"fees"`
	StopLoss        float64        `json:"stopLoss"`
	TP1             float64        `json:"tp1"`
	TP2             float64        `json:"tp2"`
	TP1Hit          bool           `json:"tp1Hit"`
	TP2Hit          bool           `json:"tp2Hit"`
	TrailingActive  bool           `json:"trailingActive"`
	PartialCloses   PartialCloses  `json:"partialCloses"`
	MinPrice        float64        `json:"minPrice"`
	MaxPrice        float64        `json:"maxPrice"`
	OpenedAt        time.Time      `json:"openedAt"`
	Source          PositionSource `json:"source"`
	AlertKind       string         `json:"alertKind,omitempty"`
}

// Close-reason tags recorded on trade history items.
const (
	ReasonStopLoss  = "SL EXIT"
	ReasonBreakeven = "SL (BE) EXIT"
	ReasonTrailing  = "TRAILING SL EXIT"
	ReasonTP1       = "TP1 PARTIAL (40%)"
	ReasonTP2       = "TP2 PARTIAL (30%)"
	ReasonManual    = "MANUAL EXIT"
	ReasonEmergency = "EMERGENCY EXIT"
)

// Efficiency classifies a closed trade's outcome.
type Efficiency string

const (
	EfficiencyPerfect Efficiency = "PERFECT"
	EfficiencyPartial Efficiency = "PARTIAL"
	EfficiencyLoss    Efficiency = "LOSS"
	EfficiencyBE      Efficiency = "BE"
)

// TradeHistoryItem is an immutable record of quantity leaving a position,
// whether a partial take-profit or a full close.
type TradeHistoryItem struct {
	ID            string         `json:"id"`
	Symbol        string         `json:"symbol"`
	Side          Side           `json:"side"`
	Leverage      float64        `json:"leverage"`
	Quantity      float64        `json:"quantity"`
	EntryPrice    float64        `json:"entryPrice"`
	ExitPrice     float64        `json:"exitPrice"`
	StopLoss      float64        `json:"stopLoss"`
	TP1           float64        `json:"tp1"`
	TP2           float64        `json:"tp2"`
	PnL           float64        `json:"pnl"`
	PnLPercent    float64        `json:"pnlPercent"`
	OpenedAt      time.Time      `json:"openedAt"`
	ClosedAt      time.Time      `json:"closedAt"`
	Duration      time.Duration  `json:"duration"`
	BalanceAfter  float64        `json:"balanceAfter"`
	Reason        string         `json:"reason"`
	Efficiency    Efficiency     `json:"efficiency"`
	Details       string         `json:"details"`
	TotalFees     float64        `json:"totalFees"`
	MinPrice      float64        `json:"minPrice"`
	MaxPrice      float64        `json:"maxPrice"`
	InitialMargin float64        `json:"initialMargin"`
	Source        PositionSource `json:"source"`
}

// AccountState is the realized balance bookkeeping. Balance changes only at
// position open (debit margin+fee) and close (credit margin share + net pnl).
type AccountState struct {
	Balance        float64 `json:"balance"`
	Equity         float64 `json:"equity"`
	DailyLoss      float64 `json:"dailyLoss"`
	InitialBalance float64 `json:"initialBalance"`
}

// StrategyConfig holds the user-tunable trading parameters. The engine reads
// the latest value on every evaluation cycle; mutations happen between
// cycles through the API.
type StrategyConfig struct {
	AutoTrading          bool     `json:"autoTrading"`
	EliteMode            bool     `json:"eliteMode"`
	PumpDetectionEnabled bool     `json:"pumpDetectionEnabled"`
	LongEnabled          bool     `json:"longEnabled"`
	ShortEnabled         bool     `json:"shortEnabled"`
	Leverage             float64  `json:"leverage"`
	RiskPerTrade         float64  `json:"riskPerTrade"`
	PriceChangeThreshold float64  `json:"priceChangeThreshold"`
	StopLossPercent      float64  `json:"stopLossPercent"`
	TP1Percent           float64  `json:"tp1Percent"`
	TP2Percent           float64  `json:"tp2Percent"`
	MaxConcurrentTrades  int      `json:"maxConcurrentTrades"`
	Blacklist            []string `json:"blacklist"`
}

// DefaultStrategyConfig returns the stock trading parameters.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		AutoTrading:          true,
		EliteMode:            true,
		PumpDetectionEnabled: true,
		LongEnabled:          true,
		ShortEnabled:         true,
		Leverage:             20,
		RiskPerTrade:         1.0,
		PriceChangeThreshold: 1.0,
		StopLossPercent:      2.0,
		TP1Percent:           1.0,
		TP2Percent:           3.0,
		MaxConcurrentTrades:  20,
		Blacklist:            []string{"FLOW", "FOGO"},
	}
}
