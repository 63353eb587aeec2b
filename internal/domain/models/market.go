package models

import "time"

// Trend is the tri-state direction of a simulated price or index.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// MarketData is the simulated pricing state of a single property.
type MarketData struct {
	PropertyID         string    `json:"propertyId"`
	CurrentPrice       float64   `json:"currentPrice"`
	OriginalPrice      float64   `json:"originalPrice"`
	PriceChange        float64   `json:"priceChange"`
	PriceChangePercent float64   `json:"priceChangePercent"`
	Trend              Trend     `json:"trend"`
	LastUpdate         time.Time `json:"lastUpdate"`
	Velocity           float64   `json:"velocity"`
	MarketIndex        float64   `json:"marketIndex"`
}

// MarketTicker is one of the fixed synthetic indices.
type MarketTicker struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Trend         Trend   `json:"trend"`
}

// MarketConfig is broadcast to config subscribers on every change.
type MarketConfig struct {
	Volatility      float64 `json:"volatility"`
	UpdateFrequency int64   `json:"updateFrequency"` // effective price tick interval, ms
	Multiplier      float64 `json:"multiplier"`
	IsPaused        bool    `json:"isPaused"`
}

// MarketSnapshot is a deep copy of simulator state at a point in time.
type MarketSnapshot struct {
	Timestamp  time.Time             `json:"timestamp"`
	MarketData map[string]MarketData `json:"marketData"`
	Tickers    []MarketTicker        `json:"tickers"`
	Config     MarketConfig          `json:"config"`
}

// PortfolioValue aggregates simulated prices over a set of properties.
type PortfolioValue struct {
	PropertyIDs   []string `json:"propertyIds"`
	CurrentValue  float64  `json:"currentValue"`
	OriginalValue float64  `json:"originalValue"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"changePercent"`
	Trend         Trend    `json:"trend"`
}

// UpdateKind distinguishes the payloads carried on the market updates topic.
type UpdateKind string

const (
	UpdateKindPrice  UpdateKind = "price"
	UpdateKindTicker UpdateKind = "ticker"
)

// MarketUpdate is the envelope published for every simulator change.
type MarketUpdate struct {
	Kind      UpdateKind    `json:"kind"`
	Key       string        `json:"key"` // property id or ticker symbol
	Data      *MarketData   `json:"data,omitempty"`
	Ticker    *MarketTicker `json:"ticker,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Value returns the headline number of the update.
func (u *MarketUpdate) Value() float64 {
	switch {
	case u.Data != nil:
		return u.Data.CurrentPrice
	case u.Ticker != nil:
		return u.Ticker.Value
	}
	return 0
}

// PatternType names a detected volatility pattern.
type PatternType string

const (
	PatternSurge       PatternType = "surge"
	PatternCrash       PatternType = "crash"
	PatternOscillation PatternType = "oscillation"
	PatternRecovery    PatternType = "recovery"
	PatternSteady      PatternType = "steady"
)

// VolatilityPattern is the result of analysing recent ticker averages.
type VolatilityPattern struct {
	Type        PatternType `json:"type"`
	Confidence  float64     `json:"confidence"`
	Description string      `json:"description"`
	DetectedAt  time.Time   `json:"detectedAt"`
}
