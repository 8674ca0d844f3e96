package models

import "time"

// Data sources for an analytics snapshot.
const (
	SourceSubgraph  = "subgraph"
	SourceSynthetic = "synthetic"
)

// VolumePoint is one daily volume bucket, keyed by the UTC calendar date
// of the trades folded into it. TotalVolume == OptionAVolume + OptionBVolume.
type VolumePoint struct {
	Date          string  `json:"date"` // YYYY-MM-DD
	TimestampMs   int64   `json:"timestampMs"`
	OptionAVolume float64 `json:"optionAVolume"`
	OptionBVolume float64 `json:"optionBVolume"`
	TotalVolume   float64 `json:"totalVolume"`
	TradeCount    int     `json:"tradeCount"`
}

// PricePoint is one point of the running-price series. The price is the
// cumulative volume share of each option over all days seen so far, not a
// point-in-time quote, rounded to 3 decimals.
type PricePoint struct {
	Date        string  `json:"date"`
	TimestampMs int64   `json:"timestampMs"`
	OptionA     float64 `json:"optionA"`
	OptionB     float64 `json:"optionB"`
	Volume      float64 `json:"volume"`
	Trades      int     `json:"trades"`
}

// MarketAnalytics is the per-market snapshot served to callers. It is
// replaced wholesale on recomputation, never partially mutated.
type MarketAnalytics struct {
	MarketID        string        `json:"marketId"`
	PriceHistory    []PricePoint  `json:"priceHistory"`
	VolumeHistory   []VolumePoint `json:"volumeHistory"`
	TotalVolume     float64       `json:"totalVolume"`
	TotalTrades     int           `json:"totalTrades"`
	PriceChange24h  float64       `json:"priceChange24h"`
	VolumeChange24h float64       `json:"volumeChange24h"`
	Source          string        `json:"source"` // "subgraph" or "synthetic"
	LastUpdated     time.Time     `json:"lastUpdated"`
}
