package models

import "math/big"

// TradeEvent is one executed trade as observed by the indexer.
// Immutable once parsed; ordering is by BlockNumber / TimestampMs.
type TradeEvent struct {
	ID          string   `json:"id"`
	MarketID    string   `json:"marketId"`
	Trader      string   `json:"trader"`
	OptionID    string   `json:"optionId"`
	Quantity    *big.Int `json:"quantity"`    // shares (signed; sells are negative)
	Price       *big.Int `json:"price"`      // wei per share, 18-decimal scale
	Amount      float64  `json:"amount"`     // share quantity as float, used for volume bucketing
	TimestampMs int64    `json:"timestampMs"`
	BlockNumber int64    `json:"blockNumber"`
}
