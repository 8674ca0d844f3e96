package models

import "math/big"

// PortfolioSnapshot is the indexer's per-user P&L record. Monetary fields
// are wei-scale big integers; the cache key is the lowercased address.
type PortfolioSnapshot struct {
	Address       string   `json:"address"`
	TotalInvested *big.Int `json:"totalInvested"`
	TotalWinnings *big.Int `json:"totalWinnings"`
	UnrealizedPnL *big.Int `json:"unrealizedPnl"`
	RealizedPnL   *big.Int `json:"realizedPnl"`
	TradeCount    int      `json:"tradeCount"`
	UpdatedAt     int64    `json:"updatedAt"` // unix seconds
}

// OptionPosition is one user's aggregate holding in one market option.
// AvgPrice = TotalCost / TotalShares in wei per share (floor division);
// groups that net to zero shares are never emitted.
type OptionPosition struct {
	OptionID    string   `json:"optionId"`
	TotalShares *big.Int `json:"totalShares"`
	TotalCost   *big.Int `json:"totalCost"` // wei
	AvgPrice    *big.Int `json:"avgPrice"`  // wei per share
	TradeCount  int      `json:"tradeCount"`
}

// MarketPosition groups a user's option positions within one market.
type MarketPosition struct {
	MarketID  string           `json:"marketId"`
	Positions []OptionPosition `json:"positions"`
}
