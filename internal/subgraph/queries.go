package subgraph

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/mkaplon/foresight-backend/internal/models"
)

const tradesByMarketQuery = `
query TradesByMarket($marketId: String!, $first: Int!, $skip: Int!) {
  tradeExecuteds(
    where: { market: $marketId }
    orderBy: blockNumber
    orderDirection: asc
    first: $first
    skip: $skip
  ) {
    id
    market { id }
    trader
    optionId
    quantity
    price
    blockNumber
    blockTimestamp
  }
}`

const tradesByUserQuery = `
query TradesByUser($trader: String!, $first: Int!, $skip: Int!) {
  tradeExecuteds(
    where: { trader: $trader }
    orderBy: blockTimestamp
    orderDirection: desc
    first: $first
    skip: $skip
  ) {
    id
    market { id }
    trader
    optionId
    quantity
    price
    blockNumber
    blockTimestamp
  }
}`

const portfolioQuery = `
query UserPortfolio($address: ID!) {
  userPortfolio(id: $address) {
    id
    totalInvested
    totalWinnings
    unrealizedPnl
    realizedPnl
    tradeCount
    updatedAt
  }
}`

// rawTrade mirrors the subgraph's loosely-typed record: every numeric field
// arrives as a decimal string.
type rawTrade struct {
	ID     string `json:"id"`
	Market struct {
		ID string `json:"id"`
	} `json:"market"`
	Trader         string `json:"trader"`
	OptionID       string `json:"optionId"`
	Quantity       string `json:"quantity"`
	Price          string `json:"price"`
	BlockNumber    string `json:"blockNumber"`
	BlockTimestamp string `json:"blockTimestamp"`
}

type rawPortfolio struct {
	ID            string `json:"id"`
	TotalInvested string `json:"totalInvested"`
	TotalWinnings string `json:"totalWinnings"`
	UnrealizedPnl string `json:"unrealizedPnl"`
	RealizedPnl   string `json:"realizedPnl"`
	TradeCount    string `json:"tradeCount"`
	UpdatedAt     string `json:"updatedAt"`
}

func (c *Client) queryTrades(ctx context.Context, query string, vars map[string]any) ([]models.TradeEvent, error) {
	var data struct {
		TradeExecuteds []rawTrade `json:"tradeExecuteds"`
	}
	if err := c.query(ctx, query, vars, &data); err != nil {
		return nil, err
	}

	events := make([]models.TradeEvent, 0, len(data.TradeExecuteds))
	for _, raw := range data.TradeExecuteds {
		ev, err := parseTrade(raw)
		if err != nil {
			fmt.Printf("[SUBGRAPH] Skipping malformed trade %s: %v\n", raw.ID, err)
			continue
		}
		events = append(events, *ev)
	}
	return events, nil
}

func (c *Client) queryPortfolio(ctx context.Context, address string) (*models.PortfolioSnapshot, error) {
	var data struct {
		UserPortfolio *rawPortfolio `json:"userPortfolio"`
	}
	if err := c.query(ctx, portfolioQuery, map[string]any{"address": address}, &data); err != nil {
		return nil, err
	}
	if data.UserPortfolio == nil {
		return nil, nil
	}
	return parsePortfolio(address, *data.UserPortfolio), nil
}

// parseTrade validates one raw record into a typed TradeEvent. Records
// missing a block number or timestamp are rejected; a missing quantity
// defaults to zero.
func parseTrade(raw rawTrade) (*models.TradeEvent, error) {
	if raw.BlockNumber == "" {
		return nil, fmt.Errorf("missing blockNumber")
	}
	if raw.BlockTimestamp == "" {
		return nil, fmt.Errorf("missing blockTimestamp")
	}

	blockNumber, err := strconv.ParseInt(raw.BlockNumber, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("blockNumber %q: %w", raw.BlockNumber, err)
	}
	tsSeconds, err := strconv.ParseInt(raw.BlockTimestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("blockTimestamp %q: %w", raw.BlockTimestamp, err)
	}

	quantity := bigIntOrZero(raw.Quantity)
	price := bigIntOrZero(raw.Price)
	amount, _ := new(big.Float).SetInt(quantity).Float64()

	return &models.TradeEvent{
		ID:          raw.ID,
		MarketID:    raw.Market.ID,
		Trader:      raw.Trader,
		OptionID:    raw.OptionID,
		Quantity:    quantity,
		Price:       price,
		Amount:      amount,
		TimestampMs: tsSeconds * 1000,
		BlockNumber: blockNumber,
	}, nil
}

func parsePortfolio(address string, raw rawPortfolio) *models.PortfolioSnapshot {
	tradeCount, _ := strconv.Atoi(raw.TradeCount)
	updatedAt, _ := strconv.ParseInt(raw.UpdatedAt, 10, 64)
	if updatedAt == 0 {
		updatedAt = time.Now().Unix()
	}
	return &models.PortfolioSnapshot{
		Address:       address,
		TotalInvested: bigIntOrZero(raw.TotalInvested),
		TotalWinnings: bigIntOrZero(raw.TotalWinnings),
		UnrealizedPnL: bigIntOrZero(raw.UnrealizedPnl),
		RealizedPnL:   bigIntOrZero(raw.RealizedPnl),
		TradeCount:    tradeCount,
		UpdatedAt:     updatedAt,
	}
}

func bigIntOrZero(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}
