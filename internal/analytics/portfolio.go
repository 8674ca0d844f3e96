package analytics

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mkaplon/foresight-backend/internal/cache"
	"github.com/mkaplon/foresight-backend/internal/models"
)

const (
	defaultTradePageSize = 100
	maxTradePageSize     = 1000
)

// PortfolioService serves per-user P&L, trade history and open positions.
// Every read is fail-soft: bad addresses and upstream failures produce
// absent/empty results, never errors.
type PortfolioService struct {
	source TradeSource

	// Snapshot values may be nil: a cached nil means the indexer confirmed
	// the address has no portfolio, which is distinct from a cache miss.
	snapshots *cache.TTL[*models.PortfolioSnapshot]
}

func NewPortfolioService(source TradeSource, ttl time.Duration) *PortfolioService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &PortfolioService{
		source:    source,
		snapshots: cache.NewTTL[*models.PortfolioSnapshot](ttl),
	}
}

// normalizeAddress lowercases an address and validates it as 20-byte hex.
func normalizeAddress(address string) (string, bool) {
	addr := strings.ToLower(strings.TrimSpace(address))
	if !common.IsHexAddress(addr) {
		return "", false
	}
	return addr, true
}

// GetUserPortfolio returns the cached P&L snapshot for an address, nil when
// the address is invalid or has never traded. Confirmed-absent portfolios
// are cached; fetch failures are not, so the next call retries.
func (s *PortfolioService) GetUserPortfolio(ctx context.Context, address string) *models.PortfolioSnapshot {
	addr, ok := normalizeAddress(address)
	if !ok {
		fmt.Printf("[PORTFOLIO] Rejecting invalid address %q\n", address)
		return nil
	}

	if snap, hit := s.snapshots.Get(addr); hit {
		return snap
	}

	snap, err := s.source.Portfolio(ctx, addr)
	if err != nil {
		fmt.Printf("[PORTFOLIO] Fetch failed for %s: %v\n", addr, err)
		return nil
	}
	s.snapshots.Set(addr, snap)
	return snap
}

// GetUserTrades is an uncached passthrough to the indexer's trade history,
// newest first. Empty on invalid address or upstream failure.
func (s *PortfolioService) GetUserTrades(ctx context.Context, address string, first, skip int) []models.TradeEvent {
	addr, ok := normalizeAddress(address)
	if !ok {
		fmt.Printf("[PORTFOLIO] Rejecting invalid address %q\n", address)
		return []models.TradeEvent{}
	}
	if first <= 0 {
		first = defaultTradePageSize
	}
	if first > maxTradePageSize {
		first = maxTradePageSize
	}
	if skip < 0 {
		skip = 0
	}

	trades, err := s.source.TradesByUser(ctx, addr, first, skip)
	if err != nil {
		fmt.Printf("[PORTFOLIO] Trade history fetch failed for %s: %v\n", addr, err)
		return []models.TradeEvent{}
	}
	return trades
}

// GetUserPositions folds a user's trade history into net positions grouped
// by market and option. Shares and cost accumulate as signed big integers
// so sells net out against buys exactly; positions that net to zero shares
// are dropped, as are markets left with no open positions.
func (s *PortfolioService) GetUserPositions(ctx context.Context, address string) []models.MarketPosition {
	addr, ok := normalizeAddress(address)
	if !ok {
		fmt.Printf("[PORTFOLIO] Rejecting invalid address %q\n", address)
		return []models.MarketPosition{}
	}

	trades, err := s.source.TradesByUser(ctx, addr, maxTradePageSize, 0)
	if err != nil {
		fmt.Printf("[PORTFOLIO] Position fetch failed for %s: %v\n", addr, err)
		return []models.MarketPosition{}
	}

	type acc struct {
		shares *big.Int
		cost   *big.Int
		trades int
	}
	byMarket := make(map[string]map[string]*acc)

	for _, tr := range trades {
		options, ok := byMarket[tr.MarketID]
		if !ok {
			options = make(map[string]*acc)
			byMarket[tr.MarketID] = options
		}
		a, ok := options[tr.OptionID]
		if !ok {
			a = &acc{shares: new(big.Int), cost: new(big.Int)}
			options[tr.OptionID] = a
		}
		a.shares.Add(a.shares, tr.Quantity)
		a.cost.Add(a.cost, new(big.Int).Mul(tr.Quantity, tr.Price))
		a.trades++
	}

	marketIDs := make([]string, 0, len(byMarket))
	for id := range byMarket {
		marketIDs = append(marketIDs, id)
	}
	sort.Strings(marketIDs)

	positions := make([]models.MarketPosition, 0, len(marketIDs))
	for _, marketID := range marketIDs {
		options := byMarket[marketID]

		optionIDs := make([]string, 0, len(options))
		for id := range options {
			optionIDs = append(optionIDs, id)
		}
		sort.Strings(optionIDs)

		mp := models.MarketPosition{MarketID: marketID}
		for _, optionID := range optionIDs {
			a := options[optionID]
			if a.shares.Sign() == 0 {
				continue
			}
			mp.Positions = append(mp.Positions, models.OptionPosition{
				OptionID:    optionID,
				TotalShares: a.shares,
				TotalCost:   a.cost,
				AvgPrice:    new(big.Int).Div(a.cost, a.shares),
				TradeCount:  a.trades,
			})
		}
		if len(mp.Positions) > 0 {
			positions = append(positions, mp)
		}
	}
	return positions
}
