// Package analytics turns raw trade-execution events into UI-ready market
// and portfolio aggregates. Both aggregators are fail-soft: market analytics
// degrades to a synthetic snapshot, portfolio reads degrade to absent/empty
// results, and neither ever surfaces an upstream error to callers.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mkaplon/foresight-backend/internal/cache"
	"github.com/mkaplon/foresight-backend/internal/models"
)

// DefaultCacheTTL is the aggregator-level snapshot lifetime. It is
// deliberately coarser than the 30s query cache underneath: the two layers
// compose, with this one absorbing recomputation cost.
const DefaultCacheTTL = 5 * time.Minute

// TradeSource abstracts the indexer reads the aggregators need, so tests can
// substitute a fake for the subgraph client.
type TradeSource interface {
	MarketTrades(ctx context.Context, marketID string) ([]models.TradeEvent, error)
	TradesByUser(ctx context.Context, address string, first, skip int) ([]models.TradeEvent, error)
	Portfolio(ctx context.Context, address string) (*models.PortfolioSnapshot, error)
	InvalidateMarketTrades(marketID string)
	InvalidateAll()
}

// MarketService computes and caches per-market analytics snapshots.
type MarketService struct {
	source TradeSource
	cache  *cache.TTL[*models.MarketAnalytics]
}

func NewMarketService(source TradeSource, ttl time.Duration) *MarketService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MarketService{
		source: source,
		cache:  cache.NewTTL[*models.MarketAnalytics](ttl),
	}
}

// GetMarketAnalytics returns the analytics snapshot for one market. It never
// fails: an upstream error or an empty event window yields a synthetic
// snapshot so callers always have something to render. Synthetic snapshots
// are not cached here — the query cache underneath throttles retries, and
// real data replaces the fallback as soon as the indexer recovers.
func (s *MarketService) GetMarketAnalytics(ctx context.Context, marketID string) *models.MarketAnalytics {
	if snap, ok := s.cache.Get(marketID); ok {
		return snap
	}

	events, err := s.source.MarketTrades(ctx, marketID)
	if err != nil {
		fmt.Printf("[ANALYTICS] Market %s: indexer fetch failed (%v), serving synthetic data\n", marketID, err)
		return syntheticAnalytics(marketID)
	}
	if len(events) == 0 {
		fmt.Printf("[ANALYTICS] Market %s: no indexed trades, serving synthetic data\n", marketID)
		return syntheticAnalytics(marketID)
	}

	snap := aggregate(marketID, events)
	s.cache.Set(marketID, snap)
	return snap
}

// ClearCache drops one market's snapshot and its underlying event-window
// query, or everything when marketID is empty. Exposed so the refresh route
// can force a recomputation after a new trade.
func (s *MarketService) ClearCache(marketID string) {
	if marketID == "" {
		s.cache.Clear()
		s.source.InvalidateAll()
		fmt.Println("[ANALYTICS] Cache cleared for all markets")
		return
	}
	s.cache.Delete(marketID)
	s.source.InvalidateMarketTrades(marketID)
	fmt.Printf("[ANALYTICS] Cache cleared for market %s\n", marketID)
}

// aggregate buckets events by UTC calendar day and derives the running
// price series. Volume attribution is binary: option "0" is side A, every
// other option id is side B. Multi-option markets collapse into that A/B
// split; the analytics layer does not generalize to N-ary markets.
func aggregate(marketID string, events []models.TradeEvent) *models.MarketAnalytics {
	buckets := make(map[string]*models.VolumePoint)

	for _, ev := range events {
		day := time.UnixMilli(ev.TimestampMs).UTC()
		date := day.Format("2006-01-02")

		b, ok := buckets[date]
		if !ok {
			midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
			b = &models.VolumePoint{Date: date, TimestampMs: midnight.UnixMilli()}
			buckets[date] = b
		}

		if ev.OptionID == "0" {
			b.OptionAVolume += ev.Amount
		} else {
			b.OptionBVolume += ev.Amount
		}
		b.TotalVolume += ev.Amount
		b.TradeCount++
	}

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	volumeHistory := make([]models.VolumePoint, 0, len(dates))
	priceHistory := make([]models.PricePoint, 0, len(dates))

	var runningA, runningB, totalVolume float64
	for _, d := range dates {
		b := buckets[d]
		runningA += b.OptionAVolume
		runningB += b.OptionBVolume
		totalVolume += b.TotalVolume

		priceA, priceB := 0.5, 0.5
		if total := runningA + runningB; total > 0 {
			// Each side is rounded independently, so priceA+priceB can
			// differ from 1 by the rounding epsilon. Accepted quirk.
			priceA = round3(runningA / total)
			priceB = round3(runningB / total)
		}

		volumeHistory = append(volumeHistory, *b)
		priceHistory = append(priceHistory, models.PricePoint{
			Date:        b.Date,
			TimestampMs: b.TimestampMs,
			OptionA:     priceA,
			OptionB:     priceB,
			Volume:      b.TotalVolume,
			Trades:      b.TradeCount,
		})
	}

	return &models.MarketAnalytics{
		MarketID:        marketID,
		PriceHistory:    priceHistory,
		VolumeHistory:   volumeHistory,
		TotalVolume:     totalVolume,
		TotalTrades:     len(events),
		PriceChange24h:  priceChange(priceHistory),
		VolumeChange24h: volumeChange(priceHistory),
		Source:          models.SourceSubgraph,
		LastUpdated:     time.Now().UTC(),
	}
}

// priceChange is the difference between the last two points' option-A
// prices; zero when the series is too short.
func priceChange(points []models.PricePoint) float64 {
	if len(points) < 2 {
		return 0
	}
	latest := points[len(points)-1]
	previous := points[len(points)-2]
	return latest.OptionA - previous.OptionA
}

// volumeChange is the relative day-over-day volume delta, special-cased to
// 1 when volume appears out of nothing and 0 when both days are empty.
func volumeChange(points []models.PricePoint) float64 {
	if len(points) < 2 {
		return 0
	}
	latest := points[len(points)-1]
	previous := points[len(points)-2]
	if previous.Volume == 0 {
		if latest.Volume > 0 {
			return 1
		}
		return 0
	}
	return (latest.Volume - previous.Volume) / previous.Volume
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
