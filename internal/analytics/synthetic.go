package analytics

import (
	"math/rand/v2"
	"time"

	"github.com/mkaplon/foresight-backend/internal/models"
)

const (
	syntheticDays     = 8
	syntheticMaxDrift = 0.05
	syntheticMinPrice = 0.05
	syntheticMaxPrice = 0.95
)

// syntheticAnalytics builds a plausible 8-day history for markets the
// indexer has nothing on: a random walk around 0.5 with bounded daily
// drift. The snapshot is tagged so clients can badge it as placeholder
// data.
func syntheticAnalytics(marketID string) *models.MarketAnalytics {
	today := time.Now().UTC()
	priceHistory := make([]models.PricePoint, 0, syntheticDays)
	volumeHistory := make([]models.VolumePoint, 0, syntheticDays)

	var totalVolume float64
	var totalTrades int
	price := 0.5

	for i := syntheticDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

		price += (rand.Float64()*2 - 1) * syntheticMaxDrift
		price = min(max(price, syntheticMinPrice), syntheticMaxPrice)
		price = round3(price)

		volume := 100 + rand.Float64()*1000
		trades := 10 + rand.IntN(50)
		totalVolume += volume
		totalTrades += trades

		priceHistory = append(priceHistory, models.PricePoint{
			Date:        midnight.Format("2006-01-02"),
			TimestampMs: midnight.UnixMilli(),
			OptionA:     price,
			OptionB:     round3(1 - price),
			Volume:      volume,
			Trades:      trades,
		})
		volumeHistory = append(volumeHistory, models.VolumePoint{
			Date:          midnight.Format("2006-01-02"),
			TimestampMs:   midnight.UnixMilli(),
			OptionAVolume: volume * price,
			OptionBVolume: volume * (1 - price),
			TotalVolume:   volume,
			TradeCount:    trades,
		})
	}

	return &models.MarketAnalytics{
		MarketID:        marketID,
		PriceHistory:    priceHistory,
		VolumeHistory:   volumeHistory,
		TotalVolume:     totalVolume,
		TotalTrades:     totalTrades,
		PriceChange24h:  priceChange(priceHistory),
		VolumeChange24h: volumeChange(priceHistory),
		Source:          models.SourceSynthetic,
		LastUpdated:     time.Now().UTC(),
	}
}
