// Package scheduler keeps analytics for tracked markets warm and raises an
// alert when a market has been stuck on synthetic fallback data for too
// many consecutive refresh cycles.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkaplon/foresight-backend/internal/analytics"
	"github.com/mkaplon/foresight-backend/internal/models"
	"github.com/mkaplon/foresight-backend/internal/notifications"
)

type RefreshSchedulerConfig struct {
	Interval          time.Duration // e.g. 5*time.Minute
	TrackedMarkets    []string
	FallbackThreshold int // consecutive synthetic cycles before alerting, e.g. 3

	// OnRefresh runs after each market's snapshot is recomputed; the server
	// uses it to push updates over the websocket fan-out.
	OnRefresh func(snap *models.MarketAnalytics)
}

type RefreshScheduler struct {
	markets *analytics.MarketService
	alerts  *notifications.Sender
	cfg     RefreshSchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	// fallback tracking, keyed by market id
	streak  map[string]int
	alerted map[string]bool
}

func NewRefreshScheduler(markets *analytics.MarketService, alerts *notifications.Sender, cfg RefreshSchedulerConfig) *RefreshScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = 3
	}
	return &RefreshScheduler{
		markets: markets,
		alerts:  alerts,
		cfg:     cfg,
		streak:  make(map[string]int),
		alerted: make(map[string]bool),
	}
}

func (s *RefreshScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		fmt.Println("[REFRESH-SCHEDULER] Already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	// Initial warm-up on startup (fire-and-forget)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		s.refreshAll(ctx)
	}()

	// Recurring ticker
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
				s.refreshAll(ctx)
				cancel()
			}
		}
	}()

	fmt.Printf("[REFRESH-SCHEDULER] Started (%d tracked markets, every %s)\n",
		len(s.cfg.TrackedMarkets), s.cfg.Interval)
}

func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	fmt.Println("[REFRESH-SCHEDULER] Stopped")
}

func (s *RefreshScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RefreshNow manually refreshes all tracked markets outside the schedule.
func (s *RefreshScheduler) RefreshNow(ctx context.Context) {
	fmt.Println("[REFRESH-SCHEDULER] Manual refresh triggered")
	s.refreshAll(ctx)
}

func (s *RefreshScheduler) refreshAll(ctx context.Context) {
	for _, marketID := range s.cfg.TrackedMarkets {
		select {
		case <-ctx.Done():
			fmt.Printf("[REFRESH-SCHEDULER] Refresh cycle aborted: %v\n", ctx.Err())
			return
		default:
		}

		// Drop the cached snapshot first so the read recomputes from the
		// freshest event window the query cache allows.
		s.markets.ClearCache(marketID)
		snap := s.markets.GetMarketAnalytics(ctx, marketID)
		s.trackFallback(marketID, snap)

		if s.cfg.OnRefresh != nil {
			s.cfg.OnRefresh(snap)
		}
	}
}

// trackFallback counts consecutive synthetic cycles per market, alerting
// once when the threshold is crossed and once more on recovery.
func (s *RefreshScheduler) trackFallback(marketID string, snap *models.MarketAnalytics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Source != models.SourceSynthetic {
		if s.alerted[marketID] {
			s.alerts.Send(fmt.Sprintf("Market %s recovered: serving indexed data again", marketID))
		}
		s.streak[marketID] = 0
		s.alerted[marketID] = false
		return
	}

	s.streak[marketID]++
	if s.streak[marketID] >= s.cfg.FallbackThreshold && !s.alerted[marketID] {
		s.alerts.Send(fmt.Sprintf("Market %s has served synthetic data for %d consecutive refresh cycles",
			marketID, s.streak[marketID]))
		s.alerted[marketID] = true
	}
}
