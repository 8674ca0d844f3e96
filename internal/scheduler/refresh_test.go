package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mkaplon/foresight-backend/internal/analytics"
	"github.com/mkaplon/foresight-backend/internal/models"
	"github.com/mkaplon/foresight-backend/internal/notifications"
	"github.com/mkaplon/foresight-backend/internal/scheduler"
)

// flakySource serves real trades until failing is set.
type flakySource struct {
	mu      sync.Mutex
	failing bool
}

func (f *flakySource) fail(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakySource) MarketTrades(ctx context.Context, marketID string) ([]models.TradeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("indexer down")
	}
	return []models.TradeEvent{{
		ID:          "t1",
		MarketID:    marketID,
		OptionID:    "0",
		Quantity:    big.NewInt(10),
		Price:       big.NewInt(1),
		Amount:      10,
		TimestampMs: time.Now().Add(-time.Hour).UnixMilli(),
		BlockNumber: 1,
	}}, nil
}

func (f *flakySource) TradesByUser(ctx context.Context, address string, first, skip int) ([]models.TradeEvent, error) {
	return nil, nil
}

func (f *flakySource) Portfolio(ctx context.Context, address string) (*models.PortfolioSnapshot, error) {
	return nil, nil
}

func (f *flakySource) InvalidateMarketTrades(marketID string) {}
func (f *flakySource) InvalidateAll()                         {}

func TestRefreshNow_RefreshesTrackedMarkets(t *testing.T) {
	src := &flakySource{}
	markets := analytics.NewMarketService(src, time.Minute)

	var refreshed []string
	sched := scheduler.NewRefreshScheduler(markets, notifications.NewSender("", "test"), scheduler.RefreshSchedulerConfig{
		Interval:       time.Hour,
		TrackedMarkets: []string{"7", "9"},
		OnRefresh: func(snap *models.MarketAnalytics) {
			refreshed = append(refreshed, snap.MarketID)
		},
	})

	sched.RefreshNow(context.Background())

	if len(refreshed) != 2 || refreshed[0] != "7" || refreshed[1] != "9" {
		t.Fatalf("expected refresh callbacks for both markets, got %v", refreshed)
	}
}

func TestFallbackAlert_FiresOnceThenRecovers(t *testing.T) {
	var mu sync.Mutex
	var alerts []string
	alertCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		json.Unmarshal(body, &payload)
		mu.Lock()
		alerts = append(alerts, payload["text"])
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	src := &flakySource{}
	src.fail(true)
	markets := analytics.NewMarketService(src, time.Minute)

	sched := scheduler.NewRefreshScheduler(markets, notifications.NewSender(srv.URL, "test"), scheduler.RefreshSchedulerConfig{
		Interval:          time.Hour,
		TrackedMarkets:    []string{"7"},
		FallbackThreshold: 2,
	})

	// cycle 1: below threshold, no alert
	sched.RefreshNow(context.Background())
	if alertCount() != 0 {
		t.Fatalf("no alert expected below threshold, got %d", alertCount())
	}

	// cycles 2 and 3: threshold crossed, alert fires exactly once
	sched.RefreshNow(context.Background())
	sched.RefreshNow(context.Background())
	if alertCount() != 1 {
		t.Fatalf("expected exactly 1 degradation alert, got %d", alertCount())
	}

	// recovery sends one follow-up
	src.fail(false)
	sched.RefreshNow(context.Background())
	if alertCount() != 2 {
		t.Fatalf("expected recovery alert, got %d", alertCount())
	}
}

func TestRefreshScheduler_StartStop(t *testing.T) {
	src := &flakySource{}
	markets := analytics.NewMarketService(src, time.Minute)

	var refreshes atomic.Int32
	sched := scheduler.NewRefreshScheduler(markets, notifications.NewSender("", "test"), scheduler.RefreshSchedulerConfig{
		Interval:       time.Hour,
		TrackedMarkets: []string{"7"},
		OnRefresh: func(snap *models.MarketAnalytics) {
			refreshes.Add(1)
		},
	})

	sched.Start()
	if !sched.Running() {
		t.Fatal("expected running after Start")
	}

	// initial warm-up runs in a goroutine
	deadline := time.Now().Add(2 * time.Second)
	for refreshes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if refreshes.Load() == 0 {
		t.Fatal("expected initial warm-up refresh")
	}

	sched.Stop()
	if sched.Running() {
		t.Fatal("expected not running after Stop")
	}
	t.Log("Start/Stop lifecycle: OK")
}
