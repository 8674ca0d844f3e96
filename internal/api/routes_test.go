package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkaplon/foresight-backend/internal/analytics"
	"github.com/mkaplon/foresight-backend/internal/models"
)

const testAddr = "0x52908400098527886E0F7030069857D2E4169EE7"

type stubSource struct {
	trades    []models.TradeEvent
	portfolio *models.PortfolioSnapshot
	err       error
}

func (s *stubSource) MarketTrades(ctx context.Context, marketID string) ([]models.TradeEvent, error) {
	return s.trades, s.err
}

func (s *stubSource) TradesByUser(ctx context.Context, address string, first, skip int) ([]models.TradeEvent, error) {
	return s.trades, s.err
}

func (s *stubSource) Portfolio(ctx context.Context, address string) (*models.PortfolioSnapshot, error) {
	return s.portfolio, s.err
}

func (s *stubSource) InvalidateMarketTrades(marketID string) {}
func (s *stubSource) InvalidateAll()                         {}

func testServer(src analytics.TradeSource) *Server {
	return NewServer(Deps{
		Markets:    analytics.NewMarketService(src, time.Minute),
		Portfolios: analytics.NewPortfolioService(src, time.Minute),
	}, 0, "", "")
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)
	return rr
}

func TestMarketAnalyticsRoute(t *testing.T) {
	src := &stubSource{trades: []models.TradeEvent{{
		ID:          "t1",
		MarketID:    "7",
		OptionID:    "0",
		Quantity:    big.NewInt(10),
		Price:       big.NewInt(1),
		Amount:      10,
		TimestampMs: time.Now().Add(-time.Hour).UnixMilli(),
		BlockNumber: 1,
	}}}
	s := testServer(src)

	rr := do(s, http.MethodGet, "/v1/markets/7/analytics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}

	var snap models.MarketAnalytics
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.MarketID != "7" || snap.Source != models.SourceSubgraph {
		t.Fatalf("bad snapshot: %+v", snap)
	}
}

func TestMarketAnalyticsRoute_DegradedStillOK(t *testing.T) {
	s := testServer(&stubSource{err: errors.New("indexer down")})

	rr := do(s, http.MethodGet, "/v1/markets/7/analytics")
	if rr.Code != http.StatusOK {
		t.Fatalf("degraded analytics must still be 200, got %d", rr.Code)
	}

	var snap models.MarketAnalytics
	json.Unmarshal(rr.Body.Bytes(), &snap)
	if snap.Source != models.SourceSynthetic {
		t.Fatalf("expected synthetic source, got %q", snap.Source)
	}
}

func TestAnalyticsRefreshRoute(t *testing.T) {
	src := &stubSource{trades: []models.TradeEvent{{
		ID:          "t1",
		MarketID:    "7",
		OptionID:    "0",
		Quantity:    big.NewInt(5),
		Price:       big.NewInt(1),
		Amount:      5,
		TimestampMs: time.Now().Add(-time.Hour).UnixMilli(),
		BlockNumber: 1,
	}}}
	s := testServer(src)

	rr := do(s, http.MethodPost, "/v1/markets/7/analytics/refresh")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}

	var snap models.MarketAnalytics
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.TotalTrades != 1 {
		t.Fatalf("expected recomputed snapshot, got %+v", snap)
	}
}

func TestUserPortfolioRoute(t *testing.T) {
	src := &stubSource{portfolio: &models.PortfolioSnapshot{
		Address:       "0x52908400098527886e0f7030069857d2e4169ee7",
		TotalInvested: big.NewInt(1),
		TotalWinnings: big.NewInt(0),
		UnrealizedPnL: big.NewInt(0),
		RealizedPnL:   big.NewInt(0),
	}}
	s := testServer(src)

	rr := do(s, http.MethodGet, "/v1/users/"+testAddr+"/portfolio")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}

	// bad address is rejected before it reaches the aggregator
	rr = do(s, http.MethodGet, "/v1/users/not-an-address/portfolio")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad address, got %d", rr.Code)
	}
}

func TestUserPortfolioRoute_Absent(t *testing.T) {
	s := testServer(&stubSource{portfolio: nil})

	rr := do(s, http.MethodGet, "/v1/users/"+testAddr+"/portfolio")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for absent portfolio, got %d", rr.Code)
	}
}

func TestUserTradesRoute_EmptyIsOK(t *testing.T) {
	s := testServer(&stubSource{err: errors.New("indexer down")})

	rr := do(s, http.MethodGet, "/v1/users/"+testAddr+"/trades")
	if rr.Code != http.StatusOK {
		t.Fatalf("trade history is fail-soft, expected 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "[]\n" {
		t.Fatalf("expected empty array, got %q", body)
	}
}

func TestUserPositionsRoute(t *testing.T) {
	src := &stubSource{trades: []models.TradeEvent{{
		ID:          "t1",
		MarketID:    "7",
		OptionID:    "0",
		Quantity:    big.NewInt(10),
		Price:       big.NewInt(2),
		Amount:      10,
		TimestampMs: 1700000000_000,
		BlockNumber: 1,
	}}}
	s := testServer(src)

	rr := do(s, http.MethodGet, "/v1/users/"+testAddr+"/positions")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}

	var positions []models.MarketPosition
	if err := json.Unmarshal(rr.Body.Bytes(), &positions); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(positions) != 1 || positions[0].MarketID != "7" {
		t.Fatalf("bad positions: %+v", positions)
	}
}

func TestCommentRoutes_DisabledWithoutDatabase(t *testing.T) {
	s := testServer(&stubSource{})

	rr := do(s, http.MethodGet, "/v1/markets/7/comments")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a database, got %d", rr.Code)
	}
}

func TestHealthRoute(t *testing.T) {
	s := testServer(&stubSource{})

	rr := do(s, http.MethodGet, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var health struct {
		Status   string `json:"status"`
		Services struct {
			Database string `json:"database"`
		} `json:"services"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if health.Status != "ok" || health.Services.Database != "disabled" {
		t.Fatalf("bad health payload: %s", rr.Body)
	}
}
