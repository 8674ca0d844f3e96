package subgraph

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mkaplon/foresight-backend/internal/httputil"
)

func testClient(url string) *Client {
	return NewClient(ClientConfig{
		Endpoint:    url,
		FetchTTL:    time.Minute,
		MaxAttempts: 3,
		BackoffBase: 10 * time.Millisecond,
	})
}

func graphqlHandler(t *testing.T, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":` + data + `}`))
	}
}

func TestTradesByMarket_ParsesAndCaches(t *testing.T) {
	var hits atomic.Int32
	payload := `{"tradeExecuteds":[
		{"id":"t1","market":{"id":"7"},"trader":"0xabc","optionId":"0",
		 "quantity":"10","price":"2000000000000000000",
		 "blockNumber":"100","blockTimestamp":"1700000000"},
		{"id":"t2","market":{"id":"7"},"trader":"0xdef","optionId":"1",
		 "quantity":"5","price":"4000000000000000000",
		 "blockNumber":"101","blockTimestamp":"1700000060"}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		graphqlHandler(t, payload)(w, r)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	events, err := c.MarketTrades(context.Background(), "7")
	if err != nil {
		t.Fatalf("MarketTrades: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	ev := events[0]
	if ev.MarketID != "7" || ev.OptionID != "0" {
		t.Fatalf("bad first event: %+v", ev)
	}
	if ev.Quantity.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected quantity 10, got %s", ev.Quantity)
	}
	if ev.TimestampMs != 1700000000_000 {
		t.Fatalf("expected ms timestamp, got %d", ev.TimestampMs)
	}
	if ev.Amount != 10 {
		t.Fatalf("expected amount 10, got %f", ev.Amount)
	}

	// second read is served from the query cache
	if _, err := c.MarketTrades(context.Background(), "7"); err != nil {
		t.Fatalf("cached MarketTrades: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 upstream hit, got %d", hits.Load())
	}

	// invalidation forces the next read back upstream
	c.InvalidateMarketTrades("7")
	if _, err := c.MarketTrades(context.Background(), "7"); err != nil {
		t.Fatalf("MarketTrades after invalidate: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected re-fetch after invalidation, got %d hits", hits.Load())
	}
}

func TestTradesByMarket_SkipsMalformedRecords(t *testing.T) {
	payload := `{"tradeExecuteds":[
		{"id":"ok","market":{"id":"7"},"optionId":"0","quantity":"1","price":"1",
		 "blockNumber":"100","blockTimestamp":"1700000000"},
		{"id":"no-block","market":{"id":"7"},"optionId":"0","quantity":"1","price":"1",
		 "blockNumber":"","blockTimestamp":"1700000000"},
		{"id":"no-ts","market":{"id":"7"},"optionId":"0","quantity":"1","price":"1",
		 "blockNumber":"101","blockTimestamp":""}
	]}`
	srv := httptest.NewServer(graphqlHandler(t, payload))
	defer srv.Close()

	events, err := testClient(srv.URL).MarketTrades(context.Background(), "7")
	if err != nil {
		t.Fatalf("MarketTrades: %v", err)
	}
	if len(events) != 1 || events[0].ID != "ok" {
		t.Fatalf("expected only the well-formed event, got %+v", events)
	}
}

func TestTradesByMarket_RateLimitRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	payload := `{"tradeExecuteds":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		graphqlHandler(t, payload)(w, r)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).MarketTrades(context.Background(), "7")
	if err != nil {
		t.Fatalf("expected success after backoff, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestTradesByUser_Uncached(t *testing.T) {
	var hits atomic.Int32
	payload := `{"tradeExecuteds":[
		{"id":"t1","market":{"id":"1"},"trader":"0xabc","optionId":"0",
		 "quantity":"3","price":"1000000000000000000",
		 "blockNumber":"50","blockTimestamp":"1700000000"}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		graphqlHandler(t, payload)(w, r)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for i := 0; i < 2; i++ {
		trades, err := c.TradesByUser(context.Background(), "0xabc", 10, 0)
		if err != nil {
			t.Fatalf("TradesByUser: %v", err)
		}
		if len(trades) != 1 {
			t.Fatalf("expected 1 trade, got %d", len(trades))
		}
	}
	if hits.Load() != 2 {
		t.Fatalf("user trades must be an uncached passthrough, got %d hits", hits.Load())
	}
}

func TestPortfolio_AbsentCachedAsNil(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		graphqlHandler(t, `{"userPortfolio":null}`)(w, r)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for i := 0; i < 3; i++ {
		p, err := c.Portfolio(context.Background(), "0xnobody")
		if err != nil {
			t.Fatalf("Portfolio: %v", err)
		}
		if p != nil {
			t.Fatalf("expected nil portfolio, got %+v", p)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("absent portfolio must be cached, got %d hits", hits.Load())
	}
}

func TestPortfolio_Parsed(t *testing.T) {
	payload := `{"userPortfolio":{
		"id":"0xabc","totalInvested":"5000000000000000000",
		"totalWinnings":"1000000000000000000","unrealizedPnl":"250000000000000000",
		"realizedPnl":"-100000000000000000","tradeCount":"12","updatedAt":"1700000000"}}`
	srv := httptest.NewServer(graphqlHandler(t, payload))
	defer srv.Close()

	p, err := testClient(srv.URL).Portfolio(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if p == nil {
		t.Fatal("expected portfolio")
	}
	want, _ := new(big.Int).SetString("5000000000000000000", 10)
	if p.TotalInvested.Cmp(want) != 0 {
		t.Fatalf("expected totalInvested %s, got %s", want, p.TotalInvested)
	}
	if p.RealizedPnL.Sign() >= 0 {
		t.Fatal("expected negative realized PnL")
	}
	if p.TradeCount != 12 || p.UpdatedAt != 1700000000 {
		t.Fatalf("bad scalar fields: %+v", p)
	}
}

func TestQuery_GraphQLErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"field does not exist"}]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).TradesByUser(context.Background(), "0xabc", 10, 0)
	if err == nil {
		t.Fatal("expected GraphQL error to surface")
	}
	if httputil.IsRateLimited(err) {
		t.Fatalf("GraphQL error misclassified as rate limit: %v", err)
	}
}
