// Package subgraph reads indexed on-chain events from a GraphQL indexer.
// Loosely-shaped subgraph records are parsed and validated here, at the
// boundary, so aggregation logic downstream only ever sees typed values.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mkaplon/foresight-backend/internal/fetch"
	"github.com/mkaplon/foresight-backend/internal/httputil"
	"github.com/mkaplon/foresight-backend/internal/models"
)

// analyticsPageSize is the event window used for market analytics; the
// force-refresh path invalidates exactly this query.
const analyticsPageSize = 1000

type Client struct {
	endpoint   string
	httpClient *http.Client
	retry      httputil.RetryConfig

	trades     *fetch.Group[[]models.TradeEvent]
	portfolios *fetch.Group[*models.PortfolioSnapshot]
}

type ClientConfig struct {
	Endpoint    string
	FetchTTL    time.Duration // query-cache freshness, default 30s
	MaxAttempts int           // rate-limit attempt budget, default 3
	BackoffBase time.Duration // rate-limit backoff base, default 1s
}

func NewClient(cfg ClientConfig) *Client {
	groupCfg := fetch.GroupConfig{
		DefaultTTL:  cfg.FetchTTL,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BackoffBase,
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
		trades:     fetch.NewGroup[[]models.TradeEvent](groupCfg),
		portfolios: fetch.NewGroup[*models.PortfolioSnapshot](groupCfg),
	}
}

// TradesByMarket returns parsed trade events for one market, oldest first.
// Results are served from the query cache when fresh.
func (c *Client) TradesByMarket(ctx context.Context, marketID string, first, skip int) ([]models.TradeEvent, error) {
	key := fmt.Sprintf("trades:market:%s:%d:%d", marketID, first, skip)
	return c.trades.Do(ctx, key, func(ctx context.Context) ([]models.TradeEvent, error) {
		return c.queryTrades(ctx, tradesByMarketQuery, map[string]any{
			"marketId": marketID,
			"first":    first,
			"skip":     skip,
		})
	})
}

// MarketTrades fetches the analytics event window for a market.
func (c *Client) MarketTrades(ctx context.Context, marketID string) ([]models.TradeEvent, error) {
	return c.TradesByMarket(ctx, marketID, analyticsPageSize, 0)
}

// TradesByUser is an uncached passthrough with pagination.
func (c *Client) TradesByUser(ctx context.Context, address string, first, skip int) ([]models.TradeEvent, error) {
	return c.queryTrades(ctx, tradesByUserQuery, map[string]any{
		"trader": address,
		"first":  first,
		"skip":   skip,
	})
}

// Portfolio returns the indexer's P&L record for a user, or nil when the
// address has never traded. The nil result is cached like any other value so
// repeated lookups for unknown addresses stay off the wire.
func (c *Client) Portfolio(ctx context.Context, address string) (*models.PortfolioSnapshot, error) {
	key := "portfolio:" + address
	return c.portfolios.Do(ctx, key, func(ctx context.Context) (*models.PortfolioSnapshot, error) {
		return c.queryPortfolio(ctx, address)
	})
}

// InvalidateMarketTrades drops the cached analytics event window for a
// market so the next read hits the indexer.
func (c *Client) InvalidateMarketTrades(marketID string) {
	c.trades.Forget(fmt.Sprintf("trades:market:%s:%d:%d", marketID, analyticsPageSize, 0))
}

// InvalidateAll clears both query caches.
func (c *Client) InvalidateAll() {
	c.trades.Clear()
	c.portfolios.Clear()
}

// query posts a GraphQL document and unmarshals the data envelope into out.
// HTTP 429 surfaces as *httputil.RateLimitError; GraphQL-level errors are
// returned as plain errors.
func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": vars,
	})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subgraph returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("subgraph error: %s", envelope.Errors[0].Message)
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
