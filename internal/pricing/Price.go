/*

This file contains the BTC/USD rate client used to express pool TVL in sats
for oracle submissions and to anchor projected-earnings math. The rate is
cached for a short TTL, and the client degrades in two steps when the price
API misbehaves: serve the last good rate, then serve the configured fallback.
A sync cycle must never be blocked on a perfect spot price.

*/

package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/metrics"
)

var priceLogger = logger.GetForComponent("price_client")

var ErrPriceUnavailable = errors.New("btc/usd rate unavailable")

const (
	PRICE_ROUTE     = "/data/price?fsym=BTC&tsyms=USD"
	PRICE_TIMEOUT   = 10 * time.Second
	PRICE_CACHE_TTL = 5 * time.Minute
)

// spotResponse is the CryptoCompare single-symbol price payload.
type spotResponse struct {
	USD decimal.Decimal `json:"USD"`
}

type Client struct {
	baseURL     string
	client      *http.Client
	fallbackUSD decimal.Decimal
	ttl         time.Duration

	mu        sync.Mutex
	lastRate  decimal.Decimal
	fetchedAt time.Time
}

// NewClient builds a rate client against the given price API base URL. A
// non-positive fallback disables the last-resort rate, in which case Rate
// fails when the API is unreachable and no cached rate exists.
func NewClient(baseURL string, fallbackUSD float64) *Client {
	return &Client{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: PRICE_TIMEOUT},
		fallbackUSD: decimal.NewFromFloat(fallbackUSD),
		ttl:         PRICE_CACHE_TTL,
	}
}

// Rate returns the BTC/USD rate, preferring in order: a cached rate within
// the TTL, a live fetch, the last good rate past its TTL, and finally the
// configured fallback. The mutex is never held across the network call.
func (c *Client) Rate(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		cached := c.lastRate
		c.mu.Unlock()
		metrics.PriceLookups.WithLabelValues("cache").Inc()
		return cached, nil
	}
	stale := c.lastRate
	hasStale := !c.fetchedAt.IsZero()
	c.mu.Unlock()

	live, err := c.fetchSpot(ctx)
	if err == nil {
		c.mu.Lock()
		c.lastRate = live
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		metrics.PriceLookups.WithLabelValues("live").Inc()
		return live, nil
	}

	if hasStale {
		priceLogger.Warn().
			Err(err).
			Str("staleRate", stale.String()).
			Msg("Price fetch failed, serving last good rate past its TTL")
		metrics.PriceLookups.WithLabelValues("cache").Inc()
		return stale, nil
	}

	if c.fallbackUSD.IsPositive() {
		priceLogger.Warn().
			Err(err).
			Str("fallbackRate", c.fallbackUSD.String()).
			Msg("Price fetch failed with a cold cache, serving configured fallback rate")
		metrics.PriceLookups.WithLabelValues("fallback").Inc()
		return c.fallbackUSD, nil
	}

	priceLogger.Error().
		Err(err).
		Msg("Price fetch failed with a cold cache and no fallback configured")
	return decimal.Zero, errors.Join(ErrPriceUnavailable, err)
}

// fetchSpot performs one spot-price request with strict validation.
func (c *Client) fetchSpot(ctx context.Context) (decimal.Decimal, error) {
	url := c.baseURL + PRICE_ROUTE

	priceLogger.Debug().
		Str("url", url).
		Msg("Fetching BTC/USD spot rate")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create price request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read price response: %w", err)
	}
	if len(body) == 0 {
		return decimal.Zero, errors.New("empty price response body")
	}

	var spot spotResponse
	if err := json.Unmarshal(body, &spot); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price response: %w", err)
	}

	if !spot.USD.IsPositive() {
		return decimal.Zero, fmt.Errorf("price API returned non-positive rate: %s", spot.USD.String())
	}

	priceLogger.Debug().
		Str("rate", spot.USD.String()).
		Msg("BTC/USD spot rate fetched")

	return spot.USD, nil
}
