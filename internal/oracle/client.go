// Package oracle queries the Coinvera price API for token prices.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Price is one oracle quote. Zero values mean the oracle has no data for the
// token yet; that is a valid response, not an error.
type Price struct {
	PriceInSol float64 `json:"priceInSol"`
	PriceInUsd float64 `json:"priceInUsd"`
	MarketCap  float64 `json:"marketCap"`
}

// Empty reports whether the oracle returned no usable quote.
func (p Price) Empty() bool {
	return p.PriceInUsd == 0
}

// Client fetches prices with a bounded retry on transport failures.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxTries   uint
	logger     *zap.Logger
}

// NewClient creates an oracle client for the given API base URL.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxTries:   3,
		logger:     logger.Named("oracle"),
	}
}

// TokenPrice fetches the current quote for mint. Transport and server errors
// are retried up to the client's try budget; a malformed body is permanent.
func (c *Client) TokenPrice(ctx context.Context, mint string) (Price, error) {
	op := func() (Price, error) {
		return c.fetch(ctx, mint)
	}

	price, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return Price{}, fmt.Errorf("price lookup for %s: %w", mint, err)
	}

	if price.Empty() {
		c.logger.Debug("Oracle returned no price data", zap.String("mint", mint))
	}
	return price, nil
}

func (c *Client) fetch(ctx context.Context, mint string) (Price, error) {
	endpoint := fmt.Sprintf("%s/api/price?ca=%s&x-api-key=%s",
		c.baseURL, url.QueryEscape(mint), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Price{}, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Price{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("oracle returned HTTP %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return Price{}, backoff.Permanent(err)
		}
		return Price{}, err
	}

	var price Price
	if err := json.NewDecoder(resp.Body).Decode(&price); err != nil {
		return Price{}, backoff.Permanent(fmt.Errorf("malformed oracle response: %w", err))
	}
	return price, nil
}
