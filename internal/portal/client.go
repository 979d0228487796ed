// Package portal talks to the SolanaPortal trading API, the service that
// turns a trade intent into an unsigned transaction.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// BuildRequest mirrors the portal's trading endpoint payload.
type BuildRequest struct {
	WalletAddress string  `json:"wallet_address"`
	Action        string  `json:"action"` // "buy" or "sell"
	DEX           string  `json:"dex"`
	Mint          string  `json:"mint"`
	Amount        float64 `json:"amount"`
	Slippage      float64 `json:"slippage"`
	Tip           float64 `json:"tip"`
	Type          string  `json:"type"`
}

// Client builds unsigned swap transactions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a portal client for the given API base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.Named("portal"),
	}
}

// BuildSwap requests an unsigned transaction for the given intent. The
// response body is a JSON string holding the base64-encoded transaction.
func (c *Client) BuildSwap(ctx context.Context, req *BuildRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/trading", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("portal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("portal returned HTTP %d", resp.StatusCode)
	}

	var encodedTx string
	if err := json.NewDecoder(resp.Body).Decode(&encodedTx); err != nil {
		return "", fmt.Errorf("decode portal response: %w", err)
	}
	if encodedTx == "" {
		return "", fmt.Errorf("portal returned empty transaction")
	}

	c.logger.Debug("Unsigned transaction received",
		zap.String("action", req.Action),
		zap.String("mint", req.Mint),
		zap.Int("encoded_len", len(encodedTx)))

	return encodedTx, nil
}
