// Package rates provides the advisory SOL/USD valuation source used to stamp
// ledger entries. Failures degrade to a zero valuation, never block a wallet
// operation.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const coingeckoAPI = "https://api.coingecko.com/api/v3"

// Source yields the current SOL price as a decimal USD string.
type Source interface {
	SOLPriceUSD(ctx context.Context) (string, error)
}

// CoinGeckoClient fetches the SOL/USD rate from the CoinGecko public API.
type CoinGeckoClient struct {
	baseURL string
	client  *http.Client
}

var _ Source = (*CoinGeckoClient)(nil)

// NewCoinGeckoClient creates a client against the public API.
func NewCoinGeckoClient() *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: coingeckoAPI,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// priceResponse is the /simple/price payload
type priceResponse struct {
	Solana struct {
		USD float64 `json:"usd"`
	} `json:"solana"`
}

// SOLPriceUSD gets the SOL to USD exchange rate.
func (c *CoinGeckoClient) SOLPriceUSD(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/simple/price?ids=solana&vs_currencies=usd", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get rate: status %d", resp.StatusCode)
	}

	var priceResp priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		return "", fmt.Errorf("failed to decode rate: %w", err)
	}

	rate := strconv.FormatFloat(priceResp.Solana.USD, 'f', 2, 64)
	return rate, nil
}
