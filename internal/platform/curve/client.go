// Package curve is the REST client for the Curve Finance pools API.
package curve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/platform/httpx"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.curve.fi/api"

// Client fetches pool snapshots from the Curve API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Curve API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Pool is one Curve pool as reported by /getPools.
type Pool struct {
	ID        string   `json:"id"`
	Address   string   `json:"address"`
	Name      string   `json:"name"`
	Coins     []Coin   `json:"coins"`
	USDTotal  float64  `json:"usdTotal"`
	VolumeUSD *float64 `json:"volumeUSD"`
}

// Coin is a pool constituent. PoolBalance is the raw integer balance.
type Coin struct {
	Address     string   `json:"address"`
	Symbol      string   `json:"symbol"`
	Decimals    Int      `json:"decimals"`
	USDPrice    *float64 `json:"usdPrice"`
	PoolBalance string   `json:"poolBalance"`
}

// Int decodes integers that the API sometimes emits as JSON strings.
type Int int

// UnmarshalJSON accepts 18 as well as "18".
func (i *Int) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*i = 0
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("curve: invalid integer %q: %w", string(b), err)
	}
	*i = Int(n)
	return nil
}

type poolsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		PoolData []Pool `json:"poolData"`
	} `json:"data"`
}

// GetPools returns the pools of a network registry, e.g. ("ethereum", "main").
func (c *Client) GetPools(ctx context.Context, network, registry string) ([]Pool, error) {
	path := fmt.Sprintf("/getPools/%s/%s", url.PathEscape(network), url.PathEscape(registry))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("curve: get pools: %w", err)
	}

	var resp poolsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("curve: %w", httpx.Decode("pools", err))
	}
	if !resp.Success {
		return nil, fmt.Errorf("curve: get pools: %w: unsuccessful response", domain.ErrParse)
	}
	return resp.Data.PoolData, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httpx.Transport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httpx.Transport(err)
	}

	if err := httpx.CheckStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
