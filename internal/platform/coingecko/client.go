// Package coingecko is the REST client for the CoinGecko public API, used as
// the token metadata registry.
package coingecko

import (
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
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// apiKeyHeader carries the demo-plan credential.
const apiKeyHeader = "x-cg-demo-api-key"

// Client implements domain.TokenRegistry against CoinGecko.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a new CoinGecko client. An empty apiKey uses the
// anonymous tier.
func NewClient(baseURL, apiKey, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    strings.TrimSpace(apiKey),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ domain.TokenRegistry = (*Client)(nil)

// apiCoin is an entry of /coins/list.
type apiCoin struct {
	ID        string             `json:"id"`
	Symbol    string             `json:"symbol"`
	Name      string             `json:"name"`
	Platforms map[string]*string `json:"platforms"`
}

// apiMarket is an entry of /coins/markets.
type apiMarket struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	MarketCapRank            *int     `json:"market_cap_rank"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	TotalVolume              *float64 `json:"total_volume"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

// ListCoins returns every coin known to the registry together with its
// per-chain contract addresses.
func (c *Client) ListCoins(ctx context.Context) ([]domain.RegistryCoin, error) {
	body, err := c.doGet(ctx, "/coins/list?include_platform=true")
	if err != nil {
		return nil, fmt.Errorf("coingecko: list coins: %w", err)
	}

	var coins []apiCoin
	if err := json.Unmarshal(body, &coins); err != nil {
		return nil, fmt.Errorf("coingecko: %w", httpx.Decode("coin list", err))
	}

	out := make([]domain.RegistryCoin, 0, len(coins))
	for _, coin := range coins {
		out = append(out, domain.RegistryCoin{
			ID:        coin.ID,
			Symbol:    coin.Symbol,
			Name:      coin.Name,
			Platforms: normalisePlatforms(coin.Platforms),
		})
	}
	return out, nil
}

// Markets returns USD market data for the given coin ids. Callers batch ids
// themselves; one call is one request.
func (c *Client) Markets(ctx context.Context, ids []string) ([]domain.Token, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("ids", strings.Join(ids, ","))
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(max(len(ids), 100)))
	params.Set("page", "1")

	body, err := c.doGet(ctx, "/coins/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("coingecko: markets: %w", err)
	}

	var markets []apiMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("coingecko: %w", httpx.Decode("markets", err))
	}

	tokens := make([]domain.Token, 0, len(markets))
	for _, m := range markets {
		tokens = append(tokens, domain.Token{
			ID:             m.ID,
			Symbol:         m.Symbol,
			Name:           m.Name,
			MarketCapRank:  m.MarketCapRank,
			CurrentPrice:   m.CurrentPrice,
			MarketCap:      m.MarketCap,
			TotalVolume:    m.TotalVolume,
			PriceChange24h: m.PriceChangePercentage24h,
		})
	}
	return tokens, nil
}

// Ping checks that the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.doGet(ctx, "/ping"); err != nil {
		return fmt.Errorf("coingecko: ping: %w", err)
	}
	return nil
}

// normalisePlatforms drops empty platform keys and turns empty addresses into
// nil entries.
func normalisePlatforms(in map[string]*string) map[string]*string {
	out := make(map[string]*string, len(in))
	for chain, addr := range in {
		if chain == "" {
			continue
		}
		if addr != nil && strings.TrimSpace(*addr) == "" {
			addr = nil
		}
		out[chain] = addr
	}
	return out
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

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
