// Package subgraph is a minimal GraphQL client for The Graph style indexers.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/platform/httpx"
)

// Client executes GraphQL queries against a single subgraph endpoint.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new subgraph client. apiKey is sent as a bearer token
// when set (hosted gateways require one, the legacy hosted service does not).
func NewClient(graphqlURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Query executes query and decodes the "data" field into out.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	data, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return fmt.Errorf("subgraph: query: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("subgraph: %w", httpx.Decode("data", err))
	}
	return nil
}

// LatestBlock returns the latest block number indexed by the subgraph. This is
// useful for health checks and for monitoring indexing lag.
func (c *Client) LatestBlock(ctx context.Context) (int64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := c.Query(ctx, query, nil, &result); err != nil {
		return 0, fmt.Errorf("subgraph: latest block: %w", err)
	}
	return result.Meta.Block.Number, nil
}

// doQuery executes a GraphQL query and returns the raw "data" field from the
// response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, httpx.Decode("graphql response", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("%w: graphql error: %s", domain.ErrParse, gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
