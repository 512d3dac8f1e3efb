package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/server/handler"
)

type stubOpps struct{}

func (stubOpps) Latest(context.Context, int) ([]domain.Opportunity, error) {
	return []domain.Opportunity{{ID: "o1"}}, nil
}

func (stubOpps) ByPair(context.Context, string, int) ([]domain.Opportunity, error) {
	return nil, nil
}

func (stubOpps) RecentCycles(context.Context, int) ([]domain.ScanCycle, error) {
	return nil, nil
}

type stubMarkets struct{}

func (stubMarkets) Chains(context.Context, int) ([]domain.ArbitrageChain, error) {
	return []domain.ArbitrageChain{{ID: "k1"}}, nil
}

func (stubMarkets) Pools(context.Context, domain.PoolFilter) ([]domain.Pool, error) {
	return nil, nil
}

func (stubMarkets) Pool(_ context.Context, venue, pairKey string) (domain.Pool, error) {
	if venue == "curve" && pairKey == "USDC/DAI" {
		return domain.Pool{Venue: venue}, nil
	}
	return domain.Pool{}, domain.ErrNotFound
}

func (stubMarkets) PoolStats(context.Context) (domain.PoolStats, error) {
	return domain.PoolStats{Count: 1}, nil
}

func newTestServer(apiKey string) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(
		Config{APIKey: apiKey},
		Handlers{
			Health:        handler.NewHealthHandler(nil, logger),
			Status:        handler.NewStatusHandler("server", nil, nil),
			Opportunities: handler.NewOpportunityHandler(stubOpps{}, logger),
		},
		nil, nil, logger,
	)
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	h := newTestServer("").Handler()

	assert.Equal(t, http.StatusOK, get(h, "/api/health", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/status", nil).Code)

	rec := get(h, "/api/opportunities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]domain.Opportunity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["opportunities"], 1)

	// Token routes are absent without a token cache.
	assert.Equal(t, http.StatusNotFound, get(h, "/api/tokens", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/ws", nil).Code)
}

func TestServer_MarketRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewServer(
		Config{},
		Handlers{
			Health:        handler.NewHealthHandler(nil, logger),
			Status:        handler.NewStatusHandler("server", nil, nil),
			Opportunities: handler.NewOpportunityHandler(stubOpps{}, logger),
			Markets:       handler.NewMarketHandler(stubMarkets{}, logger),
		},
		nil, nil, logger,
	).Handler()

	assert.Equal(t, http.StatusOK, get(h, "/api/chains", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/pools", nil).Code)
	assert.JSONEq(t, `{"count":1,"venues":0,"avg_liquidity":0,"max_liquidity":0}`, get(h, "/api/pools/stats", nil).Body.String())
	assert.Equal(t, http.StatusOK, get(h, "/api/pools/curve/USDC/DAI", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/api/pools/curve/WETH/USDC", nil).Code)
}

func TestServer_AuthSparesHealth(t *testing.T) {
	h := newTestServer("k").Handler()

	assert.Equal(t, http.StatusOK, get(h, "/api/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/status", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/status", map[string]string{"X-API-Key": "k"}).Code)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := newTestServer("")
	s.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Second) }()
	cancel()
	assert.NoError(t, <-done)
}
