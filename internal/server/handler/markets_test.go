package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

type fakeMarkets struct {
	chains    []domain.ArbitrageChain
	pools     []domain.Pool
	err       error
	gotLimit  int
	gotFilter domain.PoolFilter
	gotVenue  string
	gotPair   string
}

func (f *fakeMarkets) Chains(_ context.Context, limit int) ([]domain.ArbitrageChain, error) {
	f.gotLimit = limit
	return f.chains, f.err
}

func (f *fakeMarkets) Pools(_ context.Context, filter domain.PoolFilter) ([]domain.Pool, error) {
	f.gotFilter = filter
	return f.pools, f.err
}

func (f *fakeMarkets) Pool(_ context.Context, venue, pairKey string) (domain.Pool, error) {
	f.gotVenue, f.gotPair = venue, pairKey
	if f.err != nil {
		return domain.Pool{}, f.err
	}
	for _, p := range f.pools {
		if p.Venue == venue && p.Pair.Key() == pairKey {
			return p, nil
		}
	}
	return domain.Pool{}, fmt.Errorf("pool %s|%s: %w", venue, pairKey, domain.ErrNotFound)
}

func (f *fakeMarkets) PoolStats(context.Context) (domain.PoolStats, error) {
	return domain.PoolStats{Count: len(f.pools)}, f.err
}

func samplePool() domain.Pool {
	return domain.Pool{
		Venue: "curve",
		Pair: domain.TokenPair{
			Base:  domain.Asset{Symbol: "USDC"},
			Quote: domain.Asset{Symbol: "DAI"},
		},
		Price:     1,
		Liquidity: 80_000_000,
	}
}

func TestListChains(t *testing.T) {
	f := &fakeMarkets{chains: []domain.ArbitrageChain{{ID: "k1", NetProfitPercentage: 1.2}}}
	h := NewMarketHandler(f, nil)

	rec := do(t, "GET /api/chains", h.ListChains, "/api/chains?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.gotLimit)
	var body struct {
		Chains []domain.ArbitrageChain `json:"chains"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Chains, 1)
	assert.Equal(t, "k1", body.Chains[0].ID)

	empty := NewMarketHandler(&fakeMarkets{}, nil)
	rec = do(t, "GET /api/chains", empty.ListChains, "/api/chains")
	assert.JSONEq(t, `{"chains":[]}`, rec.Body.String())
}

func TestListPools(t *testing.T) {
	f := &fakeMarkets{pools: []domain.Pool{samplePool()}}
	h := NewMarketHandler(f, nil)

	rec := do(t, "GET /api/pools", h.ListPools, "/api/pools?venue=curve&token=DAI&min_liquidity=1000&limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PoolFilter{Venue: "curve", Token: "DAI", MinLiquidity: 1000, Limit: 3}, f.gotFilter)
	var body struct {
		Pools []domain.Pool `json:"pools"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Pools, 1)
	assert.Equal(t, "USDC/DAI", body.Pools[0].Pair.Key())

	rec = do(t, "GET /api/pools", h.ListPools, "/api/pools")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PoolFilter{Limit: 100}, f.gotFilter)

	rec = do(t, "GET /api/pools", h.ListPools, "/api/pools?min_liquidity=lots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	failing := NewMarketHandler(&fakeMarkets{err: errors.New("connection refused")}, nil)
	rec = do(t, "GET /api/pools", failing.ListPools, "/api/pools")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestGetPool(t *testing.T) {
	f := &fakeMarkets{pools: []domain.Pool{samplePool()}}
	h := NewMarketHandler(f, nil)
	pattern := "GET /api/pools/{venue}/{pair...}"

	rec := do(t, pattern, h.GetPool, "/api/pools/curve/usdc/dai")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "curve", f.gotVenue)
	assert.Equal(t, "USDC/DAI", f.gotPair)
	var p domain.Pool
	decode(t, rec, &p)
	assert.Equal(t, 80_000_000.0, p.Liquidity)

	rec = do(t, pattern, h.GetPool, "/api/pools/sushiswap/WETH/USDC")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	failing := NewMarketHandler(&fakeMarkets{err: errors.New("timeout")}, nil)
	rec = do(t, pattern, failing.GetPool, "/api/pools/curve/USDC/DAI")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPoolStats(t *testing.T) {
	h := NewMarketHandler(&fakeMarkets{pools: []domain.Pool{samplePool()}}, nil)
	rec := do(t, "GET /api/pools/stats", h.PoolStats, "/api/pools/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var st domain.PoolStats
	decode(t, rec, &st)
	assert.Equal(t, 1, st.Count)
}
