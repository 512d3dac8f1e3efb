package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/event"
	"github.com/alanyoungcy/dexarb/internal/monitor"
)

type memPoolStore struct {
	upserted []domain.Pool
	err      error
	filter   domain.PoolFilter
}

func (m *memPoolStore) UpsertPools(_ context.Context, pools []domain.Pool) error {
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, pools...)
	return nil
}

func (m *memPoolStore) ListPools(_ context.Context, f domain.PoolFilter) ([]domain.Pool, error) {
	m.filter = f
	return m.upserted, nil
}

func (m *memPoolStore) GetPool(context.Context, string, string) (domain.Pool, error) {
	return domain.Pool{}, domain.ErrNotFound
}

func (m *memPoolStore) Stats(context.Context) (domain.PoolStats, error) {
	return domain.PoolStats{Count: len(m.upserted)}, nil
}

func marketReport(id string, at time.Time, quotes []domain.Quote, chains ...domain.ArbitrageChain) monitor.Report {
	return monitor.Report{
		Cycle:  domain.ScanCycle{ID: id, StartedAt: at, FinishedAt: at.Add(time.Second)},
		Quotes: quotes,
		Chains: chains,
	}
}

func TestMarketsInMemory(t *testing.T) {
	svc := NewOpportunityService(Deps{}, Options{}, discard())
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	wethUSDC := domain.TokenPair{Base: weth, Quote: usdc}
	usdcDAI := domain.TokenPair{Base: usdc, Quote: dai}

	require.NoError(t, svc.HandleCycle(ctx, marketReport("c1", t0, []domain.Quote{
		{Venue: "uniswap_v2", Pair: wethUSDC, Price: 2000, Liquidity: 5_000_000, ObservedAt: t0},
		{Venue: "curve", Pair: usdcDAI, Price: 1, Liquidity: 80_000_000, ObservedAt: t0},
		{Venue: "sushiswap", Pair: wethUSDC, Price: 2001, Liquidity: 40_000, ObservedAt: t0},
	}, domain.ArbitrageChain{ID: "k1", NetProfitPercentage: 2}, domain.ArbitrageChain{ID: "k2", NetProfitPercentage: 1})))

	t1 := t0.Add(time.Minute)
	require.NoError(t, svc.HandleCycle(ctx, marketReport("c2", t1, []domain.Quote{
		{Venue: "uniswap_v2", Pair: wethUSDC, Price: 2010, Liquidity: 6_000_000, ObservedAt: t1},
	}, domain.ArbitrageChain{ID: "k3"})))

	all, err := svc.Pools(ctx, domain.PoolFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "curve", all[0].Venue)
	assert.Equal(t, 2010.0, all[1].Price, "the newer observation replaces the older one")

	deep, err := svc.Pools(ctx, domain.PoolFilter{Token: "weth", MinLiquidity: 100_000})
	require.NoError(t, err)
	require.Len(t, deep, 1)
	assert.Equal(t, "uniswap_v2", deep[0].Venue)

	byAddr, err := svc.Pools(ctx, domain.PoolFilter{Token: "0x6b175474e89094c44da98b954eedeac495271d0f", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byAddr, 1)
	assert.Equal(t, "USDC/DAI", byAddr[0].Pair.Key())

	venue, err := svc.Pools(ctx, domain.PoolFilter{Venue: "SushiSwap"})
	require.NoError(t, err)
	assert.Len(t, venue, 1)

	p, err := svc.Pool(ctx, "curve", "USDC/DAI")
	require.NoError(t, err)
	assert.Equal(t, 80_000_000.0, p.Liquidity)
	_, err = svc.Pool(ctx, "curve", "WETH/USDC")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	st, err := svc.PoolStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 3, st.Venues)
	assert.Equal(t, 80_000_000.0, st.MaxLiquidity)
	assert.InDelta(t, (6_000_000+80_000_000+40_000)/3.0, st.AvgLiquidity, 1e-6)

	chains, err := svc.Chains(ctx, 0)
	require.NoError(t, err)
	require.Len(t, chains, 1, "only the latest cycle's chains are kept")
	assert.Equal(t, "k3", chains[0].ID)
}

func TestChainsLimitAndPublish(t *testing.T) {
	bus := newMemBus()
	svc := NewOpportunityService(Deps{Bus: bus}, Options{}, discard())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, svc.HandleCycle(ctx, marketReport("c1", now, nil,
		domain.ArbitrageChain{ID: "k1", Start: usdc, DetectedAt: now},
		domain.ArbitrageChain{ID: "k2", Start: usdc, DetectedAt: now},
	)))

	top, err := svc.Chains(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "k1", top[0].ID)

	require.Len(t, bus.published[event.ChannelChain], 2)
	env, err := event.Decode(bus.published[event.ChannelChain][0])
	require.NoError(t, err)
	assert.Equal(t, event.TypeChain, env.Type)
	assert.Equal(t, "k1", env.Payload["id"])
}

func TestPoolsPreferStore(t *testing.T) {
	store := &memPoolStore{}
	svc := NewOpportunityService(Deps{Pools: store}, Options{}, discard())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, svc.HandleCycle(ctx, marketReport("c1", now, []domain.Quote{
		{Venue: "curve", Pair: domain.TokenPair{Base: usdc, Quote: dai}, Price: 1, Liquidity: 1e6, Fee: 0.0004, ObservedAt: now},
	})))
	require.Len(t, store.upserted, 1)
	assert.Equal(t, 0.0004, store.upserted[0].Fee)
	assert.Equal(t, now, store.upserted[0].UpdatedAt)

	f := domain.PoolFilter{Venue: "curve", Limit: 5}
	pools, err := svc.Pools(ctx, f)
	require.NoError(t, err)
	assert.Len(t, pools, 1)
	assert.Equal(t, f, store.filter)

	st, err := svc.PoolStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)

	_, err = svc.Pool(ctx, "curve", "USDC/DAI")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPoolStoreFailureIsReturned(t *testing.T) {
	svc := NewOpportunityService(Deps{Pools: &memPoolStore{err: errors.New("disk full")}}, Options{}, discard())
	err := svc.HandleCycle(context.Background(), marketReport("c1", time.Now(), []domain.Quote{
		{Venue: "curve", Pair: domain.TokenPair{Base: usdc, Quote: dai}, Price: 1, Liquidity: 1e6},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert pools")
}
