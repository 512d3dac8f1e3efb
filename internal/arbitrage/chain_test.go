package arbitrage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

var usdt = domain.Asset{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6}

func fq(venue string, pair domain.TokenPair, price, liquidity, fee float64) domain.Quote {
	return domain.Quote{Venue: venue, Pair: pair, Price: price, Liquidity: liquidity, Fee: fee}
}

// triangle prices DAI -> USDC -> WETH -> DAI at a 5% gross gain across three
// venues, each pair quoted by a single venue.
func triangle() map[domain.TokenPair][]domain.Quote {
	usdcDai := domain.TokenPair{Base: usdc, Quote: dai}
	return map[domain.TokenPair][]domain.Quote{
		pairX:   {fq("uniswap_v2", pairX, 2000, 5_000_000, 0.003)},
		pairY:   {fq("curve", pairY, 2100, 5_000_000, 0.0004)},
		usdcDai: {fq("sushiswap", usdcDai, 1, 5_000_000, 0.003)},
	}
}

func TestBuildGraphAddsBothDirections(t *testing.T) {
	g := BuildGraph(map[domain.TokenPair][]domain.Quote{
		pairX: {
			fq("uniswap_v2", pairX, 2000, 5_000_000, 0.003),
			fq("sushiswap", pairX, 2010, 5_000_000, 0.003),
			fq("broken", pairX, math.NaN(), 5_000_000, 0.003),
			fq("empty", pairX, 2000, 0, 0.003),
		},
	})

	tokens, edges := g.Size()
	assert.Equal(t, 2, tokens)
	assert.Equal(t, 4, edges)
	assert.Equal(t, []domain.Asset{usdc, weth}, g.Tokens())

	fwd := g.EdgesFrom("weth")
	require.Len(t, fwd, 2)
	assert.Equal(t, "sushiswap", fwd[0].Venue)
	assert.Equal(t, 2010.0, fwd[0].Rate)
	assert.Equal(t, "uniswap_v2", fwd[1].Venue)

	rev := g.EdgesFrom("USDC")
	require.Len(t, rev, 2)
	assert.InDelta(t, 1.0/2000, rev[1].Rate, 1e-15)
	assert.Equal(t, weth, rev[1].To)
	assert.Equal(t, 0.001, rev[1].Slippage)

	assert.True(t, g.HasDirectPath("WETH", "usdc"))
	assert.False(t, g.HasDirectPath("WETH", "DAI"))
}

func TestEstimateSlippageTiers(t *testing.T) {
	assert.Equal(t, 0.0005, EstimateSlippage(20_000_000))
	assert.Equal(t, 0.001, EstimateSlippage(5_000_000))
	assert.Equal(t, 0.005, EstimateSlippage(500_000))
	assert.Equal(t, 0.01, EstimateSlippage(50_000))
	assert.Equal(t, 0.03, EstimateSlippage(5_000))
}

func TestFindChainsTriangle(t *testing.T) {
	f := NewChainFinder(DefaultChainConfig(), discard())
	chains := f.FindChains(triangle(), 20)

	require.Len(t, chains, 1, "the reverse direction loses and rotations are reported once")
	c := chains[0]
	assert.Equal(t, dai, c.Start)
	assert.Equal(t, "DAI -sushiswap-> USDC -uniswap_v2-> WETH -curve-> DAI", c.Route())
	assert.Equal(t, []string{"sushiswap", "uniswap_v2", "curve"}, c.Venues())

	net := 1.05 * (1 - 0.003) * (1 - 0.003) * (1 - 0.0004) * math.Pow(1-0.001, 3)
	assert.InDelta(t, 5.0, c.GrossProfitPercentage, 1e-9)
	assert.InDelta(t, (net-1)*100, c.NetProfitPercentage, 1e-9)
	assert.InDelta(t, net, c.AmountOut, 1e-12)
	assert.InDelta(t, 0.64, c.FeePercentage, 1e-12)
	assert.Equal(t, 5_000_000.0, c.MinLiquidity)
	// three hops, deep pools, 0.3% total slippage, distinct venues.
	assert.InDelta(t, 0.315, c.RiskScore, 1e-12)
	assert.Equal(t, 15*3+15+10+20, c.EstimatedExecutionTime)
	assert.InDelta(t, 3*150_000*20*1e-9, c.GasCostEstimate, 1e-12)
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.DetectedAt.IsZero())

	require.Len(t, c.Hops, 3)
	assert.Equal(t, 1.0, c.Hops[0].AmountIn)
	for i := 1; i < len(c.Hops); i++ {
		assert.Equal(t, c.Hops[i-1].AmountOut, c.Hops[i].AmountIn)
		assert.Equal(t, c.Hops[i-1].To, c.Hops[i].From)
	}
}

func TestFindChainsSkipsTwoHopRoundTrips(t *testing.T) {
	f := NewChainFinder(DefaultChainConfig(), discard())
	chains := f.FindChains(map[domain.TokenPair][]domain.Quote{
		pairX: {
			fq("uniswap_v2", pairX, 2000, 5_000_000, 0.003),
			fq("sushiswap", pairX, 2200, 5_000_000, 0.003),
		},
	}, 20)
	assert.Empty(t, chains)
}

func TestFindChainsFilters(t *testing.T) {
	base := DefaultChainConfig()

	thin := base
	thin.MinLiquidity = 10_000_000
	assert.Empty(t, NewChainFinder(thin, discard()).FindChains(triangle(), 20))

	cautious := base
	cautious.MaxRiskScore = 0.3
	assert.Empty(t, NewChainFinder(cautious, discard()).FindChains(triangle(), 20))

	greedy := base
	greedy.MinProfitThreshold = 4.5
	assert.Empty(t, NewChainFinder(greedy, discard()).FindChains(triangle(), 20))

	tight := base
	tight.MaxSlippage = 0.05
	assert.Empty(t, NewChainFinder(tight, discard()).FindChains(triangle(), 20))
}

func TestFindChainsHopLimit(t *testing.T) {
	wethUsdt := domain.TokenPair{Base: weth, Quote: usdt}
	usdcUsdt := domain.TokenPair{Base: usdc, Quote: usdt}
	daiUsdc := domain.TokenPair{Base: dai, Quote: usdc}
	quotes := map[domain.TokenPair][]domain.Quote{
		daiUsdc:  {fq("sushiswap", daiUsdc, 1, 5_000_000, 0.003)},
		usdcUsdt: {fq("curve", usdcUsdt, 1, 5_000_000, 0.0004)},
		wethUsdt: {fq("uniswap_v2", wethUsdt, 2000, 5_000_000, 0.003)},
		pairY:    {fq("balancer", pairY, 2100, 5_000_000, 0.001)},
	}

	assert.Empty(t, NewChainFinder(DefaultChainConfig(), discard()).FindChains(quotes, 20))

	cfg := DefaultChainConfig()
	cfg.MaxHops = 4
	chains := NewChainFinder(cfg, discard()).FindChains(quotes, 20)
	require.Len(t, chains, 1)
	assert.Equal(t, "DAI -sushiswap-> USDC -curve-> USDT -uniswap_v2-> WETH -balancer-> DAI", chains[0].Route())
	assert.InDelta(t, 4*150_000*20*1e-9, chains[0].GasCostEstimate, 1e-12)
}

func TestFindChainsOrderAndLimit(t *testing.T) {
	quotes := triangle()
	// A second, cheaper WETH venue adds a better variant of the same cycle.
	quotes[pairX] = append(quotes[pairX], fq("pancakeswap", pairX, 1980, 5_000_000, 0.0025))

	all := NewChainFinder(DefaultChainConfig(), discard()).FindChains(quotes, 20)
	require.Len(t, all, 2)
	assert.Equal(t, "DAI -sushiswap-> USDC -pancakeswap-> WETH -curve-> DAI", all[0].Route())
	assert.Greater(t, all[0].NetProfitPercentage, all[1].NetProfitPercentage)

	cfg := DefaultChainConfig()
	cfg.MaxChains = 1
	top := NewChainFinder(cfg, discard()).FindChains(quotes, 20)
	require.Len(t, top, 1)
	assert.Equal(t, all[0].Route(), top[0].Route())
}

func TestChainRisk(t *testing.T) {
	hop := func(venue string, liq, slip float64) domain.ChainHop {
		return domain.ChainHop{Venue: venue, Liquidity: liq, Slippage: slip}
	}
	assert.Zero(t, ChainRisk(nil))
	assert.InDelta(t, 0.3+0.1+0.075,
		ChainRisk([]domain.ChainHop{hop("a", 500_000, 0.005), hop("b", 2_000_000, 0.005), hop("c", 2_000_000, 0.005)}), 1e-12)
	assert.InDelta(t, 0.3+0.3+0.15+0.2,
		ChainRisk([]domain.ChainHop{hop("a", 50_000, 0.01), hop("a", 50_000, 0.01), hop("b", 50_000, 0.01)}), 1e-12)
	assert.Equal(t, 1.0,
		ChainRisk([]domain.ChainHop{hop("a", 5_000, 0.03), hop("a", 5_000, 0.03), hop("a", 5_000, 0.03)}))
}
