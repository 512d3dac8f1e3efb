package dex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/platform/curve"
)

var (
	weth = domain.Asset{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18}
	usdc = domain.Asset{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6}
	dai  = domain.Asset{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18}

	wethUSDC = domain.TokenPair{Base: weth, Quote: usdc}
	wethDAI  = domain.TokenPair{Base: weth, Quote: dai}
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeChain answers eth_call requests for a factory and its pairs by decoding
// the calldata against the real ABIs.
type fakeChain struct {
	chainID  int64
	pairs    map[[2]common.Address]common.Address
	token0   map[common.Address]common.Address
	reserves map[common.Address][2]*big.Int
	err      error

	mu    sync.Mutex
	calls map[string]int
}

func newFakeChain(chainID int64) *fakeChain {
	return &fakeChain{
		chainID:  chainID,
		pairs:    make(map[[2]common.Address]common.Address),
		token0:   make(map[common.Address]common.Address),
		reserves: make(map[common.Address][2]*big.Int),
		calls:    make(map[string]int),
	}
}

func (f *fakeChain) addPair(pair, token0, token1 common.Address, r0, r1 *big.Int) {
	f.pairs[[2]common.Address{token0, token1}] = pair
	f.pairs[[2]common.Address{token1, token0}] = pair
	f.token0[pair] = token0
	f.reserves[pair] = [2]*big.Int{r0, r1}
}

func (f *fakeChain) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return big.NewInt(f.chainID), nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	method, err := lookupMethod(msg.Data)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls[method.Name]++
	f.mu.Unlock()

	switch method.Name {
	case "getPair":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		key := [2]common.Address{args[0].(common.Address), args[1].(common.Address)}
		return method.Outputs.Pack(f.pairs[key])
	case "token0":
		return method.Outputs.Pack(f.token0[*msg.To])
	case "getReserves":
		r := f.reserves[*msg.To]
		return method.Outputs.Pack(r[0], r[1], uint32(1700000000))
	}
	return nil, fmt.Errorf("unexpected method %s", method.Name)
}

func lookupMethod(data []byte) (*abi.Method, error) {
	for _, parsed := range []abi.ABI{factoryABIParsed, pairABIParsed} {
		if m, err := parsed.MethodById(data[:4]); err == nil {
			return m, nil
		}
	}
	return nil, errors.New("unknown selector")
}

func units(n int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

var (
	factoryAddr = "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
	pairAddr    = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
)

func newUniswap(chain ChainClient) *V2Source {
	return NewV2Source(chain, V2Options{Name: "uniswap_v2", ChainID: 1, Factory: factoryAddr, Fee: 0.003})
}

func TestV2QuoteNormalizesReserves(t *testing.T) {
	chain := newFakeChain(1)
	// USDC sorts first, so it is token0 and the reserves arrive quote-first.
	chain.addPair(pairAddr, common.HexToAddress(usdc.Address), common.HexToAddress(weth.Address),
		units(6_000_000, 6), units(2_000, 18))

	q, err := newUniswap(chain).Quote(context.Background(), wethUSDC)
	require.NoError(t, err)
	assert.Equal(t, "uniswap_v2", q.Venue)
	assert.InDelta(t, 3000.0, q.Price, 1e-9)
	assert.InDelta(t, 12_000_000.0, q.Liquidity, 1e-6)
	assert.Equal(t, 0.003, q.Fee)
	assert.Equal(t, wethUSDC, q.Pair)
}

func TestV2QuoteCachesPairAddress(t *testing.T) {
	chain := newFakeChain(1)
	chain.addPair(pairAddr, common.HexToAddress(usdc.Address), common.HexToAddress(weth.Address),
		units(6_000_000, 6), units(2_000, 18))
	src := newUniswap(chain)

	for i := 0; i < 3; i++ {
		_, err := src.Quote(context.Background(), wethUSDC)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, chain.count("getPair"))
	assert.Equal(t, 1, chain.count("token0"))
	assert.Equal(t, 3, chain.count("getReserves"))
}

func TestV2QuoteErrors(t *testing.T) {
	t.Run("no pool", func(t *testing.T) {
		_, err := newUniswap(newFakeChain(1)).Quote(context.Background(), wethDAI)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidPair)

		var qe *domain.QuoteError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, "uniswap_v2", qe.Venue)
		assert.Equal(t, wethDAI, qe.Pair)
	})

	t.Run("empty reserves", func(t *testing.T) {
		chain := newFakeChain(1)
		chain.addPair(pairAddr, common.HexToAddress(usdc.Address), common.HexToAddress(weth.Address),
			big.NewInt(0), big.NewInt(0))
		_, err := newUniswap(chain).Quote(context.Background(), wethUSDC)
		assert.ErrorIs(t, err, domain.ErrInvalidPair)
	})

	t.Run("rpc failure", func(t *testing.T) {
		chain := newFakeChain(1)
		chain.err = errors.New("connection refused")
		_, err := newUniswap(chain).Quote(context.Background(), wethUSDC)
		assert.ErrorIs(t, err, domain.ErrNetwork)
	})

	t.Run("identical tokens", func(t *testing.T) {
		_, err := newUniswap(newFakeChain(1)).Quote(context.Background(), domain.TokenPair{Base: weth, Quote: weth})
		assert.ErrorIs(t, err, domain.ErrInvalidPair)
	})
}

func TestV2TokenOverrides(t *testing.T) {
	bscETH := domain.Asset{Symbol: "ETH", Address: "0x2170Ed0880ac9A755fd29B2688956BD959F933F8", Decimals: 18}
	bscUSDC := domain.Asset{Symbol: "USDC", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18}

	chain := newFakeChain(56)
	chain.addPair(pairAddr, common.HexToAddress(bscETH.Address), common.HexToAddress(bscUSDC.Address),
		units(100, 18), units(310_000, 18))

	src := NewV2Source(chain, V2Options{
		Name:      "pancakeswap",
		ChainID:   56,
		Factory:   "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73",
		Fee:       0.0025,
		Overrides: map[string]domain.Asset{"weth": bscETH, "USDC": bscUSDC},
	})

	q, err := src.Quote(context.Background(), wethUSDC)
	require.NoError(t, err)
	assert.InDelta(t, 3100.0, q.Price, 1e-9)
	assert.Equal(t, wethUSDC, q.Pair, "quotes keep the canonical pair")
}

func TestV2Health(t *testing.T) {
	require.NoError(t, newUniswap(newFakeChain(1)).Health(context.Background()))

	err := newUniswap(newFakeChain(56)).Health(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfig)

	down := newFakeChain(1)
	down.err = errors.New("dial tcp: timeout")
	assert.ErrorIs(t, newUniswap(down).Health(context.Background()), domain.ErrNetwork)
}

func TestLocalThrottleSpacesCalls(t *testing.T) {
	th := NewLocalThrottle(40 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, th.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}

func TestLocalThrottleHonoursContext(t *testing.T) {
	th := NewLocalThrottle(time.Hour)
	require.NoError(t, th.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, th.Wait(ctx))
}

type recordingLimiter struct {
	keys   []string
	window time.Duration
}

func (r *recordingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (r *recordingLimiter) Wait(_ context.Context, key string, limit int, window time.Duration) error {
	r.keys = append(r.keys, key)
	r.window = window
	return nil
}

func TestSharedThrottle(t *testing.T) {
	lim := &recordingLimiter{}
	th := NewSharedThrottle(lim, "curve", 2*time.Second)
	require.NoError(t, th.Wait(context.Background()))
	assert.Equal(t, []string{"dex:curve"}, lim.keys)
	assert.Equal(t, 2*time.Second, lim.window)
}

// fakePools serves a fixed Curve pool list.
type fakePools struct {
	body    string
	err     error
	started chan struct{} // closed on the first call when set
	release chan struct{} // blocks the call until closed when set
	mu      sync.Mutex
	calls   int
	ctxErr  error
}

func (f *fakePools) GetPools(ctx context.Context, _, _ string) ([]curve.Pool, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first && f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var pools []curve.Pool
	if err := json.Unmarshal([]byte(f.body), &pools); err != nil {
		return nil, err
	}
	return pools, nil
}

const curvePoolsJSON = `[
  {"id":"small","usdTotal":5000,"coins":[
    {"address":"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2","symbol":"WETH","decimals":"18","usdPrice":1,"poolBalance":"1"},
    {"address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","symbol":"DAI","decimals":"18","usdPrice":1,"poolBalance":"1"}]},
  {"id":"tricrypto","usdTotal":3000000,"coins":[
    {"address":"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2","symbol":"WETH","decimals":"18","usdPrice":3000,"poolBalance":"500000000000000000000"},
    {"address":"0x6b175474e89094c44da98b954eedeac495271d0f","symbol":"DAI","decimals":"18","usdPrice":1.0,"poolBalance":"1500000000000000000000000"}]},
  {"id":"ethusdc","usdTotal":2000000,"coins":[
    {"address":"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2","symbol":"WETH","decimals":18,"usdPrice":null,"poolBalance":"400000000000000000000"},
    {"address":"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48","symbol":"USDC","decimals":6,"usdPrice":1,"poolBalance":"1240000000000"}]}
]`

func newCurve(f PoolFetcher) *CurveSource {
	return NewCurveSource(f, CurveOptions{Name: "curve", ChainID: 1, Fee: 0.0004, CacheTTL: time.Minute})
}

func TestCurveQuoteFromUSDPrices(t *testing.T) {
	src := newCurve(&fakePools{body: curvePoolsJSON})
	q, err := src.Quote(context.Background(), wethDAI)
	require.NoError(t, err)
	assert.InDelta(t, 3000.0, q.Price, 1e-9)
	assert.InDelta(t, 3_000_000.0, q.Liquidity, 1e-6)
	assert.Equal(t, 0.0004, q.Fee)
}

func TestCurveQuoteFallsBackToBalances(t *testing.T) {
	src := newCurve(&fakePools{body: curvePoolsJSON})
	q, err := src.Quote(context.Background(), wethUSDC)
	require.NoError(t, err)
	assert.InDelta(t, 3100.0, q.Price, 1e-9)
	assert.InDelta(t, 2_000_000.0, q.Liquidity, 1e-6)
}

func TestCurveUnknownPair(t *testing.T) {
	src := newCurve(&fakePools{body: curvePoolsJSON})
	_, err := src.Quote(context.Background(), domain.TokenPair{Base: usdc, Quote: dai})
	assert.ErrorIs(t, err, domain.ErrInvalidPair)
}

func TestCurveCachesPools(t *testing.T) {
	f := &fakePools{body: curvePoolsJSON}
	src := newCurve(f)
	now := time.Now()
	src.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := src.Quote(context.Background(), wethDAI)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.calls)

	now = now.Add(2 * time.Minute)
	_, err := src.Quote(context.Background(), wethDAI)
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestCurveFetchFailure(t *testing.T) {
	src := newCurve(&fakePools{err: fmt.Errorf("curve: get pools: %w", domain.ErrRateLimited)})
	_, err := src.Quote(context.Background(), wethDAI)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Error(t, src.Health(context.Background()))
}

func TestCurveSharedFetchSurvivesCallerCancel(t *testing.T) {
	f := &fakePools{body: curvePoolsJSON, started: make(chan struct{}), release: make(chan struct{})}
	src := newCurve(f)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := src.Quote(firstCtx, wethDAI)
		firstErr <- err
	}()
	<-f.started

	second := make(chan error, 1)
	go func() {
		_, err := src.Quote(context.Background(), wethUSDC)
		second <- err
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(f.release)
	require.NoError(t, <-second)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.NoError(t, f.ctxErr, "the shared fetch keeps running after its first caller leaves")
	assert.Equal(t, 1, f.calls)
}

// fakeGraph decodes a canned response into the query target.
type fakeGraph struct {
	data     string
	err      error
	lastVars map[string]any
}

func (f *fakeGraph) Query(_ context.Context, _ string, vars map[string]any, out any) error {
	f.lastVars = vars
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.data), out)
}

func (f *fakeGraph) LatestBlock(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 19_000_000, nil
}

func newBalancer(g GraphQuerier) *BalancerSource {
	return NewBalancerSource(g, BalancerOptions{Name: "balancer", ChainID: 1, Fee: 0.003})
}

func TestBalancerWeightedPool(t *testing.T) {
	g := &fakeGraph{data: `{"pools":[
		{"id":"0x01","poolType":"Weighted","swapFee":"0.0025","totalLiquidity":"1000000","tokens":[
			{"address":"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2","symbol":"WETH","decimals":18,"balance":"80","weight":"0.8"},
			{"address":"0x6b175474e89094c44da98b954eedeac495271d0f","symbol":"DAI","decimals":18,"balance":"60000","weight":"0.2"}]}
	]}`}
	q, err := newBalancer(g).Quote(context.Background(), wethDAI)
	require.NoError(t, err)
	// (60000/0.2) / (80/0.8) = 300000 / 100
	assert.InDelta(t, 3000.0, q.Price, 1e-9)
	assert.InDelta(t, 120_000.0, q.Liquidity, 1e-9)
	assert.InDelta(t, 0.0025, q.Fee, 1e-12)

	tokens := g.lastVars["tokens"].([]string)
	assert.Equal(t, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", tokens[0])
}

func TestBalancerStablePoolUsesBalanceRatio(t *testing.T) {
	g := &fakeGraph{data: `{"pools":[
		{"id":"0x02","poolType":"Stable","swapFee":"","totalLiquidity":"500000","tokens":[
			{"address":"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48","symbol":"USDC","decimals":6,"balance":"250000","weight":null},
			{"address":"0x6B175474E89094C44Da98b954EedeAC495271d0F","symbol":"DAI","decimals":18,"balance":"250500","weight":null}]}
	]}`}
	q, err := newBalancer(g).Quote(context.Background(), domain.TokenPair{Base: usdc, Quote: dai})
	require.NoError(t, err)
	assert.InDelta(t, 1.002, q.Price, 1e-9)
	assert.Equal(t, 0.003, q.Fee)
}

func TestBalancerErrors(t *testing.T) {
	_, err := newBalancer(&fakeGraph{data: `{"pools":[]}`}).Quote(context.Background(), wethDAI)
	assert.ErrorIs(t, err, domain.ErrInvalidPair)

	_, err = newBalancer(&fakeGraph{data: `{"pools":[{"tokens":[
		{"address":"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2","balance":"abc"},
		{"address":"0x6b175474e89094c44da98b954eedeac495271d0f","balance":"1"}]}]}`}).Quote(context.Background(), wethDAI)
	assert.ErrorIs(t, err, domain.ErrParse)

	_, err = newBalancer(&fakeGraph{err: fmt.Errorf("subgraph: %w", domain.ErrNetwork)}).Quote(context.Background(), wethDAI)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

type stubSource struct {
	name      string
	healthErr error
}

func (s stubSource) Name() string    { return s.name }
func (s stubSource) ChainID() uint64 { return 1 }
func (s stubSource) Fee() float64    { return 0 }
func (s stubSource) Quote(context.Context, domain.TokenPair) (domain.Quote, error) {
	return domain.Quote{}, nil
}
func (s stubSource) Health(context.Context) error { return s.healthErr }

func TestFilterHealthy(t *testing.T) {
	sources := []Source{
		stubSource{name: "sushiswap"},
		stubSource{name: "balancer", healthErr: errors.New("down")},
		stubSource{name: "curve"},
	}
	healthy := FilterHealthy(context.Background(), sources, time.Second, discard())
	assert.Equal(t, []string{"curve", "sushiswap"}, Names(healthy))
}
