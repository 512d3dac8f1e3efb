package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// ChainClient is the subset of ethclient.Client used by the on-chain adapters.
type ChainClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

const factoryABI = `[{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"stateMutability":"view","type":"function"}]`

const pairABI = `[
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"}
]`

var (
	factoryABIParsed = mustParseABI(factoryABI)
	pairABIParsed    = mustParseABI(pairABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("dex: parse abi: %v", err))
	}
	return parsed
}

// V2Options configures a constant-product (Uniswap V2 style) venue.
type V2Options struct {
	Name    string
	ChainID uint64
	Factory string
	Fee     float64
	// Overrides remaps a configured symbol to the chain-local token when the
	// venue runs on a chain where the asset lives at another address.
	Overrides map[string]domain.Asset
	Throttle  Throttle
}

// V2Source quotes Uniswap V2 forks directly from pair reserves.
type V2Source struct {
	opts     V2Options
	client   ChainClient
	factory  common.Address
	throttle Throttle
	now      func() time.Time

	mu    sync.RWMutex
	pairs map[string]pairInfo
}

type pairInfo struct {
	address common.Address
	token0  common.Address
}

// NewV2Source creates a V2 venue adapter.
func NewV2Source(client ChainClient, opts V2Options) *V2Source {
	throttle := opts.Throttle
	if throttle == nil {
		throttle = NewLocalThrottle(0)
	}
	overrides := make(map[string]domain.Asset, len(opts.Overrides))
	for sym, a := range opts.Overrides {
		overrides[strings.ToUpper(sym)] = a
	}
	opts.Overrides = overrides
	return &V2Source{
		opts:     opts,
		client:   client,
		factory:  common.HexToAddress(opts.Factory),
		throttle: throttle,
		now:      time.Now,
		pairs:    make(map[string]pairInfo),
	}
}

func (s *V2Source) Name() string    { return s.opts.Name }
func (s *V2Source) ChainID() uint64 { return s.opts.ChainID }
func (s *V2Source) Fee() float64    { return s.opts.Fee }

// Quote reads the pair reserves and returns quote-per-base. Liquidity is the
// pool depth in quote units, i.e. twice the quote reserve.
func (s *V2Source) Quote(ctx context.Context, pair domain.TokenPair) (domain.Quote, error) {
	base := s.resolve(pair.Base)
	quote := s.resolve(pair.Quote)
	if strings.EqualFold(base.Address, quote.Address) {
		return domain.Quote{}, domain.NewQuoteError(s.opts.Name, pair, domain.ErrInvalidPair, errors.New("identical tokens"))
	}

	if err := s.throttle.Wait(ctx); err != nil {
		return domain.Quote{}, quoteErr(s.opts.Name, pair, err)
	}

	info, err := s.pairInfo(ctx, base, quote)
	if err != nil {
		return domain.Quote{}, quoteErr(s.opts.Name, pair, err)
	}

	r0, r1, err := s.reserves(ctx, info.address)
	if err != nil {
		return domain.Quote{}, quoteErr(s.opts.Name, pair, err)
	}

	baseRaw, quoteRaw := r0, r1
	if info.token0 != common.HexToAddress(base.Address) {
		baseRaw, quoteRaw = r1, r0
	}
	if baseRaw.Sign() == 0 || quoteRaw.Sign() == 0 {
		return domain.Quote{}, domain.NewQuoteError(s.opts.Name, pair, domain.ErrInvalidPair, errors.New("empty reserves"))
	}

	baseReserve := decimal.NewFromBigInt(baseRaw, -int32(base.Decimals))
	quoteReserve := decimal.NewFromBigInt(quoteRaw, -int32(quote.Decimals))

	return domain.Quote{
		Venue:      s.opts.Name,
		Pair:       pair,
		Price:      quoteReserve.Div(baseReserve).InexactFloat64(),
		Liquidity:  quoteReserve.Mul(decimal.NewFromInt(2)).InexactFloat64(),
		Fee:        s.opts.Fee,
		ObservedAt: s.now(),
	}, nil
}

// Health verifies the RPC endpoint is reachable and serves the expected chain.
func (s *V2Source) Health(ctx context.Context) error {
	id, err := s.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("dex: %s health: %w: %v", s.opts.Name, domain.ErrNetwork, err)
	}
	if id.Uint64() != s.opts.ChainID {
		return fmt.Errorf("dex: %s health: %w: rpc serves chain %d, want %d", s.opts.Name, domain.ErrConfig, id.Uint64(), s.opts.ChainID)
	}
	return nil
}

// resolve applies the chain-local override for a configured asset.
func (s *V2Source) resolve(a domain.Asset) domain.Asset {
	if o, ok := s.opts.Overrides[strings.ToUpper(a.Symbol)]; ok {
		return o
	}
	return a
}

// pairInfo returns the cached pair address and token0, querying the factory
// on first use.
func (s *V2Source) pairInfo(ctx context.Context, base, quote domain.Asset) (pairInfo, error) {
	key := strings.ToLower(base.Address) + "|" + strings.ToLower(quote.Address)

	s.mu.RLock()
	info, ok := s.pairs[key]
	s.mu.RUnlock()
	if ok {
		return info, nil
	}

	out, err := s.call(ctx, factoryABIParsed, s.factory, "getPair",
		common.HexToAddress(base.Address), common.HexToAddress(quote.Address))
	if err != nil {
		return pairInfo{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return pairInfo{}, fmt.Errorf("%w: getPair returned %T", domain.ErrParse, out[0])
	}
	if addr == (common.Address{}) {
		return pairInfo{}, fmt.Errorf("%w: no pool for %s/%s", domain.ErrInvalidPair, base.Symbol, quote.Symbol)
	}

	out, err = s.call(ctx, pairABIParsed, addr, "token0")
	if err != nil {
		return pairInfo{}, err
	}
	token0, ok := out[0].(common.Address)
	if !ok {
		return pairInfo{}, fmt.Errorf("%w: token0 returned %T", domain.ErrParse, out[0])
	}

	info = pairInfo{address: addr, token0: token0}
	s.mu.Lock()
	s.pairs[key] = info
	s.mu.Unlock()
	return info, nil
}

func (s *V2Source) reserves(ctx context.Context, pairAddr common.Address) (*big.Int, *big.Int, error) {
	out, err := s.call(ctx, pairABIParsed, pairAddr, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("%w: getReserves returned %T, %T", domain.ErrParse, out[0], out[1])
	}
	return r0, r1, nil
}

// call packs method, performs an eth_call at the latest block and unpacks the
// outputs.
func (s *V2Source) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrNetwork, method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", domain.ErrParse, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned no values", domain.ErrParse, method)
	}
	return out, nil
}
