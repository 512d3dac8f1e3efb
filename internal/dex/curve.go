package dex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/platform/curve"
)

// minCurvePoolUSD skips dust pools whose prices are unreliable.
const minCurvePoolUSD = 10_000

// defaultPoolFetchTimeout bounds a shared pool list fetch when no timeout is
// configured.
const defaultPoolFetchTimeout = 30 * time.Second

// PoolFetcher loads Curve pool snapshots.
type PoolFetcher interface {
	GetPools(ctx context.Context, network, registry string) ([]curve.Pool, error)
}

// CurveOptions configures the Curve venue.
type CurveOptions struct {
	Name     string
	ChainID  uint64
	Network  string
	Fee      float64
	CacheTTL time.Duration
	// FetchTimeout bounds the shared pool list fetch independently of the
	// callers waiting on it.
	FetchTimeout time.Duration
	Throttle     Throttle
}

// CurveSource quotes pairs from the deepest Curve pool holding both tokens.
// The pool list is shared by every pair and refreshed at most once per TTL.
type CurveSource struct {
	opts     CurveOptions
	fetcher  PoolFetcher
	throttle Throttle
	now      func() time.Time
	group    singleflight.Group

	mu        sync.RWMutex
	pools     []curve.Pool
	fetchedAt time.Time
}

// NewCurveSource creates the Curve adapter.
func NewCurveSource(fetcher PoolFetcher, opts CurveOptions) *CurveSource {
	throttle := opts.Throttle
	if throttle == nil {
		throttle = NewLocalThrottle(0)
	}
	if opts.Network == "" {
		opts.Network = "ethereum"
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultPoolFetchTimeout
	}
	return &CurveSource{
		opts:     opts,
		fetcher:  fetcher,
		throttle: throttle,
		now:      time.Now,
	}
}

func (s *CurveSource) Name() string    { return s.opts.Name }
func (s *CurveSource) ChainID() uint64 { return s.opts.ChainID }
func (s *CurveSource) Fee() float64    { return s.opts.Fee }

// Quote prices pair from USD coin prices when both are known, falling back to
// the decimal-adjusted balance ratio.
func (s *CurveSource) Quote(ctx context.Context, pair domain.TokenPair) (domain.Quote, error) {
	pools, err := s.loadPools(ctx)
	if err != nil {
		return domain.Quote{}, quoteErr(s.opts.Name, pair, err)
	}

	pool, bi, qi, ok := deepestPool(pools, pair)
	if !ok {
		return domain.Quote{}, domain.NewQuoteError(s.opts.Name, pair, domain.ErrInvalidPair, errors.New("no pool holds both tokens"))
	}
	base, quote := pool.Coins[bi], pool.Coins[qi]

	price, err := curvePrice(base, quote)
	if err != nil {
		return domain.Quote{}, quoteErr(s.opts.Name, pair, err)
	}

	liquidity := pool.USDTotal
	if quote.USDPrice != nil && *quote.USDPrice > 0 {
		liquidity = pool.USDTotal / *quote.USDPrice
	}

	return domain.Quote{
		Venue:      s.opts.Name,
		Pair:       pair,
		Price:      price,
		Liquidity:  liquidity,
		Fee:        s.opts.Fee,
		ObservedAt: s.now(),
	}, nil
}

// Health loads the pool list.
func (s *CurveSource) Health(ctx context.Context) error {
	pools, err := s.loadPools(ctx)
	if err != nil {
		return fmt.Errorf("dex: %s health: %w", s.opts.Name, err)
	}
	if len(pools) == 0 {
		return fmt.Errorf("dex: %s health: %w: empty pool list", s.opts.Name, domain.ErrDataUnavailable)
	}
	return nil
}

// loadPools returns the cached pool list, collapsing concurrent refreshes into
// one request.
func (s *CurveSource) loadPools(ctx context.Context) ([]curve.Pool, error) {
	s.mu.RLock()
	pools, fetchedAt := s.pools, s.fetchedAt
	s.mu.RUnlock()
	if pools != nil && s.now().Sub(fetchedAt) < s.opts.CacheTTL {
		return pools, nil
	}

	// The flight outlives any single caller, so it runs on a detached context
	// and each caller stops waiting when its own context ends.
	ch := s.group.DoChan("pools", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FetchTimeout)
		defer cancel()
		if err := s.throttle.Wait(fctx); err != nil {
			return nil, err
		}
		fresh, err := s.fetcher.GetPools(fctx, s.opts.Network, "main")
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.pools = fresh
		s.fetchedAt = s.now()
		s.mu.Unlock()
		return fresh, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]curve.Pool), nil
	}
}

// deepestPool finds the pool with the largest USD total that holds both
// tokens of pair. It returns the coin indices of base and quote.
func deepestPool(pools []curve.Pool, pair domain.TokenPair) (curve.Pool, int, int, bool) {
	var (
		best      curve.Pool
		bestBase  int
		bestQuote int
		found     bool
	)
	for _, p := range pools {
		if p.USDTotal < minCurvePoolUSD {
			continue
		}
		bi, qi := -1, -1
		for i, c := range p.Coins {
			switch {
			case strings.EqualFold(c.Address, pair.Base.Address):
				bi = i
			case strings.EqualFold(c.Address, pair.Quote.Address):
				qi = i
			}
		}
		if bi < 0 || qi < 0 {
			continue
		}
		if !found || p.USDTotal > best.USDTotal {
			best, bestBase, bestQuote, found = p, bi, qi, true
		}
	}
	return best, bestBase, bestQuote, found
}

func curvePrice(base, quote curve.Coin) (float64, error) {
	if base.USDPrice != nil && quote.USDPrice != nil && *base.USDPrice > 0 && *quote.USDPrice > 0 {
		return *base.USDPrice / *quote.USDPrice, nil
	}

	baseBal, err := decimal.NewFromString(base.PoolBalance)
	if err != nil {
		return 0, fmt.Errorf("%w: pool balance %q: %v", domain.ErrParse, base.PoolBalance, err)
	}
	quoteBal, err := decimal.NewFromString(quote.PoolBalance)
	if err != nil {
		return 0, fmt.Errorf("%w: pool balance %q: %v", domain.ErrParse, quote.PoolBalance, err)
	}
	baseBal = baseBal.Shift(-int32(base.Decimals))
	quoteBal = quoteBal.Shift(-int32(quote.Decimals))
	if baseBal.Sign() <= 0 || quoteBal.Sign() <= 0 {
		return 0, fmt.Errorf("%w: empty pool balance", domain.ErrInvalidPair)
	}
	return quoteBal.Div(baseBal).InexactFloat64(), nil
}
