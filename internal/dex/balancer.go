package dex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// GraphQuerier runs queries against a subgraph.
type GraphQuerier interface {
	Query(ctx context.Context, query string, variables map[string]any, out any) error
	LatestBlock(ctx context.Context) (int64, error)
}

// BalancerOptions configures the Balancer V2 venue.
type BalancerOptions struct {
	Name     string
	ChainID  uint64
	Fee      float64
	Throttle Throttle
}

// BalancerSource quotes pairs from the most liquid Balancer V2 pool holding
// both tokens, as indexed by the Balancer subgraph.
type BalancerSource struct {
	opts     BalancerOptions
	graph    GraphQuerier
	throttle Throttle
	now      func() time.Time
}

// NewBalancerSource creates the Balancer adapter.
func NewBalancerSource(graph GraphQuerier, opts BalancerOptions) *BalancerSource {
	throttle := opts.Throttle
	if throttle == nil {
		throttle = NewLocalThrottle(0)
	}
	return &BalancerSource{opts: opts, graph: graph, throttle: throttle, now: time.Now}
}

func (s *BalancerSource) Name() string    { return s.opts.Name }
func (s *BalancerSource) ChainID() uint64 { return s.opts.ChainID }
func (s *BalancerSource) Fee() float64    { return s.opts.Fee }

const balancerPoolsQuery = `
	query Pools($tokens: [Bytes!]!, $first: Int!) {
		pools(
			first: $first
			orderBy: totalLiquidity
			orderDirection: desc
			where: { tokensList_contains: $tokens, totalShares_gt: "0" }
		) {
			id
			poolType
			swapFee
			totalLiquidity
			tokens {
				address
				symbol
				decimals
				balance
				weight
			}
		}
	}
`

type balancerPool struct {
	ID             string          `json:"id"`
	PoolType       string          `json:"poolType"`
	SwapFee        string          `json:"swapFee"`
	TotalLiquidity string          `json:"totalLiquidity"`
	Tokens         []balancerToken `json:"tokens"`
}

// balancerToken balances are already decimal-adjusted by the subgraph.
type balancerToken struct {
	Address  string  `json:"address"`
	Symbol   string  `json:"symbol"`
	Decimals int     `json:"decimals"`
	Balance  string  `json:"balance"`
	Weight   *string `json:"weight"`
}

// Quote prices pair from the deepest pool. Weighted pools use the spot price
// (balQ/wQ)/(balB/wB); other pools use the balance ratio.
func (s *BalancerSource) Quote(ctx context.Context, pair domain.TokenPair) (domain.Quote, error) {
	if err := s.throttle.Wait(ctx); err != nil {
		return domain.Quote{}, quoteErr(s.opts.Name, pair, err)
	}

	vars := map[string]any{
		"tokens": []string{strings.ToLower(pair.Base.Address), strings.ToLower(pair.Quote.Address)},
		"first":  5,
	}
	var result struct {
		Pools []balancerPool `json:"pools"`
	}
	if err := s.graph.Query(ctx, balancerPoolsQuery, vars, &result); err != nil {
		return domain.Quote{}, quoteErr(s.opts.Name, pair, err)
	}

	for _, p := range result.Pools {
		q, ok, err := s.quoteFromPool(p, pair)
		if err != nil {
			return domain.Quote{}, quoteErr(s.opts.Name, pair, err)
		}
		if ok {
			return q, nil
		}
	}
	return domain.Quote{}, domain.NewQuoteError(s.opts.Name, pair, domain.ErrInvalidPair, errors.New("no pool holds both tokens"))
}

// Health checks that the subgraph is serving blocks.
func (s *BalancerSource) Health(ctx context.Context) error {
	if _, err := s.graph.LatestBlock(ctx); err != nil {
		return fmt.Errorf("dex: %s health: %w", s.opts.Name, err)
	}
	return nil
}

func (s *BalancerSource) quoteFromPool(p balancerPool, pair domain.TokenPair) (domain.Quote, bool, error) {
	var base, quote *balancerToken
	for i := range p.Tokens {
		t := &p.Tokens[i]
		switch {
		case strings.EqualFold(t.Address, pair.Base.Address):
			base = t
		case strings.EqualFold(t.Address, pair.Quote.Address):
			quote = t
		}
	}
	if base == nil || quote == nil {
		return domain.Quote{}, false, nil
	}

	balB, err := decimal.NewFromString(base.Balance)
	if err != nil {
		return domain.Quote{}, false, fmt.Errorf("%w: balance %q: %v", domain.ErrParse, base.Balance, err)
	}
	balQ, err := decimal.NewFromString(quote.Balance)
	if err != nil {
		return domain.Quote{}, false, fmt.Errorf("%w: balance %q: %v", domain.ErrParse, quote.Balance, err)
	}
	if balB.Sign() <= 0 || balQ.Sign() <= 0 {
		return domain.Quote{}, false, nil
	}

	price := balQ.Div(balB)
	if wB, wQ, ok := weights(base, quote); ok {
		price = balQ.Div(wQ).Div(balB.Div(wB))
	}

	fee := s.opts.Fee
	if f, err := decimal.NewFromString(p.SwapFee); err == nil && f.Sign() > 0 {
		fee = f.InexactFloat64()
	}

	return domain.Quote{
		Venue:      s.opts.Name,
		Pair:       pair,
		Price:      price.InexactFloat64(),
		Liquidity:  balQ.Mul(decimal.NewFromInt(2)).InexactFloat64(),
		Fee:        fee,
		ObservedAt: s.now(),
	}, true, nil
}

func weights(base, quote *balancerToken) (decimal.Decimal, decimal.Decimal, bool) {
	if base.Weight == nil || quote.Weight == nil {
		return decimal.Zero, decimal.Zero, false
	}
	wB, errB := decimal.NewFromString(*base.Weight)
	wQ, errQ := decimal.NewFromString(*quote.Weight)
	if errB != nil || errQ != nil || wB.Sign() <= 0 || wQ.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, false
	}
	return wB, wQ, true
}
