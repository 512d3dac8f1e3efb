package domain

import (
	"strings"
	"time"
)

// Pool is the latest observed state of one venue's market for a pair.
type Pool struct {
	Venue     string    `json:"venue"`
	Pair      TokenPair `json:"pair"`
	Price     float64   `json:"price"`
	Liquidity float64   `json:"liquidity"`
	Fee       float64   `json:"fee"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PoolFromQuote converts a quote into the pool state it observed.
func PoolFromQuote(q Quote) Pool {
	return Pool{
		Venue:     q.Venue,
		Pair:      q.Pair,
		Price:     q.Price,
		Liquidity: q.Liquidity,
		Fee:       q.Fee,
		UpdatedAt: q.ObservedAt,
	}
}

// Key identifies the pool as "venue|BASE/QUOTE".
func (p Pool) Key() string {
	return p.Venue + "|" + p.Pair.Key()
}

// PoolFilter selects pools. Zero fields match everything.
type PoolFilter struct {
	Venue string
	// Token matches either side of the pair by symbol or address, ignoring case.
	Token        string
	MinLiquidity float64
	Limit        int
}

// Match reports whether p passes every set criterion except Limit.
func (f PoolFilter) Match(p Pool) bool {
	if f.Venue != "" && !strings.EqualFold(f.Venue, p.Venue) {
		return false
	}
	if f.Token != "" && !p.Pair.Base.matches(f.Token) && !p.Pair.Quote.matches(f.Token) {
		return false
	}
	return p.Liquidity >= f.MinLiquidity
}

func (a Asset) matches(token string) bool {
	return strings.EqualFold(a.Symbol, token) || strings.EqualFold(a.Address, token)
}

// PoolStats summarizes the stored pools.
type PoolStats struct {
	Count        int     `json:"count"`
	Venues       int     `json:"venues"`
	AvgLiquidity float64 `json:"avg_liquidity"`
	MaxLiquidity float64 `json:"max_liquidity"`
}
