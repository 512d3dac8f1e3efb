package arbitrage

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// Edge is a directed swap from one token to another on a single venue.
type Edge struct {
	From      domain.Asset
	To        domain.Asset
	Venue     string
	Rate      float64
	Fee       float64
	Slippage  float64
	Liquidity float64
}

// Graph is a directed multigraph of swaps. Tokens are keyed by upper-cased
// symbol so that venues quoting the same token at different addresses join
// the same node.
type Graph struct {
	edges  map[string][]Edge
	tokens map[string]domain.Asset
	count  int
}

// BuildGraph adds a forward edge at the quoted price and a reverse edge at
// its inverse for every quote with a positive price and liquidity.
func BuildGraph(quotes map[domain.TokenPair][]domain.Quote) *Graph {
	g := &Graph{
		edges:  make(map[string][]Edge),
		tokens: make(map[string]domain.Asset),
	}
	for pair, qs := range quotes {
		for _, q := range qs {
			if !usable(q) || q.Liquidity <= 0 {
				continue
			}
			slip := EstimateSlippage(q.Liquidity)
			g.add(Edge{From: pair.Base, To: pair.Quote, Venue: q.Venue, Rate: q.Price, Fee: q.Fee, Slippage: slip, Liquidity: q.Liquidity})
			g.add(Edge{From: pair.Quote, To: pair.Base, Venue: q.Venue, Rate: 1 / q.Price, Fee: q.Fee, Slippage: slip, Liquidity: q.Liquidity})
		}
	}
	for _, es := range g.edges {
		sort.Slice(es, func(i, j int) bool {
			if ki, kj := nodeKey(es[i].To), nodeKey(es[j].To); ki != kj {
				return ki < kj
			}
			return es[i].Venue < es[j].Venue
		})
	}
	return g
}

func (g *Graph) add(e Edge) {
	for _, a := range []domain.Asset{e.From, e.To} {
		if _, ok := g.tokens[nodeKey(a)]; !ok {
			g.tokens[nodeKey(a)] = a
		}
	}
	from := nodeKey(e.From)
	g.edges[from] = append(g.edges[from], e)
	g.count++
}

// EdgesFrom returns the outgoing edges of the token with the given symbol,
// ordered by destination then venue.
func (g *Graph) EdgesFrom(symbol string) []Edge {
	return g.edges[strings.ToUpper(symbol)]
}

// HasDirectPath reports whether any venue swaps from into to.
func (g *Graph) HasDirectPath(from, to string) bool {
	for _, e := range g.EdgesFrom(from) {
		if strings.EqualFold(e.To.Symbol, to) {
			return true
		}
	}
	return false
}

// Tokens returns the graph's tokens ordered by symbol.
func (g *Graph) Tokens() []domain.Asset {
	keys := make([]string, 0, len(g.tokens))
	for k := range g.tokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.Asset, len(keys))
	for i, k := range keys {
		out[i] = g.tokens[k]
	}
	return out
}

// Size returns the number of tokens and edges.
func (g *Graph) Size() (tokens, edges int) {
	return len(g.tokens), g.count
}

// EstimateSlippage maps pool depth onto a slippage fraction in coarse tiers.
func EstimateSlippage(liquidity float64) float64 {
	switch {
	case liquidity > 10_000_000:
		return 0.0005
	case liquidity > 1_000_000:
		return 0.001
	case liquidity > 100_000:
		return 0.005
	case liquidity > 10_000:
		return 0.01
	default:
		return 0.03
	}
}

func nodeKey(a domain.Asset) string {
	return strings.ToUpper(a.Symbol)
}
