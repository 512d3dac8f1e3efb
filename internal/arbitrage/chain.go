package arbitrage

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// minChainHops is the shortest cycle searched. Two-hop round trips are the
// cross-venue opportunities Detect already reports.
const minChainHops = 3

// minChainAmount stops a walk once the running amount has collapsed.
const minChainAmount = 0.001

// ChainConfig tunes the multi-hop search. Percent-valued fields use percent
// units (1.0 means 1%).
type ChainConfig struct {
	// MaxHops bounds the cycle length; values below three are raised to three.
	MaxHops int
	// MinProfitThreshold applies to the profit after fees and slippage.
	MinProfitThreshold float64
	// MaxSlippage and MinLiquidity filter individual edges.
	MaxSlippage  float64
	MinLiquidity float64
	// MaxRiskScore rejects chains scoring above it, within [0, 1].
	MaxRiskScore float64
	MaxChains    int
	// GasUnitsPerHop is the gas budget of a single swap.
	GasUnitsPerHop uint64
}

// DefaultChainConfig returns the thresholds used when none are configured.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		MaxHops:            3,
		MinProfitThreshold: 0.5,
		MaxSlippage:        0.5,
		MinLiquidity:       10_000,
		MaxRiskScore:       0.8,
		MaxChains:          10,
		GasUnitsPerHop:     150_000,
	}
}

// ChainFinder searches the exchange graph for profitable closed cycles of
// three or more swaps.
type ChainFinder struct {
	cfg    ChainConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewChainFinder creates a ChainFinder.
func NewChainFinder(cfg ChainConfig, logger *slog.Logger) *ChainFinder {
	if cfg.MaxHops < minChainHops {
		cfg.MaxHops = minChainHops
	}
	if cfg.MaxChains <= 0 {
		cfg.MaxChains = DefaultChainConfig().MaxChains
	}
	return &ChainFinder{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "chain_finder")),
		now:    time.Now,
	}
}

// FindChains builds the exchange graph from the grouped quotes and searches
// it. The result is sorted by net profit desc, risk asc, then route.
func (f *ChainFinder) FindChains(quotes map[domain.TokenPair][]domain.Quote, gasPriceGwei float64) []domain.ArbitrageChain {
	return f.Find(BuildGraph(quotes), gasPriceGwei)
}

// Find searches g from every token. Each cycle is reported once, starting at
// its lowest-keyed token.
func (f *ChainFinder) Find(g *Graph, gasPriceGwei float64) []domain.ArbitrageChain {
	now := f.now()
	hopGas := float64(f.cfg.GasUnitsPerHop) * gasPriceGwei * 1e-9

	var chains []domain.ArbitrageChain
	for _, start := range g.Tokens() {
		w := &walk{
			finder:  f,
			graph:   g,
			start:   start,
			visited: map[string]bool{nodeKey(start): true},
		}
		w.step(nodeKey(start), 1)
		chains = append(chains, w.found...)
	}

	SortChains(chains)
	if len(chains) > f.cfg.MaxChains {
		chains = chains[:f.cfg.MaxChains]
	}
	for i := range chains {
		chains[i].ID = uuid.NewString()
		chains[i].GasCostEstimate = float64(len(chains[i].Hops)) * hopGas
		chains[i].DetectedAt = now
	}

	tokens, edges := g.Size()
	f.logger.Debug("chain search complete",
		slog.Int("tokens", tokens),
		slog.Int("edges", edges),
		slog.Int("chains", len(chains)),
	)
	return chains
}

// walk is the depth-first state of one start token.
type walk struct {
	finder  *ChainFinder
	graph   *Graph
	start   domain.Asset
	visited map[string]bool
	path    []domain.ChainHop
	found   []domain.ArbitrageChain
}

func (w *walk) step(node string, amount float64) {
	if amount < minChainAmount {
		return
	}
	cfg := w.finder.cfg
	startKey := nodeKey(w.start)
	depth := len(w.path) + 1

	for _, e := range w.graph.EdgesFrom(node) {
		if e.Slippage*100 > cfg.MaxSlippage || e.Liquidity < cfg.MinLiquidity {
			continue
		}
		to := nodeKey(e.To)
		out := amount * (1 - e.Fee) * e.Rate * (1 - e.Slippage)
		hop := domain.ChainHop{
			Venue: e.Venue, From: e.From, To: e.To,
			Rate: e.Rate, Fee: e.Fee, Slippage: e.Slippage, Liquidity: e.Liquidity,
			AmountIn: amount, AmountOut: out,
		}

		if to == startKey {
			if depth < minChainHops {
				continue
			}
			chain := w.finder.build(w.start, append(append([]domain.ChainHop(nil), w.path...), hop))
			if chain.NetProfitPercentage >= cfg.MinProfitThreshold && chain.RiskScore <= cfg.MaxRiskScore {
				w.found = append(w.found, chain)
			}
			continue
		}
		// Rotations of a cycle are only walked from its lowest token.
		if w.visited[to] || to < startKey || depth >= cfg.MaxHops {
			continue
		}

		w.visited[to] = true
		w.path = append(w.path, hop)
		w.step(to, out)
		w.path = w.path[:len(w.path)-1]
		delete(w.visited, to)
	}
}

func (f *ChainFinder) build(start domain.Asset, hops []domain.ChainHop) domain.ArbitrageChain {
	gross := 1.0
	var fees float64
	minLiq := hops[0].Liquidity
	for _, h := range hops {
		gross *= h.Rate
		fees += h.Fee * 100
		minLiq = min(minLiq, h.Liquidity)
	}
	out := hops[len(hops)-1].AmountOut
	return domain.ArbitrageChain{
		Start:                  start,
		Hops:                   hops,
		AmountOut:              out,
		GrossProfitPercentage:  (gross - 1) * 100,
		NetProfitPercentage:    (out - 1) * 100,
		FeePercentage:          fees,
		MinLiquidity:           minLiq,
		RiskScore:              ChainRisk(hops),
		EstimatedExecutionTime: ExecutionSeconds(hops),
	}
}

// ChainRisk scores a path within [0, 1]. Every hop adds 0.1, thin liquidity
// adds up to 0.3, slippage adds five times its sum and reusing a venue adds
// 0.2.
func ChainRisk(hops []domain.ChainHop) float64 {
	if len(hops) == 0 {
		return 0
	}
	risk := float64(len(hops)) * 0.1

	minLiq := hops[0].Liquidity
	var slip float64
	venues := make(map[string]bool, len(hops))
	for _, h := range hops {
		minLiq = min(minLiq, h.Liquidity)
		slip += h.Slippage
		venues[h.Venue] = true
	}
	switch {
	case minLiq < 100_000:
		risk += 0.3
	case minLiq < 1_000_000:
		risk += 0.1
	}
	risk += slip * 5
	if len(venues) < len(hops) {
		risk += 0.2
	}
	return min(risk, 1)
}

// ExecutionSeconds estimates how long submitting every hop takes: 15s per hop
// plus a venue-dependent confirmation allowance.
func ExecutionSeconds(hops []domain.ChainHop) int {
	total := 0
	for _, h := range hops {
		total += 15
		v := strings.ToLower(h.Venue)
		switch {
		case strings.Contains(v, "uniswap"):
			total += 10
		case strings.Contains(v, "curve"):
			total += 20
		case strings.Contains(v, "balancer"):
			total += 25
		default:
			total += 15
		}
	}
	return total
}

// SortChains orders by net profit desc, risk asc, then route.
func SortChains(chains []domain.ArbitrageChain) {
	sort.SliceStable(chains, func(i, j int) bool {
		a, b := chains[i], chains[j]
		if a.NetProfitPercentage != b.NetProfitPercentage {
			return a.NetProfitPercentage > b.NetProfitPercentage
		}
		if a.RiskScore != b.RiskScore {
			return a.RiskScore < b.RiskScore
		}
		return a.Route() < b.Route()
	})
}
