package arbitrage

import "math"

// Confidence weights.
const (
	profitWeight    = 40
	liquidityWeight = 30
	stabilityWeight = 30
)

// Scoring holds the saturation points of the confidence normalizations.
type Scoring struct {
	// ProfitReference is the profit percentage that earns the full profit
	// component.
	ProfitReference float64
	// LiquidityReference is the depth that earns the full liquidity component.
	LiquidityReference float64
	// StabilityReference is the coefficient of variation at which the
	// stability component reaches zero.
	StabilityReference float64
}

// DefaultScoring returns the reference points used when none are configured.
func DefaultScoring() Scoring {
	return Scoring{ProfitReference: 4, LiquidityReference: 100_000, StabilityReference: 0.05}
}

// Confidence combines the normalized components into a score in [0, 100].
func (s Scoring) Confidence(profitPct, liquidity, stability float64) float64 {
	score := profitWeight*s.profitFactor(profitPct) +
		liquidityWeight*s.liquidityFactor(liquidity) +
		stabilityWeight*clamp01(stability)
	return clamp(score, 0, 100)
}

// profitFactor saturates linearly at ProfitReference.
func (s Scoring) profitFactor(profitPct float64) float64 {
	if s.ProfitReference <= 0 {
		return 0
	}
	return clamp01(profitPct / s.ProfitReference)
}

// liquidityFactor grows logarithmically and saturates at LiquidityReference.
func (s Scoring) liquidityFactor(liquidity float64) float64 {
	if liquidity <= 0 || s.LiquidityReference <= 0 {
		return 0
	}
	return clamp01(math.Log10(1+liquidity) / math.Log10(1+s.LiquidityReference))
}

// Stability scores how well the venues agree on a price: 1 for identical
// prices, falling linearly to 0 at StabilityReference. With two or fewer
// quotes there is no third opinion and the score is the neutral 0.5.
func (s Scoring) Stability(prices []float64) float64 {
	if len(prices) <= 2 || s.StabilityReference <= 0 {
		return 0.5
	}
	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))
	if mean <= 0 {
		return 0
	}
	var ss float64
	for _, p := range prices {
		ss += (p - mean) * (p - mean)
	}
	cv := math.Sqrt(ss/float64(len(prices))) / mean
	return 1 - clamp01(cv/s.StabilityReference)
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
