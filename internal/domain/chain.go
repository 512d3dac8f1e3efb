package domain

import (
	"strings"
	"time"
)

// ChainHop is one swap inside an ArbitrageChain. Rate is To units received
// per From unit before fees and slippage; Fee and Slippage are fractions.
type ChainHop struct {
	Venue     string  `json:"venue"`
	From      Asset   `json:"from"`
	To        Asset   `json:"to"`
	Rate      float64 `json:"rate"`
	Fee       float64 `json:"fee"`
	Slippage  float64 `json:"slippage"`
	Liquidity float64 `json:"liquidity"`
	AmountIn  float64 `json:"amount_in"`
	AmountOut float64 `json:"amount_out"`
}

// ArbitrageChain is a closed sequence of swaps that starts and ends on Start.
// Amounts are in Start units with one unit going in. GrossProfitPercentage
// ignores fees and slippage; NetProfitPercentage includes both.
// FeePercentage sums the per-hop fees. Gas is kept separate, in ETH.
type ArbitrageChain struct {
	ID                     string     `json:"id"`
	Start                  Asset      `json:"start"`
	Hops                   []ChainHop `json:"hops"`
	AmountOut              float64    `json:"amount_out"`
	GrossProfitPercentage  float64    `json:"gross_profit_percentage"`
	NetProfitPercentage    float64    `json:"net_profit_percentage"`
	FeePercentage          float64    `json:"fee_percentage"`
	MinLiquidity           float64    `json:"min_liquidity"`
	RiskScore              float64    `json:"risk_score"`
	GasCostEstimate        float64    `json:"gas_cost_estimate"`
	EstimatedExecutionTime int        `json:"estimated_execution_seconds"`
	DetectedAt             time.Time  `json:"detected_at"`
}

// Route renders the chain as "WETH -uniswap_v2-> USDC -curve-> WETH".
func (c ArbitrageChain) Route() string {
	var b strings.Builder
	b.WriteString(c.Start.Symbol)
	for _, h := range c.Hops {
		b.WriteString(" -")
		b.WriteString(h.Venue)
		b.WriteString("-> ")
		b.WriteString(h.To.Symbol)
	}
	return b.String()
}

// Venues returns the distinct venues used by the chain in hop order.
func (c ArbitrageChain) Venues() []string {
	seen := make(map[string]bool, len(c.Hops))
	var out []string
	for _, h := range c.Hops {
		if !seen[h.Venue] {
			seen[h.Venue] = true
			out = append(out, h.Venue)
		}
	}
	return out
}
