package arbitrage

import "github.com/shopspring/decimal"

// UniswapV2Fee is the constant-product pool fee.
const UniswapV2Fee = 0.003

// AmountOut returns the output of swapping amountIn against reserves of a
// constant-product pool charging fee (a fraction, e.g. 0.003).
func AmountOut(amountIn, reserveIn, reserveOut decimal.Decimal, fee float64) decimal.Decimal {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountIn.Sign() <= 0 {
		return decimal.Zero
	}
	inWithFee := amountIn.Mul(decimal.NewFromFloat(1 - fee))
	return inWithFee.Mul(reserveOut).Div(reserveIn.Add(inWithFee))
}

// AmountIn returns the input needed to receive amountOut. It returns zero when
// amountOut cannot be served by the pool.
func AmountIn(amountOut, reserveIn, reserveOut decimal.Decimal, fee float64) decimal.Decimal {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Sign() <= 0 || amountOut.GreaterThanOrEqual(reserveOut) {
		return decimal.Zero
	}
	return reserveIn.Mul(amountOut).Div(reserveOut.Sub(amountOut).Mul(decimal.NewFromFloat(1 - fee)))
}

// PriceImpact returns the relative move of the pool spot price caused by
// swapping amountIn with the standard 0.3% fee, as a fraction. An empty pool
// has an impact of 1.
func PriceImpact(amountIn, reserveIn, reserveOut decimal.Decimal) float64 {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return 1
	}
	out := AmountOut(amountIn, reserveIn, reserveOut, UniswapV2Fee)
	before := reserveOut.Div(reserveIn)
	after := reserveOut.Sub(out).Div(reserveIn.Add(amountIn))
	return before.Sub(after).Div(before).InexactFloat64()
}

// ExecutionSlippage returns how far the average execution price of a
// fee-free swap of size lies from the spot price, as a fraction. For a
// constant-product pool this is size/(reserveIn+size) and does not depend on
// reserveOut.
func ExecutionSlippage(size, reserveIn float64) float64 {
	if reserveIn <= 0 {
		return 1
	}
	if size <= 0 {
		return 0
	}
	in := decimal.NewFromFloat(size)
	rIn := decimal.NewFromFloat(reserveIn)
	// Any reserveOut gives the same ratio; use reserveIn for a unit spot price.
	out := AmountOut(in, rIn, rIn, 0)
	return decimal.NewFromInt(1).Sub(out.Div(in)).InexactFloat64()
}
