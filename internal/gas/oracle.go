// Package gas reports the network gas price used for opportunity cost
// estimates.
package gas

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"
)

// PriceSuggester is the subset of ethclient.Client the oracle needs.
type PriceSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Oracle queries the node for the suggested gas price and caps it at a
// configured ceiling. When the node cannot be reached the ceiling is used so
// estimates stay conservative.
type Oracle struct {
	client  PriceSuggester
	maxGwei float64
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	last float64
}

// NewOracle creates an Oracle. client may be nil, in which case the ceiling is
// always reported.
func NewOracle(client PriceSuggester, maxGwei float64, timeout time.Duration, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Oracle{
		client:  client,
		maxGwei: maxGwei,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "gas_oracle")),
	}
}

// GasPriceGwei returns the current gas price in gwei, never above the ceiling.
func (o *Oracle) GasPriceGwei(ctx context.Context) float64 {
	if o.client == nil {
		return o.maxGwei
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	wei, err := o.client.SuggestGasPrice(callCtx)
	if err != nil || wei == nil {
		attrs := []any{slog.Float64("fallback_gwei", o.maxGwei)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		o.logger.WarnContext(ctx, "gas price unavailable, using ceiling", attrs...)
		return o.maxGwei
	}

	gwei := weiToGwei(wei)
	if o.maxGwei > 0 && gwei > o.maxGwei {
		o.logger.WarnContext(ctx, "gas price above ceiling",
			slog.Float64("gas_gwei", gwei),
			slog.Float64("max_gwei", o.maxGwei),
		)
		gwei = o.maxGwei
	}

	o.mu.Lock()
	o.last = gwei
	o.mu.Unlock()
	return gwei
}

// Last returns the most recent successfully observed price, or zero.
func (o *Oracle) Last() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func weiToGwei(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return f
}
