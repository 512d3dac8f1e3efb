// Package arbitrage finds cross-venue price discrepancies in a set of quotes
// and scores them by confidence.
package arbitrage

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// Config holds the detection thresholds. Percent-valued fields use percent
// units (1.0 means 1%).
type Config struct {
	MinProfitThreshold float64
	MaxSlippage        float64
	MinLiquidity       float64
	// TradeSizeUSD is the notional used to estimate slippage.
	TradeSizeUSD float64
	// GasUnits is the gas budget of one arbitrage round trip.
	GasUnits uint64
	Scoring  Scoring
}

// PriceLookup resolves the USD price of a token by contract address.
type PriceLookup interface {
	USDPrice(address string) (float64, bool)
}

// Detector turns grouped quotes into scored opportunities.
type Detector struct {
	cfg    Config
	prices PriceLookup
	logger *slog.Logger
	now    func() time.Time
}

// NewDetector creates a Detector. prices may be nil, in which case the quote
// token is assumed to be USD-denominated for trade sizing.
func NewDetector(cfg Config, prices PriceLookup, logger *slog.Logger) *Detector {
	if cfg.Scoring == (Scoring{}) {
		cfg.Scoring = DefaultScoring()
	}
	return &Detector{
		cfg:    cfg,
		prices: prices,
		logger: logger.With(slog.String("component", "detector")),
		now:    time.Now,
	}
}

// rejections counts candidates dropped by each filter.
type rejections struct {
	profit, liquidity, slippage int
}

// Detect compares every pair of venues quoting the same token pair. The lower
// price is the buy side. gasPriceGwei feeds the gas cost estimate only; it
// never filters. The result is sorted by profit, then confidence, then venue
// names.
func (d *Detector) Detect(quotes map[domain.TokenPair][]domain.Quote, gasPriceGwei float64) []domain.Opportunity {
	now := d.now()
	gasCost := float64(d.cfg.GasUnits) * gasPriceGwei * 1e-9

	best := make(map[string]domain.Opportunity)
	var rej rejections

	for pair, all := range quotes {
		qs := usableQuotes(all)
		if len(qs) < 2 {
			continue
		}
		prices := make([]float64, len(qs))
		for i, q := range qs {
			prices[i] = q.Price
		}
		stability := d.cfg.Scoring.Stability(prices)
		tradeSize := d.tradeSize(pair)

		for i := 0; i < len(qs); i++ {
			for j := i + 1; j < len(qs); j++ {
				opp, ok := d.evaluate(pair, qs[i], qs[j], stability, tradeSize, &rej)
				if !ok {
					continue
				}
				opp.GasCostEstimate = gasCost
				opp.DetectedAt = now
				key := opp.DedupKey()
				if prev, seen := best[key]; !seen || opp.ProfitPercentage > prev.ProfitPercentage {
					best[key] = opp
				}
			}
		}
	}

	opps := make([]domain.Opportunity, 0, len(best))
	for _, o := range best {
		o.ID = uuid.NewString()
		opps = append(opps, o)
	}
	SortOpportunities(opps)

	d.logger.Debug("detection complete",
		slog.Int("pairs", len(quotes)),
		slog.Int("opportunities", len(opps)),
		slog.Int("rejected_profit", rej.profit),
		slog.Int("rejected_liquidity", rej.liquidity),
		slog.Int("rejected_slippage", rej.slippage),
	)
	return opps
}

// evaluate applies the filters to one venue combination.
func (d *Detector) evaluate(pair domain.TokenPair, a, b domain.Quote, stability, tradeSize float64, rej *rejections) (domain.Opportunity, bool) {
	if a.Venue == b.Venue || !usable(a) || !usable(b) || a.Price == b.Price {
		return domain.Opportunity{}, false
	}
	buy, sell := a, b
	if buy.Price > sell.Price {
		buy, sell = sell, buy
	}

	profit := (sell.Price - buy.Price) / buy.Price * 100
	if profit < d.cfg.MinProfitThreshold {
		rej.profit++
		return domain.Opportunity{}, false
	}

	liquidity := min(buy.Liquidity, sell.Liquidity)
	if liquidity < d.cfg.MinLiquidity {
		rej.liquidity++
		return domain.Opportunity{}, false
	}

	// Liquidity is two-sided depth; the quote reserve is half of it.
	slippage := ExecutionSlippage(tradeSize, liquidity/2) * 100
	if slippage > d.cfg.MaxSlippage {
		rej.slippage++
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Pair:                pair,
		BuyVenue:            buy.Venue,
		SellVenue:           sell.Venue,
		BuyPrice:            buy.Price,
		SellPrice:           sell.Price,
		ProfitPercentage:    profit,
		NetProfitPercentage: profit - (buy.Fee+sell.Fee)*100,
		Liquidity:           liquidity,
		ConfidenceScore:     d.cfg.Scoring.Confidence(profit, liquidity, stability),
		EstimatedSlippage:   slippage,
	}, true
}

// usable rejects quotes whose price or depth would poison the comparisons.
func usable(q domain.Quote) bool {
	return finite(q.Price) && q.Price > 0 && finite(q.Liquidity)
}

func usableQuotes(qs []domain.Quote) []domain.Quote {
	out := make([]domain.Quote, 0, len(qs))
	for _, q := range qs {
		if usable(q) {
			out = append(out, q)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// tradeSize converts the configured USD notional into quote-token units.
func (d *Detector) tradeSize(pair domain.TokenPair) float64 {
	if d.prices != nil {
		if usd, ok := d.prices.USDPrice(pair.Quote.Address); ok && usd > 0 {
			return d.cfg.TradeSizeUSD / usd
		}
	}
	return d.cfg.TradeSizeUSD
}

// SortOpportunities orders by profit desc, confidence desc, then the
// lexical buy|sell venue pair and pair key.
func SortOpportunities(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.ProfitPercentage != b.ProfitPercentage {
			return a.ProfitPercentage > b.ProfitPercentage
		}
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		va, vb := a.BuyVenue+"|"+a.SellVenue, b.BuyVenue+"|"+b.SellVenue
		if va != vb {
			return va < vb
		}
		return a.Pair.Key() < b.Pair.Key()
	})
}
