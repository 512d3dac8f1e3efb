package tokencache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// fetch builds a fresh token list: the coin listing filtered to the configured
// platform, enriched with market data one batch at a time. Any failed request
// aborts the fetch.
func (c *Cache) fetch(ctx context.Context) (domain.TokenList, error) {
	coins, err := c.registry.ListCoins(ctx)
	if err != nil {
		return domain.TokenList{}, fmt.Errorf("tokencache: list coins: %w", err)
	}

	candidates := make([]domain.RegistryCoin, 0, len(coins))
	for _, coin := range coins {
		if addr := coin.Platforms[c.opts.Platform]; addr != nil && *addr != "" {
			candidates = append(candidates, coin)
		}
	}
	if c.opts.MaxTokens > 0 && len(candidates) > c.opts.MaxTokens {
		candidates = candidates[:c.opts.MaxTokens]
	}
	c.logger.InfoContext(ctx, "fetching market data",
		slog.Int("coins", len(coins)),
		slog.Int("candidates", len(candidates)),
		slog.String("platform", c.opts.Platform),
	)

	tokens := make([]domain.Token, 0, len(candidates))
	for start := 0; start < len(candidates); start += c.opts.BatchSize {
		// Every registry request is spaced by at least BatchDelay.
		if err := sleepCtx(ctx, c.opts.BatchDelay); err != nil {
			return domain.TokenList{}, fmt.Errorf("tokencache: batch delay: %w", err)
		}

		end := min(start+c.opts.BatchSize, len(candidates))
		chunk := candidates[start:end]
		ids := make([]string, len(chunk))
		for i, coin := range chunk {
			ids[i] = coin.ID
		}

		markets, err := c.registry.Markets(ctx, ids)
		if err != nil {
			return domain.TokenList{}, fmt.Errorf("tokencache: markets batch at %d: %w", start, err)
		}
		tokens = append(tokens, merge(chunk, markets)...)

		c.logger.DebugContext(ctx, "fetched market batch",
			slog.Int("offset", start),
			slog.Int("batch_size", len(chunk)),
			slog.Int("priced", len(markets)),
		)
	}

	sortTokens(tokens)
	return domain.TokenList{
		Tokens:      tokens,
		LastUpdated: c.now().UTC(),
		TotalCount:  len(tokens),
	}, nil
}

// merge combines listing entries with their market data. Coins missing from
// the market response keep empty market fields.
func merge(chunk []domain.RegistryCoin, markets []domain.Token) []domain.Token {
	byID := make(map[string]domain.Token, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
	}

	out := make([]domain.Token, 0, len(chunk))
	for _, coin := range chunk {
		t := domain.Token{
			ID:        coin.ID,
			Symbol:    coin.Symbol,
			Name:      coin.Name,
			Platforms: coin.Platforms,
		}
		if m, ok := byID[coin.ID]; ok {
			t.MarketCapRank = m.MarketCapRank
			t.CurrentPrice = m.CurrentPrice
			t.MarketCap = m.MarketCap
			t.TotalVolume = m.TotalVolume
			t.PriceChange24h = m.PriceChange24h
		}
		out = append(out, t)
	}
	return out
}

// sortTokens orders ranked tokens by ascending rank, then unranked tokens by
// symbol.
func sortTokens(tokens []domain.Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		a, b := tokens[i].MarketCapRank, tokens[j].MarketCapRank
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return strings.ToLower(tokens[i].Symbol) < strings.ToLower(tokens[j].Symbol)
		}
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
