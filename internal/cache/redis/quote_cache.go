package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at "quote:{venue}:{BASE/QUOTE}" with fields price, liquidity, fee and
// ts (Unix nanoseconds), and expires after the configured TTL.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(venue string, pair domain.TokenPair) string {
	return "quote:" + venue + ":" + pair.Key()
}

// SetQuotes stores a batch of quotes in one pipeline.
func (qc *QuoteCache) SetQuotes(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	pipe := qc.rdb.Pipeline()
	for _, q := range quotes {
		key := quoteKey(q.Venue, q.Pair)
		pipe.HSet(ctx, key, map[string]interface{}{
			"price":     strconv.FormatFloat(q.Price, 'f', -1, 64),
			"liquidity": strconv.FormatFloat(q.Liquidity, 'f', -1, 64),
			"fee":       strconv.FormatFloat(q.Fee, 'f', -1, 64),
			"ts":        strconv.FormatInt(q.ObservedAt.UnixNano(), 10),
		})
		if qc.ttl > 0 {
			pipe.Expire(ctx, key, qc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quotes: %w", err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a venue and pair. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue string, pair domain.TokenPair) (domain.Quote, error) {
	key := quoteKey(venue, pair)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	return parseQuote(venue, pair, vals)
}

func parseQuote(venue string, pair domain.TokenPair, vals map[string]string) (domain.Quote, error) {
	q := domain.Quote{Venue: venue, Pair: pair}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"price", &q.Price},
		{"liquidity", &q.Liquidity},
		{"fee", &q.Fee},
	}
	for _, f := range fields {
		raw, ok := vals[f.name]
		if !ok {
			return domain.Quote{}, domain.ErrNotFound
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("redis: parse quote %s: %w", f.name, domain.ErrParse)
		}
		*f.dst = v
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse quote ts: %w", domain.ErrParse)
	}
	q.ObservedAt = time.Unix(0, tsNano).UTC()
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
