package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

var pair = domain.TokenPair{
	Base:  domain.Asset{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
	Quote: domain.Asset{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "quote:curve:WETH/USDC", quoteKey("curve", pair))
	assert.Equal(t, "ratelimit:dex:curve", rateLimitKey("dex:curve"))
	assert.Equal(t, "lock:tokencache:refresh", lockKey("tokencache:refresh"))
}

func TestParseQuote(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q, err := parseQuote("curve", pair, map[string]string{
		"price":     "3012.5",
		"liquidity": "2500000",
		"fee":       "0.0004",
		"ts":        "1714564800000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, 3012.5, q.Price)
	assert.Equal(t, 2_500_000.0, q.Liquidity)
	assert.Equal(t, 0.0004, q.Fee)
	assert.True(t, q.ObservedAt.Equal(ts))
	assert.Equal(t, "curve", q.Venue)

	_, err = parseQuote("curve", pair, map[string]string{"price": "1"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = parseQuote("curve", pair, map[string]string{"price": "x", "liquidity": "1", "fee": "0", "ts": "0"})
	require.ErrorIs(t, err, domain.ErrParse)
}

func TestPayloadBytes(t *testing.T) {
	b, ok := payloadBytes("abc")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), b)

	b, ok = payloadBytes([]byte{1, 2})
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, b)

	_, ok = payloadBytes(42)
	assert.False(t, ok)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "ZADD")
}
