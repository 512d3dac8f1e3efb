// Package dex contains the venue adapters that turn on-chain reserves and
// venue APIs into normalized quotes.
package dex

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// Source is a single price venue. Implementations must be safe for
// concurrent use; a failed Quote returns a *domain.QuoteError.
type Source interface {
	Name() string
	ChainID() uint64
	Fee() float64
	Quote(ctx context.Context, pair domain.TokenPair) (domain.Quote, error)
	Health(ctx context.Context) error
}

// Throttle spaces outbound requests to a venue.
type Throttle interface {
	Wait(ctx context.Context) error
}

// LocalThrottle enforces a minimum interval between requests within this
// process.
type LocalThrottle struct {
	limiter *rate.Limiter
}

// NewLocalThrottle allows one request per interval. A non-positive interval
// disables throttling.
func NewLocalThrottle(interval time.Duration) *LocalThrottle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &LocalThrottle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request slot or until ctx is done.
func (t *LocalThrottle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// SharedThrottle spaces requests across every process that shares the same
// distributed rate limiter, allowing one request per interval.
type SharedThrottle struct {
	limiter  domain.RateLimiter
	key      string
	interval time.Duration
}

// NewSharedThrottle returns a throttle keyed by venue name.
func NewSharedThrottle(limiter domain.RateLimiter, venue string, interval time.Duration) *SharedThrottle {
	return &SharedThrottle{
		limiter:  limiter,
		key:      "dex:" + venue,
		interval: interval,
	}
}

// Wait blocks until the shared window admits another request.
func (t *SharedThrottle) Wait(ctx context.Context) error {
	if t.interval <= 0 {
		return nil
	}
	if err := t.limiter.Wait(ctx, t.key, 1, t.interval); err != nil {
		return fmt.Errorf("dex: throttle %s: %w", t.key, err)
	}
	return nil
}

// quoteErr classifies err and wraps it for the given venue and pair.
func quoteErr(venue string, pair domain.TokenPair, err error) *domain.QuoteError {
	return domain.NewQuoteError(venue, pair, domain.ClassifyQuoteError(err), err)
}
