// Package tokencache keeps a TTL-bounded list of registry tokens in memory and
// mirrored to a JSON file.
package tokencache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

const (
	refreshLockKey = "tokencache:refresh"
	refreshLockTTL = 5 * time.Minute
)

// Options configures a Cache.
type Options struct {
	FilePath   string
	TTL        time.Duration
	Platform   string
	BatchSize  int
	BatchDelay time.Duration
	MaxTokens  int
}

// Option customises optional collaborators of a Cache.
type Option func(*Cache)

// WithLock serialises refreshes across processes.
func WithLock(lm domain.LockManager) Option {
	return func(c *Cache) { c.lock = lm }
}

// WithArchiver seeds the cache from, and archives refreshed lists to, object
// storage.
func WithArchiver(a domain.SnapshotArchiver) Option {
	return func(c *Cache) { c.archiver = a }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is a single-writer token cache. Readers always observe a whole
// snapshot; refreshes replace the snapshot rather than mutating it.
type Cache struct {
	registry domain.TokenRegistry
	opts     Options
	lock     domain.LockManager
	archiver domain.SnapshotArchiver
	now      func() time.Time
	logger   *slog.Logger

	refreshMu sync.Mutex

	mu     sync.RWMutex
	list   domain.TokenList
	loaded bool
	prices map[string]float64
}

// New creates a Cache. Call Load to populate it from disk before use.
func New(registry domain.TokenRegistry, opts Options, logger *slog.Logger, options ...Option) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Platform == "" {
		opts.Platform = "ethereum"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	c := &Cache{
		registry: registry,
		opts:     opts,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "tokencache")),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Load populates the in-memory snapshot from the cache file, falling back to
// the newest archived snapshot when the file does not exist. Having nothing to
// load is not an error.
func (c *Cache) Load(ctx context.Context) error {
	list, err := readFile(c.opts.FilePath)
	switch {
	case err == nil:
		c.store(list)
		c.logger.InfoContext(ctx, "loaded token cache",
			slog.Int("tokens", list.TotalCount),
			slog.Time("last_updated", list.LastUpdated),
		)
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		c.logger.WarnContext(ctx, "token cache file unreadable", slog.String("error", err.Error()))
	}

	if c.archiver == nil {
		return nil
	}
	list, err = c.archiver.Latest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("tokencache: seed from archive: %w", err)
	}
	c.store(list)
	if err := writeFile(c.opts.FilePath, list); err != nil {
		c.logger.WarnContext(ctx, "persist seeded token list failed", slog.String("error", err.Error()))
	}
	c.logger.InfoContext(ctx, "seeded token cache from archive", slog.Int("tokens", list.TotalCount))
	return nil
}

// Snapshot returns the current list and whether one exists.
func (c *Cache) Snapshot() (domain.TokenList, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list, c.loaded
}

// GetTokens returns the token list, refreshing it when force is set or the
// snapshot is older than the TTL. A failed refresh falls back to the cached
// list; domain.ErrDataUnavailable is returned only when nothing is cached.
// A positive limit truncates the result.
func (c *Cache) GetTokens(ctx context.Context, force bool, limit int) (domain.TokenList, error) {
	list, ok := c.Snapshot()
	if !force && ok && c.fresh(list) {
		return truncate(list, limit), nil
	}

	refreshed, err := c.Refresh(ctx)
	if err == nil {
		return truncate(refreshed, limit), nil
	}

	list, ok = c.Snapshot()
	if !ok {
		return domain.TokenList{}, fmt.Errorf("tokencache: %w: %v", domain.ErrDataUnavailable, err)
	}
	c.logger.WarnContext(ctx, "token refresh failed, serving cached list",
		slog.String("error", err.Error()),
		slog.Duration("age", c.now().Sub(list.LastUpdated)),
	)
	return truncate(list, limit), nil
}

// GetTokenBySymbol finds a token by case-insensitive symbol. The registry is
// consulted only when nothing is cached yet.
func (c *Cache) GetTokenBySymbol(ctx context.Context, symbol string) (domain.Token, bool, error) {
	list, err := c.current(ctx)
	if err != nil {
		return domain.Token{}, false, err
	}
	for _, t := range list.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true, nil
		}
	}
	return domain.Token{}, false, nil
}

// GetTokenByAddress finds a token whose address on any platform matches,
// ignoring case.
func (c *Cache) GetTokenByAddress(ctx context.Context, address string) (domain.Token, bool, error) {
	list, err := c.current(ctx)
	if err != nil {
		return domain.Token{}, false, err
	}
	for _, t := range list.Tokens {
		if hasAddress(t, address) {
			return t, true, nil
		}
	}
	return domain.Token{}, false, nil
}

// GetTopTokens returns at most n ranked tokens in ascending rank order.
// Unranked tokens are never returned, whatever order the snapshot is in.
func (c *Cache) GetTopTokens(ctx context.Context, n int) ([]domain.Token, error) {
	if n <= 0 {
		return []domain.Token{}, nil
	}
	list, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	ranked := make([]domain.Token, 0, len(list.Tokens))
	for _, t := range list.Tokens {
		if t.MarketCapRank != nil {
			ranked = append(ranked, t)
		}
	}
	// Loaded snapshots may be unordered.
	sortTokens(ranked)
	if len(ranked) > n {
		ranked = ranked[:n:n]
	}
	return ranked, nil
}

// USDPrice returns the cached USD price for a contract address.
func (c *Cache) USDPrice(address string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[strings.ToLower(address)]
	return p, ok
}

// Refresh fetches a new list from the registry, persists it and swaps it in.
// Concurrent callers share the lock; a caller that waited behind another
// refresh returns that result when it is still fresh.
func (c *Cache) Refresh(ctx context.Context) (domain.TokenList, error) {
	started := c.now()
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if list, ok := c.Snapshot(); ok && list.LastUpdated.After(started) {
		return list, nil
	}

	if c.lock != nil {
		unlock, err := c.lock.Acquire(ctx, refreshLockKey, refreshLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return c.reloadAfterPeer(ctx)
			}
			return domain.TokenList{}, fmt.Errorf("tokencache: acquire refresh lock: %w", err)
		}
		defer unlock()
	}

	list, err := c.fetch(ctx)
	if err != nil {
		return domain.TokenList{}, err
	}

	if err := writeFile(c.opts.FilePath, list); err != nil {
		c.logger.ErrorContext(ctx, "persist token list failed", slog.String("error", err.Error()))
	}
	c.store(list)

	if c.archiver != nil {
		if err := c.archiver.Archive(ctx, list); err != nil {
			c.logger.WarnContext(ctx, "archive token list failed", slog.String("error", err.Error()))
		}
	}

	c.logger.InfoContext(ctx, "token list refreshed",
		slog.Int("tokens", list.TotalCount),
		slog.Duration("elapsed", c.now().Sub(started)),
	)
	return list, nil
}

// reloadAfterPeer re-reads the cache file when another process holds the
// refresh lock, in case the peer shares it.
func (c *Cache) reloadAfterPeer(ctx context.Context) (domain.TokenList, error) {
	list, err := readFile(c.opts.FilePath)
	if err == nil && c.fresh(list) {
		c.store(list)
		return list, nil
	}
	c.logger.InfoContext(ctx, "token refresh running elsewhere")
	return domain.TokenList{}, fmt.Errorf("tokencache: refresh: %w", domain.ErrLockHeld)
}

func (c *Cache) current(ctx context.Context) (domain.TokenList, error) {
	if list, ok := c.Snapshot(); ok {
		return list, nil
	}
	return c.GetTokens(ctx, false, 0)
}

func (c *Cache) fresh(list domain.TokenList) bool {
	return c.now().Sub(list.LastUpdated) < c.opts.TTL
}

func (c *Cache) store(list domain.TokenList) {
	prices := make(map[string]float64, len(list.Tokens))
	for _, t := range list.Tokens {
		if t.CurrentPrice == nil {
			continue
		}
		for _, addr := range t.Platforms {
			if addr == nil || *addr == "" {
				continue
			}
			key := strings.ToLower(*addr)
			if _, seen := prices[key]; !seen {
				prices[key] = *t.CurrentPrice
			}
		}
	}

	c.mu.Lock()
	c.list = list
	c.loaded = true
	c.prices = prices
	c.mu.Unlock()
}

func truncate(list domain.TokenList, limit int) domain.TokenList {
	if limit > 0 && limit < len(list.Tokens) {
		list.Tokens = list.Tokens[:limit:limit]
		list.TotalCount = limit
	}
	return list
}

func hasAddress(t domain.Token, address string) bool {
	for _, addr := range t.Platforms {
		if addr != nil && strings.EqualFold(*addr, address) {
			return true
		}
	}
	return false
}
