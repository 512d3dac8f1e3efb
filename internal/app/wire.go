package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/dexarb/internal/aggregator"
	"github.com/alanyoungcy/dexarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/dexarb/internal/blob/s3"
	"github.com/alanyoungcy/dexarb/internal/cache/redis"
	"github.com/alanyoungcy/dexarb/internal/config"
	"github.com/alanyoungcy/dexarb/internal/dex"
	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/gas"
	"github.com/alanyoungcy/dexarb/internal/notify"
	"github.com/alanyoungcy/dexarb/internal/platform/coingecko"
	"github.com/alanyoungcy/dexarb/internal/platform/curve"
	"github.com/alanyoungcy/dexarb/internal/platform/subgraph"
	"github.com/alanyoungcy/dexarb/internal/server/handler"
	"github.com/alanyoungcy/dexarb/internal/service"
	"github.com/alanyoungcy/dexarb/internal/store/postgres"
	"github.com/alanyoungcy/dexarb/internal/tokencache"
)

// mainnetChainID is the chain whose RPC feeds the gas oracle.
const mainnetChainID = 1

// Dependencies bundles everything the modes need. Optional infrastructure is
// nil when its section is disabled, and so is Chains when the multi-hop
// search is off.
type Dependencies struct {
	// Caches and bus (Redis).
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// History (Postgres).
	OpportunityStore domain.OpportunityStore
	CycleStore       domain.CycleStore
	PoolStore        domain.PoolStore

	// Snapshot archive (S3).
	Archiver domain.SnapshotArchiver

	// Health probes of the enabled infrastructure, keyed by name.
	Checks map[string]handler.Check

	Notifier      *notify.Notifier
	Tokens        *tokencache.Cache
	Sources       []dex.Source
	Pairs         []domain.TokenPair
	Gas           *gas.Oracle
	Aggregator    *aggregator.Aggregator
	Detector      *arbitrage.Detector
	Chains        *arbitrage.ChainFinder
	Opportunities *service.OpportunityService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "migrations applied", slog.String("files", strings.Join(applied, ",")))
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.CycleStore = postgres.NewCycleStore(pool)
		deps.PoolStore = postgres.NewPoolStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			TLSEnabled:  cfg.Redis.TLSEnabled,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, int64(cfg.Redis.StreamMaxLen))
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 token snapshots ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		reader := s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewSnapshotArchiver(
			s3blob.NewWriter(s3Client), reader, reader,
			cfg.S3.Prefix, cfg.S3.RetentionDays, logger,
		)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Token cache ---
	registry := coingecko.NewClient(cfg.Registry.BaseURL, cfg.Registry.APIKey, cfg.Registry.UserAgent, cfg.Registry.Timeout.Duration)
	var cacheOpts []tokencache.Option
	if deps.LockManager != nil {
		cacheOpts = append(cacheOpts, tokencache.WithLock(deps.LockManager))
	}
	if deps.Archiver != nil {
		cacheOpts = append(cacheOpts, tokencache.WithArchiver(deps.Archiver))
	}
	deps.Tokens = tokencache.New(registry, tokencache.Options{
		FilePath:   cfg.Cache.FilePath,
		TTL:        cfg.Cache.TTL.Duration,
		Platform:   cfg.Registry.Platform,
		BatchSize:  cfg.Registry.BatchSize,
		BatchDelay: cfg.Registry.BatchDelay.Duration,
		MaxTokens:  cfg.Registry.MaxTokens,
	}, logger, cacheOpts...)

	// --- DEX sources ---
	sources, mainnet, closeRPC, err := buildSources(ctx, cfg, deps.RateLimiter)
	closers = append(closers, closeRPC)
	if err != nil {
		return fail(err)
	}
	deps.Sources = sources
	deps.Pairs = buildPairs(cfg.Arbitrage.Tokens)

	var suggester gas.PriceSuggester
	if mainnet != nil {
		suggester = mainnet
	}
	deps.Gas = gas.NewOracle(suggester, cfg.Arbitrage.MaxGasPriceGwei, cfg.Monitoring.RequestTimeout.Duration, logger)

	// --- Scan pipeline ---
	deps.Aggregator = aggregator.New(aggregator.Options{
		MaxConcurrent:  cfg.Monitoring.MaxConcurrentRequests,
		RequestTimeout: cfg.Monitoring.RequestTimeout.Duration,
		GracePeriod:    cfg.Monitoring.GracePeriod.Duration,
	}, logger)
	deps.Detector = arbitrage.NewDetector(arbitrage.Config{
		MinProfitThreshold: cfg.Arbitrage.MinProfitThreshold,
		MaxSlippage:        cfg.Arbitrage.MaxSlippage,
		MinLiquidity:       cfg.Arbitrage.MinLiquidity,
		TradeSizeUSD:       cfg.Arbitrage.TradeSizeUSD,
		GasUnits:           cfg.Arbitrage.GasUnits,
		Scoring: arbitrage.Scoring{
			ProfitReference:    cfg.Arbitrage.ProfitReference,
			LiquidityReference: cfg.Arbitrage.LiquidityReference,
			StabilityReference: cfg.Arbitrage.StabilityReference,
		},
	}, deps.Tokens, logger)
	if ch := cfg.Arbitrage.Chains; ch.Enabled {
		deps.Chains = arbitrage.NewChainFinder(arbitrage.ChainConfig{
			MaxHops:            ch.MaxHops,
			MinProfitThreshold: ch.MinProfitThreshold,
			MaxSlippage:        cfg.Arbitrage.MaxSlippage,
			MinLiquidity:       cfg.Arbitrage.MinLiquidity,
			MaxRiskScore:       ch.MaxRiskScore,
			MaxChains:          ch.MaxChains,
			GasUnitsPerHop:     ch.GasUnitsPerHop,
		}, logger)
	}

	svcDeps := service.Deps{
		Quotes: deps.QuoteCache,
		Bus:    deps.SignalBus,
	}
	// Interfaces stay nil unless the backing store exists.
	if deps.OpportunityStore != nil {
		svcDeps.Opportunities = deps.OpportunityStore
		svcDeps.Cycles = deps.CycleStore
		svcDeps.Pools = deps.PoolStore
	}
	if deps.Notifier.Enabled() {
		svcDeps.Notifier = deps.Notifier
	}
	deps.Opportunities = service.NewOpportunityService(svcDeps, service.Options{
		MinConfidence: cfg.Notify.MinConfidence,
		Cooldown:      cfg.Notify.Cooldown.Duration,
	}, logger)

	return deps, cleanup, nil
}

// buildSources creates an adapter per enabled venue. RPC clients are shared
// between venues using the same endpoint. The returned ethclient is the
// mainnet client used for gas prices, or nil when no mainnet RPC is
// configured.
func buildSources(ctx context.Context, cfg *config.Config, limiter domain.RateLimiter) ([]dex.Source, *ethclient.Client, func(), error) {
	rpc := make(map[string]*ethclient.Client)
	closeRPC := func() {
		for _, c := range rpc {
			c.Close()
		}
	}
	dial := func(url string) (*ethclient.Client, error) {
		if c, ok := rpc[url]; ok {
			return c, nil
		}
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("wire: dial rpc %s: %w", url, err)
		}
		rpc[url] = c
		return c, nil
	}
	throttle := func(name string, interval time.Duration) dex.Throttle {
		if limiter != nil {
			return dex.NewSharedThrottle(limiter, name, interval)
		}
		return dex.NewLocalThrottle(interval)
	}

	var (
		sources []dex.Source
		mainnet *ethclient.Client
	)
	timeout := cfg.Monitoring.RequestTimeout.Duration
	all := cfg.Dex.All()
	for _, name := range cfg.Dex.Enabled() {
		d := all[name]
		switch name {
		case "uniswap_v2", "sushiswap", "pancakeswap":
			client, err := dial(d.RPCURL)
			if err != nil {
				return nil, nil, closeRPC, err
			}
			if d.ChainID == mainnetChainID && mainnet == nil {
				mainnet = client
			}
			sources = append(sources, dex.NewV2Source(client, dex.V2Options{
				Name:      name,
				ChainID:   d.ChainID,
				Factory:   d.FactoryAddress,
				Fee:       d.Fee,
				Overrides: toAssets(d.TokenOverrides),
				Throttle:  throttle(name, d.RateLimit.Duration),
			}))
		case "curve":
			sources = append(sources, dex.NewCurveSource(curve.NewClient(d.APIURL, timeout), dex.CurveOptions{
				Name:         name,
				ChainID:      d.ChainID,
				Network:      d.Network,
				Fee:          d.Fee,
				CacheTTL:     d.PoolCacheTTL.Duration,
				FetchTimeout: timeout,
				Throttle:     throttle(name, d.RateLimit.Duration),
			}))
		case "balancer":
			sources = append(sources, dex.NewBalancerSource(subgraph.NewClient(d.SubgraphURL, d.APIKey, timeout), dex.BalancerOptions{
				Name:     name,
				ChainID:  d.ChainID,
				Fee:      d.Fee,
				Throttle: throttle(name, d.RateLimit.Duration),
			}))
		}
	}
	dex.SortByName(sources)
	return sources, mainnet, closeRPC, nil
}

// buildPairs turns the monitored tokens into every base/quote combination.
func buildPairs(tokens []config.TokenConfig) []domain.TokenPair {
	assets := make([]domain.Asset, 0, len(tokens))
	for _, t := range tokens {
		assets = append(assets, domain.Asset{Symbol: t.Symbol, Address: t.Address, Decimals: t.Decimals})
	}
	return domain.PairsFromAssets(assets)
}

func toAssets(overrides map[string]config.TokenConfig) map[string]domain.Asset {
	if len(overrides) == 0 {
		return nil
	}
	out := make(map[string]domain.Asset, len(overrides))
	for symbol, t := range overrides {
		out[symbol] = domain.Asset{Symbol: t.Symbol, Address: t.Address, Decimals: t.Decimals}
	}
	return out
}
