package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file and starts from the
// defaults. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Monitoring ──
	setDuration(&cfg.Monitoring.ScanInterval, "DEXARB_MONITORING_SCAN_INTERVAL")
	setInt(&cfg.Monitoring.MaxConcurrentRequests, "DEXARB_MONITORING_MAX_CONCURRENT_REQUESTS")
	setDuration(&cfg.Monitoring.RequestTimeout, "DEXARB_MONITORING_REQUEST_TIMEOUT")
	setDuration(&cfg.Monitoring.GracePeriod, "DEXARB_MONITORING_GRACE_PERIOD")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.MinProfitThreshold, "DEXARB_ARBITRAGE_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Arbitrage.MaxSlippage, "DEXARB_ARBITRAGE_MAX_SLIPPAGE")
	setFloat64(&cfg.Arbitrage.MinLiquidity, "DEXARB_ARBITRAGE_MIN_LIQUIDITY")
	setFloat64(&cfg.Arbitrage.MaxGasPriceGwei, "DEXARB_ARBITRAGE_MAX_GAS_PRICE_GWEI")
	setUint64(&cfg.Arbitrage.GasUnits, "DEXARB_ARBITRAGE_GAS_UNITS")
	setFloat64(&cfg.Arbitrage.TradeSizeUSD, "DEXARB_ARBITRAGE_TRADE_SIZE_USD")
	setBool(&cfg.Arbitrage.Chains.Enabled, "DEXARB_ARBITRAGE_CHAINS_ENABLED")
	setInt(&cfg.Arbitrage.Chains.MaxHops, "DEXARB_ARBITRAGE_CHAINS_MAX_HOPS")
	setFloat64(&cfg.Arbitrage.Chains.MinProfitThreshold, "DEXARB_ARBITRAGE_CHAINS_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Arbitrage.Chains.MaxRiskScore, "DEXARB_ARBITRAGE_CHAINS_MAX_RISK_SCORE")

	// ── Venues ──
	setDex(&cfg.Dex.UniswapV2, "DEXARB_DEX_UNISWAP_V2")
	setDex(&cfg.Dex.SushiSwap, "DEXARB_DEX_SUSHISWAP")
	setDex(&cfg.Dex.PancakeSwap, "DEXARB_DEX_PANCAKESWAP")
	setDex(&cfg.Dex.Curve, "DEXARB_DEX_CURVE")
	setDex(&cfg.Dex.Balancer, "DEXARB_DEX_BALANCER")

	// ── Registry ──
	setStr(&cfg.Registry.BaseURL, "DEXARB_REGISTRY_BASE_URL")
	setStr(&cfg.Registry.APIKey, "DEXARB_REGISTRY_API_KEY")
	setStr(&cfg.Registry.APIKey, "COINGECKO_API_KEY") // compatibility alias
	setInt(&cfg.Registry.BatchSize, "DEXARB_REGISTRY_BATCH_SIZE")
	setDuration(&cfg.Registry.BatchDelay, "DEXARB_REGISTRY_BATCH_DELAY")
	setInt(&cfg.Registry.MaxTokens, "DEXARB_REGISTRY_MAX_TOKENS")

	// ── Cache ──
	setStr(&cfg.Cache.FilePath, "DEXARB_CACHE_FILE_PATH")
	setDuration(&cfg.Cache.TTL, "DEXARB_CACHE_TTL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DEXARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DEXARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXARB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DEXARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DEXARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DEXARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXARB_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DEXARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DEXARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEXARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXARB_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "DEXARB_S3_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DEXARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "DEXARB_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXARB_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinConfidence, "DEXARB_NOTIFY_MIN_CONFIDENCE")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXARB_MODE")
	setStr(&cfg.LogLevel, "DEXARB_LOG_LEVEL")
}

// setDex applies the per-venue overrides under prefix, e.g.
// DEXARB_DEX_CURVE_ENABLED or DEXARB_DEX_UNISWAP_V2_RPC_URL.
func setDex(d *DexConfig, prefix string) {
	setBool(&d.Enabled, prefix+"_ENABLED")
	setStr(&d.RPCURL, prefix+"_RPC_URL")
	setStr(&d.APIURL, prefix+"_API_URL")
	setStr(&d.SubgraphURL, prefix+"_SUBGRAPH_URL")
	setStr(&d.APIKey, prefix+"_API_KEY")
	setFloat64(&d.Fee, prefix+"_FEE")
	setDuration(&d.RateLimit, prefix+"_RATE_LIMIT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
