// Package config defines the top-level configuration for the dex arbitrage
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DEXARB_* environment variables.
type Config struct {
	Monitoring MonitoringConfig `toml:"monitoring"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Dex        DexSet           `toml:"dex"`
	Registry   RegistryConfig   `toml:"registry"`
	Cache      CacheConfig      `toml:"cache"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// MonitoringConfig controls the scan loop and the quote fan-out.
type MonitoringConfig struct {
	ScanInterval          duration `toml:"scan_interval"`
	MaxConcurrentRequests int      `toml:"max_concurrent_requests"`
	RequestTimeout        duration `toml:"request_timeout"`
	// GracePeriod bounds how long in-flight fetches may run after shutdown.
	GracePeriod duration `toml:"grace_period"`
}

// ArbitrageConfig holds detection thresholds and scoring references.
// Percent-valued fields use percent units (1.0 means 1%).
type ArbitrageConfig struct {
	MinProfitThreshold float64       `toml:"min_profit_threshold"`
	MaxSlippage        float64       `toml:"max_slippage"`
	MinLiquidity       float64       `toml:"min_liquidity"`
	MaxGasPriceGwei    float64       `toml:"max_gas_price_gwei"`
	GasUnits           uint64        `toml:"gas_units"`
	TradeSizeUSD       float64       `toml:"trade_size_usd"`
	ProfitReference    float64       `toml:"profit_reference"`
	LiquidityReference float64       `toml:"liquidity_reference"`
	StabilityReference float64       `toml:"stability_reference"`
	Tokens             []TokenConfig `toml:"tokens"`
	Chains             ChainConfig   `toml:"chains"`
}

// ChainConfig tunes the multi-hop cycle search. Edges are filtered by the
// parent max_slippage and min_liquidity.
type ChainConfig struct {
	Enabled            bool    `toml:"enabled"`
	MaxHops            int     `toml:"max_hops"`
	MinProfitThreshold float64 `toml:"min_profit_threshold"`
	MaxRiskScore       float64 `toml:"max_risk_score"`
	MaxChains          int     `toml:"max_chains"`
	GasUnitsPerHop     uint64  `toml:"gas_units_per_hop"`
}

// TokenConfig names a token to monitor.
type TokenConfig struct {
	Symbol   string `toml:"symbol"`
	Address  string `toml:"address"`
	Decimals int    `toml:"decimals"`
}

// DexSet holds the per-venue settings. Each venue is a fixed field so that
// partial TOML tables merge over the defaults.
type DexSet struct {
	UniswapV2   DexConfig `toml:"uniswap_v2"`
	SushiSwap   DexConfig `toml:"sushiswap"`
	PancakeSwap DexConfig `toml:"pancakeswap"`
	Curve       DexConfig `toml:"curve"`
	Balancer    DexConfig `toml:"balancer"`
}

// All returns the venues keyed by name.
func (d DexSet) All() map[string]DexConfig {
	return map[string]DexConfig{
		"uniswap_v2":  d.UniswapV2,
		"sushiswap":   d.SushiSwap,
		"pancakeswap": d.PancakeSwap,
		"curve":       d.Curve,
		"balancer":    d.Balancer,
	}
}

// Enabled returns the names of the enabled venues in sorted order.
func (d DexSet) Enabled() []string {
	var names []string
	for name, c := range d.All() {
		if c.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DexConfig configures a single venue adapter. Not every field applies to
// every venue: V2 forks use RPCURL and FactoryAddress, Curve uses APIURL and
// Network, Balancer uses SubgraphURL and APIKey.
type DexConfig struct {
	Enabled        bool                   `toml:"enabled"`
	ChainID        uint64                 `toml:"chain_id"`
	RPCURL         string                 `toml:"rpc_url"`
	FactoryAddress string                 `toml:"factory_address"`
	APIURL         string                 `toml:"api_url"`
	Network        string                 `toml:"network"`
	SubgraphURL    string                 `toml:"subgraph_url"`
	APIKey         string                 `toml:"api_key"`
	Fee            float64                `toml:"fee"`
	RateLimit      duration               `toml:"rate_limit"`
	PoolCacheTTL   duration               `toml:"pool_cache_ttl"`
	TokenOverrides map[string]TokenConfig `toml:"token_overrides"`
}

// RegistryConfig configures the CoinGecko token registry client.
type RegistryConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	UserAgent  string   `toml:"user_agent"`
	Platform   string   `toml:"platform"`
	BatchSize  int      `toml:"batch_size"`
	BatchDelay duration `toml:"batch_delay"`
	MaxTokens  int      `toml:"max_tokens"`
	Timeout    duration `toml:"timeout"`
}

// CacheConfig configures the persisted token cache.
type CacheConfig struct {
	FilePath string   `toml:"file_path"`
	TTL      duration `toml:"ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	QuoteTTL     duration `toml:"quote_ttl"`
	StreamMaxLen int      `toml:"stream_max_len"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	RetentionDays  int    `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit caps requests per client IP per RateWindow. It needs Redis;
	// zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinConfidence     float64  `toml:"min_confidence"`
	Cooldown          duration `toml:"cooldown"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Monitoring: MonitoringConfig{
			ScanInterval:          duration{10 * time.Second},
			MaxConcurrentRequests: 10,
			RequestTimeout:        duration{30 * time.Second},
			GracePeriod:           duration{5 * time.Second},
		},
		Arbitrage: ArbitrageConfig{
			MinProfitThreshold: 1.0,
			MaxSlippage:        0.5,
			MinLiquidity:       10_000,
			MaxGasPriceGwei:    100,
			GasUnits:           300_000,
			TradeSizeUSD:       100,
			ProfitReference:    4,
			LiquidityReference: 100_000,
			StabilityReference: 0.05,
			Tokens: []TokenConfig{
				{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
				{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
				{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
				{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
			},
			Chains: ChainConfig{
				Enabled:            true,
				MaxHops:            3,
				MinProfitThreshold: 0.5,
				MaxRiskScore:       0.8,
				MaxChains:          10,
				GasUnitsPerHop:     150_000,
			},
		},
		Dex: DexSet{
			UniswapV2: DexConfig{
				Enabled:        true,
				ChainID:        1,
				RPCURL:         "https://eth.llamarpc.com",
				FactoryAddress: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
				Fee:            0.003,
				RateLimit:      duration{time.Second},
			},
			SushiSwap: DexConfig{
				Enabled:        true,
				ChainID:        1,
				RPCURL:         "https://eth.llamarpc.com",
				FactoryAddress: "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac",
				Fee:            0.003,
				RateLimit:      duration{time.Second},
			},
			PancakeSwap: DexConfig{
				Enabled:        false,
				ChainID:        56,
				RPCURL:         "https://bsc-dataseed1.binance.org",
				FactoryAddress: "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73",
				Fee:            0.0025,
				RateLimit:      duration{time.Second},
				// BSC pegged tokens live at different addresses and all use 18 decimals.
				TokenOverrides: map[string]TokenConfig{
					"WETH": {Symbol: "ETH", Address: "0x2170Ed0880ac9A755fd29B2688956BD959F933F8", Decimals: 18},
					"USDT": {Symbol: "USDT", Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
					"USDC": {Symbol: "USDC", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18},
					"DAI":  {Symbol: "DAI", Address: "0x1AF3F329e8BE154074D8769D1FFa4eE058B1DBc3", Decimals: 18},
				},
			},
			Curve: DexConfig{
				Enabled:      true,
				ChainID:      1,
				APIURL:       "https://api.curve.fi/api",
				Network:      "ethereum",
				Fee:          0.0004,
				RateLimit:    duration{2 * time.Second},
				PoolCacheTTL: duration{time.Minute},
			},
			Balancer: DexConfig{
				Enabled:     false,
				ChainID:     1,
				SubgraphURL: "https://api.thegraph.com/subgraphs/name/balancer-labs/balancer-v2",
				Fee:         0.003,
				RateLimit:   duration{1500 * time.Millisecond},
			},
		},
		Registry: RegistryConfig{
			BaseURL:    "https://api.coingecko.com/api/v3",
			UserAgent:  "dexarb/1.0",
			Platform:   "ethereum",
			BatchSize:  100,
			BatchDelay: duration{time.Second},
			MaxTokens:  500,
			Timeout:    duration{30 * time.Second},
		},
		Cache: CacheConfig{
			FilePath: "data/tokens.json",
			TTL:      duration{time.Hour},
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			QuoteTTL:     duration{5 * time.Minute},
			StreamMaxLen: 10000,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "dexarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dexarb-data",
			ForcePathStyle: true,
			Prefix:         "tokens/",
			RetentionDays:  30,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:        []string{"opportunity_detected", "cycle_failed"},
			MinConfidence: 60,
			Cooldown:      duration{5 * time.Minute},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"scan":    true,
	"tokens":  true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, scan, tokens, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Monitoring
	if c.Monitoring.ScanInterval.Duration <= 0 {
		errs = append(errs, "monitoring: scan_interval must be > 0")
	}
	if c.Monitoring.MaxConcurrentRequests < 1 {
		errs = append(errs, "monitoring: max_concurrent_requests must be >= 1")
	}
	if c.Monitoring.RequestTimeout.Duration <= 0 {
		errs = append(errs, "monitoring: request_timeout must be > 0")
	}
	if c.Monitoring.GracePeriod.Duration < 0 {
		errs = append(errs, "monitoring: grace_period must be >= 0")
	}

	// Arbitrage
	a := c.Arbitrage
	if a.MinProfitThreshold < 0 {
		errs = append(errs, "arbitrage: min_profit_threshold must be >= 0")
	}
	if a.MaxSlippage <= 0 {
		errs = append(errs, "arbitrage: max_slippage must be > 0")
	}
	if a.MinLiquidity < 0 {
		errs = append(errs, "arbitrage: min_liquidity must be >= 0")
	}
	if a.MaxGasPriceGwei <= 0 {
		errs = append(errs, "arbitrage: max_gas_price_gwei must be > 0")
	}
	if a.TradeSizeUSD <= 0 {
		errs = append(errs, "arbitrage: trade_size_usd must be > 0")
	}
	if a.ProfitReference <= 0 || a.LiquidityReference <= 0 || a.StabilityReference <= 0 {
		errs = append(errs, "arbitrage: profit_reference, liquidity_reference and stability_reference must be > 0")
	}
	if len(a.Tokens) < 2 {
		errs = append(errs, "arbitrage: at least two tokens are required to form a pair")
	}
	if ch := a.Chains; ch.Enabled {
		if ch.MaxHops < 3 || ch.MaxHops > 5 {
			errs = append(errs, fmt.Sprintf("arbitrage.chains: max_hops must be 3-5, got %d", ch.MaxHops))
		}
		if ch.MinProfitThreshold < 0 {
			errs = append(errs, "arbitrage.chains: min_profit_threshold must be >= 0")
		}
		if ch.MaxRiskScore <= 0 || ch.MaxRiskScore > 1 {
			errs = append(errs, "arbitrage.chains: max_risk_score must be within (0, 1]")
		}
		if ch.MaxChains < 1 {
			errs = append(errs, "arbitrage.chains: max_chains must be >= 1")
		}
	}
	seen := make(map[string]bool, len(a.Tokens))
	for _, t := range a.Tokens {
		errs = append(errs, validateToken("arbitrage: token", t)...)
		sym := strings.ToUpper(t.Symbol)
		if seen[sym] {
			errs = append(errs, fmt.Sprintf("arbitrage: duplicate token symbol %q", t.Symbol))
		}
		seen[sym] = true
	}

	// Venues
	enabled := c.Dex.Enabled()
	if len(enabled) == 0 {
		errs = append(errs, "dex: at least one venue must be enabled")
	}
	for _, name := range enabled {
		errs = append(errs, validateDex(name, c.Dex.All()[name])...)
	}

	// Registry
	if c.Registry.BaseURL == "" {
		errs = append(errs, "registry: base_url must not be empty")
	}
	if c.Registry.BatchSize < 1 || c.Registry.BatchSize > 250 {
		errs = append(errs, fmt.Sprintf("registry: batch_size must be 1-250, got %d", c.Registry.BatchSize))
	}
	if c.Registry.APIKey == "" && c.Registry.BatchDelay.Duration < time.Second {
		errs = append(errs, "registry: batch_delay must be >= 1s without an api_key")
	}
	if c.Registry.BatchDelay.Duration < 0 {
		errs = append(errs, "registry: batch_delay must be >= 0")
	}

	// Cache
	if strings.TrimSpace(c.Cache.FilePath) == "" {
		errs = append(errs, "cache: file_path must not be empty")
	}
	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, "cache: ttl must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled || strings.EqualFold(c.Mode, "server") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if c.Notify.MinConfidence < 0 || c.Notify.MinConfidence > 100 {
		errs = append(errs, "notify: min_confidence must be within 0-100")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateDex(name string, d DexConfig) []string {
	var errs []string
	prefix := "dex." + name
	switch name {
	case "uniswap_v2", "sushiswap", "pancakeswap":
		if d.RPCURL == "" {
			errs = append(errs, prefix+": rpc_url must not be empty")
		}
		if !isHexAddress(d.FactoryAddress) {
			errs = append(errs, fmt.Sprintf("%s: factory_address %q is not a valid address", prefix, d.FactoryAddress))
		} else if !validChecksum(d.FactoryAddress) {
			errs = append(errs, fmt.Sprintf("%s: factory_address %q has an invalid checksum", prefix, d.FactoryAddress))
		}
		for sym, t := range d.TokenOverrides {
			errs = append(errs, validateToken(prefix+": token_overrides."+sym, t)...)
		}
	case "curve":
		if d.APIURL == "" {
			errs = append(errs, prefix+": api_url must not be empty")
		}
		if d.Network == "" {
			errs = append(errs, prefix+": network must not be empty")
		}
	case "balancer":
		if d.SubgraphURL == "" {
			errs = append(errs, prefix+": subgraph_url must not be empty")
		}
	}
	if d.ChainID == 0 {
		errs = append(errs, prefix+": chain_id must be > 0")
	}
	if d.Fee < 0 || d.Fee >= 1 {
		errs = append(errs, fmt.Sprintf("%s: fee must be within [0, 1), got %g", prefix, d.Fee))
	}
	if d.RateLimit.Duration < 0 {
		errs = append(errs, prefix+": rate_limit must be >= 0")
	}
	return errs
}

func validateToken(prefix string, t TokenConfig) []string {
	var errs []string
	if strings.TrimSpace(t.Symbol) == "" {
		errs = append(errs, prefix+": symbol must not be empty")
	}
	if !isHexAddress(t.Address) {
		errs = append(errs, fmt.Sprintf("%s %s: address %q is not a valid address", prefix, t.Symbol, t.Address))
	} else if !validChecksum(t.Address) {
		errs = append(errs, fmt.Sprintf("%s %s: address %q has an invalid checksum", prefix, t.Symbol, t.Address))
	}
	if t.Decimals < 0 || t.Decimals > 36 {
		errs = append(errs, fmt.Sprintf("%s %s: decimals must be within 0-36, got %d", prefix, t.Symbol, t.Decimals))
	}
	return errs
}
