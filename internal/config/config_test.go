package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Monitoring.ScanInterval.Duration)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Duration)
	assert.Equal(t, 100, cfg.Registry.BatchSize)
	assert.Equal(t, []string{"curve", "sushiswap", "uniswap_v2"}, cfg.Dex.Enabled())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Monitoring.MaxConcurrentRequests = 0
	cfg.Arbitrage.Tokens = cfg.Arbitrage.Tokens[:1]
	cfg.Cache.TTL = duration{}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "max_concurrent_requests")
	assert.Contains(t, msg, "at least two tokens")
	assert.Contains(t, msg, "cache: ttl")
}

func TestValidateRejectsBadChecksum(t *testing.T) {
	cfg := Defaults()
	// First letter of the WETH address flipped to lower case.
	cfg.Arbitrage.Tokens[0].Address = "0xc02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid checksum")
}

func TestValidateBatchDelayNeedsKey(t *testing.T) {
	cfg := Defaults()
	cfg.Registry.BatchDelay = duration{200 * time.Millisecond}
	require.Error(t, cfg.Validate())

	cfg.Registry.APIKey = "demo-key"
	require.NoError(t, cfg.Validate())
}

func TestValidateChains(t *testing.T) {
	cfg := Defaults()
	cfg.Arbitrage.Chains.MaxHops = 2
	cfg.Arbitrage.Chains.MaxRiskScore = 1.5
	cfg.Arbitrage.Chains.MaxChains = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_hops must be 3-5")
	assert.Contains(t, err.Error(), "max_risk_score")
	assert.Contains(t, err.Error(), "max_chains")

	cfg.Arbitrage.Chains.Enabled = false
	require.NoError(t, cfg.Validate())
}

func TestChecksum(t *testing.T) {
	cases := map[string]bool{
		"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2": true,
		"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": true,
		"0xC02AAA39B223FE8D0A0E5C4F27EAD9083C756CC2": true,
		"0x6B175474E89094C44Da98b954EedeAC495271d0F": true,
		"0x6b175474E89094C44Da98b954EedeAC495271d0F": false,
	}
	for addr, want := range cases {
		assert.Equal(t, want, validChecksum(addr), addr)
	}
	assert.False(t, isHexAddress("0x1234"))
	assert.False(t, isHexAddress("C02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2xx"))
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "scan"

[monitoring]
scan_interval = "30s"

[dex.curve]
enabled = false

[arbitrage]
min_profit_threshold = 2.5

[arbitrage.chains]
max_hops = 4
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("DEXARB_REGISTRY_API_KEY", "secret")
	t.Setenv("DEXARB_DEX_UNISWAP_V2_RPC_URL", "http://node:8545")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "scan", cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.Monitoring.ScanInterval.Duration)
	assert.False(t, cfg.Dex.Curve.Enabled)
	// Fields absent from the partial table keep their defaults.
	assert.Equal(t, "https://api.curve.fi/api", cfg.Dex.Curve.APIURL)
	assert.Equal(t, 2.5, cfg.Arbitrage.MinProfitThreshold)
	assert.Equal(t, 0.5, cfg.Arbitrage.MaxSlippage)
	assert.Equal(t, 4, cfg.Arbitrage.Chains.MaxHops)
	assert.True(t, cfg.Arbitrage.Chains.Enabled)
	assert.Equal(t, 0.8, cfg.Arbitrage.Chains.MaxRiskScore)
	assert.Equal(t, "secret", cfg.Registry.APIKey)
	assert.Equal(t, "http://node:8545", cfg.Dex.UniswapV2.RPCURL)
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Registry.APIKey = "cg-key"
	cfg.Postgres.Password = "pw"
	cfg.Notify.TelegramToken = "tg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Registry.APIKey)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	assert.Equal(t, "", out.S3.SecretKey)
	assert.Equal(t, "cg-key", cfg.Registry.APIKey)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
