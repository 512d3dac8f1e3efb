package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/config"
	"github.com/alanyoungcy/dexarb/internal/dex"
	"github.com/alanyoungcy/dexarb/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Cache.FilePath = filepath.Join(t.TempDir(), "tokens.json")
	cfg.Registry.BatchDelay.Duration = 0
	return &cfg
}

func TestWireDefaults(t *testing.T) {
	cfg := testConfig(t)

	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, []string{"curve", "sushiswap", "uniswap_v2"}, dex.Names(deps.Sources))
	assert.Len(t, deps.Pairs, 6)
	assert.Empty(t, deps.Checks, "no infrastructure is enabled by default")
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.OpportunityStore)
	assert.Nil(t, deps.PoolStore)
	assert.NotNil(t, deps.Chains)
	assert.NotNil(t, deps.Gas)
	assert.NotNil(t, deps.Tokens)
	assert.NotNil(t, deps.Opportunities)
	assert.False(t, deps.Notifier.Enabled())
}

func TestScanModeWithoutSources(t *testing.T) {
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer registry.Close()

	cfg := testConfig(t)
	cfg.Mode = "scan"
	cfg.Registry.BaseURL = registry.URL
	cfg.Dex.UniswapV2.Enabled = false
	cfg.Dex.SushiSwap.Enabled = false
	cfg.Dex.Curve.Enabled = false

	a := New(cfg, discard())
	defer a.Close()
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "trade"

	a := New(cfg, discard())
	defer a.Close()
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported mode "trade"`)
}

func TestBuildPairs(t *testing.T) {
	pairs := buildPairs([]config.TokenConfig{
		{Symbol: "WETH", Decimals: 18},
		{Symbol: "USDC", Decimals: 6},
		{Symbol: "DAI", Decimals: 18},
	})
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key()
	}
	assert.Equal(t, []string{"WETH/USDC", "WETH/DAI", "USDC/DAI"}, keys)
	assert.Nil(t, toAssets(nil))
}

func TestWriteTokenTable(t *testing.T) {
	rank := 2
	price := 3150.25
	addr := "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	tokens := []domain.Token{
		{Symbol: "WETH", Name: "Wrapped Ether", MarketCapRank: &rank, CurrentPrice: &price,
			Platforms: map[string]*string{"ethereum": &addr}},
		{Symbol: "XYZ", Name: "Unranked"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeTokenTable(&buf, tokens, "ethereum"))
	out := buf.String()
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "3150.25")
	assert.Contains(t, out, addr)
	assert.Contains(t, out, "Unranked")
}

func TestIgnoreCanceled(t *testing.T) {
	assert.NoError(t, ignoreCanceled(nil))
	assert.NoError(t, ignoreCanceled(fmt.Errorf("loop: %w", context.Canceled)))
	boom := errors.New("boom")
	assert.ErrorIs(t, ignoreCanceled(boom), boom)
}
