package curve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

const poolsBody = `{
  "success": true,
  "data": {
    "poolData": [
      {
        "id": "3pool",
        "address": "0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7",
        "name": "Curve.fi DAI/USDC/USDT",
        "usdTotal": 180000000.5,
        "volumeUSD": 1200000,
        "coins": [
          {"address": "0x6B175474E89094C44Da98b954EedeAC495271d0F", "symbol": "DAI", "decimals": "18", "usdPrice": 1.0, "poolBalance": "60000000000000000000000000"},
          {"address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "symbol": "USDC", "decimals": 6, "usdPrice": 0.999, "poolBalance": "60000000000000"},
          {"address": "0xdAC17F958D2ee523a2206206994597C13D831ec7", "symbol": "USDT", "decimals": "6", "usdPrice": null, "poolBalance": "60000000000000"}
        ]
      }
    ]
  }
}`

func TestGetPools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getPools/ethereum/main", r.URL.Path)
		_, _ = w.Write([]byte(poolsBody))
	}))
	defer srv.Close()

	pools, err := NewClient(srv.URL, time.Second).GetPools(context.Background(), "ethereum", "main")
	require.NoError(t, err)
	require.Len(t, pools, 1)

	p := pools[0]
	assert.Equal(t, "3pool", p.ID)
	assert.InDelta(t, 180000000.5, p.USDTotal, 1e-6)
	require.Len(t, p.Coins, 3)
	assert.Equal(t, Int(18), p.Coins[0].Decimals)
	assert.Equal(t, Int(6), p.Coins[1].Decimals)
	assert.Nil(t, p.Coins[2].USDPrice)
}

func TestGetPoolsUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "data": {"poolData": []}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).GetPools(context.Background(), "ethereum", "main")
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestGetPoolsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).GetPools(context.Background(), "ethereum", "main")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestIntUnmarshal(t *testing.T) {
	var i Int
	require.NoError(t, i.UnmarshalJSON([]byte(`"8"`)))
	assert.Equal(t, Int(8), i)
	require.NoError(t, i.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, Int(0), i)
	assert.Error(t, i.UnmarshalJSON([]byte(`"x"`)))
}
