package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSuggester struct {
	wei *big.Int
	err error
}

func (f fakeSuggester) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.wei, f.err
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func TestOracle_ReportsNodePrice(t *testing.T) {
	o := NewOracle(fakeSuggester{wei: gwei(25)}, 100, time.Second, nil)
	assert.InDelta(t, 25.0, o.GasPriceGwei(context.Background()), 1e-9)
	assert.InDelta(t, 25.0, o.Last(), 1e-9)
}

func TestOracle_CapsAtCeiling(t *testing.T) {
	o := NewOracle(fakeSuggester{wei: gwei(250)}, 100, time.Second, nil)
	assert.InDelta(t, 100.0, o.GasPriceGwei(context.Background()), 1e-9)
}

func TestOracle_FallsBackOnError(t *testing.T) {
	o := NewOracle(fakeSuggester{err: errors.New("dial tcp: refused")}, 80, time.Second, nil)
	assert.InDelta(t, 80.0, o.GasPriceGwei(context.Background()), 1e-9)
	assert.Zero(t, o.Last())
}

func TestOracle_NilClientUsesCeiling(t *testing.T) {
	o := NewOracle(nil, 60, 0, nil)
	assert.InDelta(t, 60.0, o.GasPriceGwei(context.Background()), 1e-9)
}

func TestWeiToGwei(t *testing.T) {
	assert.InDelta(t, 1.5, weiToGwei(big.NewInt(1_500_000_000)), 1e-12)
}
