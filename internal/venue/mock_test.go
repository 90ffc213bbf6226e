package venue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

var testPrices = map[string]float64{"SOL/USDC": 150}

func testProfile() Profile {
	return Profile{
		FeeRate:       0.003,
		VarianceMin:   -0.02,
		VarianceMax:   0.02,
		ImpactMin:     0.001,
		ImpactMax:     0.003,
		SettleSlipMax: 0,
		FailRate:      0,
	}
}

func testOrder(slippage float64) *schema.Order {
	return schema.NewOrder(schema.OrderRequest{
		Kind:        schema.OrderKindMarket,
		InputAsset:  "SOL",
		OutputAsset: "USDC",
		AmountIn:    100,
		Slippage:    slippage,
	})
}

func TestProfileValidate(t *testing.T) {
	require.NoError(t, testProfile().Validate())

	bad := testProfile()
	bad.FeeRate = 1
	assert.Error(t, bad.Validate())

	bad = testProfile()
	bad.VarianceMin = 0.05
	assert.Error(t, bad.Validate())

	bad = testProfile()
	bad.FailRate = 1.5
	assert.Error(t, bad.Validate())

	bad = testProfile()
	bad.DelayMin = time.Second
	bad.DelayMax = time.Millisecond
	assert.Error(t, bad.Validate())
}

func TestQuoteWithinBounds(t *testing.T) {
	m, err := NewMock("test", testProfile(), testPrices, 42)
	require.NoError(t, err)

	for range 200 {
		q, err := m.Quote(t.Context(), "SOL", "USDC", 100)
		require.NoError(t, err)
		assert.Equal(t, "test", q.Venue)
		assert.GreaterOrEqual(t, q.Price, 150*0.98)
		assert.LessOrEqual(t, q.Price, 150*1.02)
		assert.GreaterOrEqual(t, q.PriceImpact, 0.001)
		assert.LessOrEqual(t, q.PriceImpact, 0.003)
		assert.InDelta(t, 100*q.Price*(1-0.003), q.AmountOut, 1e-9)
	}
}

func TestQuoteUnknownPair(t *testing.T) {
	m, err := NewMock("test", testProfile(), testPrices, 42)
	require.NoError(t, err)

	_, err = m.Quote(t.Context(), "BTC", "USDC", 1)
	assert.ErrorIs(t, err, ErrUnknownPair)
}

func TestSettleSuccess(t *testing.T) {
	m, err := NewMock("test", testProfile(), testPrices, 42)
	require.NoError(t, err)

	order := testOrder(0.01)
	q, err := m.Quote(t.Context(), "SOL", "USDC", 100)
	require.NoError(t, err)

	settlement, err := m.Settle(t.Context(), order, q)
	require.NoError(t, err)
	assert.NotEmpty(t, settlement.Reference)
	assert.Equal(t, q.Price, settlement.ExecutedPrice)
	assert.InDelta(t, 100*q.Price*(1-0.003), settlement.AmountOut, 1e-9)
}

// Settlements must fail whenever the realized slip exceeds the order's
// tolerance; successful ones must never slip past it silently.
func TestSettleSlippageEnforced(t *testing.T) {
	profile := testProfile()
	profile.SettleSlipMax = 0.05
	m, err := NewMock("test", profile, testPrices, 7)
	require.NoError(t, err)

	order := testOrder(0.01)
	q, err := m.Quote(t.Context(), "SOL", "USDC", 100)
	require.NoError(t, err)

	var failures int
	for range 200 {
		settlement, err := m.Settle(t.Context(), order, q)
		if err != nil {
			require.ErrorIs(t, err, ErrSlippageExceeded)
			failures++
			continue
		}
		assert.GreaterOrEqual(t, settlement.ExecutedPrice, q.Price*(1-0.01)-1e-9)
		assert.LessOrEqual(t, settlement.ExecutedPrice, q.Price)
	}
	// Slip is uniform over [0, 5%] against a 1% tolerance; seeing zero
	// rejections in 200 rounds would mean slippage is not enforced.
	assert.Greater(t, failures, 0)
}

func TestSettleForcedFailure(t *testing.T) {
	profile := testProfile()
	profile.FailRate = 1
	m, err := NewMock("test", profile, testPrices, 42)
	require.NoError(t, err)

	order := testOrder(0.01)
	q, err := m.Quote(t.Context(), "SOL", "USDC", 100)
	require.NoError(t, err)

	_, err = m.Settle(t.Context(), order, q)
	assert.ErrorIs(t, err, ErrVenueUnavailable)
}

func TestDefaultProfiles(t *testing.T) {
	raydium, err := NewRaydium(testPrices, 1)
	require.NoError(t, err)
	assert.Equal(t, "raydium", raydium.Name())
	assert.InDelta(t, 0.003, raydium.profile.FeeRate, 1e-12)

	meteora, err := NewMeteora(testPrices, 1)
	require.NoError(t, err)
	assert.Equal(t, "meteora", meteora.Name())
	assert.InDelta(t, 0.002, meteora.profile.FeeRate, 1e-12)
}
