package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() OrderRequest {
	return OrderRequest{
		Kind:        OrderKindMarket,
		InputAsset:  "SOL",
		OutputAsset: "USDC",
		AmountIn:    100,
		Slippage:    0.01,
	}
}

func TestOrderRequestValidate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	tests := []struct {
		name    string
		mutate  func(*OrderRequest)
		wantErr error
	}{
		{"unsupported kind", func(r *OrderRequest) { r.Kind = "limit" }, ErrUnsupportedKind},
		{"empty input asset", func(r *OrderRequest) { r.InputAsset = "" }, ErrEmptyAsset},
		{"empty output asset", func(r *OrderRequest) { r.OutputAsset = "" }, ErrEmptyAsset},
		{"same asset", func(r *OrderRequest) { r.OutputAsset = "SOL" }, ErrSameAsset},
		{"zero amount", func(r *OrderRequest) { r.AmountIn = 0 }, ErrNonPositiveAmount},
		{"negative amount", func(r *OrderRequest) { r.AmountIn = -1 }, ErrNonPositiveAmount},
		{"negative slippage", func(r *OrderRequest) { r.Slippage = -0.01 }, ErrSlippageRange},
		{"slippage above half", func(r *OrderRequest) { r.Slippage = 0.51 }, ErrSlippageRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			assert.ErrorIs(t, req.Validate(), tt.wantErr)
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	order := NewOrder(validRequest())
	require.Equal(t, StatusPending, order.Status)
	require.NotEmpty(t, order.ID)

	require.NoError(t, order.Transition(StatusRouting))
	require.NoError(t, order.Transition(StatusBuilding))
	require.NoError(t, order.Transition(StatusSubmitted))
	require.NoError(t, order.Transition(StatusConfirmed))
	assert.True(t, order.Status.IsTerminal())

	// Terminal statuses never move again.
	assert.ErrorIs(t, order.Transition(StatusFailed), ErrInvalidTransition)
}

func TestStatusNoSkips(t *testing.T) {
	order := NewOrder(validRequest())
	assert.ErrorIs(t, order.Transition(StatusBuilding), ErrInvalidTransition)
	assert.ErrorIs(t, order.Transition(StatusSubmitted), ErrInvalidTransition)
	assert.ErrorIs(t, order.Transition(StatusConfirmed), ErrInvalidTransition)
}

func TestFailedReachableFromPipelineStages(t *testing.T) {
	for _, from := range []OrderStatus{StatusRouting, StatusBuilding, StatusSubmitted} {
		assert.Truef(t, from.CanTransition(StatusFailed), "failed should be reachable from %s", from)
	}
	assert.False(t, StatusPending.CanTransition(StatusFailed))
	assert.False(t, StatusConfirmed.CanTransition(StatusFailed))
}

func TestOrderReset(t *testing.T) {
	order := NewOrder(validRequest())
	require.NoError(t, order.Transition(StatusRouting))
	order.Venue = "raydium"
	order.ExecutedPrice = 150
	order.AmountOut = 14900
	order.Reference = "abc"
	order.Error = "boom"

	order.Reset()
	assert.Equal(t, StatusPending, order.Status)
	assert.Empty(t, order.Venue)
	assert.Zero(t, order.ExecutedPrice)
	assert.Zero(t, order.AmountOut)
	assert.Empty(t, order.Reference)
	assert.Empty(t, order.Error)
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id := NewID()
		require.Len(t, id, 32)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
