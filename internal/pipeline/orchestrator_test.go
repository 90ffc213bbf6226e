package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/routing"
	"main/internal/schema"
	"main/internal/venue"
)

var testPrices = map[string]float64{"SOL/USDC": 150}

func deterministicProfile(fee float64) venue.Profile {
	return venue.Profile{
		FeeRate:     fee,
		VarianceMin: -0.02,
		VarianceMax: 0.02,
		ImpactMin:   0.001,
		ImpactMax:   0.003,
	}
}

func testOrder() *schema.Order {
	return schema.NewOrder(schema.OrderRequest{
		Kind:        schema.OrderKindMarket,
		InputAsset:  "SOL",
		OutputAsset: "USDC",
		AmountIn:    100,
		Slippage:    0.01,
	})
}

func newTestOrchestrator(t *testing.T, profiles ...venue.Profile) (*Orchestrator, *bus.Bus) {
	t.Helper()
	names := []string{"raydium", "meteora"}
	venues := make([]venue.Venue, 0, len(profiles))
	for i, profile := range profiles {
		v, err := venue.NewMock(names[i], profile, testPrices, int64(i+1))
		require.NoError(t, err)
		venues = append(venues, v)
	}
	statusBus := bus.NewBus(16)
	orch := NewOrchestrator(Config{
		Router:     routing.NewEngine(venues),
		Bus:        statusBus,
		Metrics:    obs.NewMetrics(),
		BuildDelay: 10 * time.Millisecond,
	})
	return orch, statusBus
}

func drainStatuses(ch <-chan schema.StatusEvent) []schema.StatusEvent {
	var events []schema.StatusEvent
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestExecuteHappyPath(t *testing.T) {
	orch, statusBus := newTestOrchestrator(t,
		deterministicProfile(0.003), deterministicProfile(0.002))
	order := testOrder()
	ch, err := statusBus.Subscribe(order.ID)
	require.NoError(t, err)

	require.NoError(t, orch.Execute(t.Context(), order, 1))
	require.Equal(t, schema.StatusConfirmed, order.Status)
	assert.Greater(t, order.ExecutedPrice, 0.0)
	assert.NotEmpty(t, order.Reference)

	events := drainStatuses(ch)
	require.Len(t, events, 5)
	want := []schema.OrderStatus{
		schema.StatusPending,
		schema.StatusRouting,
		schema.StatusBuilding,
		schema.StatusSubmitted,
		schema.StatusConfirmed,
	}
	for i, ev := range events {
		assert.Equal(t, want[i], ev.Status)
		assert.Equal(t, order.ID, ev.OrderID)
	}

	routingData, ok := events[1].Data.(schema.RoutingData)
	require.True(t, ok)
	assert.Len(t, routingData.Quotes, 2)
	assert.NotEmpty(t, routingData.Venue)

	confirmed, ok := events[4].Data.(schema.ConfirmedData)
	require.True(t, ok)
	assert.Greater(t, confirmed.ExecutedPrice, 0.0)
	assert.NotEmpty(t, confirmed.Reference)
}

func TestExecuteSettlementFailureIsRetryable(t *testing.T) {
	congested := deterministicProfile(0.003)
	congested.FailRate = 1
	orch, statusBus := newTestOrchestrator(t, congested)
	order := testOrder()
	ch, err := statusBus.Subscribe(order.ID)
	require.NoError(t, err)

	err = orch.Execute(t.Context(), order, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, venue.ErrVenueUnavailable)

	// A retryable failure must not surface a terminal event; only Abort may
	// publish failed.
	for _, ev := range drainStatuses(ch) {
		assert.NotEqual(t, schema.StatusFailed, ev.Status)
		assert.NotEqual(t, schema.StatusConfirmed, ev.Status)
	}
}

func TestExecuteRoutingFailureIsRetryable(t *testing.T) {
	orch, statusBus := newTestOrchestrator(t, deterministicProfile(0.003))
	order := testOrder()
	order.InputAsset = "BTC" // no venue prices this pair
	ch, err := statusBus.Subscribe(order.ID)
	require.NoError(t, err)

	err = orch.Execute(t.Context(), order, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, venue.ErrUnknownPair)

	events := drainStatuses(ch)
	require.Len(t, events, 1)
	assert.Equal(t, schema.StatusPending, events[0].Status)
}

func TestExecuteRetryRestartsFromTop(t *testing.T) {
	orch, statusBus := newTestOrchestrator(t,
		deterministicProfile(0.003), deterministicProfile(0.002))
	order := testOrder()
	order.Venue = "stale"
	order.Error = "previous failure"
	order.Status = schema.StatusSubmitted

	ch, err := statusBus.Subscribe(order.ID)
	require.NoError(t, err)

	require.NoError(t, orch.Execute(t.Context(), order, 2))
	events := drainStatuses(ch)
	require.NotEmpty(t, events)
	// A retry re-runs the whole pipeline, starting over at pending.
	assert.Equal(t, schema.StatusPending, events[0].Status)
	assert.Equal(t, 2, order.Attempts)
	assert.Empty(t, order.Error)
}

func TestAbortEmitsTerminalFailure(t *testing.T) {
	orch, statusBus := newTestOrchestrator(t, deterministicProfile(0.003))
	order := testOrder()
	ch, err := statusBus.Subscribe(order.ID)
	require.NoError(t, err)

	cause := errors.New("settle on raydium, err: congestion")
	orch.Abort(t.Context(), order, cause, 3)

	require.Equal(t, schema.StatusFailed, order.Status)
	assert.Equal(t, 3, order.Attempts)

	events := drainStatuses(ch)
	require.Len(t, events, 1)
	assert.Equal(t, schema.StatusFailed, events[0].Status)
	failed, ok := events[0].Data.(schema.FailedData)
	require.True(t, ok)
	assert.Equal(t, 3, failed.Attempts)
	assert.Contains(t, failed.Error, "congestion")
}

// failingStore errors on every write; the pipeline must not care.
type failingStore struct{}

func (failingStore) SaveOrder(context.Context, *schema.Order) error { return errors.New("db down") }
func (failingStore) SaveEvent(context.Context, schema.StatusEvent) error {
	return errors.New("db down")
}
func (failingStore) SaveQuotes(context.Context, string, []schema.Quote) error {
	return errors.New("db down")
}
func (failingStore) Close() error { return nil }

func TestStoreFailureNeverAbortsExecution(t *testing.T) {
	v, err := venue.NewMock("raydium", deterministicProfile(0.003), testPrices, 1)
	require.NoError(t, err)
	metrics := obs.NewMetrics()
	orch := NewOrchestrator(Config{
		Router:     routing.NewEngine([]venue.Venue{v}),
		Bus:        bus.NewBus(16),
		Store:      failingStore{},
		Metrics:    metrics,
		BuildDelay: time.Millisecond,
	})

	order := testOrder()
	require.NoError(t, orch.Execute(t.Context(), order, 1))
	assert.Equal(t, schema.StatusConfirmed, order.Status)
	assert.Greater(t, metrics.Snapshot().StoreFailures, uint64(0))
}

func TestExecuteHonorsContext(t *testing.T) {
	orch, _ := newTestOrchestrator(t,
		deterministicProfile(0.003), deterministicProfile(0.002))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := orch.Execute(ctx, testOrder(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
