package pipeline

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/routing"
	"main/internal/schema"
	"main/internal/store"
)

const defaultBuildDelay = 200 * time.Millisecond

// Orchestrator drives one order through its lifecycle:
// pending -> routing -> building -> submitted -> confirmed | failed.
// It is the sole mutator of an order while the order is in flight and the
// sole producer of its status events. Retry decisions belong to the
// scheduler: a failed stage surfaces as an error from Execute, and the
// terminal failed event is only emitted through Abort.
type Orchestrator struct {
	router     *routing.Engine
	bus        *bus.Bus
	store      store.Store
	metrics    *obs.Metrics
	buildDelay time.Duration
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Router     *routing.Engine
	Bus        *bus.Bus
	Store      store.Store
	Metrics    *obs.Metrics
	BuildDelay time.Duration
}

// NewOrchestrator creates an orchestrator. A nil store defaults to the noop
// store; a zero build delay defaults to 200ms.
func NewOrchestrator(cfg Config) *Orchestrator {
	st := cfg.Store
	if st == nil {
		st = store.NewNoop()
	}
	delay := cfg.BuildDelay
	if delay <= 0 {
		delay = defaultBuildDelay
	}
	return &Orchestrator{
		router:     cfg.Router,
		bus:        cfg.Bus,
		store:      st,
		metrics:    cfg.Metrics,
		buildDelay: delay,
	}
}

// Execute runs one full pipeline attempt. A retried order restarts from the
// top, including a fresh quote round, because venue prices may have moved
// between attempts. Any stage failure is returned to the caller without a
// terminal event; emitting failed is Abort's job once the scheduler decides
// retries are exhausted.
func (o *Orchestrator) Execute(ctx context.Context, order *schema.Order, attempt int) error {
	started := time.Now()
	defer func() { o.metrics.ObservePipeline(time.Since(started)) }()

	order.Reset()
	order.Attempts = attempt
	o.emit(ctx, order, schema.StatusPending, nil)
	if attempt == 1 {
		o.record(func() error { return o.store.SaveOrder(ctx, order) }, order.ID, "save order")
	}

	quote, err := o.route(ctx, order)
	if err != nil {
		return err
	}

	if err := o.build(ctx, order); err != nil {
		return err
	}

	return o.submit(ctx, order, quote)
}

// Abort marks the order failed after retry exhaustion and emits the single
// terminal failed event with the final error and total attempts made.
func (o *Orchestrator) Abort(ctx context.Context, order *schema.Order, cause error, attempts int) {
	order.Status = schema.StatusFailed
	order.Error = cause.Error()
	order.Attempts = attempts
	logs.Errorf("order %s failed after %d attempts, err: %+v", order.ID, attempts, cause)
	o.emit(ctx, order, schema.StatusFailed, schema.FailedData{
		Error:    cause.Error(),
		Attempts: attempts,
	})
}

// route fetches quotes from every venue concurrently and selects the best.
// The routing event is published only once the full quote set is in hand, so
// the per-order event sequence stays causal despite the concurrent fan-out.
func (o *Orchestrator) route(ctx context.Context, order *schema.Order) (schema.Quote, error) {
	if err := order.Transition(schema.StatusRouting); err != nil {
		return schema.Quote{}, err
	}

	routingStart := time.Now()
	quotes, err := o.router.GetQuotes(ctx, order.InputAsset, order.OutputAsset, order.AmountIn)
	o.metrics.ObserveRouting(time.Since(routingStart))
	if err != nil {
		return schema.Quote{}, errors.Wrap(err, "routing")
	}
	best, err := o.router.SelectBest(quotes)
	if err != nil {
		return schema.Quote{}, errors.Wrap(err, "routing")
	}

	order.Venue = best.Venue
	o.emit(ctx, order, schema.StatusRouting, schema.RoutingData{Quotes: quotes, Venue: best.Venue})
	o.record(func() error { return o.store.SaveQuotes(ctx, order.ID, quotes) }, order.ID, "save quotes")
	return best, nil
}

// build stands in for real transaction construction with a fixed delay. A
// real builder would surface its errors here under the same retryable
// policy.
func (o *Orchestrator) build(ctx context.Context, order *schema.Order) error {
	if err := order.Transition(schema.StatusBuilding); err != nil {
		return err
	}
	o.emit(ctx, order, schema.StatusBuilding, schema.VenueData{Venue: order.Venue})

	timer := time.NewTimer(o.buildDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "building")
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) submit(ctx context.Context, order *schema.Order, quote schema.Quote) error {
	if err := order.Transition(schema.StatusSubmitted); err != nil {
		return err
	}
	o.emit(ctx, order, schema.StatusSubmitted, schema.VenueData{Venue: order.Venue})

	v, ok := o.router.Venue(quote.Venue)
	if !ok {
		return errors.Errorf("submit: venue %s not registered", quote.Venue)
	}
	settleStart := time.Now()
	settlement, err := v.Settle(ctx, order, quote)
	o.metrics.ObserveSettle(time.Since(settleStart))
	if err != nil {
		return errors.Wrap(err, "settle on "+quote.Venue)
	}

	if err := order.Transition(schema.StatusConfirmed); err != nil {
		return err
	}
	order.ExecutedPrice = settlement.ExecutedPrice
	order.AmountOut = settlement.AmountOut
	order.Reference = settlement.Reference
	o.emit(ctx, order, schema.StatusConfirmed, schema.ConfirmedData{
		Venue:         settlement.Venue,
		Reference:     settlement.Reference,
		ExecutedPrice: settlement.ExecutedPrice,
		AmountOut:     settlement.AmountOut,
	})
	return nil
}

// emit publishes a status event best-effort and records it to the store.
// Neither the bus nor the store may affect the pipeline outcome.
func (o *Orchestrator) emit(ctx context.Context, order *schema.Order, status schema.OrderStatus, data any) {
	ev := schema.NewStatusEvent(order.ID, status, data)
	if !o.bus.Publish(ev) {
		o.metrics.IncBusDrop()
	}
	o.metrics.ObserveEvent(status)
	o.record(func() error { return o.store.SaveEvent(ctx, ev) }, order.ID, "save event")
}

func (o *Orchestrator) record(write func() error, orderID, op string) {
	if err := write(); err != nil {
		o.metrics.IncStoreFailure()
		logs.Errorf("store %s for order %s, err: %+v", op, orderID, err)
	}
}
