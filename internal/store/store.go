package store

import (
	"context"

	"main/internal/schema"
)

// Store receives the audit trail of the execution pipeline: order creation,
// every status transition, and the raw quote set of each routing round.
// Writes are best-effort from the caller's point of view; a store failure is
// logged and never affects the pipeline outcome.
type Store interface {
	SaveOrder(ctx context.Context, order *schema.Order) error
	SaveEvent(ctx context.Context, ev schema.StatusEvent) error
	SaveQuotes(ctx context.Context, orderID string, quotes []schema.Quote) error
	Close() error
}

// Noop discards everything. Used when no database is configured and in
// tests.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) SaveOrder(context.Context, *schema.Order) error           { return nil }
func (Noop) SaveEvent(context.Context, schema.StatusEvent) error      { return nil }
func (Noop) SaveQuotes(context.Context, string, []schema.Quote) error { return nil }
func (Noop) Close() error                                             { return nil }
