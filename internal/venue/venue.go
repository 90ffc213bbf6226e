package venue

import (
	"context"
	"errors"

	"main/internal/schema"
)

var (
	ErrSlippageExceeded = errors.New("venue: realized price exceeds slippage tolerance")
	ErrVenueUnavailable = errors.New("venue: venue unavailable")
	ErrUnknownPair      = errors.New("venue: unknown asset pair")
)

// Venue is a liquidity source capable of quoting and settling a swap.
// Implementations must be safe for concurrent use and must complete or fail
// within a bounded time.
type Venue interface {
	Name() string

	// Quote prices the pair for the given input amount. The returned quote
	// is immutable and carries the venue's fee and price-impact estimate.
	Quote(ctx context.Context, inputAsset, outputAsset string, amountIn float64) (schema.Quote, error)

	// Settle executes a previously obtained quote. It fails with
	// ErrSlippageExceeded when the realized price moves beyond the order's
	// tolerance, or ErrVenueUnavailable on a transient venue failure.
	Settle(ctx context.Context, order *schema.Order, quote schema.Quote) (schema.Settlement, error)
}
