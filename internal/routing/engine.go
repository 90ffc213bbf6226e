package routing

import (
	"context"
	"sync"

	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/internal/venue"
)

var (
	ErrNoVenues = errors.New("routing: no venues configured")
	ErrNoQuotes = errors.New("routing: empty quote set")
)

// Engine fans quote requests out to every configured venue and picks the
// best offer. It holds no per-order state and is safe for concurrent use.
// The venue slice order is the tie-break priority for quote selection.
type Engine struct {
	venues []venue.Venue
}

// NewEngine creates a routing engine over the given venues.
func NewEngine(venues []venue.Venue) *Engine {
	return &Engine{venues: venues}
}

// Venue returns the venue registered under the given name.
func (e *Engine) Venue(name string) (venue.Venue, bool) {
	for _, v := range e.venues {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// GetQuotes queries all venues concurrently and returns one quote per venue,
// in venue priority order. Any single venue failure fails the whole round;
// the caller decides whether to retry.
func (e *Engine) GetQuotes(ctx context.Context, inputAsset, outputAsset string, amountIn float64) ([]schema.Quote, error) {
	if len(e.venues) == 0 {
		return nil, ErrNoVenues
	}

	quotes := make([]schema.Quote, len(e.venues))
	errs := make([]error, len(e.venues))
	var wg sync.WaitGroup
	for i, v := range e.venues {
		wg.Add(1)
		go func(i int, v venue.Venue) {
			defer wg.Done()
			q, err := v.Quote(ctx, inputAsset, outputAsset, amountIn)
			if err != nil {
				errs[i] = errors.Wrap(err, "quote "+v.Name())
				return
			}
			quotes[i] = q
		}(i, v)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return quotes, nil
}

// SelectBest returns the quote with the maximum net executable output.
// Ties resolve to the earliest quote in venue priority order, never at
// random, so routing decisions stay auditable.
func (e *Engine) SelectBest(quotes []schema.Quote) (schema.Quote, error) {
	if len(quotes) == 0 {
		return schema.Quote{}, ErrNoQuotes
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.AmountOut > best.AmountOut {
			best = q
		}
	}
	return best, nil
}
