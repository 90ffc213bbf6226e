package schema

import "time"

// Quote is one venue's priced offer for an asset pair and amount, captured
// at a point in time. Quotes are immutable once produced.
type Quote struct {
	Venue       string    `json:"venue"`
	InputAsset  string    `json:"inputAsset"`
	OutputAsset string    `json:"outputAsset"`
	AmountIn    float64   `json:"amountIn"`
	Price       float64   `json:"price"`
	AmountOut   float64   `json:"amountOut"`
	FeeRate     float64   `json:"feeRate"`
	PriceImpact float64   `json:"priceImpact"`
	Timestamp   time.Time `json:"timestamp"`
}

// Settlement is the outcome of executing a quoted trade.
type Settlement struct {
	Venue         string    `json:"venue"`
	Reference     string    `json:"reference"`
	ExecutedPrice float64   `json:"executedPrice"`
	AmountOut     float64   `json:"amountOut"`
	SettledAt     time.Time `json:"settledAt"`
}
