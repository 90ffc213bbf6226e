package schema

import "time"

// StatusEvent is one lifecycle transition of an order. Events for a single
// order form a causal sequence; the pipeline is the sole producer and
// emission order is observation order.
type StatusEvent struct {
	OrderID   string      `json:"orderId"`
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// RoutingData carries the quote set and selected venue of a routing round.
type RoutingData struct {
	Quotes []Quote `json:"quotes"`
	Venue  string  `json:"venue"`
}

// VenueData carries the selected venue through the build/submit stages.
type VenueData struct {
	Venue string `json:"venue"`
}

// ConfirmedData carries the settlement outcome.
type ConfirmedData struct {
	Venue         string  `json:"venue"`
	Reference     string  `json:"reference"`
	ExecutedPrice float64 `json:"executedPrice"`
	AmountOut     float64 `json:"amountOut"`
}

// FailedData carries the terminal failure reason and total attempts made.
type FailedData struct {
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// NewStatusEvent stamps an event with the current time.
func NewStatusEvent(orderID string, status OrderStatus, data any) StatusEvent {
	return StatusEvent{
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
