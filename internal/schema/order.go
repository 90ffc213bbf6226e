package schema

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

var (
	ErrUnsupportedKind   = errors.New("order: unsupported kind")
	ErrEmptyAsset        = errors.New("order: empty asset symbol")
	ErrSameAsset         = errors.New("order: input and output asset are identical")
	ErrNonPositiveAmount = errors.New("order: amount must be > 0")
	ErrSlippageRange     = errors.New("order: slippage must be within [0, 0.5]")
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

// OrderKind describes the trigger semantics of an order.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
)

// OrderStatus tracks the lifecycle of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusRouting   OrderStatus = "routing"
	StatusBuilding  OrderStatus = "building"
	StatusSubmitted OrderStatus = "submitted"
	StatusConfirmed OrderStatus = "confirmed"
	StatusFailed    OrderStatus = "failed"
)

// IsTerminal reports whether the status ends the order lifecycle.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving to the next status is allowed.
// Statuses only move forward; no transition skips a stage, and failed is
// reachable from every non-terminal stage past admission.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StatusPending:
		return s == StatusPending
	case StatusRouting:
		return s == StatusPending
	case StatusBuilding:
		return s == StatusRouting
	case StatusSubmitted:
		return s == StatusBuilding
	case StatusConfirmed:
		return s == StatusSubmitted
	case StatusFailed:
		return s == StatusRouting || s == StatusBuilding || s == StatusSubmitted
	default:
		return false
	}
}

// OrderRequest is the validated inbound payload creating an order.
type OrderRequest struct {
	Kind        OrderKind `json:"kind"`
	InputAsset  string    `json:"inputAsset"`
	OutputAsset string    `json:"outputAsset"`
	AmountIn    float64   `json:"amountIn"`
	Slippage    float64   `json:"slippage"`
}

// Validate rejects malformed or out-of-range order fields. Violations never
// reach the scheduler.
func (r OrderRequest) Validate() error {
	if r.Kind != OrderKindMarket {
		return ErrUnsupportedKind
	}
	if r.InputAsset == "" || r.OutputAsset == "" {
		return ErrEmptyAsset
	}
	if r.InputAsset == r.OutputAsset {
		return ErrSameAsset
	}
	if r.AmountIn <= 0 {
		return ErrNonPositiveAmount
	}
	if r.Slippage < 0 || r.Slippage > 0.5 {
		return ErrSlippageRange
	}
	return nil
}

// Order is one swap execution tracked through the pipeline. The immutable
// request fields are set on admission; the execution fields are owned by the
// pipeline while the order is in flight.
type Order struct {
	ID          string    `json:"id"`
	Kind        OrderKind `json:"kind"`
	InputAsset  string    `json:"inputAsset"`
	OutputAsset string    `json:"outputAsset"`
	AmountIn    float64   `json:"amountIn"`
	Slippage    float64   `json:"slippage"`
	CreatedAt   time.Time `json:"createdAt"`

	Status        OrderStatus `json:"status"`
	Venue         string      `json:"venue,omitempty"`
	ExecutedPrice float64     `json:"executedPrice,omitempty"`
	AmountOut     float64     `json:"amountOut,omitempty"`
	Reference     string      `json:"reference,omitempty"`
	Error         string      `json:"error,omitempty"`
	Attempts      int         `json:"attempts,omitempty"`
}

// NewOrder builds an order from a validated request.
func NewOrder(r OrderRequest) *Order {
	return &Order{
		ID:          NewID(),
		Kind:        r.Kind,
		InputAsset:  r.InputAsset,
		OutputAsset: r.OutputAsset,
		AmountIn:    r.AmountIn,
		Slippage:    r.Slippage,
		CreatedAt:   time.Now().UTC(),
		Status:      StatusPending,
	}
}

// Transition moves the order to the next status, enforcing the lifecycle
// graph.
func (o *Order) Transition(next OrderStatus) error {
	if o.Status == next {
		return nil
	}
	if !o.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	o.Status = next
	return nil
}

// Reset clears the execution fields before a fresh pipeline attempt. Venue
// state may have moved between attempts, so nothing from a failed pass is
// carried over.
func (o *Order) Reset() {
	o.Status = StatusPending
	o.Venue = ""
	o.ExecutedPrice = 0
	o.AmountOut = 0
	o.Reference = ""
	o.Error = ""
}

// NewID returns a random 16-byte hex identifier.
func NewID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().UTC().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(buf)
}
