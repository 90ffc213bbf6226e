package bus

import (
	"errors"
	"sync"

	"main/internal/schema"
)

var ErrBusClosed = errors.New("bus: status bus closed")

const defaultBuffer = 16

// Bus forwards status events to the single live subscriber of each order.
// Delivery is best-effort and fire-and-forget: publishing never blocks, and
// events without a reachable subscriber are dropped. Durability belongs to
// the store, not here.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan schema.StatusEvent
	buffer int
	closed bool
}

// NewBus allocates a bus with the given per-subscriber buffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		subs:   make(map[string]chan schema.StatusEvent),
		buffer: buffer,
	}
}

// Subscribe registers the live subscriber for an order. A later call for the
// same id replaces the previous subscriber and closes its channel; there is
// no fan-out to multiple listeners.
func (b *Bus) Subscribe(orderID string) (<-chan schema.StatusEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	if prev, ok := b.subs[orderID]; ok {
		close(prev)
	}
	ch := make(chan schema.StatusEvent, b.buffer)
	b.subs[orderID] = ch
	return ch, nil
}

// Publish delivers the event to the order's subscriber if one is registered.
// It reports whether the event was delivered; a false return means the event
// was dropped (no subscriber, full buffer, or closed bus).
func (b *Bus) Publish(ev schema.StatusEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	ch, ok := b.subs[ev.OrderID]
	if !ok {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

// Unsubscribe removes and closes the order's subscriber channel.
func (b *Bus) Unsubscribe(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[orderID]; ok {
		close(ch)
		delete(b.subs, orderID)
	}
}

// UnsubscribeAll tears down every subscriber and stops future publishes.
func (b *Bus) UnsubscribeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.closed = true
}
