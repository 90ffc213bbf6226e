package obs

import (
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"
)

// Metrics collects lightweight counters and latency stats for the execution
// pipeline. All methods are safe for concurrent use and tolerate a nil
// receiver so call sites need no guards.
type Metrics struct {
	eventCounts   sync.Map // schema.OrderStatus -> *uint64
	busDrops      uint64
	storeFailures uint64

	routingLatency  LatencyStats
	settleLatency   LatencyStats
	pipelineLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts     map[schema.OrderStatus]uint64 `json:"eventCounts"`
	BusDrops        uint64                        `json:"busDrops"`
	StoreFailures   uint64                        `json:"storeFailures"`
	RoutingLatency  LatencySnapshot               `json:"routingLatency"`
	SettleLatency   LatencySnapshot               `json:"settleLatency"`
	PipelineLatency LatencySnapshot               `json:"pipelineLatency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts a published status event.
func (m *Metrics) ObserveEvent(status schema.OrderStatus) {
	if m == nil {
		return
	}
	v, _ := m.eventCounts.LoadOrStore(status, new(uint64))
	atomic.AddUint64(v.(*uint64), 1)
}

// IncBusDrop records a dropped status event.
func (m *Metrics) IncBusDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.busDrops, 1)
}

// IncStoreFailure records a failed fire-and-forget store write.
func (m *Metrics) IncStoreFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.storeFailures, 1)
}

// ObserveRouting measures one quote round.
func (m *Metrics) ObserveRouting(d time.Duration) {
	if m == nil {
		return
	}
	m.routingLatency.Observe(d)
}

// ObserveSettle measures one settlement call.
func (m *Metrics) ObserveSettle(d time.Duration) {
	if m == nil {
		return
	}
	m.settleLatency.Observe(d)
}

// ObservePipeline measures one full pipeline attempt.
func (m *Metrics) ObservePipeline(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counts := make(map[schema.OrderStatus]uint64)
	m.eventCounts.Range(func(key, value any) bool {
		counts[key.(schema.OrderStatus)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return Snapshot{
		EventCounts:     counts,
		BusDrops:        atomic.LoadUint64(&m.busDrops),
		StoreFailures:   atomic.LoadUint64(&m.storeFailures),
		RoutingLatency:  m.routingLatency.Snapshot(),
		SettleLatency:   m.settleLatency.Snapshot(),
		PipelineLatency: m.pipelineLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	ns := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, ns)
	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && cur <= ns {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, ns) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&l.max)
		if cur >= ns {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, ns) {
			break
		}
	}
}

// Snapshot returns a point-in-time view of the stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
