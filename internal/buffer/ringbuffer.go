// Package buffer provides the bounded ingestion buffer between samplers and
// the batch writer.
//
// The buffer is multi-producer, single-consumer: any number of samplers push
// completed events, exactly one batch writer drains them. Overflow policy is
// drop-oldest: a full buffer evicts its oldest un-persisted event to admit
// the new one, so producers are never blocked.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/xtxerr/pulse/internal/event"
)

// RingBuffer is a thread-safe circular buffer of latency events.
// It uses a simple mutex-based approach for correctness; producer insertion
// is O(1) and holds the lock only for the copy.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []event.LatencyEvent
	head     int64 // Next write position
	tail     int64 // Oldest data position
	count    int64 // Current number of elements
	capacity int64

	// Statistics
	pushCount atomic.Int64
	popCount  atomic.Int64
	dropCount atomic.Int64
}

// New creates a new RingBuffer with the given capacity.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &RingBuffer{
		data:     make([]event.LatencyEvent, capacity),
		capacity: int64(capacity),
	}
}

// Push adds an event to the buffer.
// Returns false if the buffer is full and the event was rejected.
func (rb *RingBuffer) Push(ev event.LatencyEvent) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count >= rb.capacity {
		rb.dropCount.Add(1)
		return false
	}

	idx := rb.head % rb.capacity
	rb.data[idx] = ev
	rb.head++
	rb.count++
	rb.pushCount.Add(1)

	return true
}

// PushOverwrite adds an event to the buffer, evicting the oldest if full.
// Returns true if an eviction happened, so the caller can account the drop.
func (rb *RingBuffer) PushOverwrite(ev event.LatencyEvent) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	evicted := false
	if rb.count >= rb.capacity {
		// Overwrite oldest
		rb.tail++
		rb.count--
		rb.dropCount.Add(1)
		evicted = true
	}

	idx := rb.head % rb.capacity
	rb.data[idx] = ev
	rb.head++
	rb.count++
	rb.pushCount.Add(1)

	return evicted
}

// Pop removes and returns the oldest event.
// Returns false if the buffer is empty.
func (rb *RingBuffer) Pop() (event.LatencyEvent, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 {
		return event.LatencyEvent{}, false
	}

	idx := rb.tail % rb.capacity
	ev := rb.data[idx]
	rb.data[idx] = event.LatencyEvent{} // Clear for GC
	rb.tail++
	rb.count--
	rb.popCount.Add(1)

	return ev, true
}

// PopN removes and returns up to n oldest events, in arrival order.
// This is the batch writer's drain primitive.
func (rb *RingBuffer) PopN(n int) []event.LatencyEvent {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 || n <= 0 {
		return nil
	}

	count := int64(n)
	if count > rb.count {
		count = rb.count
	}

	result := make([]event.LatencyEvent, count)
	for i := int64(0); i < count; i++ {
		idx := (rb.tail + i) % rb.capacity
		result[i] = rb.data[idx]
		rb.data[idx] = event.LatencyEvent{}
	}

	rb.tail += count
	rb.count -= count
	rb.popCount.Add(count)

	return result
}

// Peek returns the oldest event without removing it.
// Returns false if the buffer is empty.
func (rb *RingBuffer) Peek() (event.LatencyEvent, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return event.LatencyEvent{}, false
	}

	idx := rb.tail % rb.capacity
	return rb.data[idx], true
}

// PeekNewest returns the newest event without removing it.
// Returns false if the buffer is empty.
func (rb *RingBuffer) PeekNewest() (event.LatencyEvent, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return event.LatencyEvent{}, false
	}

	idx := (rb.head - 1) % rb.capacity
	if idx < 0 {
		idx += rb.capacity
	}
	return rb.data[idx], true
}

// Len returns the current number of events in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(rb.count)
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer) Cap() int {
	return int(rb.capacity)
}

// IsEmpty returns true if the buffer is empty.
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count == 0
}

// IsFull returns true if the buffer is full.
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count >= rb.capacity
}

// UsageRatio returns the current usage as a ratio (0.0 - 1.0).
func (rb *RingBuffer) UsageRatio() float64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return float64(rb.count) / float64(rb.capacity)
}

// Clear removes all events from the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Clear all data for GC
	for i := range rb.data {
		rb.data[i] = event.LatencyEvent{}
	}

	rb.head = 0
	rb.tail = 0
	rb.count = 0
}

// Stats returns buffer statistics.
func (rb *RingBuffer) Stats() Stats {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return Stats{
		Capacity:   int(rb.capacity),
		Count:      int(rb.count),
		UsageRatio: float64(rb.count) / float64(rb.capacity),
		PushCount:  rb.pushCount.Load(),
		PopCount:   rb.popCount.Load(),
		DropCount:  rb.dropCount.Load(),
	}
}

// Stats holds buffer statistics.
type Stats struct {
	Capacity   int     `json:"capacity"`
	Count      int     `json:"count"`
	UsageRatio float64 `json:"usage_ratio"`
	PushCount  int64   `json:"push_count"`
	PopCount   int64   `json:"pop_count"`
	DropCount  int64   `json:"drop_count"`
}
