package events

import "sync"

// RingBuffer keeps the most recent events in memory for /events and for
// replay to new stream subscribers.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{events: make([]Event, size)}
}

func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.events[rb.next] = e
	rb.next++
	if rb.next == len(rb.events) {
		rb.next = 0
		rb.full = true
	}
}

// Snapshot returns the buffered events, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	return rb.Filter(nil)
}

// Filter returns the buffered events accepted by keep, oldest first. A nil
// keep accepts everything.
func (rb *RingBuffer) Filter(keep func(Event) bool) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	ordered := rb.events[:rb.next]
	if rb.full {
		ordered = append(append([]Event{}, rb.events[rb.next:]...), rb.events[:rb.next]...)
	}
	out := make([]Event, 0, len(ordered))
	for _, e := range ordered {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.events)
	rb.next = 0
	rb.full = false
}
