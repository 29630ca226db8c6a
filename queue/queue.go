// Package queue implements the bidirectional packet queue connecting stack
// layers. Each end enqueues in one direction and dequeues the other;
// producers and consumers attach callbacks that run on their module's
// handler, so all queue notifications obey the single-threaded execution
// model.
package queue

import (
	"sync"

	"github.com/rigado/btstack/module"
)


// direction is one flow direction of a BidiQueue: a bounded FIFO with an
// optional registered consumer (dequeue side) and an optional registered
// producer (enqueue side).
type direction[T any] struct {
	mu       sync.Mutex
	capacity int
	items    []T

	deqHandler   *module.Handler
	deqCb        func()
	deqScheduled bool

	enqHandler   *module.Handler
	enqCb        func() (T, bool)
	enqScheduled bool
}

func (d *direction[T]) registerDequeue(h *module.Handler, cb func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deqCb != nil {
		panic("dequeue already registered")
	}
	d.deqHandler = h
	d.deqCb = cb
	d.scheduleDequeueLocked()
}

func (d *direction[T]) unregisterDequeue() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deqHandler = nil
	d.deqCb = nil
}

func (d *direction[T]) tryDequeue() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	if len(d.items) == 0 {
		return zero, false
	}
	item := d.items[0]
	d.items[0] = zero
	d.items = d.items[1:]
	d.scheduleEnqueueLocked()
	return item, true
}

func (d *direction[T]) registerEnqueue(h *module.Handler, cb func() (T, bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enqCb != nil {
		panic("enqueue already registered")
	}
	d.enqHandler = h
	d.enqCb = cb
	d.scheduleEnqueueLocked()
}

func (d *direction[T]) unregisterEnqueue() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enqHandler = nil
	d.enqCb = nil
}

func (d *direction[T]) tryEnqueue(item T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) >= d.capacity {
		return false
	}
	d.items = append(d.items, item)
	d.scheduleDequeueLocked()
	return true
}

// scheduleDequeueLocked posts one consumer notification if the queue is
// non-empty and a consumer is registered. The trampoline re-schedules
// itself after each callback, so deliveries drain iteratively rather
// than recursively.
func (d *direction[T]) scheduleDequeueLocked() {
	if d.deqCb == nil || d.deqScheduled || len(d.items) == 0 {
		return
	}
	d.deqScheduled = true
	d.deqHandler.Post(d.runDequeue)
}

func (d *direction[T]) runDequeue() {
	d.mu.Lock()
	d.deqScheduled = false
	cb := d.deqCb
	if cb == nil || len(d.items) == 0 {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	cb()

	d.mu.Lock()
	d.scheduleDequeueLocked()
	d.mu.Unlock()
}

func (d *direction[T]) scheduleEnqueueLocked() {
	if d.enqCb == nil || d.enqScheduled || len(d.items) >= d.capacity {
		return
	}
	d.enqScheduled = true
	d.enqHandler.Post(d.runEnqueue)
}

func (d *direction[T]) runEnqueue() {
	d.mu.Lock()
	d.enqScheduled = false
	cb := d.enqCb
	if cb == nil || len(d.items) >= d.capacity {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	// The callback may unregister before returning; the element it hands
	// back is still accepted.
	item, ok := cb()

	d.mu.Lock()
	if ok {
		if len(d.items) >= d.capacity {
			// Capacity is checked before the callback runs and only the
			// registered producer inserts, so this cannot happen.
			panic("enqueue callback overfilled queue")
		}
		d.items = append(d.items, item)
		d.scheduleDequeueLocked()
	}
	d.scheduleEnqueueLocked()
	d.mu.Unlock()
}

func (d *direction[T]) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// BidiQueue couples a down direction (toward the controller) with an up
// direction (toward the upper layers).
type BidiQueue[Down, Up any] struct {
	down direction[Down]
	up   direction[Up]

	upEnd   End[Down, Up]
	downEnd End[Up, Down]
}

// NewBidiQueue creates a queue whose directions each hold up to capacity
// elements.
func NewBidiQueue[Down, Up any](capacity int) *BidiQueue[Down, Up] {
	q := &BidiQueue[Down, Up]{}
	q.down.capacity = capacity
	q.up.capacity = capacity
	q.upEnd = End[Down, Up]{enq: &q.down, deq: &q.up}
	q.downEnd = End[Up, Down]{enq: &q.up, deq: &q.down}
	return q
}

// UpEnd is the upper layer's view: enqueue Down elements, dequeue Up
// elements.
func (q *BidiQueue[Down, Up]) UpEnd() *End[Down, Up] {
	return &q.upEnd
}

// DownEnd is the lower layer's view: enqueue Up elements, dequeue Down
// elements.
func (q *BidiQueue[Down, Up]) DownEnd() *End[Up, Down] {
	return &q.downEnd
}

// End is one endpoint of a BidiQueue.
type End[Enq, Deq any] struct {
	enq *direction[Enq]
	deq *direction[Deq]
}

// RegisterEnqueue attaches a producer. cb is invoked on h whenever the
// queue has room; it returns the element to insert, or ok=false to skip.
// At most one producer may be registered at a time.
func (e *End[Enq, Deq]) RegisterEnqueue(h *module.Handler, cb func() (Enq, bool)) {
	e.enq.registerEnqueue(h, cb)
}

// UnregisterEnqueue detaches the producer. Safe to call from within the
// producer callback.
func (e *End[Enq, Deq]) UnregisterEnqueue() {
	e.enq.unregisterEnqueue()
}

// TryEnqueue inserts item without registering a producer. It reports
// whether the queue had room.
func (e *End[Enq, Deq]) TryEnqueue(item Enq) bool {
	return e.enq.tryEnqueue(item)
}

// RegisterDequeue attaches a consumer. cb is invoked on h while the queue
// is non-empty; it normally calls TryDequeue once. At most one consumer
// may be registered at a time.
func (e *End[Enq, Deq]) RegisterDequeue(h *module.Handler, cb func()) {
	e.deq.registerDequeue(h, cb)
}

// UnregisterDequeue detaches the consumer. Safe to call from within the
// consumer callback.
func (e *End[Enq, Deq]) UnregisterDequeue() {
	e.deq.unregisterDequeue()
}

// TryDequeue pops the front element, if any.
func (e *End[Enq, Deq]) TryDequeue() (Deq, bool) {
	return e.deq.tryDequeue()
}

// Len reports the number of elements waiting to be dequeued from this end.
func (e *End[Enq, Deq]) Len() int {
	return e.deq.len()
}
