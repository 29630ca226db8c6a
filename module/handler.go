package module

import (
	"sync"
)

// Handler is a single-threaded task queue. Callbacks posted to a Handler
// run one at a time, strictly in post order, on a goroutine owned by the
// Handler. Modules serialize all state mutation through their Handler, so
// no locking is needed inside module callbacks.
type Handler struct {
	thread *Thread

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	joined chan struct{}
}

func newHandler(t *Thread) *Handler {
	h := &Handler{
		thread: t,
		joined: make(chan struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	go h.loop()
	return h
}

// Thread returns the execution domain this handler belongs to.
func (h *Handler) Thread() *Thread {
	return h.thread
}

// Post enqueues f to run on the handler's goroutine. Post never blocks.
// Posting to a closed handler drops f with a warning.
func (h *Handler) Post(f func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		logger.Warn("post to closed handler dropped")
		return
	}
	h.queue = append(h.queue, f)
	h.cond.Signal()
	h.mu.Unlock()
}

// Close drains the pending queue, stops the goroutine and waits for it to
// exit. Close must not be called from a callback running on h.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		<-h.joined
		return
	}
	h.closed = true
	h.cond.Signal()
	h.mu.Unlock()
	<-h.joined
}

func (h *Handler) loop() {
	for {
		h.mu.Lock()
		for len(h.queue) == 0 && !h.closed {
			h.cond.Wait()
		}
		if len(h.queue) == 0 {
			h.mu.Unlock()
			close(h.joined)
			return
		}
		f := h.queue[0]
		h.queue = h.queue[1:]
		h.mu.Unlock()
		f()
	}
}
