package module

import "sync"

// Thread names an execution domain. Every Handler created on a Thread owns
// its own serialized goroutine; the Thread tracks them so Stop can join
// them all.
type Thread struct {
	name string

	mu       sync.Mutex
	handlers []*Handler
	stopped  bool
}

func NewThread(name string) *Thread {
	return &Thread{name: name}
}

func (t *Thread) Name() string {
	return t.name
}

// NewHandler creates a task queue bound to this thread.
func (t *Thread) NewHandler() *Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	assertf(!t.stopped, "NewHandler on stopped thread %q", t.name)
	h := newHandler(t)
	t.handlers = append(t.handlers, h)
	return h
}

// Stop closes every handler still running on the thread and waits for
// them to drain.
func (t *Thread) Stop() {
	t.mu.Lock()
	hh := t.handlers
	t.handlers = nil
	t.stopped = true
	t.mu.Unlock()

	for _, h := range hh {
		h.Close()
	}
}
