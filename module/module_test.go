package module

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	mu     sync.Mutex
	events []string
}

func (r *record) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

type testModule struct {
	Base
	name string
	deps []*Factory
	rec  *record
}

func (m *testModule) ListDependencies(l *List) {
	for _, d := range m.deps {
		l.Add(d)
	}
}

func (m *testModule) Start() { m.rec.add(m.name + ":start") }
func (m *testModule) Stop()  { m.rec.add(m.name + ":stop") }

func newTestFactory(name string, rec *record, deps ...*Factory) *Factory {
	return NewFactory(func() Module {
		return &testModule{name: name, deps: deps, rec: rec}
	})
}

func TestStartStopOrder(t *testing.T) {
	rec := &record{}
	a := newTestFactory("a", rec)
	b := newTestFactory("b", rec, a)
	c := newTestFactory("c", rec, b)

	thread := NewThread("test")
	defer thread.Stop()
	reg := NewRegistry()

	list := &List{}
	list.Add(c)
	reg.Start(list, thread)

	require.Equal(t, []string{"a:start", "b:start", "c:start"}, rec.events)

	reg.StopAll()
	assert.Equal(t, []string{"a:start", "b:start", "c:start", "c:stop", "b:stop", "a:stop"}, rec.events)
	assert.False(t, reg.IsStarted(a))
	assert.False(t, reg.IsStarted(c))
}

func TestStartOnlyOnce(t *testing.T) {
	rec := &record{}
	a := newTestFactory("a", rec)
	b := newTestFactory("b", rec, a)
	c := newTestFactory("c", rec, a, b)

	thread := NewThread("test")
	defer thread.Stop()
	reg := NewRegistry()

	list := &List{}
	list.Add(b)
	list.Add(c)
	list.Add(a)
	reg.Start(list, thread)
	defer reg.StopAll()

	assert.Equal(t, []string{"a:start", "b:start", "c:start"}, rec.events)
}

func TestGetUnstartedPanics(t *testing.T) {
	rec := &record{}
	a := newTestFactory("a", rec)

	reg := NewRegistry()
	assert.Panics(t, func() { reg.Get(a) })
}

func TestGetDependency(t *testing.T) {
	rec := &record{}
	a := newTestFactory("a", rec)
	b := newTestFactory("b", rec, a)
	undeclared := newTestFactory("u", rec)

	thread := NewThread("test")
	defer thread.Stop()
	reg := NewRegistry()

	list := &List{}
	list.Add(b)
	list.Add(undeclared)
	reg.Start(list, thread)
	defer reg.StopAll()

	mb := reg.Get(b).(*testModule)
	assert.Equal(t, "a", mb.GetDependency(a).(*testModule).name)
	assert.Panics(t, func() { mb.GetDependency(undeclared) })
}

func TestHandlerSerializesCallbacks(t *testing.T) {
	thread := NewThread("test")
	defer thread.Stop()
	h := thread.NewHandler()

	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		h.Post(func() {
			got = append(got, i)
			if i == 99 {
				close(done)
			}
		})
	}
	<-done

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestHandlerCloseDrains(t *testing.T) {
	thread := NewThread("test")
	h := thread.NewHandler()

	var ran int
	for i := 0; i < 10; i++ {
		h.Post(func() { ran++ })
	}
	h.Close()
	assert.Equal(t, 10, ran)

	// posting after close is dropped with a warning
	h.Post(func() { ran++ })
	assert.Equal(t, 10, ran)
	thread.Stop()
}
