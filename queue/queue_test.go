package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigado/btstack/module"
)

func runOn(h *module.Handler, f func()) {
	done := make(chan struct{})
	h.Post(func() {
		f()
		close(done)
	})
	<-done
}

func collect(t *testing.T, ch chan []byte, n int) [][]byte {
	t.Helper()
	var out [][]byte
	for len(out) < n {
		select {
		case b := <-ch:
			out = append(out, b)
		case <-time.After(time.Second):
			t.Fatalf("timed out with %d of %d items", len(out), n)
		}
	}
	return out
}

func TestDequeueCallbackDrains(t *testing.T) {
	thread := module.NewThread("test")
	defer thread.Stop()
	h := thread.NewHandler()

	q := NewBidiQueue[[]byte, []byte](8)
	got := make(chan []byte, 8)

	down := q.DownEnd()
	down.RegisterDequeue(h, func() {
		b, ok := down.TryDequeue()
		require.True(t, ok)
		got <- b
	})

	up := q.UpEnd()
	for i := byte(0); i < 5; i++ {
		require.True(t, up.TryEnqueue([]byte{i}))
	}

	out := collect(t, got, 5)
	for i, b := range out {
		assert.Equal(t, []byte{byte(i)}, b)
	}
}

func TestEnqueueCallbackFeedsUntilUnregister(t *testing.T) {
	thread := module.NewThread("test")
	defer thread.Stop()
	h := thread.NewHandler()

	q := NewBidiQueue[[]byte, []byte](8)
	up := q.UpEnd()
	down := q.DownEnd()

	sent := 0
	up.RegisterEnqueue(h, func() ([]byte, bool) {
		sent++
		if sent == 3 {
			up.UnregisterEnqueue()
		}
		return []byte{byte(sent)}, true
	})

	got := make(chan []byte, 8)
	down.RegisterDequeue(h, func() {
		b, ok := down.TryDequeue()
		require.True(t, ok)
		got <- b
	})

	out := collect(t, got, 3)
	assert.Equal(t, [][]byte{{1}, {2}, {3}}, out)

	// no more after unregister
	select {
	case b := <-got:
		t.Fatalf("unexpected element %v", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTryEnqueueBounded(t *testing.T) {
	q := NewBidiQueue[int, int](2)
	up := q.UpEnd()

	assert.True(t, up.TryEnqueue(1))
	assert.True(t, up.TryEnqueue(2))
	assert.False(t, up.TryEnqueue(3))

	down := q.DownEnd()
	v, ok := down.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, up.TryEnqueue(3))
}

func TestReRegisterAfterUnregister(t *testing.T) {
	thread := module.NewThread("test")
	defer thread.Stop()
	h := thread.NewHandler()

	q := NewBidiQueue[int, int](4)
	down := q.DownEnd()

	got := make(chan int, 4)
	cb := func() {
		v, ok := down.TryDequeue()
		require.True(t, ok)
		got <- v
	}

	down.RegisterDequeue(h, cb)
	q.UpEnd().TryEnqueue(1)
	select {
	case v := <-got:
		assert.Equal(t, 1, v)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	runOn(h, down.UnregisterDequeue)
	q.UpEnd().TryEnqueue(2)
	select {
	case v := <-got:
		t.Fatalf("delivery while unregistered: %v", v)
	case <-time.After(50 * time.Millisecond):
	}

	down.RegisterDequeue(h, cb)
	select {
	case v := <-got:
		assert.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("timeout after re-register")
	}
}

func TestDoubleRegisterPanics(t *testing.T) {
	thread := module.NewThread("test")
	defer thread.Stop()
	h := thread.NewHandler()

	q := NewBidiQueue[int, int](4)
	down := q.DownEnd()
	down.RegisterDequeue(h, func() {})
	assert.Panics(t, func() { down.RegisterDequeue(h, func() {}) })

	up := q.UpEnd()
	up.RegisterEnqueue(h, func() (int, bool) { return 0, false })
	assert.Panics(t, func() { up.RegisterEnqueue(h, func() (int, bool) { return 0, false }) })
}
