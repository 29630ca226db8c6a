package hal

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeRWC hands scripted packets to Read and captures Write.
type pipeRWC struct {
	mu     sync.Mutex
	rx     chan []byte
	writes [][]byte
	closed bool
}

func newPipeRWC() *pipeRWC {
	return &pipeRWC{rx: make(chan []byte, 8)}
}

func (p *pipeRWC) Read(b []byte) (int, error) {
	pkt, ok := <-p.rx
	if !ok {
		return 0, io.EOF
	}
	return copy(b, pkt), nil
}

func (p *pipeRWC) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, cp)
	return len(b), nil
}

func (p *pipeRWC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.rx)
	}
	return nil
}

type captureCallbacks struct {
	events chan []byte
	acl    chan []byte
	closed chan error
}

func newCaptureCallbacks() *captureCallbacks {
	return &captureCallbacks{
		events: make(chan []byte, 8),
		acl:    make(chan []byte, 8),
		closed: make(chan error, 1),
	}
}

func (c *captureCallbacks) OnEvent(b []byte)             { c.events <- b }
func (c *captureCallbacks) OnAclData(b []byte)           { c.acl <- b }
func (c *captureCallbacks) OnTransportClosed(err error)  { c.closed <- err }

func TestPacketHalDispatch(t *testing.T) {
	rwc := newPipeRWC()
	h := NewFromPacketReadWriter(rwc)
	cb := newCaptureCallbacks()
	h.RegisterCallbacks(cb)

	rwc.rx <- []byte{pktTypeEvent, 0x0e, 0x01, 0x00}
	rwc.rx <- []byte{pktTypeACLData, 0x40, 0x00, 0x01, 0x00, 0xaa}
	rwc.rx <- []byte{pktTypeVendor, 0x01} // ignored

	select {
	case e := <-cb.events:
		assert.Equal(t, []byte{0x0e, 0x01, 0x00}, e)
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}
	select {
	case a := <-cb.acl:
		assert.Equal(t, []byte{0x40, 0x00, 0x01, 0x00, 0xaa}, a)
	case <-time.After(time.Second):
		t.Fatal("acl not dispatched")
	}
}

func TestPacketHalWriteFraming(t *testing.T) {
	rwc := newPipeRWC()
	h := NewFromPacketReadWriter(rwc)
	h.RegisterCallbacks(newCaptureCallbacks())

	require.NoError(t, h.SendCommand([]byte{0x03, 0x0c, 0x00}))
	require.NoError(t, h.SendAcl([]byte{0x40, 0x00, 0x01, 0x00, 0x55}))

	rwc.mu.Lock()
	defer rwc.mu.Unlock()
	require.Len(t, rwc.writes, 2)
	assert.Equal(t, []byte{pktTypeCommand, 0x03, 0x0c, 0x00}, rwc.writes[0])
	assert.Equal(t, []byte{pktTypeACLData, 0x40, 0x00, 0x01, 0x00, 0x55}, rwc.writes[1])
}

func TestPacketHalClose(t *testing.T) {
	rwc := newPipeRWC()
	h := NewFromPacketReadWriter(rwc)
	cb := newCaptureCallbacks()
	h.RegisterCallbacks(cb)

	require.NoError(t, h.Close())

	select {
	case <-cb.closed:
	case <-time.After(time.Second):
		t.Fatal("transport closed never reported")
	}

	assert.Error(t, h.SendCommand([]byte{0x03, 0x0c, 0x00}))
}
