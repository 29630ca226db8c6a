// Package hal defines the byte transport boundary between the stack and
// the Bluetooth controller, and the module wrapping it for the lifecycle
// runtime. Concrete drivers live in the h4 and socket subpackages.
package hal

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/rigado/btstack"
)

var logger = btstack.GetLogger().ChildLogger(map[string]interface{}{"pkg": "hal"})

// Callbacks receives inbound traffic, already split from the transport
// packet indicator. Callbacks are invoked from the HAL's read goroutine;
// receivers repost to their own handler.
type Callbacks interface {
	OnEvent(b []byte)
	OnAclData(b []byte)
	OnTransportClosed(err error)
}

// Hal is the duplex byte transport for HCI traffic.
type Hal interface {
	SendCommand(b []byte) error
	SendAcl(b []byte) error
	RegisterCallbacks(cb Callbacks)
	Close() error
}

// HCI packet indicators on the wire [Vol 4, Part A, 2].
const (
	pktTypeCommand uint8 = 0x01
	pktTypeACLData uint8 = 0x02
	pktTypeSCOData uint8 = 0x03
	pktTypeEvent   uint8 = 0x04
	pktTypeVendor  uint8 = 0xFF
)

// packetHal adapts an io.ReadWriteCloser whose Read returns exactly one
// HCI packet per call (indicator included) into a Hal. Both the raw
// socket and the h4 framer satisfy that contract.
type packetHal struct {
	rwc io.ReadWriteCloser

	mu sync.Mutex
	cb Callbacks

	wmu  sync.Mutex
	done chan struct{}
	once sync.Once
}

// NewFromPacketReadWriter wraps rwc as a Hal. The read loop starts when
// callbacks are registered.
func NewFromPacketReadWriter(rwc io.ReadWriteCloser) Hal {
	return &packetHal{
		rwc:  rwc,
		done: make(chan struct{}),
	}
}

func (p *packetHal) RegisterCallbacks(cb Callbacks) {
	p.mu.Lock()
	if p.cb != nil {
		p.mu.Unlock()
		panic("hal callbacks already registered")
	}
	p.cb = cb
	p.mu.Unlock()
	go p.readLoop()
}

func (p *packetHal) SendCommand(b []byte) error {
	return p.write(pktTypeCommand, b)
}

func (p *packetHal) SendAcl(b []byte) error {
	return p.write(pktTypeACLData, b)
}

func (p *packetHal) write(typ uint8, b []byte) error {
	if !p.isOpen() {
		return errors.New("hal closed")
	}
	pkt := make([]byte, 1+len(b))
	pkt[0] = typ
	copy(pkt[1:], b)

	p.wmu.Lock()
	defer p.wmu.Unlock()
	n, err := p.rwc.Write(pkt)
	if err != nil {
		return errors.Wrap(err, "hal write")
	}
	if n != len(pkt) {
		return errors.Errorf("hal short write: %d of %d", n, len(pkt))
	}
	return nil
}

func (p *packetHal) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.rwc.Close()
	})
	return err
}

func (p *packetHal) isOpen() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *packetHal) readLoop() {
	b := make([]byte, 4096)
	for {
		n, err := p.rwc.Read(b)

		switch {
		case n == 0 && err == nil:
			// read timeout
			if !p.isOpen() {
				p.dispatchClosed(io.EOF)
				return
			}
			continue

		case err != nil:
			if p.isOpen() {
				logger.Warn("hal read error:", err)
			}
			p.dispatchClosed(err)
			return
		}

		pkt := make([]byte, n)
		copy(pkt, b[:n])
		p.dispatch(pkt)
	}
}

func (p *packetHal) dispatch(pkt []byte) {
	if len(pkt) < 1 {
		return
	}
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()

	typ, body := pkt[0], pkt[1:]
	switch typ {
	case pktTypeEvent:
		cb.OnEvent(body)
	case pktTypeACLData:
		cb.OnAclData(body)
	case pktTypeVendor:
		// Some controllers append vendor packets; ignore them.
		logger.Debugf("dropping vendor packet: % X", body)
	case pktTypeSCOData:
		logger.Debugf("dropping sco packet: % X", body)
	default:
		logger.Warnf("invalid packet indicator 0x%02X", typ)
	}
}

func (p *packetHal) dispatchClosed(err error) {
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	if cb != nil {
		cb.OnTransportClosed(err)
	}
}
