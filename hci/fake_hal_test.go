package hci

import (
	"sync"

	"github.com/rigado/btstack/hal"
)

// fakeHal captures outgoing traffic and lets tests inject controller
// events, optionally auto-answering commands through a responder.
type fakeHal struct {
	mu        sync.Mutex
	cb        hal.Callbacks
	responder func(cmdPkt []byte) [][]byte

	cmdCh chan []byte
	aclCh chan []byte

	closed bool
}

func newFakeHal() *fakeHal {
	return &fakeHal{
		cmdCh: make(chan []byte, 64),
		aclCh: make(chan []byte, 64),
	}
}

func (f *fakeHal) SendCommand(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.cmdCh <- cp

	f.mu.Lock()
	responder := f.responder
	f.mu.Unlock()
	if responder != nil {
		for _, e := range responder(cp) {
			f.injectEvent(e)
		}
	}
	return nil
}

func (f *fakeHal) SendAcl(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.aclCh <- cp
	return nil
}

func (f *fakeHal) RegisterCallbacks(cb hal.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

func (f *fakeHal) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHal) setResponder(r func(cmdPkt []byte) [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responder = r
}

func (f *fakeHal) injectEvent(e []byte) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb.OnEvent(e)
}

func (f *fakeHal) injectAcl(b []byte) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb.OnAclData(b)
}

// cmdOpcode reads the opcode of a captured command packet.
func cmdOpcode(pkt []byte) int {
	return int(pkt[0]) | int(pkt[1])<<8
}

// ccEvent builds a Command Complete event packet.
func ccEvent(numPackets byte, opcode int, ret ...byte) []byte {
	params := append([]byte{numPackets, byte(opcode), byte(opcode >> 8)}, ret...)
	return append([]byte{EvtCommandComplete, byte(len(params))}, params...)
}

// csEvent builds a Command Status event packet.
func csEvent(status, numPackets byte, opcode int) []byte {
	params := []byte{status, numPackets, byte(opcode), byte(opcode >> 8)}
	return append([]byte{EvtCommandStatus, byte(len(params))}, params...)
}

// event builds an arbitrary event packet from code and parameters.
func event(code uint8, params ...byte) []byte {
	return append([]byte{code, byte(len(params))}, params...)
}

// nocpEvent builds a Number_Of_Completed_Packets event for one handle.
func nocpEvent(handle uint16, credits uint16) []byte {
	return event(EvtNumberOfCompletedPackets,
		1,
		byte(handle), byte(handle>>8),
		byte(credits), byte(credits>>8),
	)
}
