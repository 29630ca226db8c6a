package hci

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/rigado/btstack/hal"
	"github.com/rigado/btstack/hci/cmd"
	"github.com/rigado/btstack/hci/evt"
	"github.com/rigado/btstack/module"
	"github.com/rigado/btstack/queue"
)

// Factory is the module descriptor of the HCI layer.
var Factory = module.NewFactory(func() module.Module { return newHciLayer() })

var (
	// ErrTransportClosed reports that the HAL went away while a command
	// was pending, or that a command was submitted after Stop.
	ErrTransportClosed = errors.New("transport closed")

	// ErrProtocol reports a controller reply that violates the HCI
	// protocol (opcode mismatch, wrong completion kind).
	ErrProtocol = errors.New("protocol error")
)

const aclQueueDepth = 16

// opcodeNop is the NOP opcode carried by credit-only command complete
// events [Vol 2, Part E, 4.4].
const opcodeNop = 0x0000

type expectKind uint8

const (
	expectComplete expectKind = iota
	expectStatus
)

// commandSlot holds one submitted command until its reply arrives.
type commandSlot struct {
	opcode     int
	payload    []byte
	expect     expectKind
	onComplete func(evt.CommandComplete, error)
	onStatus   func(evt.CommandStatus, error)
	replyOn    *module.Handler
}

func (s *commandSlot) fail(err error) {
	if s.expect == expectComplete {
		cb := s.onComplete
		s.replyOn.Post(func() { cb(nil, err) })
	} else {
		cb := s.onStatus
		s.replyOn.Post(func() { cb(nil, err) })
	}
}

type eventSub struct {
	fn      func(params []byte)
	handler *module.Handler
}

// HciLayer turns the byte-level HAL into a typed HCI interface: one
// outstanding command at a time with opcode pairing, event dispatch by
// code, and a bidirectional ACL fragment queue. All command and queue
// state is confined to the module's handler.
type HciLayer struct {
	module.Base

	hal hal.Hal

	// Host to Controller command flow control [Vol 2, Part E, 4.4]
	cmdCredits int
	pending    []*commandSlot
	sent       []*commandSlot

	muSub sync.Mutex
	evth  map[uint8]eventSub
	subh  map[uint8]eventSub

	aclQueue *queue.BidiQueue[AclPacket, AclPacket]

	closed   bool
	closeErr error
}

func newHciLayer() *HciLayer {
	return &HciLayer{
		cmdCredits: 1,
		evth:       map[uint8]eventSub{},
		subh:       map[uint8]eventSub{},
		aclQueue:   queue.NewBidiQueue[AclPacket, AclPacket](aclQueueDepth),
	}
}

func (h *HciLayer) ListDependencies(l *module.List) {
	l.Add(hal.Factory)
}

func (h *HciLayer) Start() {
	h.hal = h.GetDependency(hal.Factory).(*hal.Module).Hal()

	// Command complete and status are consumed by the pairing pipeline;
	// claiming the codes here also makes an outside registration panic.
	h.muSub.Lock()
	h.evth[EvtCommandComplete] = eventSub{fn: nil, handler: nil}
	h.evth[EvtCommandStatus] = eventSub{fn: nil, handler: nil}
	h.muSub.Unlock()

	// Egress: drain outgoing fragments to the HAL.
	downEnd := h.aclQueue.DownEnd()
	downEnd.RegisterDequeue(h.Handler(), func() {
		p, ok := downEnd.TryDequeue()
		if !ok {
			return
		}
		if err := h.hal.SendAcl(p); err != nil {
			logger.Warn("acl send failed:", err)
		}
	})

	h.hal.RegisterCallbacks(&halCallbacks{h})
}

func (h *HciLayer) Stop() {
	done := make(chan struct{})
	h.Handler().Post(func() {
		h.shutdown(ErrTransportClosed)
		close(done)
	})
	<-done
	h.aclQueue.DownEnd().UnregisterDequeue()
}

// shutdown runs on the module handler.
func (h *HciLayer) shutdown(err error) {
	if h.closed {
		return
	}
	h.closed = true
	h.closeErr = err
	for _, s := range h.sent {
		s.fail(err)
	}
	for _, s := range h.pending {
		s.fail(err)
	}
	h.sent = nil
	h.pending = nil
}

// EnqueueCommand submits a command whose reply is a Command Complete
// event. The reply, or the failure, is delivered on replyOn.
func (h *HciLayer) EnqueueCommand(c cmd.Command, onComplete func(evt.CommandComplete, error), replyOn *module.Handler) {
	s := &commandSlot{
		opcode:     c.OpCode(),
		expect:     expectComplete,
		onComplete: onComplete,
		replyOn:    replyOn,
	}
	h.submit(c, s)
}

// EnqueueCommandStatus submits a command whose reply is a Command Status
// event (connection setup, encryption, disconnect).
func (h *HciLayer) EnqueueCommandStatus(c cmd.Command, onStatus func(evt.CommandStatus, error), replyOn *module.Handler) {
	s := &commandSlot{
		opcode:   c.OpCode(),
		expect:   expectStatus,
		onStatus: onStatus,
		replyOn:  replyOn,
	}
	h.submit(c, s)
}

func (h *HciLayer) submit(c cmd.Command, s *commandSlot) {
	b := make([]byte, 3+c.Len())
	b[0] = byte(c.OpCode())
	b[1] = byte(c.OpCode() >> 8)
	b[2] = byte(c.Len())
	if err := c.Marshal(b[3:]); err != nil {
		s.fail(errors.Wrap(err, "marshal command"))
		return
	}
	s.payload = b

	h.Handler().Post(func() {
		if h.closed {
			s.fail(h.closeErr)
			return
		}
		h.pending = append(h.pending, s)
		h.drainCommands()
	})
}

// drainCommands runs on the module handler and issues queued commands
// while credits remain.
func (h *HciLayer) drainCommands() {
	for h.cmdCredits > 0 && len(h.pending) > 0 {
		s := h.pending[0]
		h.pending = h.pending[1:]

		if err := h.hal.SendCommand(s.payload); err != nil {
			s.fail(errors.Wrap(ErrTransportClosed, err.Error()))
			continue
		}
		h.cmdCredits--
		h.sent = append(h.sent, s)
	}
}

// RegisterEventHandler subscribes fn for an event code; fn receives the
// event parameters and runs on handler. A second subscription for a live
// code is a programming error.
func (h *HciLayer) RegisterEventHandler(code uint8, fn func(params []byte), handler *module.Handler) {
	h.muSub.Lock()
	defer h.muSub.Unlock()
	_, taken := h.evth[code]
	assertf(!taken, "second handler for event code 0x%02X", code)
	h.evth[code] = eventSub{fn: fn, handler: handler}
}

// UnregisterEventHandler removes the subscription for code.
func (h *HciLayer) UnregisterEventHandler(code uint8) {
	h.muSub.Lock()
	defer h.muSub.Unlock()
	delete(h.evth, code)
}

// RegisterLeEventHandler subscribes fn for an LE meta subevent code; fn
// receives the meta event parameters (subevent code first).
func (h *HciLayer) RegisterLeEventHandler(subcode uint8, fn func(params []byte), handler *module.Handler) {
	h.muSub.Lock()
	defer h.muSub.Unlock()
	_, taken := h.subh[subcode]
	assertf(!taken, "second handler for le subevent code 0x%02X", subcode)
	h.subh[subcode] = eventSub{fn: fn, handler: handler}
}

// UnregisterLeEventHandler removes the subscription for subcode.
func (h *HciLayer) UnregisterLeEventHandler(subcode uint8) {
	h.muSub.Lock()
	defer h.muSub.Unlock()
	delete(h.subh, subcode)
}

// GetAclQueueEnd returns the upper layer's end of the ACL queue: enqueue
// outgoing fragments, dequeue incoming ones. The layer never reassembles;
// fragment boundaries and handles pass through untouched.
func (h *HciLayer) GetAclQueueEnd() *queue.End[AclPacket, AclPacket] {
	return h.aclQueue.UpEnd()
}

// handleEvent runs on the module handler.
func (h *HciLayer) handleEvent(b []byte) {
	if len(b) < 2 || int(b[1]) != len(b)-2 {
		logger.Warnf("invalid event packet: % X", b)
		return
	}
	code, params := b[0], b[2:]

	switch code {
	case EvtCommandComplete:
		h.handleCommandComplete(evt.CommandComplete(params))
		return
	case EvtCommandStatus:
		h.handleCommandStatus(evt.CommandStatus(params))
		return
	case EvtLEMeta:
		if len(params) == 0 {
			logger.Warn("empty le meta event")
			return
		}
		h.muSub.Lock()
		sub, ok := h.subh[params[0]]
		h.muSub.Unlock()
		if !ok {
			logger.Warnf("unhandled le subevent 0x%02X dropped", params[0])
			return
		}
		dispatch(sub, params)
		return
	}

	h.muSub.Lock()
	sub, ok := h.evth[code]
	h.muSub.Unlock()
	if !ok {
		logger.Warnf("unhandled event 0x%02X dropped", code)
		return
	}
	dispatch(sub, params)
}

func dispatch(sub eventSub, params []byte) {
	fn := sub.fn
	sub.handler.Post(func() { fn(params) })
}

func (h *HciLayer) handleCommandComplete(e evt.CommandComplete) {
	h.restoreCredits(int(e.NumHCICommandPackets()))

	opcode := int(e.CommandOpcode())
	if opcode == opcodeNop {
		h.drainCommands()
		return
	}

	s, ok := h.pairSent(opcode)
	if !ok {
		h.drainCommands()
		return
	}
	if s.expect != expectComplete {
		s.fail(errors.Wrapf(ErrProtocol, "command complete for opcode 0x%04X expecting status", opcode))
	} else {
		cb := s.onComplete
		s.replyOn.Post(func() { cb(e, nil) })
	}
	h.drainCommands()
}

func (h *HciLayer) handleCommandStatus(e evt.CommandStatus) {
	if !e.Valid() {
		logger.Warnf("invalid command status: % X", []byte(e))
		return
	}
	h.restoreCredits(int(e.NumHCICommandPackets()))

	opcode := int(e.CommandOpcode())
	if opcode == opcodeNop {
		h.drainCommands()
		return
	}

	s, ok := h.pairSent(opcode)
	if !ok {
		h.drainCommands()
		return
	}
	if s.expect != expectStatus {
		s.fail(errors.Wrapf(ErrProtocol, "command status for opcode 0x%04X expecting complete", opcode))
	} else {
		cb := s.onStatus
		s.replyOn.Post(func() { cb(e, nil) })
	}
	h.drainCommands()
}

// pairSent matches a reply to the front outstanding command. A front slot
// with a different opcode is failed with a protocol error and pairing is
// retried against the next one.
func (h *HciLayer) pairSent(opcode int) (*commandSlot, bool) {
	for len(h.sent) > 0 {
		s := h.sent[0]
		h.sent = h.sent[1:]
		if s.opcode == opcode {
			return s, true
		}
		s.fail(errors.Wrapf(ErrProtocol, "reply opcode 0x%04X does not match sent 0x%04X", opcode, s.opcode))
	}
	logger.Warnf("reply for opcode 0x%04X with no command outstanding", opcode)
	return nil, false
}

func (h *HciLayer) restoreCredits(n int) {
	h.cmdCredits += n
}

// handleAclData runs on the module handler.
func (h *HciLayer) handleAclData(b []byte) {
	p := AclPacket(b)
	if !p.Valid() {
		logger.Warnf("dropping invalid acl packet of size %d", len(b))
		return
	}
	if !h.aclQueue.DownEnd().TryEnqueue(p) {
		logger.Warnf("acl ingress queue full, dropping packet for handle 0x%04X", p.Handle())
	}
}

// halCallbacks adapts HAL notifications onto the module handler.
type halCallbacks struct {
	h *HciLayer
}

func (c *halCallbacks) OnEvent(b []byte) {
	c.h.Handler().Post(func() { c.h.handleEvent(b) })
}

func (c *halCallbacks) OnAclData(b []byte) {
	c.h.Handler().Post(func() { c.h.handleAclData(b) })
}

func (c *halCallbacks) OnTransportClosed(err error) {
	c.h.Handler().Post(func() {
		logger.Warn("hal transport closed:", err)
		c.h.shutdown(errors.Wrap(ErrTransportClosed, err.Error()))
	})
}
