package hci

import (
	"github.com/rigado/btstack/module"
	"github.com/rigado/btstack/queue"
)

// ConnQueueEnd is the scheduler-facing end of a connection's payload
// queue: dequeue outgoing upper-layer payloads, enqueue inbound fragment
// data.
type ConnQueueEnd = queue.End[[]byte, []byte]

type aclQueueHandler struct {
	kind              ConnectionKind
	queueDownEnd      *ConnQueueEnd
	dequeueRegistered bool
	sentPackets       uint16 // outstanding fragments at the controller
	disconnected      bool
}

type fragmentEntry struct {
	kind   ConnectionKind
	packet AclPacket
}

// ControllerInterface is the slice of the Controller the scheduler needs:
// immutable buffer geometry and the completed-packets credit stream.
type ControllerInterface interface {
	AclPacketLength() uint16
	NumAclPacketBuffers() uint16
	GetLeBufferSize() LeBufferSize
	RegisterCompletedAclPacketsCallback(cb func(handle, credits uint16), handler *module.Handler)
	UnregisterCompletedAclPacketsCallback()
}

// RoundRobinScheduler multiplexes the payload queues of every live ACL
// connection onto the shared HCI egress, one payload burst per
// connection per pass, respecting the per-kind controller buffer
// credits and fragmenting payloads to the transport MTU.
//
// The scheduler's state is owned by a single handler; every public
// method must be invoked on it.
type RoundRobinScheduler struct {
	handler     *module.Handler
	controller  ControllerInterface
	hciQueueEnd *queue.End[AclPacket, AclPacket]

	maxAclPacketCredits   uint16
	aclPacketCredits      uint16
	leMaxAclPacketCredits uint16
	leAclPacketCredits    uint16
	hciMtu                int
	leHciMtu              int

	aclQueueHandlers map[uint16]*aclQueueHandler
	// handles in ascending order, plus the rotation cursor: the handle a
	// registration pass starts from. cursorOk false means start at the
	// beginning.
	order    []uint16
	cursor   uint16
	cursorOk bool

	fragmentsToSend   []fragmentEntry
	enqueueRegistered bool
}

// NewRoundRobinScheduler wires a scheduler to the controller's buffer
// geometry and registers for completion credits.
func NewRoundRobinScheduler(handler *module.Handler, controller ControllerInterface, hciQueueEnd *queue.End[AclPacket, AclPacket]) *RoundRobinScheduler {
	leBuf := controller.GetLeBufferSize()
	s := &RoundRobinScheduler{
		handler:     handler,
		controller:  controller,
		hciQueueEnd: hciQueueEnd,

		maxAclPacketCredits:   controller.NumAclPacketBuffers(),
		aclPacketCredits:      controller.NumAclPacketBuffers(),
		leMaxAclPacketCredits: uint16(leBuf.TotalNumDataPackets),
		leAclPacketCredits:    uint16(leBuf.TotalNumDataPackets),
		hciMtu:                int(controller.AclPacketLength()),
		leHciMtu:              int(leBuf.DataPacketLength),

		aclQueueHandlers: map[uint16]*aclQueueHandler{},
	}
	controller.RegisterCompletedAclPacketsCallback(s.IncomingAclCredits, handler)
	return s
}

// Close detaches the scheduler from every connection and from the
// controller's credit stream.
func (s *RoundRobinScheduler) Close() {
	s.unregisterAllConnections()
	if s.enqueueRegistered {
		s.enqueueRegistered = false
		s.hciQueueEnd.UnregisterEnqueue()
	}
	s.controller.UnregisterCompletedAclPacketsCallback()
}

// Register adds a connection's egress queue to the rotation.
func (s *RoundRobinScheduler) Register(kind ConnectionKind, handle uint16, queueDownEnd *ConnQueueEnd) {
	_, exists := s.aclQueueHandlers[handle]
	assertf(!exists, "handle 0x%04X already registered", handle)

	s.aclQueueHandlers[handle] = &aclQueueHandler{kind: kind, queueDownEnd: queueDownEnd}
	s.insertOrdered(handle)

	if len(s.fragmentsToSend) == 0 {
		s.startRoundRobin()
	}
}

// Unregister removes a connection from the rotation and resets the
// cursor. Unregistering an unknown handle is a programming error.
func (s *RoundRobinScheduler) Unregister(handle uint16) {
	h, exists := s.aclQueueHandlers[handle]
	assertf(exists, "unregister of unknown handle 0x%04X", handle)

	if h.dequeueRegistered {
		h.dequeueRegistered = false
		h.queueDownEnd.UnregisterDequeue()
	}
	delete(s.aclQueueHandlers, handle)
	s.removeOrdered(handle)
	s.cursorOk = false
}

// SetDisconnect marks a connection disconnected and reclaims its
// outstanding fragments into the credit pool. The controller stops
// reporting completions for the handle once disconnection completes, so
// late credit returns for it are discarded rather than double counted.
func (s *RoundRobinScheduler) SetDisconnect(handle uint16) {
	h, exists := s.aclQueueHandlers[handle]
	assertf(exists, "set disconnect of unknown handle 0x%04X", handle)

	h.disconnected = true
	reclaimed := h.sentPackets
	h.sentPackets = 0
	if reclaimed == 0 {
		return
	}

	// The reclaim counts fragments still parked in the send FIFO as well
	// as fragments at the controller, so the pool can transiently exceed
	// its maximum; draining the parked fragments settles it.
	var becamePositive bool
	if h.kind == KindClassic {
		becamePositive = s.aclPacketCredits == 0
		s.aclPacketCredits += reclaimed
	} else {
		becamePositive = s.leAclPacketCredits == 0
		s.leAclPacketCredits += reclaimed
	}
	if becamePositive {
		s.startRoundRobin()
	}
}

// startRoundRobin is the registration phase: while credits exist and no
// fragments are queued, arm a one-shot dequeue on every connection,
// beginning at the rotation cursor, then advance the cursor one slot.
func (s *RoundRobinScheduler) startRoundRobin() {
	if s.aclPacketCredits == 0 && s.leAclPacketCredits == 0 {
		return
	}
	if len(s.fragmentsToSend) > 0 {
		s.sendNextFragment()
		return
	}
	if len(s.order) == 0 {
		return
	}

	start := 0
	if len(s.order) > 1 && s.cursorOk {
		for i, h := range s.order {
			if h == s.cursor {
				start = i
				break
			}
		}
	}

	idx := start
	for count := len(s.order); count > 0; count-- {
		handle := s.order[idx]
		h := s.aclQueueHandlers[handle]
		if !h.dequeueRegistered {
			h.dequeueRegistered = true
			captured := handle
			h.queueDownEnd.RegisterDequeue(s.handler, func() {
				s.bufferPacket(captured)
			})
		}
		idx++
		if idx == len(s.order) {
			idx = 0
		}
	}

	// Advance the cursor one slot past this pass's starting point.
	if start+1 < len(s.order) {
		s.cursor = s.order[start+1]
		s.cursorOk = true
	} else {
		s.cursorOk = false
	}
}

// bufferPacket pulls one payload from a connection, fragments it to the
// transport MTU, and parks the fragments in the send FIFO. All other
// dequeues are disarmed so the burst stays contiguous on the wire.
func (s *RoundRobinScheduler) bufferPacket(handle uint16) {
	h, ok := s.aclQueueHandlers[handle]
	if !ok {
		// Unregistered between the queue notification and this callback.
		return
	}

	payload, ok := h.queueDownEnd.TryDequeue()
	assertf(ok, "dequeue callback with empty queue for handle 0x%04X", handle)

	mtu := s.hciMtu
	if h.kind == KindLE {
		mtu = s.leHciMtu
	}

	fragments := fragmentAcl(handle, mtu, payload)
	for _, f := range fragments {
		s.fragmentsToSend = append(s.fragmentsToSend, fragmentEntry{kind: h.kind, packet: f})
	}
	assertf(len(s.fragmentsToSend) > 0, "no fragments buffered")

	s.unregisterAllConnections()

	h.sentPackets += uint16(len(fragments))
	s.sendNextFragment()
}

func (s *RoundRobinScheduler) unregisterAllConnections() {
	for _, h := range s.aclQueueHandlers {
		if h.dequeueRegistered {
			h.dequeueRegistered = false
			h.queueDownEnd.UnregisterDequeue()
		}
	}
}

func (s *RoundRobinScheduler) sendNextFragment() {
	if s.enqueueRegistered || len(s.fragmentsToSend) == 0 {
		return
	}
	// Wait for a credit return when the front fragment's pool is empty.
	next := s.fragmentsToSend[0].kind
	if (next == KindClassic && s.aclPacketCredits == 0) || (next == KindLE && s.leAclPacketCredits == 0) {
		return
	}
	s.enqueueRegistered = true
	s.hciQueueEnd.RegisterEnqueue(s.handler, s.handleEnqueueNextFragment)
}

// handleEnqueueNextFragment feeds the HCI egress one fragment per pull.
// Emitting without a credit for the fragment's kind is a contract
// violation; the FIFO is gated before registration instead.
func (s *RoundRobinScheduler) handleEnqueueNextFragment() (AclPacket, bool) {
	assertf(len(s.fragmentsToSend) > 0, "enqueue callback with empty fragment fifo")

	f := s.fragmentsToSend[0]
	if f.kind == KindClassic {
		assertf(s.aclPacketCredits > 0, "classic credit underflow")
		s.aclPacketCredits--
	} else {
		assertf(s.leAclPacketCredits > 0, "le credit underflow")
		s.leAclPacketCredits--
	}
	s.fragmentsToSend = s.fragmentsToSend[1:]

	if len(s.fragmentsToSend) == 0 {
		if s.enqueueRegistered {
			s.enqueueRegistered = false
			s.hciQueueEnd.UnregisterEnqueue()
		}
		s.handler.Post(s.startRoundRobin)
	} else {
		next := s.fragmentsToSend[0].kind
		classicBufferFull := next == KindClassic && s.aclPacketCredits == 0
		leBufferFull := next == KindLE && s.leAclPacketCredits == 0
		if (classicBufferFull || leBufferFull) && s.enqueueRegistered {
			s.enqueueRegistered = false
			s.hciQueueEnd.UnregisterEnqueue()
		}
	}
	return f.packet, true
}

// IncomingAclCredits returns completed-packet credits to the pool of the
// handle's kind. Credits for unknown or disconnected handles are
// discarded with a log entry.
func (s *RoundRobinScheduler) IncomingAclCredits(handle uint16, credits uint16) {
	h, ok := s.aclQueueHandlers[handle]
	if !ok {
		logger.Infof("dropping %d received credits to unknown connection 0x%04X", credits, handle)
		return
	}
	if h.disconnected {
		logger.Infof("dropping %d received credits to disconnected connection 0x%04X", credits, handle)
		return
	}
	if credits > h.sentPackets {
		logger.Warnf("connection 0x%04X returned %d credits with only %d outstanding", handle, credits, h.sentPackets)
		credits = h.sentPackets
	}
	if credits == 0 {
		return
	}

	h.sentPackets -= credits
	var becamePositive bool
	if h.kind == KindClassic {
		becamePositive = s.aclPacketCredits == 0
		s.aclPacketCredits += credits
		assertf(s.aclPacketCredits <= s.maxAclPacketCredits, "classic credits overflow")
	} else {
		becamePositive = s.leAclPacketCredits == 0
		s.leAclPacketCredits += credits
		assertf(s.leAclPacketCredits <= s.leMaxAclPacketCredits, "le credits overflow")
	}

	if becamePositive {
		s.startRoundRobin()
	}
}

func (s *RoundRobinScheduler) insertOrdered(handle uint16) {
	i := 0
	for i < len(s.order) && s.order[i] < handle {
		i++
	}
	s.order = append(s.order, 0)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = handle
}

func (s *RoundRobinScheduler) removeOrdered(handle uint16) {
	for i, h := range s.order {
		if h == handle {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
