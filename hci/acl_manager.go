package hci

import (
	"github.com/rigado/btstack"
	"github.com/rigado/btstack/hci/cmd"
	"github.com/rigado/btstack/hci/evt"
	"github.com/rigado/btstack/module"
	"github.com/rigado/btstack/queue"
)

// AclManagerFactory is the module descriptor of the ACL manager.
var AclManagerFactory = module.NewFactory(func() module.Module { return &AclManager{} })

const connQueueDepth = 10

// ConnectionCallbacks receives connection lifecycle notifications. The
// callbacks run on the handler supplied to RegisterCallbacks.
type ConnectionCallbacks interface {
	OnConnectSuccess(conn *AclConnection)
	OnConnectFail(addr btstack.Addr, reason btstack.ErrCommand)
}

type aclConnectionState struct {
	conn             *AclConnection
	queue            *queue.BidiQueue[[]byte, []byte]
	disconnected     bool
	disconnectReason uint8
	disconnectCb     func(reason btstack.ErrCommand)
	disconnectOn     *module.Handler
}

// AclManager owns the logical ACL connections: it translates connection
// and disconnection events into lifecycle actions, keeps the round-robin
// scheduler's handle map in sync with the controller, and routes inbound
// fragments to the right connection queue.
type AclManager struct {
	module.Base

	hci        *HciLayer
	controller *Controller
	scheduler  *RoundRobinScheduler

	hciQueueEnd *queue.End[AclPacket, AclPacket]
	aclIf       *CommandInterface

	aclConnections map[uint16]*aclConnectionState
	connecting     map[string]bool

	clientCallbacks ConnectionCallbacks
	clientHandler   *module.Handler
}

func (m *AclManager) ListDependencies(l *module.List) {
	l.Add(Factory)
	l.Add(ControllerFactory)
}

func (m *AclManager) Start() {
	m.hci = m.GetDependency(Factory).(*HciLayer)
	m.controller = m.GetDependency(ControllerFactory).(*Controller)

	m.aclConnections = map[uint16]*aclConnectionState{}
	m.connecting = map[string]bool{}

	m.hciQueueEnd = m.hci.GetAclQueueEnd()
	m.scheduler = NewRoundRobinScheduler(m.Handler(), m.controller, m.hciQueueEnd)
	m.aclIf = m.hci.GetAclConnectionInterface()

	m.hciQueueEnd.RegisterDequeue(m.Handler(), m.dequeueAndRouteAclPacket)
	m.hci.RegisterEventHandler(EvtConnectionComplete, m.onConnectionComplete, m.Handler())
	m.hci.RegisterEventHandler(EvtDisconnectionComplete, m.onDisconnectionComplete, m.Handler())
	m.hci.RegisterEventHandler(EvtConnectionRequest, m.onConnectionRequest, m.Handler())
	m.hci.RegisterLeEventHandler(SubevtLEConnectionComplete, m.onLeConnectionComplete, m.Handler())
}

func (m *AclManager) Stop() {
	m.hci.UnregisterLeEventHandler(SubevtLEConnectionComplete)
	m.hci.UnregisterEventHandler(EvtConnectionRequest)
	m.hci.UnregisterEventHandler(EvtDisconnectionComplete)
	m.hci.UnregisterEventHandler(EvtConnectionComplete)
	m.hciQueueEnd.UnregisterDequeue()

	done := make(chan struct{})
	m.Handler().Post(func() {
		m.scheduler.Close()
		m.aclConnections = nil
		close(done)
	})
	<-done

	m.hci = nil
	m.controller = nil
}

// RegisterCallbacks attaches the single consumer of connection lifecycle
// notifications.
func (m *AclManager) RegisterCallbacks(cb ConnectionCallbacks, handler *module.Handler) {
	assertf(m.clientCallbacks == nil, "connection callbacks already registered")
	m.clientCallbacks = cb
	m.clientHandler = handler
}

// CreateConnection pages a classic peer.
func (m *AclManager) CreateConnection(addr btstack.Addr) {
	m.Handler().Post(func() {
		m.connecting[addr.String()] = true
		q := &cmd.CreateConnection{
			BDAddr: addrToWire(addr),
			// DM1/3/5 and DH1/3/5
			PacketType:             0x4408 | 0x8810,
			PageScanRepetitionMode: 0x01,
			AllowRoleSwitch:        0x01,
		}
		m.aclIf.EnqueueCommandStatus(q, func(e evt.CommandStatus, err error) {
			if err != nil {
				m.failConnect(addr, btstack.ErrUnspecified)
				return
			}
			if e.Status() != 0x00 {
				m.failConnect(addr, btstack.ErrCommand(e.Status()))
			}
		}, m.Handler())
	})
}

// CancelConnect withdraws an outstanding page to addr. The controller
// answers with a Connection Complete event carrying an unknown
// connection identifier status, which surfaces through OnConnectFail.
func (m *AclManager) CancelConnect(addr btstack.Addr) {
	m.Handler().Post(func() {
		q := &cmd.CreateConnectionCancel{BDAddr: addrToWire(addr)}
		m.aclIf.EnqueueCommand(q, func(e evt.CommandComplete, err error) {
			if err != nil {
				logger.Warn("create connection cancel failed:", err)
			}
		}, m.Handler())
	})
}

func (m *AclManager) failConnect(addr btstack.Addr, reason btstack.ErrCommand) {
	delete(m.connecting, addr.String())
	if m.clientCallbacks == nil {
		logger.Warnf("connect to %v failed with no callbacks registered: %v", addr, reason)
		return
	}
	cb := m.clientCallbacks
	m.clientHandler.Post(func() { cb.OnConnectFail(addr, reason) })
}

func (m *AclManager) onConnectionComplete(params []byte) {
	e := evt.ConnectionComplete(params)
	addr := btstack.AddrFromBytes(e.BDAddr())

	if !m.connecting[addr.String()] {
		logger.Warnf("no prior connection request for %v", addr)
	}
	delete(m.connecting, addr.String())

	if status := e.Status(); status != 0x00 {
		m.failConnect(addr, btstack.ErrCommand(status))
		return
	}
	m.addConnection(e.ConnectionHandle()&0x0fff, addr, KindClassic)
}

func (m *AclManager) onLeConnectionComplete(params []byte) {
	e := evt.LEConnectionComplete(params)
	addr := btstack.AddrFromBytes(e.PeerAddress())

	if status := e.Status(); status != 0x00 {
		if btstack.ErrCommand(status) == btstack.ErrConnID {
			// The connection was canceled successfully.
			return
		}
		m.failConnect(addr, btstack.ErrCommand(status))
		return
	}
	m.addConnection(e.ConnectionHandle()&0x0fff, addr, KindLE)
}

func (m *AclManager) addConnection(handle uint16, addr btstack.Addr, kind ConnectionKind) {
	_, exists := m.aclConnections[handle]
	assertf(!exists, "connection complete for live handle 0x%04X", handle)

	q := queue.NewBidiQueue[[]byte, []byte](connQueueDepth)
	state := &aclConnectionState{queue: q}
	state.conn = &AclConnection{
		manager:    m,
		handle:     handle,
		addr:       addr,
		kind:       kind,
		queueUpEnd: q.UpEnd(),
	}
	m.aclConnections[handle] = state

	m.scheduler.Register(kind, handle, q.DownEnd())

	if m.clientCallbacks == nil {
		logger.Warnf("connection 0x%04X up with no callbacks registered", handle)
		return
	}
	cb := m.clientCallbacks
	conn := state.conn
	m.clientHandler.Post(func() { cb.OnConnectSuccess(conn) })
}

func (m *AclManager) onConnectionRequest(params []byte) {
	e := evt.ConnectionRequest(params)
	// Accept and remain slave; role switching is the peer's business.
	q := &cmd.AcceptConnectionRequest{BDAddr: e.BDAddr(), Role: 0x01}
	m.aclIf.EnqueueCommandStatus(q, func(st evt.CommandStatus, err error) {
		if err != nil {
			logger.Warn("accept connection request failed:", err)
			return
		}
		if st.Status() != 0x00 {
			logger.Warnf("accept connection request status 0x%02X", st.Status())
		}
	}, m.Handler())
	m.connecting[btstack.AddrFromBytes(e.BDAddr()).String()] = true
}

func (m *AclManager) onDisconnectionComplete(params []byte) {
	e := evt.DisconnectionComplete(params)
	handle := e.ConnectionHandle() & 0x0fff

	if status := e.Status(); status != 0x00 {
		logger.Warnf("disconnection complete with status %v for handle 0x%04X", btstack.ErrCommand(status), handle)
		return
	}

	state, ok := m.aclConnections[handle]
	if !ok {
		logger.Warnf("disconnection complete for unknown handle 0x%04X", handle)
		return
	}
	state.disconnected = true
	state.disconnectReason = e.Reason()

	m.scheduler.SetDisconnect(handle)

	if state.disconnectCb != nil {
		cb := state.disconnectCb
		reason := btstack.ErrCommand(state.disconnectReason)
		state.disconnectOn.Post(func() { cb(reason) })
	}
}

// dequeueAndRouteAclPacket moves one inbound fragment from the HCI queue
// to its connection's queue. Fragment boundaries are preserved; the data
// handed up is exactly one fragment's payload.
func (m *AclManager) dequeueAndRouteAclPacket() {
	p, ok := m.hciQueueEnd.TryDequeue()
	if !ok {
		return
	}
	handle := p.Handle()
	state, found := m.aclConnections[handle]
	if !found {
		logger.Infof("dropping packet of size %d to unknown connection 0x%04X", len(p.Data()), handle)
		return
	}
	if !state.queue.DownEnd().TryEnqueue(p.Data()) {
		logger.Warnf("inbound queue full, dropping fragment for handle 0x%04X", handle)
	}
}

// finish drops a connection whose disconnection has completed.
func (m *AclManager) finish(handle uint16) {
	m.Handler().Post(func() {
		state, ok := m.aclConnections[handle]
		assertf(ok, "finish of unknown handle 0x%04X", handle)
		assertf(state.disconnected, "finish before disconnection complete for handle 0x%04X", handle)

		m.scheduler.Unregister(handle)
		delete(m.aclConnections, handle)
	})
}

// AclConnection is the owned handle to one ACL link given to the upper
// layer on connect success.
type AclConnection struct {
	manager    *AclManager
	handle     uint16
	addr       btstack.Addr
	kind       ConnectionKind
	queueUpEnd *ConnQueueEnd
}

// Address returns the peer address.
func (c *AclConnection) Address() btstack.Addr { return c.addr }

// Handle returns the controller-assigned connection handle.
func (c *AclConnection) Handle() uint16 { return c.handle }

// Kind reports whether the link is classic or LE.
func (c *AclConnection) Kind() ConnectionKind { return c.kind }

// AclQueueEnd returns the upper layer's end of the connection queue:
// enqueue outgoing payloads (whole PDUs, the scheduler fragments them),
// dequeue inbound fragments.
func (c *AclConnection) AclQueueEnd() *ConnQueueEnd {
	return c.queueUpEnd
}

// RegisterDisconnectCallback arranges for cb to run on handler when the
// disconnection complete event for this link arrives.
func (c *AclConnection) RegisterDisconnectCallback(cb func(reason btstack.ErrCommand), handler *module.Handler) {
	c.manager.Handler().Post(func() {
		state, ok := c.manager.aclConnections[c.handle]
		if !ok {
			logger.Warnf("disconnect callback for unknown handle 0x%04X", c.handle)
			return
		}
		state.disconnectCb = cb
		state.disconnectOn = handler
		if state.disconnected {
			reason := btstack.ErrCommand(state.disconnectReason)
			handler.Post(func() { cb(reason) })
		}
	})
}

// Disconnect asks the controller to tear the link down. The result
// arrives as a disconnection complete event.
func (c *AclConnection) Disconnect(reason uint8) {
	c.manager.Handler().Post(func() {
		q := &cmd.Disconnect{ConnectionHandle: c.handle, Reason: reason}
		c.manager.aclIf.EnqueueCommandStatus(q, func(e evt.CommandStatus, err error) {
			if err != nil {
				logger.Warn("disconnect failed:", err)
			}
		}, c.manager.Handler())
	})
}

// Finish releases the connection after its disconnection has completed.
// The handle may be reused by the controller afterwards.
func (c *AclConnection) Finish() {
	c.manager.finish(c.handle)
}

// addrToWire converts an Addr to the 6 little-endian bytes the controller
// expects.
func addrToWire(a btstack.Addr) [6]byte {
	var out [6]byte
	b := a.Bytes()
	for i := 0; i < len(b) && i < 6; i++ {
		out[i] = b[len(b)-1-i]
	}
	return out
}
