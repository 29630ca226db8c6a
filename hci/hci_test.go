package hci

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigado/btstack/hal"
	"github.com/rigado/btstack/hci/cmd"
	"github.com/rigado/btstack/hci/evt"
	"github.com/rigado/btstack/module"
)

type layerFixture struct {
	fake     *fakeHal
	thread   *module.Thread
	registry *module.Registry
	layer    *HciLayer
	reply    *module.Handler
}

func newLayerFixture(t *testing.T) *layerFixture {
	t.Helper()

	fake := newFakeHal()
	hal.SetHal(fake)

	thread := module.NewThread("test")
	registry := module.NewRegistry()
	list := &module.List{}
	list.Add(Factory)
	registry.Start(list, thread)

	f := &layerFixture{
		fake:     fake,
		thread:   thread,
		registry: registry,
		layer:    registry.Get(Factory).(*HciLayer),
		reply:    thread.NewHandler(),
	}
	t.Cleanup(func() {
		registry.StopAll()
		thread.Stop()
	})
	return f
}

func (f *layerFixture) expectCommand(t *testing.T, opcode int) []byte {
	t.Helper()
	select {
	case pkt := <-f.fake.cmdCh:
		require.Equal(t, opcode, cmdOpcode(pkt))
		return pkt
	case <-time.After(time.Second):
		t.Fatalf("no command with opcode 0x%04X issued", opcode)
		return nil
	}
}

func (f *layerFixture) expectNoCommand(t *testing.T) {
	t.Helper()
	select {
	case pkt := <-f.fake.cmdCh:
		t.Fatalf("unexpected command 0x%04X", cmdOpcode(pkt))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCommandCreditGating(t *testing.T) {
	f := newLayerFixture(t)

	results := make(chan error, 2)
	f.layer.EnqueueCommand(&cmd.Reset{}, func(e evt.CommandComplete, err error) {
		results <- err
	}, f.reply)
	f.layer.EnqueueCommand(&cmd.ReadBDADDR{}, func(e evt.CommandComplete, err error) {
		results <- err
	}, f.reply)

	resetOp := (&cmd.Reset{}).OpCode()
	f.expectCommand(t, resetOp)
	// one credit, so the second command must wait
	f.expectNoCommand(t)

	f.fake.injectEvent(ccEvent(1, resetOp, 0x00))
	require.NoError(t, <-results)

	f.expectCommand(t, (&cmd.ReadBDADDR{}).OpCode())
}

func TestCommandOpcodeMismatch(t *testing.T) {
	f := newLayerFixture(t)

	results := make(chan error, 1)
	resetOp := (&cmd.Reset{}).OpCode()
	f.layer.EnqueueCommand(&cmd.Reset{}, func(e evt.CommandComplete, err error) {
		results <- err
	}, f.reply)
	f.expectCommand(t, resetOp)

	// reply pairs by opcode; a different opcode fails the slot
	f.fake.injectEvent(ccEvent(1, (&cmd.ReadBDADDR{}).OpCode(), 0x00))

	err := <-results
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)

	// the slot is freed; new commands proceed
	f.layer.EnqueueCommand(&cmd.ReadBDADDR{}, func(evt.CommandComplete, error) {}, f.reply)
	f.expectCommand(t, (&cmd.ReadBDADDR{}).OpCode())
}

func TestCommandWrongCompletionKind(t *testing.T) {
	f := newLayerFixture(t)

	results := make(chan error, 1)
	resetOp := (&cmd.Reset{}).OpCode()
	f.layer.EnqueueCommand(&cmd.Reset{}, func(e evt.CommandComplete, err error) {
		results <- err
	}, f.reply)
	f.expectCommand(t, resetOp)

	// a status reply for a command expecting complete is a protocol error
	f.fake.injectEvent(csEvent(0x00, 1, resetOp))

	err := <-results
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)

	f.layer.EnqueueCommand(&cmd.ReadBDADDR{}, func(evt.CommandComplete, error) {}, f.reply)
	f.expectCommand(t, (&cmd.ReadBDADDR{}).OpCode())
}

func TestCommandStatusReply(t *testing.T) {
	f := newLayerFixture(t)

	op := (&cmd.Disconnect{}).OpCode()
	statuses := make(chan uint8, 1)
	f.layer.EnqueueCommandStatus(&cmd.Disconnect{ConnectionHandle: 0x40, Reason: 0x13}, func(e evt.CommandStatus, err error) {
		require.NoError(t, err)
		statuses <- e.Status()
	}, f.reply)
	f.expectCommand(t, op)

	f.fake.injectEvent(csEvent(0x00, 1, op))
	assert.Equal(t, uint8(0x00), <-statuses)
}

func TestNopRestoresCredit(t *testing.T) {
	f := newLayerFixture(t)

	resetOp := (&cmd.Reset{}).OpCode()
	f.layer.EnqueueCommand(&cmd.Reset{}, func(evt.CommandComplete, error) {}, f.reply)
	f.layer.EnqueueCommand(&cmd.ReadBDADDR{}, func(evt.CommandComplete, error) {}, f.reply)

	f.expectCommand(t, resetOp)
	f.expectNoCommand(t)

	// NOP complete only restores flow control credit
	f.fake.injectEvent(ccEvent(1, 0x0000))
	f.expectCommand(t, (&cmd.ReadBDADDR{}).OpCode())
}

func TestEventSubscription(t *testing.T) {
	f := newLayerFixture(t)

	got := make(chan []byte, 1)
	f.layer.RegisterEventHandler(EvtHardwareError, func(params []byte) {
		got <- params
	}, f.reply)

	f.fake.injectEvent(event(EvtHardwareError, 0x42))
	select {
	case params := <-got:
		assert.Equal(t, []byte{0x42}, params)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	assert.Panics(t, func() {
		f.layer.RegisterEventHandler(EvtHardwareError, func([]byte) {}, f.reply)
	})

	f.layer.UnregisterEventHandler(EvtHardwareError)
	f.fake.injectEvent(event(EvtHardwareError, 0x43))
	select {
	case <-got:
		t.Fatal("delivery after unregister")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLeMetaDemux(t *testing.T) {
	f := newLayerFixture(t)

	got := make(chan []byte, 1)
	f.layer.RegisterLeEventHandler(SubevtLEConnectionUpdateComplete, func(params []byte) {
		got <- params
	}, f.reply)

	// an unsubscribed subevent is dropped
	f.fake.injectEvent(event(EvtLEMeta, SubevtLELongTermKeyRequest, 0x40, 0x00))

	f.fake.injectEvent(event(EvtLEMeta, SubevtLEConnectionUpdateComplete, 0x00, 0x40, 0x00))
	select {
	case params := <-got:
		assert.Equal(t, SubevtLEConnectionUpdateComplete, params[0])
	case <-time.After(time.Second):
		t.Fatal("subevent not delivered")
	}
}

func TestStopFailsPendingCommands(t *testing.T) {
	fake := newFakeHal()
	hal.SetHal(fake)

	thread := module.NewThread("test")
	defer thread.Stop()
	registry := module.NewRegistry()
	list := &module.List{}
	list.Add(Factory)
	registry.Start(list, thread)
	layer := registry.Get(Factory).(*HciLayer)
	reply := thread.NewHandler()

	results := make(chan error, 2)
	layer.EnqueueCommand(&cmd.Reset{}, func(e evt.CommandComplete, err error) {
		results <- err
	}, reply)
	layer.EnqueueCommand(&cmd.ReadBDADDR{}, func(e evt.CommandComplete, err error) {
		results <- err
	}, reply)
	<-fake.cmdCh

	registry.StopAll()

	for i := 0; i < 2; i++ {
		err := <-results
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransportClosed)
	}
}

func TestAclIngressPreservesFragments(t *testing.T) {
	f := newLayerFixture(t)

	upEnd := f.layer.GetAclQueueEnd()
	got := make(chan AclPacket, 4)
	upEnd.RegisterDequeue(f.reply, func() {
		p, ok := upEnd.TryDequeue()
		require.True(t, ok)
		got <- p
	})

	first := BuildAclPacket(0x0040, PbfFirstAutoFlushable, BcfPointToPoint, []byte{1, 2})
	cont := BuildAclPacket(0x0040, PbfContinuingFragment, BcfPointToPoint, []byte{3})
	f.fake.injectAcl(first)
	f.fake.injectAcl(cont)

	p1 := <-got
	p2 := <-got
	assert.Equal(t, PbfFirstAutoFlushable, p1.PacketBoundaryFlag())
	assert.Equal(t, []byte{1, 2}, p1.Data())
	assert.Equal(t, PbfContinuingFragment, p2.PacketBoundaryFlag())
	assert.Equal(t, []byte{3}, p2.Data())
}

func TestAclEgressToHal(t *testing.T) {
	f := newLayerFixture(t)

	p := BuildAclPacket(0x0041, PbfFirstAutoFlushable, BcfPointToPoint, []byte{9, 8, 7})
	require.True(t, f.layer.GetAclQueueEnd().TryEnqueue(p))

	select {
	case wire := <-f.fake.aclCh:
		assert.Equal(t, []byte(p), wire)
	case <-time.After(time.Second):
		t.Fatal("no acl packet reached the hal")
	}
}

func TestScopedInterfaceRejectsForeignOpcode(t *testing.T) {
	f := newLayerFixture(t)

	adv := f.layer.GetLeAdvertisingInterface()
	assert.Panics(t, func() {
		adv.EnqueueCommand(&cmd.Reset{}, func(evt.CommandComplete, error) {}, f.reply)
	})

	scan := f.layer.GetLeScanningInterface()
	scan.EnqueueCommand(&cmd.LESetScanEnable{LEScanEnable: 1}, func(evt.CommandComplete, error) {}, f.reply)
	f.expectCommand(t, (&cmd.LESetScanEnable{}).OpCode())
}
