package hci

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigado/btstack/hal"
	"github.com/rigado/btstack/hci/cmd"
	"github.com/rigado/btstack/module"
)

// scriptedResponder answers every interrogation command with a canned
// capability set.
func scriptedResponder(t *testing.T) func(pkt []byte) [][]byte {
	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}

	return func(pkt []byte) [][]byte {
		op := cmdOpcode(pkt)
		ret := []byte{0x00}

		switch op {
		case (&cmd.Reset{}).OpCode(),
			(&cmd.SetEventMask{}).OpCode(),
			(&cmd.LESetEventMask{}).OpCode():
			// status only

		case (&cmd.ReadLocalSupportedCommands{}).OpCode():
			ret = append(ret, make([]byte, 64)...)

		case (&cmd.ReadLocalVersionInformation{}).OpCode():
			ret = append(ret, 0x0b) // hci version 5.2
			ret = append(ret, u16(0x1234)...)
			ret = append(ret, 0x0b)
			ret = append(ret, u16(0x000f)...) // manufacturer
			ret = append(ret, u16(0x5678)...)

		case (&cmd.ReadLocalSupportedFeatures{}).OpCode():
			ret = append(ret, 1, 0, 0, 0, 0, 0, 0, 0)

		case (&cmd.ReadLocalExtendedFeatures{}).OpCode():
			page := pkt[3]
			ret = append(ret, page, 1) // max page 1
			features := make([]byte, 8)
			features[0] = page + 1
			ret = append(ret, features...)

		case (&cmd.ReadBufferSize{}).OpCode():
			ret = append(ret, u16(1021)...) // classic mtu
			ret = append(ret, 64)
			ret = append(ret, u16(8)...) // classic buffers
			ret = append(ret, u16(0)...)

		case (&cmd.LEReadBufferSize{}).OpCode():
			ret = append(ret, u16(27)...) // le mtu
			ret = append(ret, 4)          // le buffers

		case (&cmd.LEReadLocalSupportedFeatures{}).OpCode():
			ret = append(ret, 1, 0, 0, 0, 0, 0, 0, 0) // no extended advertising

		case (&cmd.ReadBDADDR{}).OpCode():
			ret = append(ret, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11)

		default:
			t.Errorf("unscripted command 0x%04X", op)
			return nil
		}

		return [][]byte{ccEvent(1, op, ret...)}
	}
}

type controllerFixture struct {
	fake     *fakeHal
	thread   *module.Thread
	registry *module.Registry
	ctrl     *Controller
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	fake := newFakeHal()
	fake.setResponder(scriptedResponder(t))
	hal.SetHal(fake)

	thread := module.NewThread("test")
	registry := module.NewRegistry()
	list := &module.List{}
	list.Add(ControllerFactory)
	registry.Start(list, thread)

	t.Cleanup(func() {
		registry.StopAll()
		thread.Stop()
	})
	return &controllerFixture{
		fake:     fake,
		thread:   thread,
		registry: registry,
		ctrl:     registry.Get(ControllerFactory).(*Controller),
	}
}

func TestControllerCapabilitySnapshot(t *testing.T) {
	f := newControllerFixture(t)
	ctrl := f.ctrl

	assert.Equal(t, "11:22:33:44:55:66", ctrl.MacAddress().String())
	assert.Equal(t, uint16(1021), ctrl.AclPacketLength())
	assert.Equal(t, uint16(8), ctrl.NumAclPacketBuffers())

	leBuf := ctrl.GetLeBufferSize()
	assert.Equal(t, uint16(27), leBuf.DataPacketLength)
	assert.Equal(t, uint8(4), leBuf.TotalNumDataPackets)

	assert.Equal(t, uint64(1), ctrl.LocalFeatures())
	assert.Equal(t, uint64(1), ctrl.ExtendedFeatures(0))
	assert.Equal(t, uint64(2), ctrl.ExtendedFeatures(1))
	assert.Equal(t, uint64(0), ctrl.ExtendedFeatures(5))

	assert.Equal(t, uint64(1), ctrl.LeLocalFeatures())
	// extended advertising absent, legacy limit applies
	assert.Equal(t, uint16(31), ctrl.LeMaximumAdvertisingDataLength())

	assert.Equal(t, uint8(0x0b), ctrl.LocalVersion().HCIVersion)
	assert.Equal(t, uint16(0x000f), ctrl.LocalVersion().ManufacturerName)
	assert.False(t, ctrl.SupportsCommand(0, 0))
}

func TestControllerCompletedPacketsFanOut(t *testing.T) {
	f := newControllerFixture(t)

	type creditPair struct{ handle, credits uint16 }
	got := make(chan creditPair, 4)
	consumer := f.thread.NewHandler()
	f.ctrl.RegisterCompletedAclPacketsCallback(func(handle, credits uint16) {
		got <- creditPair{handle, credits}
	}, consumer)

	// one event carrying two (handle, credits) pairs
	f.fake.injectEvent(event(EvtNumberOfCompletedPackets,
		2,
		0x40, 0x00, 0x02, 0x00,
		0x41, 0x00, 0x01, 0x00,
	))

	expect := []creditPair{{0x0040, 2}, {0x0041, 1}}
	for _, want := range expect {
		select {
		case p := <-got:
			assert.Equal(t, want, p)
		case <-time.After(time.Second):
			t.Fatal("credits not delivered")
		}
	}

	assert.Panics(t, func() {
		f.ctrl.RegisterCompletedAclPacketsCallback(func(uint16, uint16) {}, consumer)
	})

	f.ctrl.UnregisterCompletedAclPacketsCallback()
	f.ctrl.RegisterCompletedAclPacketsCallback(func(uint16, uint16) {}, consumer)
}

func TestControllerLocalName(t *testing.T) {
	f := newControllerFixture(t)

	name := "gopher"
	f.fake.setResponder(func(pkt []byte) [][]byte {
		op := cmdOpcode(pkt)
		switch op {
		case (&cmd.WriteLocalName{}).OpCode():
			return [][]byte{ccEvent(1, op, 0x00)}
		case (&cmd.ReadLocalName{}).OpCode():
			ret := make([]byte, 249)
			copy(ret[1:], name)
			return [][]byte{ccEvent(1, op, ret...)}
		}
		return nil
	})

	require.NoError(t, f.ctrl.WriteLocalName(name))
	got, err := f.ctrl.ReadLocalName()
	require.NoError(t, err)
	assert.Equal(t, name, got)
}
