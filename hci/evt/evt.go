// Package evt provides byte-slice views over HCI event parameters. A view
// wraps the parameter bytes that follow the event header; accessors
// either return a default on malformed input or, in the WErr variants,
// report the error.
package evt

type CommandComplete []byte

func (e CommandComplete) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandComplete) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

func (e CommandComplete) ReturnParameters() []byte {
	v, _ := e.ReturnParametersWErr()
	return v
}

type CommandStatus []byte

func (e CommandStatus) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e CommandStatus) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandStatus) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

// Valid reports whether the event carries all three status fields.
func (e CommandStatus) Valid() bool {
	return len(e) >= 4
}

type ConnectionComplete []byte

func (e ConnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e ConnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e ConnectionComplete) BDAddr() [6]byte {
	v, _ := e.BDAddrWErr()
	return v
}

func (e ConnectionComplete) LinkType() uint8 {
	v, _ := e.LinkTypeWErr()
	return v
}

type ConnectionRequest []byte

func (e ConnectionRequest) BDAddr() [6]byte {
	v, _ := e.BDAddrWErr()
	return v
}

func (e ConnectionRequest) ClassOfDevice() [3]byte {
	v, _ := e.ClassOfDeviceWErr()
	return v
}

func (e ConnectionRequest) LinkType() uint8 {
	v, _ := e.LinkTypeWErr()
	return v
}

type DisconnectionComplete []byte

func (e DisconnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e DisconnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e DisconnectionComplete) Reason() uint8 {
	v, _ := e.ReasonWErr()
	return v
}

// Per-spec [Vol 2, Part E, 7.7.19] the handles and counts are grouped as
// two arrays, but common controllers (BCM20702A1 among them) interleave
// (handle, count) pairs instead. The accessors use the interleaved layout.

type NumberOfCompletedPackets []byte

func (e NumberOfCompletedPackets) NumberOfHandles() uint8 {
	v, _ := e.NumberOfHandlesWErr()
	return v
}

func (e NumberOfCompletedPackets) ConnectionHandle(i int) uint16 {
	v, _ := e.ConnectionHandleWErr(i)
	return v
}

func (e NumberOfCompletedPackets) HCNumOfCompletedPackets(i int) uint16 {
	v, _ := e.HCNumOfCompletedPacketsWErr(i)
	return v
}

type EncryptionChange []byte

func (e EncryptionChange) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e EncryptionChange) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e EncryptionChange) EncryptionEnabled() uint8 {
	v, _ := e.EncryptionEnabledWErr()
	return v
}

type HardwareError []byte

func (e HardwareError) HardwareCode() uint8 {
	v, _ := getByte(e, 0, 0)
	return v
}

// LEMeta wraps the parameters of an LE meta event; byte 0 is the subevent
// code and the rest is the subevent-specific view.
type LEMeta []byte

func (e LEMeta) SubeventCode() uint8 {
	v, _ := getByte(e, 0, 0xff)
	return v
}

type LEConnectionComplete []byte

func (e LEConnectionComplete) SubeventCode() uint8 {
	v, _ := getByte(e, 0, 0xff)
	return v
}

func (e LEConnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e LEConnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e LEConnectionComplete) Role() uint8 {
	v, _ := e.RoleWErr()
	return v
}

func (e LEConnectionComplete) PeerAddressType() uint8 {
	v, _ := e.PeerAddressTypeWErr()
	return v
}

func (e LEConnectionComplete) PeerAddress() [6]byte {
	v, _ := e.PeerAddressWErr()
	return v
}
