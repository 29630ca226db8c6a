package cmd

import "encoding/binary"

// LE controller commands (OGF 0x08)

// LESetEventMask implements LE Set Event Mask (0x0001) [Vol 2, Part E, 7.8.1].
type LESetEventMask struct {
	LEEventMask uint64
}

func (c *LESetEventMask) OpCode() int { return opcode(0x08, 0x0001) }
func (c *LESetEventMask) Len() int { return binary.Size(c) }
func (c *LESetEventMask) Marshal(b []byte) error { return marshal(c, b) }

// LESetEventMaskRP ...
type LESetEventMaskRP struct {
	Status uint8
}

func (c *LESetEventMaskRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// LEReadBufferSize implements LE Read Buffer Size (0x0002) [Vol 2, Part E, 7.8.2].
type LEReadBufferSize struct{}

func (c *LEReadBufferSize) OpCode() int { return opcode(0x08, 0x0002) }
func (c *LEReadBufferSize) Len() int { return 0 }
func (c *LEReadBufferSize) Marshal(b []byte) error { return nil }

// LEReadBufferSizeRP ...
type LEReadBufferSizeRP struct {
	Status                  uint8
	HCLEDataPacketLength    uint16
	HCTotalNumLEDataPackets uint8
}

func (c *LEReadBufferSizeRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// LEReadLocalSupportedFeatures implements LE Read Local Supported Features (0x0003) [Vol 2, Part E, 7.8.3].
type LEReadLocalSupportedFeatures struct{}

func (c *LEReadLocalSupportedFeatures) OpCode() int { return opcode(0x08, 0x0003) }
func (c *LEReadLocalSupportedFeatures) Len() int { return 0 }
func (c *LEReadLocalSupportedFeatures) Marshal(b []byte) error { return nil }

// LEReadLocalSupportedFeaturesRP ...
type LEReadLocalSupportedFeaturesRP struct {
	Status     uint8
	LEFeatures uint64
}

func (c *LEReadLocalSupportedFeaturesRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// LESetAdvertisingParameters implements LE Set Advertising Parameters (0x0006) [Vol 2, Part E, 7.8.5].
type LESetAdvertisingParameters struct {
	AdvertisingIntervalMin  uint16
	AdvertisingIntervalMax  uint16
	AdvertisingType         uint8
	OwnAddressType          uint8
	DirectAddressType       uint8
	DirectAddress           [6]byte
	AdvertisingChannelMap   uint8
	AdvertisingFilterPolicy uint8
}

func (c *LESetAdvertisingParameters) OpCode() int { return opcode(0x08, 0x0006) }
func (c *LESetAdvertisingParameters) Len() int { return binary.Size(c) }
func (c *LESetAdvertisingParameters) Marshal(b []byte) error { return marshal(c, b) }

// LESetAdvertisingData implements LE Set Advertising Data (0x0008) [Vol 2, Part E, 7.8.7].
type LESetAdvertisingData struct {
	AdvertisingDataLength uint8
	AdvertisingData       [31]byte
}

func (c *LESetAdvertisingData) OpCode() int { return opcode(0x08, 0x0008) }
func (c *LESetAdvertisingData) Len() int { return binary.Size(c) }
func (c *LESetAdvertisingData) Marshal(b []byte) error { return marshal(c, b) }

// LESetAdvertisingEnable implements LE Set Advertising Enable (0x000A) [Vol 2, Part E, 7.8.9].
type LESetAdvertisingEnable struct {
	AdvertisingEnable uint8
}

func (c *LESetAdvertisingEnable) OpCode() int { return opcode(0x08, 0x000A) }
func (c *LESetAdvertisingEnable) Len() int { return binary.Size(c) }
func (c *LESetAdvertisingEnable) Marshal(b []byte) error { return marshal(c, b) }

// LESetScanParameters implements LE Set Scan Parameters (0x000B) [Vol 2, Part E, 7.8.10].
type LESetScanParameters struct {
	LEScanType           uint8
	LEScanInterval       uint16
	LEScanWindow         uint16
	OwnAddressType       uint8
	ScanningFilterPolicy uint8
}

func (c *LESetScanParameters) OpCode() int { return opcode(0x08, 0x000B) }
func (c *LESetScanParameters) Len() int { return binary.Size(c) }
func (c *LESetScanParameters) Marshal(b []byte) error { return marshal(c, b) }

// LESetScanEnable implements LE Set Scan Enable (0x000C) [Vol 2, Part E, 7.8.11].
type LESetScanEnable struct {
	LEScanEnable     uint8
	FilterDuplicates uint8
}

func (c *LESetScanEnable) OpCode() int { return opcode(0x08, 0x000C) }
func (c *LESetScanEnable) Len() int { return binary.Size(c) }
func (c *LESetScanEnable) Marshal(b []byte) error { return marshal(c, b) }

// LECreateConnection implements LE Create Connection (0x000D) [Vol 2, Part E, 7.8.12].
type LECreateConnection struct {
	LEScanInterval        uint16
	LEScanWindow          uint16
	InitiatorFilterPolicy uint8
	PeerAddressType       uint8
	PeerAddress           [6]byte
	OwnAddressType        uint8
	ConnIntervalMin       uint16
	ConnIntervalMax       uint16
	ConnLatency           uint16
	SupervisionTimeout    uint16
	MinimumCELength       uint16
	MaximumCELength       uint16
}

func (c *LECreateConnection) OpCode() int { return opcode(0x08, 0x000D) }
func (c *LECreateConnection) Len() int { return binary.Size(c) }
func (c *LECreateConnection) Marshal(b []byte) error { return marshal(c, b) }

// LECreateConnectionCancel implements LE Create Connection Cancel (0x000E) [Vol 2, Part E, 7.8.13].
type LECreateConnectionCancel struct{}

func (c *LECreateConnectionCancel) OpCode() int { return opcode(0x08, 0x000E) }
func (c *LECreateConnectionCancel) Len() int { return 0 }
func (c *LECreateConnectionCancel) Marshal(b []byte) error { return nil }

// LECreateConnectionCancelRP ...
type LECreateConnectionCancelRP struct {
	Status uint8
}

func (c *LECreateConnectionCancelRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// LEStartEncryption implements LE Start Encryption (0x0019) [Vol 2, Part E, 7.8.24].
type LEStartEncryption struct {
	ConnectionHandle     uint16
	RandomNumber         uint64
	EncryptedDiversifier uint16
	LongTermKey          [16]byte
}

func (c *LEStartEncryption) OpCode() int { return opcode(0x08, 0x0019) }
func (c *LEStartEncryption) Len() int { return binary.Size(c) }
func (c *LEStartEncryption) Marshal(b []byte) error { return marshal(c, b) }

// LELongTermKeyRequestReply implements LE Long Term Key Request Reply (0x001A) [Vol 2, Part E, 7.8.25].
type LELongTermKeyRequestReply struct {
	ConnectionHandle uint16
	LongTermKey      [16]byte
}

func (c *LELongTermKeyRequestReply) OpCode() int { return opcode(0x08, 0x001A) }
func (c *LELongTermKeyRequestReply) Len() int { return binary.Size(c) }
func (c *LELongTermKeyRequestReply) Marshal(b []byte) error { return marshal(c, b) }

// LELongTermKeyRequestNegativeReply implements LE Long Term Key Request Negative Reply (0x001B) [Vol 2, Part E, 7.8.26].
type LELongTermKeyRequestNegativeReply struct {
	ConnectionHandle uint16
}

func (c *LELongTermKeyRequestNegativeReply) OpCode() int { return opcode(0x08, 0x001B) }
func (c *LELongTermKeyRequestNegativeReply) Len() int { return binary.Size(c) }
func (c *LELongTermKeyRequestNegativeReply) Marshal(b []byte) error { return marshal(c, b) }

// LEReadMaximumAdvertisingDataLength implements LE Read Maximum Advertising Data Length (0x003A) [Vol 2, Part E, 7.8.57].
type LEReadMaximumAdvertisingDataLength struct{}

func (c *LEReadMaximumAdvertisingDataLength) OpCode() int { return opcode(0x08, 0x003A) }
func (c *LEReadMaximumAdvertisingDataLength) Len() int { return 0 }
func (c *LEReadMaximumAdvertisingDataLength) Marshal(b []byte) error { return nil }

// LEReadMaximumAdvertisingDataLengthRP ...
type LEReadMaximumAdvertisingDataLengthRP struct {
	Status                         uint8
	MaximumAdvertisingDataLength   uint16
}

func (c *LEReadMaximumAdvertisingDataLengthRP) Unmarshal(b []byte) error { return unmarshal(c, b) }
