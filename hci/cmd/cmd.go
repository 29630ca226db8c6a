// Package cmd defines the HCI commands the core issues, with their return
// parameters. Commands serialize little-endian per the Bluetooth Core
// Specification command layout (OGF in the upper 6 bits of the opcode,
// OCF in the lower 10).
package cmd

import (
	"bytes"
	"encoding/binary"
)

// Command is a marshalable HCI command.
type Command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

// CommandRP unmarshals the return parameters of a command complete event.
type CommandRP interface {
	Unmarshal(b []byte) error
}

func opcode(ogf, ocf int) int { return ogf<<10 | ocf }

func marshal(c interface{}, b []byte) error {
	buf := bytes.NewBuffer(b[:0])
	return binary.Write(buf, binary.LittleEndian, c)
}

func unmarshal(c interface{}, b []byte) error {
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, c)
}

// Link control commands (OGF 0x01)

// CreateConnection implements Create Connection (0x0005) [Vol 2, Part E, 7.1.5].
type CreateConnection struct {
	BDAddr                 [6]byte
	PacketType             uint16
	PageScanRepetitionMode uint8
	Reserved               uint8
	ClockOffset            uint16
	AllowRoleSwitch        uint8
}

func (c *CreateConnection) OpCode() int { return opcode(0x01, 0x0005) }
func (c *CreateConnection) Len() int { return binary.Size(c) }
func (c *CreateConnection) Marshal(b []byte) error { return marshal(c, b) }

// Disconnect implements Disconnect (0x0006) [Vol 2, Part E, 7.1.6].
type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c *Disconnect) OpCode() int { return opcode(0x01, 0x0006) }
func (c *Disconnect) Len() int { return binary.Size(c) }
func (c *Disconnect) Marshal(b []byte) error { return marshal(c, b) }

// CreateConnectionCancel implements Create Connection Cancel (0x0008) [Vol 2, Part E, 7.1.7].
type CreateConnectionCancel struct {
	BDAddr [6]byte
}

func (c *CreateConnectionCancel) OpCode() int { return opcode(0x01, 0x0008) }
func (c *CreateConnectionCancel) Len() int { return binary.Size(c) }
func (c *CreateConnectionCancel) Marshal(b []byte) error { return marshal(c, b) }

// CreateConnectionCancelRP ...
type CreateConnectionCancelRP struct {
	Status uint8
	BDAddr [6]byte
}

func (c *CreateConnectionCancelRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// AcceptConnectionRequest implements Accept Connection Request (0x0009) [Vol 2, Part E, 7.1.8].
type AcceptConnectionRequest struct {
	BDAddr [6]byte
	Role   uint8
}

func (c *AcceptConnectionRequest) OpCode() int { return opcode(0x01, 0x0009) }
func (c *AcceptConnectionRequest) Len() int { return binary.Size(c) }
func (c *AcceptConnectionRequest) Marshal(b []byte) error { return marshal(c, b) }

// RejectConnectionRequest implements Reject Connection Request (0x000A) [Vol 2, Part E, 7.1.9].
type RejectConnectionRequest struct {
	BDAddr [6]byte
	Reason uint8
}

func (c *RejectConnectionRequest) OpCode() int { return opcode(0x01, 0x000A) }
func (c *RejectConnectionRequest) Len() int { return binary.Size(c) }
func (c *RejectConnectionRequest) Marshal(b []byte) error { return marshal(c, b) }

// LinkKeyRequestReply implements Link Key Request Reply (0x000B) [Vol 2, Part E, 7.1.10].
type LinkKeyRequestReply struct {
	BDAddr  [6]byte
	LinkKey [16]byte
}

func (c *LinkKeyRequestReply) OpCode() int { return opcode(0x01, 0x000B) }
func (c *LinkKeyRequestReply) Len() int { return binary.Size(c) }
func (c *LinkKeyRequestReply) Marshal(b []byte) error { return marshal(c, b) }

// LinkKeyRequestNegativeReply implements Link Key Request Negative Reply (0x000C) [Vol 2, Part E, 7.1.11].
type LinkKeyRequestNegativeReply struct {
	BDAddr [6]byte
}

func (c *LinkKeyRequestNegativeReply) OpCode() int { return opcode(0x01, 0x000C) }
func (c *LinkKeyRequestNegativeReply) Len() int { return binary.Size(c) }
func (c *LinkKeyRequestNegativeReply) Marshal(b []byte) error { return marshal(c, b) }

// AuthenticationRequested implements Authentication Requested (0x0011) [Vol 2, Part E, 7.1.15].
type AuthenticationRequested struct {
	ConnectionHandle uint16
}

func (c *AuthenticationRequested) OpCode() int { return opcode(0x01, 0x0011) }
func (c *AuthenticationRequested) Len() int { return binary.Size(c) }
func (c *AuthenticationRequested) Marshal(b []byte) error { return marshal(c, b) }

// SetConnectionEncryption implements Set Connection Encryption (0x0013) [Vol 2, Part E, 7.1.16].
type SetConnectionEncryption struct {
	ConnectionHandle uint16
	EncryptionEnable uint8
}

func (c *SetConnectionEncryption) OpCode() int { return opcode(0x01, 0x0013) }
func (c *SetConnectionEncryption) Len() int { return binary.Size(c) }
func (c *SetConnectionEncryption) Marshal(b []byte) error { return marshal(c, b) }

// Controller and baseband commands (OGF 0x03)

// SetEventMask implements Set Event Mask (0x0001) [Vol 2, Part E, 7.3.1].
type SetEventMask struct {
	EventMask uint64
}

func (c *SetEventMask) OpCode() int { return opcode(0x03, 0x0001) }
func (c *SetEventMask) Len() int { return binary.Size(c) }
func (c *SetEventMask) Marshal(b []byte) error { return marshal(c, b) }

// SetEventMaskRP ...
type SetEventMaskRP struct {
	Status uint8
}

func (c *SetEventMaskRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// Reset implements Reset (0x0003) [Vol 2, Part E, 7.3.2].
type Reset struct{}

func (c *Reset) OpCode() int { return opcode(0x03, 0x0003) }
func (c *Reset) Len() int { return 0 }
func (c *Reset) Marshal(b []byte) error { return nil }

// ResetRP ...
type ResetRP struct {
	Status uint8
}

func (c *ResetRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// WriteLocalName implements Write Local Name (0x0013) [Vol 2, Part E, 7.3.11].
type WriteLocalName struct {
	LocalName [248]byte
}

func (c *WriteLocalName) OpCode() int { return opcode(0x03, 0x0013) }
func (c *WriteLocalName) Len() int { return binary.Size(c) }
func (c *WriteLocalName) Marshal(b []byte) error { return marshal(c, b) }

// WriteLocalNameRP ...
type WriteLocalNameRP struct {
	Status uint8
}

func (c *WriteLocalNameRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadLocalName implements Read Local Name (0x0014) [Vol 2, Part E, 7.3.12].
type ReadLocalName struct{}

func (c *ReadLocalName) OpCode() int { return opcode(0x03, 0x0014) }
func (c *ReadLocalName) Len() int { return 0 }
func (c *ReadLocalName) Marshal(b []byte) error { return nil }

// ReadLocalNameRP ...
type ReadLocalNameRP struct {
	Status    uint8
	LocalName [248]byte
}

func (c *ReadLocalNameRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// Informational parameters commands (OGF 0x04)

// ReadLocalVersionInformation implements Read Local Version Information (0x0001) [Vol 2, Part E, 7.4.1].
type ReadLocalVersionInformation struct{}

func (c *ReadLocalVersionInformation) OpCode() int { return opcode(0x04, 0x0001) }
func (c *ReadLocalVersionInformation) Len() int { return 0 }
func (c *ReadLocalVersionInformation) Marshal(b []byte) error { return nil }

// ReadLocalVersionInformationRP ...
type ReadLocalVersionInformationRP struct {
	Status          uint8
	HCIVersion      uint8
	HCIRevision     uint16
	LMPPALVersion   uint8
	ManufacturerName uint16
	LMPPALSubversion uint16
}

func (c *ReadLocalVersionInformationRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadLocalSupportedCommands implements Read Local Supported Commands (0x0002) [Vol 2, Part E, 7.4.2].
type ReadLocalSupportedCommands struct{}

func (c *ReadLocalSupportedCommands) OpCode() int { return opcode(0x04, 0x0002) }
func (c *ReadLocalSupportedCommands) Len() int { return 0 }
func (c *ReadLocalSupportedCommands) Marshal(b []byte) error { return nil }

// ReadLocalSupportedCommandsRP ...
type ReadLocalSupportedCommandsRP struct {
	Status            uint8
	SupportedCommands [64]byte
}

func (c *ReadLocalSupportedCommandsRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadLocalSupportedFeatures implements Read Local Supported Features (0x0003) [Vol 2, Part E, 7.4.3].
type ReadLocalSupportedFeatures struct{}

func (c *ReadLocalSupportedFeatures) OpCode() int { return opcode(0x04, 0x0003) }
func (c *ReadLocalSupportedFeatures) Len() int { return 0 }
func (c *ReadLocalSupportedFeatures) Marshal(b []byte) error { return nil }

// ReadLocalSupportedFeaturesRP ...
type ReadLocalSupportedFeaturesRP struct {
	Status      uint8
	LMPFeatures uint64
}

func (c *ReadLocalSupportedFeaturesRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadLocalExtendedFeatures implements Read Local Extended Features (0x0004) [Vol 2, Part E, 7.4.4].
type ReadLocalExtendedFeatures struct {
	PageNumber uint8
}

func (c *ReadLocalExtendedFeatures) OpCode() int { return opcode(0x04, 0x0004) }
func (c *ReadLocalExtendedFeatures) Len() int { return binary.Size(c) }
func (c *ReadLocalExtendedFeatures) Marshal(b []byte) error { return marshal(c, b) }

// ReadLocalExtendedFeaturesRP ...
type ReadLocalExtendedFeaturesRP struct {
	Status              uint8
	PageNumber          uint8
	MaximumPageNumber   uint8
	ExtendedLMPFeatures uint64
}

func (c *ReadLocalExtendedFeaturesRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadBufferSize implements Read Buffer Size (0x0005) [Vol 2, Part E, 7.4.5].
// Not supported by LE-only controllers.
type ReadBufferSize struct{}

func (c *ReadBufferSize) OpCode() int { return opcode(0x04, 0x0005) }
func (c *ReadBufferSize) Len() int { return 0 }
func (c *ReadBufferSize) Marshal(b []byte) error { return nil }

// ReadBufferSizeRP ...
type ReadBufferSizeRP struct {
	Status                   uint8
	HCACLDataPacketLength    uint16
	HCSyncDataPacketLength   uint8
	HCTotalNumACLDataPackets uint16
	HCTotalNumSyncDataPackets uint16
}

func (c *ReadBufferSizeRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadBDADDR implements Read BD_ADDR (0x0009) [Vol 2, Part E, 7.4.6].
type ReadBDADDR struct{}

func (c *ReadBDADDR) OpCode() int { return opcode(0x04, 0x0009) }
func (c *ReadBDADDR) Len() int { return 0 }
func (c *ReadBDADDR) Marshal(b []byte) error { return nil }

// ReadBDADDRRP ...
type ReadBDADDRRP struct {
	Status uint8
	BDADDR [6]byte
}

func (c *ReadBDADDRRP) Unmarshal(b []byte) error { return unmarshal(c, b) }
