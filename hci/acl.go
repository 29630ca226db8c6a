package hci

import "encoding/binary"

// AclPacket is a raw HCI ACL data packet, header included, without the
// transport packet indicator. Layout [Vol 2, Part E, 5.4.2]:
//
//	bytes 0-1: handle (12 bits) | packet boundary flag (2) | broadcast flag (2)
//	bytes 2-3: data total length, little endian
//	bytes 4-:  data
type AclPacket []byte

func (p AclPacket) Handle() uint16 {
	return binary.LittleEndian.Uint16(p[0:2]) & 0x0fff
}

func (p AclPacket) PacketBoundaryFlag() uint8 {
	return uint8(binary.LittleEndian.Uint16(p[0:2])>>12) & 0x3
}

func (p AclPacket) BroadcastFlag() uint8 {
	return uint8(binary.LittleEndian.Uint16(p[0:2])>>14) & 0x3
}

func (p AclPacket) DataLength() uint16 {
	return binary.LittleEndian.Uint16(p[2:4])
}

func (p AclPacket) Data() []byte {
	return p[4:]
}

// Valid reports whether the header is complete and the declared length
// matches the data actually present.
func (p AclPacket) Valid() bool {
	return len(p) >= 4 && int(p.DataLength()) == len(p)-4
}

// BuildAclPacket assembles an ACL data packet around payload.
func BuildAclPacket(handle uint16, pbf, bcf uint8, payload []byte) AclPacket {
	b := make([]byte, 4+len(payload))
	hf := handle&0x0fff | uint16(pbf&0x3)<<12 | uint16(bcf&0x3)<<14
	binary.LittleEndian.PutUint16(b[0:2], hf)
	binary.LittleEndian.PutUint16(b[2:4], uint16(len(payload)))
	copy(b[4:], payload)
	return b
}

// fragmentAcl splits an upper-layer payload into ready-to-send ACL packets
// of at most mtu data bytes each. The first fragment is marked
// FIRST_AUTOMATICALLY_FLUSHABLE, subsequent fragments CONTINUING_FRAGMENT.
// An empty payload still yields one (empty) fragment so the upper layer's
// packet boundary is preserved on the wire.
func fragmentAcl(handle uint16, mtu int, payload []byte) []AclPacket {
	assertf(mtu > 0, "fragmenting with mtu %d", mtu)

	if len(payload) <= mtu {
		return []AclPacket{BuildAclPacket(handle, PbfFirstAutoFlushable, BcfPointToPoint, payload)}
	}

	var out []AclPacket
	pbf := PbfFirstAutoFlushable
	for off := 0; off < len(payload); off += mtu {
		end := off + mtu
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, BuildAclPacket(handle, pbf, BcfPointToPoint, payload[off:end]))
		pbf = PbfContinuingFragment
	}
	return out
}
