package h4

import "encoding/binary"

// assembler reassembles complete H4 packets from an arbitrary byte
// stream. A packet's total length is derived from its indicator byte and
// type-specific header.
type assembler struct {
	buf []byte
	out chan []byte
}

func newAssembler(out chan []byte) *assembler {
	return &assembler{out: out}
}

// frameLen returns the total length of the packet at the front of b, 0 if
// more bytes are needed, or -1 if the indicator is not a valid packet
// start.
func frameLen(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	switch b[0] {
	case pktIndEvent:
		if len(b) < 3 {
			return 0
		}
		return 3 + int(b[2])
	case pktIndACL:
		if len(b) < 5 {
			return 0
		}
		return 5 + int(binary.LittleEndian.Uint16(b[3:5]))
	case pktIndCommand, pktIndSCO:
		if len(b) < 4 {
			return 0
		}
		return 4 + int(b[3])
	default:
		return -1
	}
}

// feed appends stream bytes and emits every complete packet. Bytes that
// cannot start a packet are skipped one at a time until the stream
// resynchronizes.
func (a *assembler) feed(b []byte) {
	a.buf = append(a.buf, b...)

	for {
		n := frameLen(a.buf)
		switch {
		case n < 0:
			a.buf = a.buf[1:]
			continue
		case n == 0 || n > len(a.buf):
			return
		}

		pkt := make([]byte, n)
		copy(pkt, a.buf[:n])
		a.buf = a.buf[n:]
		a.out <- pkt
	}
}

const (
	pktIndCommand = 0x01
	pktIndACL     = 0x02
	pktIndSCO     = 0x03
	pktIndEvent   = 0x04
)
