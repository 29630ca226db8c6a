package btstack

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Addr represents a Bluetooth device address (BD_ADDR).
type Addr interface {
	String() string
	Bytes() []byte
}

// NewAddr creates an Addr from its colon-separated string form.
func NewAddr(s string) Addr {
	return addr(strings.ToLower(s))
}

// AddrFromBytes creates an Addr from the 6 little-endian bytes the
// controller reports (ReadBDADDR, connection complete events).
func AddrFromBytes(b [6]byte) Addr {
	return addr(fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		b[5], b[4], b[3], b[2], b[1], b[0]))
}

type addr string

func (a addr) String() string {
	return string(a)
}

func (a addr) Bytes() []byte {
	hexStr := strings.Replace(a.String(), ":", "", -1)

	out, err := hex.DecodeString(hexStr)
	if err != nil {
		GetLogger().Warn("error decoding address:", err, a.String())
	}

	return out
}
