package hci

import (
	"fmt"

	"github.com/rigado/btstack"
)

var logger = btstack.GetLogger().ChildLogger(map[string]interface{}{"pkg": "hci"})

// HCI packet indicator types [Vol 4, Part A, 2].
const (
	PktTypeCommand uint8 = 0x01
	PktTypeACLData uint8 = 0x02
	PktTypeSCOData uint8 = 0x03
	PktTypeEvent   uint8 = 0x04
	PktTypeVendor  uint8 = 0xFF
)

// Packet boundary flags of the HCI ACL data packet [Vol 2, Part E, 5.4.2].
const (
	PbfFirstNonFlushable     uint8 = 0x00
	PbfContinuingFragment    uint8 = 0x01
	PbfFirstAutoFlushable    uint8 = 0x02
	pbfCompleteL2CAPPDU      uint8 = 0x03 // not used toward LE controllers
)

// Broadcast flags of the HCI ACL data packet.
const (
	BcfPointToPoint uint8 = 0x00
)

// Event codes [Vol 2, Part E, 7.7].
const (
	EvtConnectionComplete        uint8 = 0x03
	EvtConnectionRequest         uint8 = 0x04
	EvtDisconnectionComplete     uint8 = 0x05
	EvtEncryptionChange          uint8 = 0x08
	EvtCommandComplete           uint8 = 0x0E
	EvtCommandStatus             uint8 = 0x0F
	EvtHardwareError             uint8 = 0x10
	EvtNumberOfCompletedPackets  uint8 = 0x13
	EvtLEMeta                    uint8 = 0x3E
)

// LE meta subevent codes [Vol 2, Part E, 7.7.65].
const (
	SubevtLEConnectionComplete         uint8 = 0x01
	SubevtLEAdvertisingReport          uint8 = 0x02
	SubevtLEConnectionUpdateComplete   uint8 = 0x03
	SubevtLELongTermKeyRequest         uint8 = 0x05
	SubevtLEEnhancedConnectionComplete uint8 = 0x0A
)

// ConnectionKind distinguishes the two ACL transports, which have
// independent controller buffer pools.
type ConnectionKind uint8

const (
	KindClassic ConnectionKind = iota
	KindLE
)

func (k ConnectionKind) String() string {
	if k == KindLE {
		return "le"
	}
	return "classic"
}

// assertf panics with a diagnostic on contract violation. These are
// programming errors and are never masked.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
