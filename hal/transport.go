package hal

import (
	"time"

	"github.com/pkg/errors"

	"github.com/rigado/btstack/hal/h4"
	"github.com/rigado/btstack/hal/socket"
)

// TransportHCI selects the kernel HCI user channel of a local adapter.
type TransportHCI struct {
	ID int `json:"id"`
}

// TransportH4UART selects an H4 framed UART.
type TransportH4UART struct {
	Path string `json:"path"`
	Baud uint   `json:"baud,omitempty"`
}

// TransportH4Socket selects an H4 framed TCP socket (emulators, remote
// controllers).
type TransportH4Socket struct {
	Addr      string `json:"addr"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// Transport describes which controller transport to open. Exactly one
// field is set.
type Transport struct {
	HCI      *TransportHCI      `json:"hci,omitempty"`
	H4UART   *TransportH4UART   `json:"h4uart,omitempty"`
	H4Socket *TransportH4Socket `json:"h4socket,omitempty"`
}

// Open builds the Hal for the descriptor.
func Open(t Transport) (Hal, error) {
	switch {
	case t.HCI != nil:
		s, err := socket.New(t.HCI.ID)
		if err != nil {
			return nil, errors.Wrap(err, "hci socket")
		}
		return NewFromPacketReadWriter(s), nil

	case t.H4UART != nil:
		so := h4.DefaultSerialOptions()
		so.PortName = t.H4UART.Path
		if t.H4UART.Baud != 0 {
			so.BaudRate = t.H4UART.Baud
		}
		rwc, err := h4.NewSerial(so)
		if err != nil {
			return nil, errors.Wrap(err, "h4 uart")
		}
		return NewFromPacketReadWriter(rwc), nil

	case t.H4Socket != nil:
		timeout := time.Duration(t.H4Socket.TimeoutMS) * time.Millisecond
		rwc, err := h4.NewSocket(t.H4Socket.Addr, timeout)
		if err != nil {
			return nil, errors.Wrap(err, "h4 socket")
		}
		return NewFromPacketReadWriter(rwc), nil

	default:
		return nil, errors.New("no valid transport found")
	}
}
