// Package h4 provides UART and TCP transports carrying H4 framed HCI
// traffic. Each Read returns exactly one complete HCI packet, indicator
// byte included.
package h4

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

const rxQueueSize = 64

type h4 struct {
	rwc io.ReadWriteCloser

	rmu sync.Mutex
	wmu sync.Mutex

	frames chan []byte

	done chan struct{}
	once sync.Once
}

// DefaultSerialOptions returns the serial settings most H4 controllers
// speak out of the box.
func DefaultSerialOptions() serial.OpenOptions {
	return serial.OpenOptions{
		BaudRate:              115200,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	}
}

// NewSerial opens an H4 framed serial port.
func NewSerial(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
	// force these; the framer depends on short read timeouts
	opts.MinimumReadSize = 0
	if opts.InterCharacterTimeout == 0 {
		opts.InterCharacterTimeout = 100
	}

	sp, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "can't open serial port")
	}

	return newH4(sp), nil
}

// NewSocket opens an H4 framed TCP connection (emulated or remote
// controllers).
func NewSocket(addr string, timeout time.Duration) (io.ReadWriteCloser, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "can't dial h4 socket")
	}
	return newH4(c), nil
}

func newH4(rwc io.ReadWriteCloser) *h4 {
	h := &h4{
		rwc:    rwc,
		frames: make(chan []byte, rxQueueSize),
		done:   make(chan struct{}),
	}
	go h.rxLoop()
	return h
}

// Read returns one complete packet. A timeout yields (0, nil) so callers
// can poll their own shutdown state.
func (h *h4) Read(p []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}

	h.rmu.Lock()
	defer h.rmu.Unlock()

	select {
	case f, ok := <-h.frames:
		if !ok {
			return 0, io.EOF
		}
		if len(p) < len(f) {
			return 0, errors.Errorf("buffer too small: %d < %d", len(p), len(f))
		}
		return copy(p, f), nil

	case <-h.done:
		return 0, io.EOF

	case <-time.After(time.Second):
		return 0, nil
	}
}

func (h *h4) Write(p []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	return h.rwc.Write(p)
}

func (h *h4) Close() error {
	var err error
	h.once.Do(func() {
		close(h.done)
		err = h.rwc.Close()
	})
	return err
}

func (h *h4) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *h4) rxLoop() {
	defer close(h.frames)

	asm := newAssembler(h.frames)
	b := make([]byte, 2048)

	for h.isOpen() {
		n, err := h.rwc.Read(b)
		if err != nil {
			return
		}
		if n > 0 {
			asm.feed(b[:n])
		}
	}
}
