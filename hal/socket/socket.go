//go:build linux

// Package socket provides the Linux HCI user channel transport: a raw
// AF_BLUETOOTH socket with exclusive access to one controller. Each Read
// returns one complete HCI packet, indicator included.
package socket

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func ioW(t, nr, size uintptr) uintptr {
	return (1 << 30) | (t << 8) | nr | (size << 16)
}

func ioctl(fd, op, arg uintptr) error {
	if _, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); ep != 0 {
		return ep
	}
	return nil
}

const (
	ioctlSize     = 4
	hciMaxDevices = 16
	typHCI        = 72 // 'H'

	readTimeoutMS = 1000
)

var hciDownDevice = ioW(typHCI, 202, ioctlSize) // HCIDEVDOWN

// Socket implements an HCI user channel as a packet ReadWriteCloser.
type Socket struct {
	fd   int
	rmu  sync.Mutex
	wmu  sync.Mutex
	done chan struct{}
	once sync.Once
}

// New returns the HCI user channel of the given device id. If id is -1
// the first device that can be claimed is used.
func New(id int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "can't create socket")
	}

	if id != -1 {
		return open(fd, id)
	}

	for i := 0; i < hciMaxDevices; i++ {
		if s, err := open(fd, i); err == nil {
			return s, nil
		}
	}
	unix.Close(fd)
	return nil, errors.New("no available hci device")
}

func open(fd, id int) (*Socket, error) {
	// The kernel requires the device to be down before a user channel
	// can bind to it.
	if err := ioctl(uintptr(fd), hciDownDevice, uintptr(id)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't down device")
	}

	sa := unix.SockaddrHCI{Dev: uint16(id), Channel: unix.HCI_CHANNEL_USER}
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "can't bind socket to hci%d user channel", id)
	}

	// poll for 20ms to see if any data becomes available, then clear it
	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	unix.Poll(pfds, 20)
	if pfds[0].Revents&unix.POLLIN != 0 {
		b := make([]byte, 100)
		unix.Read(fd, b)
	}

	return &Socket{fd: fd, done: make(chan struct{})}, nil
}

// Read returns one packet. A poll timeout yields (0, nil) so callers can
// check their own shutdown state.
func (s *Socket) Read(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}

	s.rmu.Lock()
	defer s.rmu.Unlock()

	pfds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(pfds, readTimeoutMS); err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, errors.Wrap(err, "poll")
	}
	if pfds[0].Revents&(unix.POLLHUP|unix.POLLNVAL|unix.POLLERR) != 0 {
		return 0, io.EOF
	}
	if pfds[0].Revents&unix.POLLIN == 0 {
		return 0, nil
	}

	n, err := unix.Read(s.fd, p)
	if n < 0 {
		n = 0
	}
	if !s.isOpen() {
		return 0, io.EOF
	}
	return n, errors.Wrap(err, "can't read")
}

func (s *Socket) Write(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := unix.Write(s.fd, p)
	return n, errors.Wrap(err, "can't write")
}

func (s *Socket) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)

		s.wmu.Lock()
		err = unix.Close(s.fd)
		s.wmu.Unlock()
	})
	return errors.Wrap(err, "can't close")
}

func (s *Socket) isOpen() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

