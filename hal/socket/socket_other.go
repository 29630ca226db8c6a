//go:build !linux

package socket

import (
	"io"

	"github.com/pkg/errors"
)

// Socket is only available on Linux.
type Socket struct{}

func New(id int) (*Socket, error) {
	return nil, errors.New("hci user channel socket requires linux")
}

func (s *Socket) Read(p []byte) (int, error)  { return 0, io.EOF }
func (s *Socket) Write(p []byte) (int, error) { return 0, io.EOF }
func (s *Socket) Close() error                { return nil }
