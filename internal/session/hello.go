// Package session implements connection-oriented client registration: a
// client says hello, receives the shared framebuffer handle, and stays
// registered until its connection closes. The active client also receives
// input events over the same connection.
package session

import (
	"encoding/binary"
	"fmt"

	"github.com/1broseidon/inkmux/internal/ipc"
	"github.com/1broseidon/inkmux/internal/protocol"
)

// HelloSize is the size of the registration message: {pid int32, name[32]}.
const HelloSize = 4 + ipc.NameSize

// Hello registers a client. A zero PID asks the server to use the peer
// credentials of the connection.
type Hello struct {
	PID  int32
	Name string
}

// MarshalBinary encodes h.
func (h Hello) MarshalBinary() ([]byte, error) {
	b := make([]byte, HelloSize)
	binary.LittleEndian.PutUint32(b, uint32(h.PID))
	name := ipc.EncodeName(h.Name)
	copy(b[4:], name[:])
	return b, nil
}

// UnmarshalBinary decodes exactly HelloSize bytes.
func (h *Hello) UnmarshalBinary(b []byte) error {
	if len(b) != HelloSize {
		return fmt.Errorf("%w: hello is %d bytes, want %d", protocol.ErrMalformed, len(b), HelloSize)
	}
	pid := int32(binary.LittleEndian.Uint32(b))
	if pid < 0 {
		return fmt.Errorf("%w: negative pid %d", protocol.ErrMalformed, pid)
	}
	h.PID = pid
	h.Name = ipc.DecodeName(b[4:])
	return nil
}
