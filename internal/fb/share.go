package fb

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Share sends msg with the framebuffer handle attached as SCM_RIGHTS. For
// connected sockets to is nil; datagram replies pass the peer address.
func (f *Framebuffer) Share(conn *net.UnixConn, msg []byte, to *net.UnixAddr) error {
	if conn == nil {
		return ErrNotConnected
	}
	if len(msg) == 0 {
		// Ancillary data needs at least one byte of payload.
		msg = []byte{1}
	}
	oob := unix.UnixRights(f.fd)
	_, _, err := conn.WriteMsgUnix(msg, oob, to)
	if err != nil {
		return fmt.Errorf("sharing framebuffer handle: %w", err)
	}
	return nil
}

// ReceiveHandle reads one message from conn and returns its payload and the
// attached descriptor, if any. fd is -1 when the message carried none.
func ReceiveHandle(conn *net.UnixConn, maxPayload int) (payload []byte, fd int, err error) {
	if conn == nil {
		return nil, -1, ErrNotConnected
	}
	buf := make([]byte, maxPayload)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, -1, fmt.Errorf("receiving framebuffer handle: %w", err)
	}

	fd = -1
	if oobn > 0 {
		msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return nil, -1, fmt.Errorf("parsing control message: %w", err)
		}
		for i := range msgs {
			fds, err := unix.ParseUnixRights(&msgs[i])
			if err != nil {
				continue
			}
			for _, got := range fds {
				if fd == -1 {
					fd = got
				} else {
					unix.Close(got)
				}
			}
		}
	}
	return buf[:n], fd, nil
}

// Receive reads a transferred handle from conn and maps it.
func Receive(conn *net.UnixConn) (*Framebuffer, []byte, error) {
	payload, fd, err := ReceiveHandle(conn, 64)
	if err != nil {
		return nil, nil, err
	}
	if fd < 0 {
		return nil, payload, fmt.Errorf("%w: message carried no handle", ErrMap)
	}
	f, err := Map(fd)
	if err != nil {
		unix.Close(fd)
		return nil, payload, err
	}
	return f, payload, nil
}
