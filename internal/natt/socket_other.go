//go:build !linux

package natt

import (
	"fmt"
	"net"
)

// Socket is a no-op stand-in on platforms where ESP-in-UDP encapsulation
// and checksum suppression are handled by the OS network stack rather than
// explicit socket options.
type Socket struct {
	conn *net.UDPConn
}

// Listen opens a plain UDP socket; SetEncap/SetNoCheck are no-ops here.
func Listen(laddr *net.UDPAddr) (*Socket, error) {
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("natt: listen: %w", err)
	}
	return &Socket{conn: conn}, nil
}

// SetEncap is a no-op on this platform.
func (s *Socket) SetEncap() error { return nil }

// SetNoCheck is a no-op on this platform.
func (s *Socket) SetNoCheck() error { return nil }

func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Socket) UDPConn() *net.UDPConn {
	return s.conn
}

func (s *Socket) Close() error {
	return s.conn.Close()
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
