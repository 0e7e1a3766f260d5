//go:build linux

// Package natt implements the UDP/NAT-T socket adapter (C5, socket.go) and
// the NAT-T listener that owns it for the tunnel's lifetime (C8,
// listener.go).
package natt

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Socket wraps a UDP socket configured for ESP-in-UDP NAT-T traffic:
// UDP_ENCAP so the kernel rewrites inbound ESP-marked datagrams into raw
// ESP for the matching XFRM state, and SO_NO_CHECK so outbound datagrams
// carry a zero checksum (the gateway itself emits incorrect checksums and
// would otherwise drop replies that checksum-validate).
type Socket struct {
	conn *net.UDPConn
}

// Listen opens a UDP socket bound to laddr (use ":0" for an ephemeral
// port) with encap and checksum suppression applied.
func Listen(laddr *net.UDPAddr) (*Socket, error) {
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("natt: listen: %w", err)
	}
	s := &Socket{conn: conn}
	if err := s.SetEncap(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.SetNoCheck(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Socket) setsockopt(level, opt, value int) error {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), level, opt, value)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// SetEncap enables UDP_ENCAP_ESPINUDP so the kernel decapsulates inbound
// ESP-marked UDP/4500 datagrams and feeds them to the matching XFRM state.
func (s *Socket) SetEncap() error {
	if err := s.setsockopt(unix.SOL_UDP, unix.UDP_ENCAP, unix.UDP_ENCAP_ESPINUDP); err != nil {
		return fmt.Errorf("natt: set UDP_ENCAP: %w", err)
	}
	return nil
}

// SetNoCheck suppresses outbound UDP checksum computation.
func (s *Socket) SetNoCheck() error {
	if err := s.setsockopt(unix.SOL_SOCKET, unix.SO_NO_CHECK, 1); err != nil {
		return fmt.Errorf("natt: set SO_NO_CHECK: %w", err)
	}
	return nil
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// UDPConn exposes the underlying connection for callers that need direct
// read/write access (the NAT-T listener).
func (s *Socket) UDPConn() *net.UDPConn {
	return s.conn
}

// Close releases the socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// isTimeout reports whether err is a network timeout, used to translate
// deadline expiry into the Timeout error kind at call sites.
func isTimeout(err error) bool {
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok {
		return netErr.Timeout()
	}
	return false
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return true
}
