package natt

import (
	"net"
	"time"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
)

// SendReceive writes one datagram to the socket's connected peer (the
// socket must have been connected with net.DialUDP) and awaits one reply,
// bounded by timeout.
func (s *Socket) SendReceive(payload []byte, timeout time.Duration) ([]byte, error) {
	return s.sendReceive(payload, timeout, nil)
}

// SendReceiveTo is the unconnected-socket variant of SendReceive: it sends
// to an explicit address and waits for any reply.
func (s *Socket) SendReceiveTo(payload []byte, timeout time.Duration, addr *net.UDPAddr) ([]byte, error) {
	return s.sendReceive(payload, timeout, addr)
}

func (s *Socket) sendReceive(payload []byte, timeout time.Duration, addr *net.UDPAddr) ([]byte, error) {
	var err error
	if addr != nil {
		_, err = s.conn.WriteToUDP(payload, addr)
	} else {
		_, err = s.conn.Write(payload)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.Network, "natt: write", err)
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, apperror.Wrap(apperror.Network, "natt: set read deadline", err)
	}
	defer s.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 2048)
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, apperror.New(apperror.Timeout, "natt: read timed out")
		}
		return nil, apperror.Wrap(apperror.Network, "natt: read", err)
	}
	return buf[:n], nil
}
