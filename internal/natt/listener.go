package natt

import (
	"time"

	"github.com/ancwrd1/snx-rs-sub001/internal/tunnelevent"
)

// Listener owns the ESPinUDP socket for the lifetime of the tunnel. Every
// datagram it reads is NOT decrypted ESP (the kernel already intercepted
// those into the matching XFRM state) — it is an out-of-band IKE or
// informational message (e.g. a rekey notification) that is forwarded as a
// RemoteControlData event.
type Listener struct {
	socket *Socket
	events chan<- tunnelevent.Event
	stopCh chan struct{}
	doneCh chan struct{}
}

// StartListener begins reading from socket and forwarding RemoteControlData
// events until Stop is called.
func StartListener(socket *Socket, events chan<- tunnelevent.Event) *Listener {
	l := &Listener{
		socket: socket,
		events: events,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Listener) run() {
	defer close(l.doneCh)
	conn := l.socket.UDPConn()
	buf := make([]byte, 2048)
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case l.events <- tunnelevent.Event{Kind: tunnelevent.RemoteControlData, Data: data}:
		case <-l.stopCh:
			return
		}
	}
}

// Stop signals the listener to exit and waits for it to do so.
func (l *Listener) Stop() {
	close(l.stopCh)
	<-l.doneCh
}
