package natt

import (
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbeSucceedsOnSecondAttempt(t *testing.T) {
	responder, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen responder: %v", err)
	}
	defer responder.Close()

	var received int32
	go func() {
		buf := make([]byte, 64)
		for {
			n, addr, err := responder.ReadFromUDP(buf)
			if err != nil {
				return
			}
			count := atomic.AddInt32(&received, 1)
			if count < 2 {
				continue // drop the first probe to force a retry
			}
			responder.WriteToUDP(buf[:n], addr)
		}
	}()

	socket, err := Listen(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen client socket: %v", err)
	}
	defer socket.Close()

	responderAddr := responder.LocalAddr().(*net.UDPAddr)
	prober := &Prober{Address: responderAddr.IP, Port: responderAddr.Port}

	start := time.Now()
	if err := prober.Probe(socket); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if time.Since(start) > 6*time.Second {
		t.Fatalf("probe took too long: %v", time.Since(start))
	}
	if got := atomic.LoadInt32(&received); got != 2 {
		t.Fatalf("expected exactly 2 probes received, got %d", got)
	}
}
