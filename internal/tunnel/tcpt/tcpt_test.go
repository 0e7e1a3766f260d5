package tcpt

import (
	"bytes"
	"net"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{1, 2, 3, 4, 5}
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %v, got %v", payload, got)
	}
}

func TestHandshakeSucceedsOnAck(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		req := make([]byte, len(magic)+1)
		if _, err := server.Read(req); err != nil {
			done <- err
			return
		}
		_, err := server.Write([]byte{ackByte})
		done <- err
	}()

	if err := Handshake(client, DataTypeEsp); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server side: %v", err)
	}
}

func TestHandshakeAckMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		req := make([]byte, len(magic)+1)
		server.Read(req)
		server.Write([]byte{0xFF})
	}()

	if err := Handshake(client, DataTypeEsp); err == nil {
		t.Fatal("expected handshake failure on bad ack")
	}
}
