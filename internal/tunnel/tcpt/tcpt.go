// Package tcpt implements the TCP-encapsulated ESP fallback transport used
// when UDP/NAT-T is blocked: a short handshake over a raw TCP socket to the
// gateway's advertised TCPT port, followed by length-prefixed ESP frames.
package tcpt

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// DataType selects what kind of payload a TCPT connection carries.
type DataType byte

const (
	DataTypeEsp DataType = 1
	DataTypeCmd DataType = 2
)

// magic is the fixed 4-byte preamble the gateway expects before the
// data-type byte on a new TCPT connection.
var magic = [4]byte{0x54, 0x43, 0x50, 0x54} // "TCPT"

// ackByte is the single byte the gateway returns to acknowledge the
// handshake.
const ackByte = 0x01

const lengthPrefixLen = 4

// Handshake performs the TCPT connection prelude: write magic + data type,
// read back a one-byte ack. Returns an error if the gateway does not ack.
func Handshake(conn net.Conn, dt DataType) error {
	req := make([]byte, len(magic)+1)
	copy(req, magic[:])
	req[len(magic)] = byte(dt)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("tcpt: handshake write: %w", err)
	}
	ack := make([]byte, 1)
	if _, err := io.ReadFull(conn, ack); err != nil {
		return fmt.Errorf("tcpt: handshake read ack: %w", err)
	}
	if ack[0] != ackByte {
		return fmt.Errorf("tcpt: handshake rejected, ack byte %#x", ack[0])
	}
	return nil
}

// WriteFrame writes one length-prefixed ESP frame.
func WriteFrame(w io.Writer, payload []byte) error {
	header := make([]byte, lengthPrefixLen)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("tcpt: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("tcpt: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed ESP frame, blocking until a complete
// frame is available.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, lengthPrefixLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("tcpt: read frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(header)
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("tcpt: read frame payload: %w", err)
	}
	return payload, nil
}

// Conn bridges a handshaken TCPT socket to channels carrying raw ESP
// frames, mirroring the SSL driver's channel-based bridging.
type Conn struct {
	conn     net.Conn
	Inbound  chan []byte
	Outbound chan []byte
	errCh    chan error
	stopCh   chan struct{}
}

// Dial connects to addr, performs the TCPT handshake for Esp data, and
// starts the read/write pumps.
func Dial(addr string) (*Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcpt: dial %s: %w", addr, err)
	}
	if err := Handshake(conn, DataTypeEsp); err != nil {
		conn.Close()
		return nil, err
	}
	c := &Conn{
		conn:     conn,
		Inbound:  make(chan []byte, 64),
		Outbound: make(chan []byte, 64),
		errCh:    make(chan error, 2),
		stopCh:   make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *Conn) readPump() {
	for {
		frame, err := ReadFrame(c.conn)
		if err != nil {
			select {
			case c.errCh <- err:
			default:
			}
			return
		}
		select {
		case c.Inbound <- frame:
		case <-c.stopCh:
			return
		}
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case frame := <-c.Outbound:
			if err := WriteFrame(c.conn, frame); err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}
		case <-c.stopCh:
			return
		}
	}
}

// Err returns a channel that yields the first transport error encountered
// by either pump.
func (c *Conn) Err() <-chan error {
	return c.errCh
}

// Close stops the pumps and closes the underlying socket.
func (c *Conn) Close() error {
	close(c.stopCh)
	return c.conn.Close()
}
