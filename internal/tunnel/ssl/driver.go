package ssl

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/sexpr"
	"github.com/ancwrd1/snx-rs-sub001/internal/tunnelevent"
)

// KeepaliveInterval is the cadence of the Control-frame keepalive request
// sent while the SSL tunnel is up.
const KeepaliveInterval = 20 * time.Second

// MaxMissedKeepalives is the number of consecutive unanswered keepalive
// requests tolerated before the driver treats the tunnel as dead.
const MaxMissedKeepalives = 3

// Dial opens a TLS connection to addr and performs the control-frame
// handshake: it sends the hello sexpr and waits for the gateway's accept
// control frame before returning.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config, hello sexpr.Tree) (net.Conn, error) {
	dialer := &tls.Dialer{Config: tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperror.Wrap(apperror.Network, "ssl: dial", err)
	}

	if _, err := conn.Write(EncodeControl(sexpr.Format(hello))); err != nil {
		conn.Close()
		return nil, apperror.Wrap(apperror.Network, "ssl: send hello", err)
	}

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		frame, consumed, err := Decode(buf)
		if err == nil {
			buf = buf[consumed:]
			if frame.Type != FrameControl {
				conn.Close()
				return nil, apperror.New(apperror.Protocol, "ssl: expected control frame for handshake reply")
			}
			return conn, nil
		}
		if err != ErrNeedMore {
			conn.Close()
			return nil, apperror.Wrap(apperror.Protocol, "ssl: decode handshake reply", err)
		}
		n, rerr := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if rerr != nil {
			conn.Close()
			return nil, apperror.Wrap(apperror.Network, "ssl: read handshake reply", rerr)
		}
	}
}

// Driver multiplexes one SSL tunnel connection: inbound Data frames become
// RemoteControlData events, outbound Data frames are written from the
// Outbound channel, and any inbound Control frame is taken as a keepalive
// reply that resets the missed-reply counter; Control frames are not
// otherwise dispatched.
type Driver struct {
	conn     net.Conn
	commands <-chan tunnelevent.Command
	events   chan<- tunnelevent.Event

	// Outbound carries raw inner packets to be wrapped as Data frames and
	// written to the tunnel.
	Outbound chan []byte

	keepaliveID int
	missed      int

	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
}

// New builds a Driver around an already-handshaken connection.
func New(conn net.Conn, commands <-chan tunnelevent.Command, events chan<- tunnelevent.Event) *Driver {
	return &Driver{
		conn:     conn,
		commands: commands,
		events:   events,
		Outbound: make(chan []byte, 32),
	}
}

type frameResult struct {
	frame Frame
	err   error
}

// Run drives the multiplex loop until Terminate is received, the
// connection errors, or the keepalive budget is exhausted. It always closes
// the underlying connection before returning.
func (d *Driver) Run(ctx context.Context) error {
	defer d.conn.Close()

	frames := make(chan frameResult, 8)
	go d.readLoop(frames)

	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd := <-d.commands:
			if cmd.Kind == tunnelevent.Terminate {
				return nil
			}

		case payload := <-d.Outbound:
			if _, err := d.conn.Write(EncodeData(payload)); err != nil {
				return apperror.Wrap(apperror.Network, "ssl: write data frame", err)
			}
			d.bytesOut.Add(uint64(len(payload)))

		case <-ticker.C:
			if d.missed >= MaxMissedKeepalives {
				return apperror.New(apperror.KeepaliveFailure, "ssl: keepalive exceeded missed-reply budget")
			}
			d.missed++
			req := sexpr.Obj("KeepaliveRequest", sexpr.Field("id", sexpr.Val("0")))
			if _, err := d.conn.Write(EncodeControl(sexpr.Format(req))); err != nil {
				return apperror.Wrap(apperror.Network, "ssl: write keepalive", err)
			}
			d.events <- tunnelevent.Event{
				Kind:     tunnelevent.TrafficStats,
				BytesIn:  d.bytesIn.Load(),
				BytesOut: d.bytesOut.Load(),
			}

		case res := <-frames:
			if res.err != nil {
				return apperror.Wrap(apperror.Network, "ssl: read", res.err)
			}
			switch res.frame.Type {
			case FrameData:
				d.bytesIn.Add(uint64(len(res.frame.Data)))
				d.events <- tunnelevent.Event{Kind: tunnelevent.RemoteControlData, Data: res.frame.Data}
			case FrameControl:
				d.missed = 0
			}
		}
	}
}

// readLoop continuously decodes frames from the connection and forwards
// them (or a terminal error) on frames. It exits once the connection
// returns a read error.
func (d *Driver) readLoop(frames chan<- frameResult) {
	var buf bytes.Buffer
	tmp := make([]byte, 4096)
	for {
		for {
			frame, consumed, err := Decode(buf.Bytes())
			if err == ErrNeedMore {
				break
			}
			if err != nil {
				frames <- frameResult{err: err}
				return
			}
			remaining := buf.Bytes()[consumed:]
			next := make([]byte, len(remaining))
			copy(next, remaining)
			buf.Reset()
			buf.Write(next)
			frames <- frameResult{frame: frame}
		}

		n, err := d.conn.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil {
			if err != io.EOF {
				frames <- frameResult{err: err}
			} else {
				frames <- frameResult{err: io.EOF}
			}
			return
		}
	}
}
