// Package ssl implements the SSL tunnel's wire framing (codec.go) and its
// bring-up/multiplex driver (driver.go).
package ssl

import (
	"encoding/binary"
	"fmt"
)

// FrameType is the second 32-bit field of a wire frame.
type FrameType uint32

const (
	FrameControl FrameType = 1
	FrameData    FrameType = 2
)

// Frame is a decoded SSL tunnel record: either a Control frame carrying a
// UTF-8 S-expression, or a Data frame carrying a raw inner IP packet.
type Frame struct {
	Type    FrameType
	Control string // valid when Type == FrameControl
	Data    []byte // valid when Type == FrameData
}

const headerLen = 8

// ErrNeedMore is returned by Decode when the buffer does not yet contain a
// complete frame; the caller should read more bytes and retry without
// consuming any of buf.
var ErrNeedMore = fmt.Errorf("ssl: need more data")

// Decode attempts to decode one frame from the front of buf. On success it
// returns the frame and the number of bytes consumed. If buf does not yet
// hold a complete frame, it returns ErrNeedMore and consumed=0 — buf must
// be left untouched by the caller.
//
// The control-frame terminator is tolerated in both dialects: some
// encoders count the trailing '\0' in length, some do not. Decode first
// tries the payload as given; if it ends in '\0' it is stripped, and if it
// doesn't but the next byte in the stream is '\0' (length did not count
// it), that byte is consumed too.
func Decode(buf []byte) (frame Frame, consumed int, err error) {
	if len(buf) < headerLen {
		return Frame{}, 0, ErrNeedMore
	}
	length := binary.BigEndian.Uint32(buf[0:4])
	typ := FrameType(binary.BigEndian.Uint32(buf[4:8]))

	need := headerLen + int(length)
	if len(buf) < need {
		return Frame{}, 0, ErrNeedMore
	}
	payload := buf[headerLen:need]

	switch typ {
	case FrameControl:
		consumed = need
		if len(payload) > 0 && payload[len(payload)-1] == 0 {
			payload = payload[:len(payload)-1]
		} else if len(buf) > need && buf[need] == 0 {
			consumed++
		}
		return Frame{Type: FrameControl, Control: string(payload)}, consumed, nil
	case FrameData:
		out := make([]byte, len(payload))
		copy(out, payload)
		return Frame{Type: FrameData, Data: out}, need, nil
	default:
		return Frame{}, 0, fmt.Errorf("ssl: unknown frame type %d", typ)
	}
}

// EncodeControl renders a Control frame, counting the trailing '\0' terminator in
// the length field.
func EncodeControl(sexpr string) []byte {
	payload := append([]byte(sexpr), 0)
	return encodeFrame(FrameControl, payload)
}

// EncodeData renders a Data frame carrying raw payload bytes.
func EncodeData(payload []byte) []byte {
	return encodeFrame(FrameData, payload)
}

func encodeFrame(typ FrameType, payload []byte) []byte {
	out := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(out[4:8], uint32(typ))
	copy(out[headerLen:], payload)
	return out
}
