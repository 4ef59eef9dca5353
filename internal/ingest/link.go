package ingest

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	rerrors "github.com/streamforge/live/internal/errors"
)

// FrameKind classifies an IngestWatch frame's payload.
type FrameKind uint8

const (
	FrameVideo FrameKind = iota
	FrameAudio
	FrameMetadata
)

// Frame is one IngestWatch unit: an RTMP video/audio/script message
// translated for the transcoder, forwarded in publisher order.
type Frame struct {
	Timestamp uint32
	Kind      FrameKind
	Data      []byte
}

// SignalType classifies a message sent back from the transcoder to ingest
// on the same bidi stream.
type SignalType uint8

const (
	SignalAck SignalType = iota
	// SignalReconnect is TranscoderDisconnection::Reconnect: the transcoder
	// is closing its end but ingest may rebind to another worker without
	// dropping the publisher, provided it is at a safe (bytes-since-keyframe
	// == 0) boundary.
	SignalReconnect
	// SignalFatal means the connection must be dropped; no failover.
	SignalFatal
)

// Signal is a control message from the transcoder.
type Signal struct {
	Type   SignalType
	Reason string
}

// TranscoderLink is the bidirectional IngestWatch stream to a claimed
// transcoder. Frames flow ingest→transcoder; Signals flow transcoder→ingest.
type TranscoderLink interface {
	Send(ctx context.Context, f Frame) error
	Recv(ctx context.Context) (Signal, error)
	Close() error
}

// Dialer opens the bidi stream to a transcoder that claimed a connection.
type Dialer interface {
	Dial(ctx context.Context, claim Claim) (TranscoderLink, error)
}

// Wire framing for the private ingest<->transcoder protocol: a 4-byte
// big-endian length prefix, a 1-byte message kind, then the payload. A Frame
// payload is a 4-byte timestamp, a 1-byte FrameKind, then the translated
// media bytes; a Signal payload is a 1-byte SignalType, then the reason
// string. This mirrors the teacher's length-prefixed RTMP chunk
// framing rather than adopting a generated RPC stub (see DESIGN.md).
const (
	wireKindFrame  byte = 0
	wireKindSignal byte = 1
)

// FramedLink is the net.Conn-backed TranscoderLink implementation.
type FramedLink struct {
	conn net.Conn

	writeMu sync.Mutex
}

// NewFramedLink wraps an established connection to a transcoder.
func NewFramedLink(conn net.Conn) *FramedLink { return &FramedLink{conn: conn} }

func (l *FramedLink) Send(ctx context.Context, f Frame) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = l.conn.SetWriteDeadline(dl)
	}
	body := make([]byte, 5+len(f.Data))
	binary.BigEndian.PutUint32(body[0:4], f.Timestamp)
	body[4] = byte(f.Kind)
	copy(body[5:], f.Data)

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return writeFrame(l.conn, wireKindFrame, body)
}

func (l *FramedLink) Recv(ctx context.Context) (Signal, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = l.conn.SetReadDeadline(dl)
	}
	kind, body, err := readFrame(l.conn)
	if err != nil {
		return Signal{}, err
	}
	if kind != wireKindSignal {
		return Signal{}, rerrors.NewProtocolError("ingest.link.recv", fmt.Errorf("unexpected wire kind %d", kind))
	}
	if len(body) < 1 {
		return Signal{}, rerrors.NewProtocolError("ingest.link.recv", fmt.Errorf("short signal body"))
	}
	return Signal{Type: SignalType(body[0]), Reason: string(body[1:])}, nil
}

func (l *FramedLink) Close() error { return l.conn.Close() }

// ReadFrame reads one Frame off r. It is the transcoder side's half of the
// wire protocol FramedLink implements for ingest: transcoder listens for
// Frames and writes Signals back, the mirror image of FramedLink.Send/Recv.
func ReadFrame(r io.Reader) (Frame, error) {
	kind, body, err := readFrame(r)
	if err != nil {
		return Frame{}, err
	}
	if kind != wireKindFrame {
		return Frame{}, rerrors.NewProtocolError("ingest.link.read_frame", fmt.Errorf("unexpected wire kind %d", kind))
	}
	if len(body) < 5 {
		return Frame{}, rerrors.NewProtocolError("ingest.link.read_frame", fmt.Errorf("short frame body"))
	}
	return Frame{
		Timestamp: binary.BigEndian.Uint32(body[0:4]),
		Kind:      FrameKind(body[4]),
		Data:      body[5:],
	}, nil
}

// WriteSignal writes one Signal to w, the transcoder side's counterpart to
// ReadFrame.
func WriteSignal(w io.Writer, sig Signal) error {
	body := make([]byte, 1+len(sig.Reason))
	body[0] = byte(sig.Type)
	copy(body[1:], sig.Reason)
	return writeFrame(w, wireKindSignal, body)
}

func writeFrame(w io.Writer, kind byte, body []byte) error {
	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(body)))
	header[4] = kind
	if _, err := w.Write(header); err != nil {
		return rerrors.NewProtocolError("ingest.link.write", err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return rerrors.NewProtocolError("ingest.link.write", err)
	}
	return nil
}

func readFrame(r io.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, rerrors.NewProtocolError("ingest.link.read", err)
	}
	length := binary.BigEndian.Uint32(header[0:4])
	const maxFrameBytes = 16 << 20
	if length > maxFrameBytes {
		return 0, nil, rerrors.NewProtocolError("ingest.link.read", fmt.Errorf("frame length %d exceeds max %d", length, maxFrameBytes))
	}
	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, rerrors.NewProtocolError("ingest.link.read", err)
		}
	}
	return header[4], body, nil
}

// NetDialer dials transcoders over TCP using the claim's address.
type NetDialer struct {
	Timeout time.Duration
}

func (d NetDialer) Dial(ctx context.Context, claim Claim) (TranscoderLink, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", claim.Addr)
	if err != nil {
		return nil, rerrors.NewProtocolError("ingest.dial_transcoder", err)
	}
	return NewFramedLink(conn), nil
}
