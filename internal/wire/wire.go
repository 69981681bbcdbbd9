// Package wire frames raw video for transport between a producer and the
// mixer. A stream opens with a 4-byte magic and a version, followed by
// messages of the form [type (varint)] [length (varint)] [payload].
// Integers are QUIC variable-length integers; timestamps are sent as t+1 so
// that clock.None encodes as zero.
package wire

import (
	"errors"
	"fmt"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
)

// Magic opens every stream.
var Magic = [4]byte{'M', 'S', 'C', 'V'}

// Version is the only protocol version spoken.
const Version uint64 = 1

// Message type IDs.
const (
	MsgCaps    uint64 = 0x01
	MsgSegment uint64 = 0x02
	MsgBuffer  uint64 = 0x03
	MsgEOS     uint64 = 0x04
	MsgProps   uint64 = 0x05
)

// MaxMessageSize bounds a single payload. It is large enough for one
// 4K frame in any supported format.
const MaxMessageSize = 64 << 20

var (
	ErrBadMagic        = errors.New("wire: bad magic")
	ErrVersion         = errors.New("wire: unsupported version")
	ErrMessageTooLarge = errors.New("wire: message too large")
	ErrUnknownMessage  = errors.New("wire: unknown message type")
)

// ParseError records which field of a message failed to decode.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("wire: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Message is one of *Caps, *Segment, *Buffer, *EOS or *Props.
type Message interface {
	Type() uint64
}

// Caps announces the stream's video format. It must precede the first
// Buffer.
type Caps struct {
	Info video.Info
}

// Segment announces the timeline that following buffers belong to.
type Segment struct {
	Segment clock.Segment
}

// Buffer carries one raw frame.
type Buffer struct {
	PTS      clock.Time
	Duration clock.Time
	Data     []byte
}

// EOS ends the stream. Nothing may follow it.
type EOS struct{}

// Props requests a change to how the sender's channel is composited.
// Nil fields are left as they are.
type Props struct {
	Z     *int
	X     *int
	Y     *int
	Alpha *float64
}

func (*Caps) Type() uint64    { return MsgCaps }
func (*Segment) Type() uint64 { return MsgSegment }
func (*Buffer) Type() uint64  { return MsgBuffer }
func (*EOS) Type() uint64     { return MsgEOS }
func (*Props) Type() uint64   { return MsgProps }

// Props presence bits.
const (
	propZ byte = 1 << iota
	propX
	propY
	propAlpha
)
