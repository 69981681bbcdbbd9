package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/mosaic/internal/clock"
)

// Encoder writes messages to a stream. The header is written before the
// first message. An Encoder is not safe for concurrent use.
type Encoder struct {
	w           io.Writer
	wroteHeader bool
	buf         []byte
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// AppendHeader appends the stream header to buf.
func AppendHeader(buf []byte) []byte {
	buf = append(buf, Magic[:]...)
	return quicvarint.Append(buf, Version)
}

// Encode writes m, preceded by the stream header on first use, as a single
// Write call.
func (e *Encoder) Encode(m Message) error {
	payload, err := AppendPayload(nil, m)
	if err != nil {
		return err
	}
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}

	buf := e.buf[:0]
	if !e.wroteHeader {
		buf = AppendHeader(buf)
	}
	buf = quicvarint.Append(buf, m.Type())
	buf = quicvarint.Append(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	e.buf = buf

	if _, err := e.w.Write(buf); err != nil {
		return err
	}
	e.wroteHeader = true
	return nil
}

// AppendPayload appends the payload encoding of m to buf.
func AppendPayload(buf []byte, m Message) ([]byte, error) {
	switch m := m.(type) {
	case *Caps:
		i := m.Info
		buf = appendVarint(buf, uint64(i.Format))
		buf = appendVarint(buf, uint64(i.Width))
		buf = appendVarint(buf, uint64(i.Height))
		buf = appendVarint(buf, uint64(i.FPS.Num))
		buf = appendVarint(buf, uint64(i.FPS.Den))
		buf = appendVarint(buf, uint64(i.PAR.Num))
		buf = appendVarint(buf, uint64(i.PAR.Den))
	case *Segment:
		s := m.Segment
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(s.Rate))
		buf = appendTime(buf, s.Start)
		buf = appendTime(buf, s.Stop)
		buf = appendTime(buf, s.Time)
		buf = appendTime(buf, s.Base)
	case *Buffer:
		buf = appendTime(buf, m.PTS)
		buf = appendTime(buf, m.Duration)
		buf = append(buf, m.Data...)
	case *EOS:
	case *Props:
		var mask byte
		if m.Z != nil {
			mask |= propZ
		}
		if m.X != nil {
			mask |= propX
		}
		if m.Y != nil {
			mask |= propY
		}
		if m.Alpha != nil {
			mask |= propAlpha
		}
		buf = append(buf, mask)
		for _, v := range []*int{m.Z, m.X, m.Y} {
			if v != nil {
				buf = appendVarint(buf, zigzag(int64(*v)))
			}
		}
		if m.Alpha != nil {
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(*m.Alpha))
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
	return buf, nil
}

func appendTime(buf []byte, t clock.Time) []byte {
	if !t.IsValid() {
		return quicvarint.Append(buf, 0)
	}
	return appendVarint(buf, uint64(t)+1)
}

// appendVarint saturates at quicvarint.Max (about 146 years in
// nanoseconds) instead of panicking.
func appendVarint(buf []byte, v uint64) []byte {
	return quicvarint.Append(buf, min(v, quicvarint.Max))
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
