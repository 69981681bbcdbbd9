package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
)

type byteReader interface {
	io.Reader
	io.ByteReader
}

// Decoder reads messages from a stream, checking the header on first use.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	r          byteReader
	readHeader bool
}

// NewDecoder returns a Decoder reading from r. r is buffered unless it
// already implements io.ByteReader.
func NewDecoder(r io.Reader) *Decoder {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{r: br}
}

// ReadHeader consumes and validates the stream header. Decode calls it
// implicitly.
func (d *Decoder) ReadHeader() error {
	if d.readHeader {
		return nil
	}
	var magic [4]byte
	if _, err := io.ReadFull(d.r, magic[:]); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if magic != Magic {
		return fmt.Errorf("%w: %q", ErrBadMagic, magic[:])
	}
	v, err := quicvarint.Read(d.r)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if v != Version {
		return fmt.Errorf("%w: %d", ErrVersion, v)
	}
	d.readHeader = true
	return nil
}

// Decode reads the next message. It returns io.EOF at a clean end of
// stream and io.ErrUnexpectedEOF when the stream ends mid-message.
func (d *Decoder) Decode() (Message, error) {
	if err := d.ReadHeader(); err != nil {
		return nil, err
	}
	msgType, err := quicvarint.Read(d.r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read message type: %w", err)
	}
	length, err := quicvarint.Read(d.r)
	if err != nil {
		return nil, fmt.Errorf("read message length: %w", unexpected(err))
	}
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, fmt.Errorf("read message payload: %w", unexpected(err))
	}
	return ParsePayload(msgType, payload)
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ParsePayload decodes the payload of a message of the given type.
func ParsePayload(msgType uint64, data []byte) (Message, error) {
	r := &bufReader{data: data}
	switch msgType {
	case MsgCaps:
		var vals [7]uint64
		fields := [7]string{"format", "width", "height", "fps_num", "fps_den", "par_num", "par_den"}
		for i := range vals {
			v, err := r.readVarint()
			if err != nil {
				return nil, &ParseError{Field: fields[i], Err: err}
			}
			vals[i] = v
		}
		if vals[0] > math.MaxUint8 {
			return nil, &ParseError{Field: "format", Err: fmt.Errorf("value %d out of range", vals[0])}
		}
		for i := 1; i < len(vals); i++ {
			if vals[i] > math.MaxInt32 {
				return nil, &ParseError{Field: fields[i], Err: fmt.Errorf("value %d out of range", vals[i])}
			}
		}
		return &Caps{Info: video.Info{
			Format: video.Format(vals[0]),
			Width:  int(vals[1]),
			Height: int(vals[2]),
			FPS:    video.Fraction{Num: int(vals[3]), Den: int(vals[4])},
			PAR:    video.Fraction{Num: int(vals[5]), Den: int(vals[6])},
		}}, nil

	case MsgSegment:
		rate, err := r.readUint64()
		if err != nil {
			return nil, &ParseError{Field: "rate", Err: err}
		}
		seg := clock.Segment{Rate: math.Float64frombits(rate), Position: clock.None}
		for _, f := range []struct {
			name string
			dst  *clock.Time
		}{
			{"start", &seg.Start},
			{"stop", &seg.Stop},
			{"time", &seg.Time},
			{"base", &seg.Base},
		} {
			t, err := r.readTime()
			if err != nil {
				return nil, &ParseError{Field: f.name, Err: err}
			}
			*f.dst = t
		}
		return &Segment{Segment: seg}, nil

	case MsgBuffer:
		pts, err := r.readTime()
		if err != nil {
			return nil, &ParseError{Field: "pts", Err: err}
		}
		dur, err := r.readTime()
		if err != nil {
			return nil, &ParseError{Field: "duration", Err: err}
		}
		return &Buffer{PTS: pts, Duration: dur, Data: r.rest()}, nil

	case MsgEOS:
		return &EOS{}, nil

	case MsgProps:
		mask, err := r.readByte()
		if err != nil {
			return nil, &ParseError{Field: "mask", Err: err}
		}
		var p Props
		for _, f := range []struct {
			bit  byte
			name string
			dst  **int
		}{
			{propZ, "z", &p.Z},
			{propX, "x", &p.X},
			{propY, "y", &p.Y},
		} {
			if mask&f.bit == 0 {
				continue
			}
			u, err := r.readVarint()
			if err != nil {
				return nil, &ParseError{Field: f.name, Err: err}
			}
			v := int(unzigzag(u))
			*f.dst = &v
		}
		if mask&propAlpha != 0 {
			bits, err := r.readUint64()
			if err != nil {
				return nil, &ParseError{Field: "alpha", Err: err}
			}
			a := math.Float64frombits(bits)
			p.Alpha = &a
		}
		return &p, nil
	}
	return nil, fmt.Errorf("%w: %#x", ErrUnknownMessage, msgType)
}

// bufReader wraps a payload for sequential reads.
type bufReader struct {
	data []byte
	pos  int
}

func (b *bufReader) readVarint() (uint64, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	val, n, err := quicvarint.Parse(b.data[b.pos:])
	if err != nil {
		return 0, err
	}
	b.pos += n
	return val, nil
}

func (b *bufReader) readTime() (clock.Time, error) {
	v, err := b.readVarint()
	if err != nil {
		return clock.None, err
	}
	if v == 0 {
		return clock.None, nil
	}
	return clock.Time(v - 1), nil
}

func (b *bufReader) readByte() (byte, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

func (b *bufReader) readUint64() (uint64, error) {
	if len(b.data)-b.pos < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint64(b.data[b.pos:])
	b.pos += 8
	return v, nil
}

func (b *bufReader) rest() []byte {
	out := b.data[b.pos:]
	b.pos = len(b.data)
	return out
}
