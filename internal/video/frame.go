package video

import "fmt"

// Frame is a read/write view of one picture's bytes interpreted through an
// Info. It does not own Data; callers decide whether it is shared.
type Frame struct {
	Info   Info
	Layout Layout
	Data   []byte
}

// NewFrame allocates a zeroed frame for info.
func NewFrame(info Info) *Frame {
	l := info.Layout()
	return &Frame{Info: info, Layout: l, Data: make([]byte, l.Size)}
}

// MapFrame wraps data as a frame of the given info. It fails when data is
// shorter than one frame.
func MapFrame(info Info, data []byte) (*Frame, error) {
	l := info.Layout()
	if l.Size == 0 {
		return nil, fmt.Errorf("video: cannot map frame with info %s", info)
	}
	if len(data) < l.Size {
		return nil, fmt.Errorf("video: buffer too small for %s: got %d bytes, want %d", info, len(data), l.Size)
	}
	return &Frame{Info: info, Layout: l, Data: data[:l.Size]}, nil
}

// Plane returns the bytes of plane i, starting at its first row.
func (f *Frame) Plane(i int) []byte {
	start := f.Layout.Offset[i]
	end := start + f.Layout.Stride[i]*f.Layout.Height[i]
	return f.Data[start:end]
}

// Stride returns the row stride of plane i in bytes.
func (f *Frame) Stride(i int) int {
	return f.Layout.Stride[i]
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Info.Width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Info.Height }
