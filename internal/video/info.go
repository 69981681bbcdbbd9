package video

import (
	"fmt"
	"strconv"
	"strings"
)

// Fraction is a rational number such as a frame rate or pixel aspect ratio.
type Fraction struct {
	Num int `json:"num" yaml:"num"`
	Den int `json:"den" yaml:"den"`
}

// Float returns the fraction as a float64, or 0 when the denominator is 0.
func (f Fraction) Float() float64 {
	if f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

// IsZero reports whether the fraction is unset or zero-valued.
func (f Fraction) IsZero() bool {
	return f.Num == 0 || f.Den == 0
}

// Equal compares two fractions by value, so 2/2 equals 1/1.
func (f Fraction) Equal(o Fraction) bool {
	if f.Den == 0 || o.Den == 0 {
		return f.Den == o.Den && f.Num == o.Num
	}
	return int64(f.Num)*int64(o.Den) == int64(o.Num)*int64(f.Den)
}

// Less reports whether f < o.
func (f Fraction) Less(o Fraction) bool {
	return f.Float() < o.Float()
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// ParseFraction parses "num/den" or a plain integer such as "25".
func ParseFraction(s string) (Fraction, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.Atoi(num)
	if err != nil {
		return Fraction{}, fmt.Errorf("video: bad fraction %q", s)
	}
	d := 1
	if found {
		if d, err = strconv.Atoi(den); err != nil || d <= 0 {
			return Fraction{}, fmt.Errorf("video: bad fraction %q", s)
		}
	}
	if n < 0 {
		return Fraction{}, fmt.Errorf("video: negative fraction %q", s)
	}
	return Fraction{Num: n, Den: d}, nil
}

// Square is the 1/1 pixel aspect ratio assumed when none is given.
var Square = Fraction{Num: 1, Den: 1}

// MaxDimension bounds the width and height of any frame, which keeps frame
// sizes well inside int range for every format.
const MaxDimension = 16384

// Info is the negotiated description of a raw video stream.
type Info struct {
	Format Format   `json:"format"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	FPS    Fraction `json:"fps"`
	PAR    Fraction `json:"par"`
}

// NewInfo returns an Info with square pixels.
func NewInfo(f Format, width, height int, fps Fraction) Info {
	return Info{Format: f, Width: width, Height: height, FPS: fps, PAR: Square}
}

// Valid reports whether the format and dimensions are known.
func (i Info) Valid() bool {
	return i.Format != FormatUnknown && i.Width > 0 && i.Height > 0
}

// Fits reports whether both dimensions are within MaxDimension.
func (i Info) Fits() bool {
	return i.Width <= MaxDimension && i.Height <= MaxDimension
}

// PixelAspect returns the pixel aspect ratio, defaulting to 1/1.
func (i Info) PixelAspect() Fraction {
	if i.PAR.IsZero() {
		return Square
	}
	return i.PAR
}

// Compatible reports whether two streams can be mixed together: they must
// agree on pixel format and pixel aspect ratio.
func (i Info) Compatible(o Info) bool {
	return i.Format == o.Format && i.PixelAspect().Equal(o.PixelAspect())
}

func (i Info) String() string {
	return fmt.Sprintf("%s %dx%d@%s par=%s", i.Format, i.Width, i.Height, i.FPS, i.PixelAspect())
}

// Layout describes where each plane of a frame lives inside its buffer.
// Planes are always indexed in component order (Y, U, V for planar YUV),
// regardless of their order in memory.
type Layout struct {
	Planes int
	Offset [3]int
	Stride [3]int
	Width  [3]int // samples per row
	Height [3]int // rows
	Size   int
}

func roundUp(v, m int) int {
	return (v + m - 1) / m * m
}

func ceilDiv(v, m int) int {
	return (v + m - 1) / m
}

// Layout computes the plane layout of one frame. Row strides are rounded
// up to a multiple of 4 bytes.
func (i Info) Layout() Layout {
	w, h := i.Width, i.Height
	var l Layout
	if w <= 0 || h <= 0 {
		return l
	}

	switch {
	case i.Format.PixelStride() > 0:
		l.Planes = 1
		l.Stride[0] = roundUp(w*i.Format.PixelStride(), 4)
		l.Width[0], l.Height[0] = w, h
		l.Size = l.Stride[0] * h

	case i.Format == FormatYUY2 || i.Format == FormatUYVY || i.Format == FormatYVYU:
		l.Planes = 1
		l.Stride[0] = roundUp(roundUp(w, 2)*2, 4)
		l.Width[0], l.Height[0] = w, h
		l.Size = l.Stride[0] * h

	case i.Format.IsPlanar():
		hs, vs := i.Format.Subsampling()
		cw, ch := ceilDiv(w, hs), ceilDiv(h, vs)
		l.Planes = 3
		l.Stride = [3]int{roundUp(w, 4), roundUp(cw, 4), roundUp(cw, 4)}
		l.Width = [3]int{w, cw, cw}
		l.Height = [3]int{h, ch, ch}

		lumaSize := l.Stride[0] * h
		chromaSize := l.Stride[1] * ch
		l.Offset[0] = 0
		if i.Format == FormatYV12 {
			// V precedes U in memory.
			l.Offset[2] = lumaSize
			l.Offset[1] = lumaSize + chromaSize
		} else {
			l.Offset[1] = lumaSize
			l.Offset[2] = lumaSize + chromaSize
		}
		l.Size = lumaSize + 2*chromaSize
	}
	return l
}

// Size returns the number of bytes in one frame.
func (i Info) Size() int {
	return i.Layout().Size
}
