// Package video describes uncompressed video: pixel formats, negotiated
// stream parameters and the memory layout of a single frame.
package video

import (
	"fmt"
	"strings"
)

// Format identifies a raw pixel layout. All inputs of a mixer share one
// Format; there is no conversion between them.
type Format uint8

// Supported pixel formats.
const (
	FormatUnknown Format = iota
	FormatAYUV
	FormatARGB
	FormatBGRA
	FormatABGR
	FormatRGBA
	FormatY444
	FormatY42B
	FormatYUY2
	FormatUYVY
	FormatYVYU
	FormatI420
	FormatYV12
	FormatY41B
	FormatRGB
	FormatBGR
	FormatXRGB
	FormatXBGR
	FormatRGBX
	FormatBGRX
)

var formatNames = [...]string{
	FormatUnknown: "unknown",
	FormatAYUV:    "AYUV",
	FormatARGB:    "ARGB",
	FormatBGRA:    "BGRA",
	FormatABGR:    "ABGR",
	FormatRGBA:    "RGBA",
	FormatY444:    "Y444",
	FormatY42B:    "Y42B",
	FormatYUY2:    "YUY2",
	FormatUYVY:    "UYVY",
	FormatYVYU:    "YVYU",
	FormatI420:    "I420",
	FormatYV12:    "YV12",
	FormatY41B:    "Y41B",
	FormatRGB:     "RGB",
	FormatBGR:     "BGR",
	FormatXRGB:    "xRGB",
	FormatXBGR:    "xBGR",
	FormatRGBX:    "RGBx",
	FormatBGRX:    "BGRx",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// MarshalText encodes the format by name.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes a format name.
func (f *Format) UnmarshalText(b []byte) error {
	v, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFormat maps a format name (case-insensitive) to a Format.
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if f == int(FormatUnknown) {
			continue
		}
		if strings.EqualFold(name, s) {
			return Format(f), nil
		}
	}
	return FormatUnknown, fmt.Errorf("video: unknown pixel format %q", s)
}

// Formats returns every known format except FormatUnknown.
func Formats() []Format {
	out := make([]Format, 0, len(formatNames)-1)
	for f := FormatAYUV; int(f) < len(formatNames); f++ {
		out = append(out, f)
	}
	return out
}

// IsYUV reports whether the format stores luma/chroma samples.
func (f Format) IsYUV() bool {
	switch f {
	case FormatAYUV, FormatY444, FormatY42B, FormatYUY2, FormatUYVY,
		FormatYVYU, FormatI420, FormatYV12, FormatY41B:
		return true
	}
	return false
}

// HasAlpha reports whether each pixel carries its own alpha sample.
func (f Format) HasAlpha() bool {
	switch f {
	case FormatAYUV, FormatARGB, FormatBGRA, FormatABGR, FormatRGBA:
		return true
	}
	return false
}

// IsPlanar reports whether components live in separate planes.
func (f Format) IsPlanar() bool {
	switch f {
	case FormatY444, FormatY42B, FormatI420, FormatYV12, FormatY41B:
		return true
	}
	return false
}

// Subsampling returns the horizontal and vertical chroma decimation factors.
// Packed 4:2:2 formats report 2,1; formats without chroma planes report 1,1.
func (f Format) Subsampling() (h, v int) {
	switch f {
	case FormatY42B, FormatYUY2, FormatUYVY, FormatYVYU:
		return 2, 1
	case FormatI420, FormatYV12:
		return 2, 2
	case FormatY41B:
		return 4, 1
	}
	return 1, 1
}

// PixelStride is the number of bytes between horizontally adjacent pixels
// of a packed RGB or AYUV format. It is zero for planar and 4:2:2 formats.
func (f Format) PixelStride() int {
	switch f {
	case FormatAYUV, FormatARGB, FormatBGRA, FormatABGR, FormatRGBA,
		FormatXRGB, FormatXBGR, FormatRGBX, FormatBGRX:
		return 4
	case FormatRGB, FormatBGR:
		return 3
	}
	return 0
}

// ComponentOffsets returns the byte offset of the first, second and third
// colour component and of alpha within a packed pixel. For YUV formats the
// components are Y, U, V; for RGB formats R, G, B. Alpha is -1 when the
// format has no alpha byte. Planar formats return all -1.
func (f Format) ComponentOffsets() (c0, c1, c2, a int) {
	switch f {
	case FormatAYUV:
		return 1, 2, 3, 0
	case FormatARGB:
		return 1, 2, 3, 0
	case FormatBGRA:
		return 2, 1, 0, 3
	case FormatABGR:
		return 3, 2, 1, 0
	case FormatRGBA:
		return 0, 1, 2, 3
	case FormatXRGB:
		return 1, 2, 3, -1
	case FormatXBGR:
		return 3, 2, 1, -1
	case FormatRGBX:
		return 0, 1, 2, -1
	case FormatBGRX:
		return 2, 1, 0, -1
	case FormatRGB:
		return 0, 1, 2, -1
	case FormatBGR:
		return 2, 1, 0, -1
	}
	return -1, -1, -1, -1
}

// MacropixelOffsets returns, for packed 4:2:2 formats, the byte offsets of
// the two luma samples and the U and V samples inside a 4-byte macropixel.
func (f Format) MacropixelOffsets() (y0, y1, u, v int, ok bool) {
	switch f {
	case FormatYUY2:
		return 0, 2, 1, 3, true
	case FormatUYVY:
		return 1, 3, 0, 2, true
	case FormatYVYU:
		return 0, 2, 3, 1, true
	}
	return 0, 0, 0, 0, false
}
