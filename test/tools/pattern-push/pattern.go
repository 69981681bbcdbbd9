package main

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/zsiec/mosaic/internal/video"
)

// Pattern kinds understood by Generator.
const (
	PatternBars    = "bars"
	PatternSolid   = "solid"
	PatternChecker = "checker"
)

// SMPTE-style colour bars, left to right.
var barColors = []color.NRGBA{
	{0xc0, 0xc0, 0xc0, 0xff},
	{0xc0, 0xc0, 0x00, 0xff},
	{0x00, 0xc0, 0xc0, 0xff},
	{0x00, 0xc0, 0x00, 0xff},
	{0xc0, 0x00, 0xc0, 0xff},
	{0xc0, 0x00, 0x00, 0xff},
	{0x00, 0x00, 0xc0, 0xff},
	{0x10, 0x10, 0x10, 0xff},
}

// Generator renders test pictures in any supported raw format.
type Generator struct {
	Info    video.Info
	Pattern string
	Color   color.NRGBA
	// Speed moves the pattern this many pixels per frame.
	Speed int
}

// NewGenerator validates the pattern name.
func NewGenerator(info video.Info, pattern string, c color.NRGBA, speed int) (*Generator, error) {
	if !info.Valid() {
		return nil, fmt.Errorf("invalid video info %s", info)
	}
	switch pattern {
	case PatternBars, PatternSolid, PatternChecker:
	default:
		return nil, fmt.Errorf("unknown pattern %q", pattern)
	}
	return &Generator{Info: info, Pattern: pattern, Color: c, Speed: speed}, nil
}

// At returns the colour of pixel (x, y) in frame n.
func (g *Generator) At(n, x, y int) color.NRGBA {
	shift := n * g.Speed
	switch g.Pattern {
	case PatternBars:
		w := max(g.Info.Width, 1)
		i := ((x + shift) % w) * len(barColors) / w
		return barColors[i]
	case PatternChecker:
		if ((x+shift)/16+y/16)%2 == 0 {
			return g.Color
		}
		return color.NRGBA{A: g.Color.A}
	}
	return g.Color
}

// Frame renders frame n.
func (g *Generator) Frame(n int) []byte {
	f := video.NewFrame(g.Info)
	format := g.Info.Format

	switch {
	case format.PixelStride() > 0:
		g.fillPacked(f, n)
	case format.IsPlanar():
		g.fillPlanar(f, n)
	default:
		g.fillMacropixel(f, n)
	}
	return f.Data
}

func yuv(c color.NRGBA) (y, u, v byte) {
	return color.RGBToYCbCr(c.R, c.G, c.B)
}

func (g *Generator) fillPacked(f *video.Frame, n int) {
	format := f.Info.Format
	c0, c1, c2, ao := format.ComponentOffsets()
	ps := format.PixelStride()
	plane, stride := f.Plane(0), f.Stride(0)

	for y := 0; y < f.Height(); y++ {
		row := plane[y*stride:]
		for x := 0; x < f.Width(); x++ {
			c := g.At(n, x, y)
			p := row[x*ps:]
			if format.IsYUV() {
				p[c0], p[c1], p[c2] = yuv(c)
			} else {
				p[c0], p[c1], p[c2] = c.R, c.G, c.B
			}
			if ao >= 0 {
				p[ao] = c.A
			}
		}
	}
}

func (g *Generator) fillPlanar(f *video.Frame, n int) {
	hs, vs := f.Info.Format.Subsampling()
	yp, up, vp := f.Plane(0), f.Plane(1), f.Plane(2)
	ys, cs := f.Stride(0), f.Stride(1)

	for y := 0; y < f.Height(); y++ {
		for x := 0; x < f.Width(); x++ {
			luma, u, v := yuv(g.At(n, x, y))
			yp[y*ys+x] = luma
			if x%hs == 0 && y%vs == 0 {
				i := (y/vs)*cs + x/hs
				up[i], vp[i] = u, v
			}
		}
	}
}

func (g *Generator) fillMacropixel(f *video.Frame, n int) {
	y0, y1, uo, vo, ok := f.Info.Format.MacropixelOffsets()
	if !ok {
		return
	}
	plane, stride := f.Plane(0), f.Stride(0)

	for y := 0; y < f.Height(); y++ {
		row := plane[y*stride:]
		for x := 0; x < f.Width(); x++ {
			luma, u, v := yuv(g.At(n, x, y))
			m := row[(x/2)*4:]
			if x%2 == 0 {
				m[y0], m[uo], m[vo] = luma, u, v
			} else {
				m[y1] = luma
			}
		}
	}
}

// ParseSize parses "WIDTHxHEIGHT".
func ParseSize(s string) (int, int, error) {
	var w, h int
	if _, err := fmt.Sscanf(strings.ToLower(s), "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("bad size %q, want WIDTHxHEIGHT", s)
	}
	return w, h, nil
}

// ParseColor parses "#rrggbb" or "#rrggbbaa".
func ParseColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 0xff}
	s = strings.TrimPrefix(s, "#")
	var err error
	switch len(s) {
	case 6:
		_, err = fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B)
	case 8:
		_, err = fmt.Sscanf(s, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	default:
		err = fmt.Errorf("length %d", len(s))
	}
	if err != nil {
		return c, fmt.Errorf("bad color %q: %w", s, err)
	}
	return c, nil
}
