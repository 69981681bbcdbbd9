// Package blend implements the per-pixel-format compositing routines used
// by the mixer: blending an input frame onto an opaque canvas, overlaying
// it onto a transparent canvas, and painting backgrounds.
//
// Routines are looked up once per negotiated format with [Lookup]; nothing
// in this package dispatches per pixel.
package blend

import (
	"math"

	"github.com/zsiec/mosaic/internal/video"
)

// Func composites src onto dst with its top-left corner at (xpos, ypos) in
// dst coordinates, scaling src's opacity by alpha in [0,1]. Parts of src
// outside dst are clipped.
type Func func(src *video.Frame, xpos, ypos int, alpha float64, dst *video.Frame)

// FillCheckerFunc paints the 8x8 grey checkerboard used to show
// transparency.
type FillCheckerFunc func(dst *video.Frame)

// FillColorFunc paints a solid colour given in 8-bit Y'CbCr.
type FillColorFunc func(dst *video.Frame, y, u, v uint8)

// Funcs is the routine set for one pixel format. Overlay equals Blend for
// formats without an alpha channel.
type Funcs struct {
	Blend       Func
	Overlay     Func
	FillChecker FillCheckerFunc
	FillColor   FillColorFunc
}

var table = map[video.Format]Funcs{}

func register(f video.Format, fn Funcs) {
	if fn.Overlay == nil {
		fn.Overlay = fn.Blend
	}
	table[f] = fn
}

func init() {
	for _, f := range []video.Format{video.FormatAYUV, video.FormatARGB, video.FormatBGRA, video.FormatABGR, video.FormatRGBA} {
		register(f, Funcs{
			Blend:       blendPackedAlpha(f),
			Overlay:     overlayPackedAlpha(f),
			FillChecker: fillCheckerPacked(f),
			FillColor:   fillColorPacked(f),
		})
	}
	for _, f := range []video.Format{video.FormatRGB, video.FormatBGR, video.FormatXRGB, video.FormatXBGR, video.FormatRGBX, video.FormatBGRX} {
		register(f, Funcs{
			Blend:       blendPacked(f),
			FillChecker: fillCheckerPacked(f),
			FillColor:   fillColorPacked(f),
		})
	}
	for _, f := range []video.Format{video.FormatY444, video.FormatY42B, video.FormatI420, video.FormatYV12, video.FormatY41B} {
		register(f, Funcs{
			Blend:       blendPlanar(f),
			FillChecker: fillCheckerPlanar,
			FillColor:   fillColorPlanar,
		})
	}
	for _, f := range []video.Format{video.FormatYUY2, video.FormatUYVY, video.FormatYVYU} {
		register(f, Funcs{
			Blend:       blendPacked422,
			FillChecker: fillChecker422(f),
			FillColor:   fillColor422(f),
		})
	}
}

// Lookup returns the routines for format f.
func Lookup(f video.Format) (Funcs, bool) {
	fn, ok := table[f]
	return fn, ok
}

// Alpha255 converts a [0,1] opacity to an 8-bit weight, clamping out of
// range values.
func Alpha255(alpha float64) int {
	switch {
	case math.IsNaN(alpha) || alpha <= 0:
		return 0
	case alpha >= 1:
		return 255
	}
	return int(math.Round(alpha * 255))
}

// mix interpolates s over d with weight a in [0,255].
func mix(s, d byte, a int) byte {
	return byte((int(s)*a + int(d)*(255-a) + 127) / 255)
}

// mul255 returns round(x*y/255) for x, y in [0,255].
func mul255(x, y int) int {
	return (x*y + 127) / 255
}

// rect is a clipped blit region: a w x h block copied from (sx, sy) in the
// source to (dx, dy) in the destination.
type rect struct {
	sx, sy, dx, dy, w, h int
}

// clip intersects a srcW x srcH image placed at (x, y) with a dstW x dstH
// canvas.
func clip(srcW, srcH, dstW, dstH, x, y int) (rect, bool) {
	if x >= dstW || y >= dstH || x <= -srcW || y <= -srcH {
		return rect{}, false
	}
	r := rect{w: srcW, h: srcH, dx: x, dy: y}
	if x < 0 {
		r.sx = -x
		r.w += x
		r.dx = 0
	}
	if y < 0 {
		r.sy = -y
		r.h += y
		r.dy = 0
	}
	if r.dx+r.w > dstW {
		r.w = dstW - r.dx
	}
	if r.dy+r.h > dstH {
		r.h = dstH - r.dy
	}
	if r.w <= 0 || r.h <= 0 {
		return rect{}, false
	}
	return r, true
}

// alignUp rounds v up to a multiple of m, also for negative v.
func alignUp(v, m int) int {
	if m <= 1 {
		return v
	}
	if v >= 0 {
		return (v + m - 1) / m * m
	}
	return -((-v) / m * m)
}

var checkerTab = [4]byte{80, 160, 80, 160}

// checker returns the checkerboard luma at a pixel position.
func checker(row, col int) byte {
	return checkerTab[((row&0x8)>>3)+((col&0x8)>>3)]
}

// YUVToRGB converts BT.601 limited-range Y'CbCr to full-range RGB.
func YUVToRGB(y, u, v byte) (r, g, b byte) {
	c := int(y) - 16
	d := int(u) - 128
	e := int(v) - 128
	return clamp8((298*c + 409*e + 128) >> 8),
		clamp8((298*c - 100*d - 208*e + 128) >> 8),
		clamp8((298*c + 516*d + 128) >> 8)
}

func clamp8(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
