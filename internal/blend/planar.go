package blend

import "github.com/zsiec/mosaic/internal/video"

// blendPlanar composites planar Y'CbCr with a constant weight. The position
// is rounded up to the chroma grid so that luma and chroma stay aligned.
func blendPlanar(f video.Format) Func {
	hs, vs := f.Subsampling()
	return func(src *video.Frame, xpos, ypos int, alpha float64, dst *video.Frame) {
		a := Alpha255(alpha)
		if a == 0 {
			return
		}
		xpos = alignUp(xpos, hs)
		ypos = alignUp(ypos, vs)
		r, ok := clip(src.Width(), src.Height(), dst.Width(), dst.Height(), xpos, ypos)
		if !ok {
			return
		}

		blendPlane(src, dst, 0, r, a)

		c := rect{
			sx: r.sx / hs,
			sy: r.sy / vs,
			dx: r.dx / hs,
			dy: r.dy / vs,
		}
		c.w = ceilDiv(r.sx+r.w, hs) - c.sx
		c.h = ceilDiv(r.sy+r.h, vs) - c.sy
		c.w = min(c.w, src.Layout.Width[1]-c.sx, dst.Layout.Width[1]-c.dx)
		c.h = min(c.h, src.Layout.Height[1]-c.sy, dst.Layout.Height[1]-c.dy)
		if c.w <= 0 || c.h <= 0 {
			return
		}
		blendPlane(src, dst, 1, c, a)
		blendPlane(src, dst, 2, c, a)
	}
}

func blendPlane(src, dst *video.Frame, plane int, r rect, a int) {
	sp, dp := src.Plane(plane), dst.Plane(plane)
	ss, ds := src.Stride(plane), dst.Stride(plane)
	for row := 0; row < r.h; row++ {
		s := sp[(r.sy+row)*ss+r.sx : (r.sy+row)*ss+r.sx+r.w]
		d := dp[(r.dy+row)*ds+r.dx : (r.dy+row)*ds+r.dx+r.w]
		if a == 255 {
			copy(d, s)
			continue
		}
		for i := range d {
			d[i] = mix(s[i], d[i], a)
		}
	}
}

func ceilDiv(v, m int) int {
	return (v + m - 1) / m
}

// blendPacked422 composites YUY2, UYVY and YVYU. Every byte of a macropixel
// is weighted equally, so the routine does not care about sample order.
func blendPacked422(src *video.Frame, xpos, ypos int, alpha float64, dst *video.Frame) {
	a := Alpha255(alpha)
	if a == 0 {
		return
	}
	xpos = alignUp(xpos, 2)
	r, ok := clip(src.Width(), src.Height(), dst.Width(), dst.Height(), xpos, ypos)
	if !ok {
		return
	}
	// Work in bytes: two bytes per pixel, whole macropixels only.
	b := rect{sx: r.sx * 2, sy: r.sy, dx: r.dx * 2, dy: r.dy, h: r.h}
	b.w = ceilDiv(r.w, 2) * 4
	b.w = min(b.w, ceilDiv(src.Width(), 2)*4-b.sx, ceilDiv(dst.Width(), 2)*4-b.dx)
	if b.w <= 0 {
		return
	}
	blendPlane(src, dst, 0, b, a)
}
