package blend

import "github.com/zsiec/mosaic/internal/video"

// packedPixel returns a writer that stores one pixel of a packed 24/32-bit
// format given its three colour components in memory order c0, c1, c2.
func packedPixel(f video.Format) func(p []byte, a, b, c byte) {
	c0, c1, c2, ao := f.ComponentOffsets()
	pad := -1
	if f.PixelStride() == 4 && ao < 0 {
		pad = 6 - c0 - c1 - c2
	}
	return func(p []byte, a, b, c byte) {
		p[c0], p[c1], p[c2] = a, b, c
		if ao >= 0 {
			p[ao] = 0xff
		}
		if pad >= 0 {
			p[pad] = 0xff
		}
	}
}

func fillCheckerPacked(f video.Format) FillCheckerFunc {
	put := packedPixel(f)
	bpp := f.PixelStride()
	yuv := f.IsYUV()
	return func(dst *video.Frame) {
		p, stride := dst.Plane(0), dst.Stride(0)
		for row := 0; row < dst.Height(); row++ {
			line := p[row*stride:]
			for col := 0; col < dst.Width(); col++ {
				v := checker(row, col)
				if yuv {
					put(line[col*bpp:], v, 128, 128)
				} else {
					put(line[col*bpp:], v, v, v)
				}
			}
		}
	}
}

func fillColorPacked(f video.Format) FillColorFunc {
	put := packedPixel(f)
	bpp := f.PixelStride()
	yuv := f.IsYUV()
	return func(dst *video.Frame, y, u, v uint8) {
		a, b, c := y, u, v
		if !yuv {
			a, b, c = YUVToRGB(y, u, v)
		}
		p, stride := dst.Plane(0), dst.Stride(0)
		// Paint the first row, then replicate it.
		first := p[:dst.Width()*bpp]
		for col := 0; col < dst.Width(); col++ {
			put(first[col*bpp:], a, b, c)
		}
		for row := 1; row < dst.Height(); row++ {
			copy(p[row*stride:], first)
		}
	}
}

func fillCheckerPlanar(dst *video.Frame) {
	p, stride := dst.Plane(0), dst.Stride(0)
	for row := 0; row < dst.Height(); row++ {
		line := p[row*stride : row*stride+dst.Width()]
		for col := range line {
			line[col] = checker(row, col)
		}
	}
	fillPlane(dst, 1, 128)
	fillPlane(dst, 2, 128)
}

func fillColorPlanar(dst *video.Frame, y, u, v uint8) {
	fillPlane(dst, 0, y)
	fillPlane(dst, 1, u)
	fillPlane(dst, 2, v)
}

func fillPlane(dst *video.Frame, plane int, v byte) {
	p, stride := dst.Plane(plane), dst.Stride(plane)
	w, h := dst.Layout.Width[plane], dst.Layout.Height[plane]
	for row := 0; row < h; row++ {
		line := p[row*stride : row*stride+w]
		for i := range line {
			line[i] = v
		}
	}
}

func fillChecker422(f video.Format) FillCheckerFunc {
	y0, y1, u, v, _ := f.MacropixelOffsets()
	return func(dst *video.Frame) {
		p, stride := dst.Plane(0), dst.Stride(0)
		for row := 0; row < dst.Height(); row++ {
			line := p[row*stride:]
			for col := 0; col < dst.Width(); col += 2 {
				m := line[col*2 : col*2+4]
				m[y0] = checker(row, col)
				m[y1] = checker(row, col+1)
				m[u], m[v] = 128, 128
			}
		}
	}
}

func fillColor422(f video.Format) FillColorFunc {
	y0, y1, uo, vo, _ := f.MacropixelOffsets()
	return func(dst *video.Frame, y, u, v uint8) {
		var m [4]byte
		m[y0], m[y1], m[uo], m[vo] = y, y, u, v
		p, stride := dst.Plane(0), dst.Stride(0)
		n := (dst.Width() + 1) / 2
		for row := 0; row < dst.Height(); row++ {
			line := p[row*stride:]
			for i := 0; i < n; i++ {
				copy(line[i*4:], m[:])
			}
		}
	}
}
