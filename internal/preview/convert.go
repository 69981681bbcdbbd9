package preview

import (
	"fmt"
	"image"
	"image/color"

	"github.com/zsiec/mosaic/internal/video"
)

// ToRGBA converts a raw frame into an 8-bit non-premultiplied image.
// Formats without per-pixel alpha are fully opaque.
func ToRGBA(f *video.Frame) (*image.NRGBA, error) {
	w, h := f.Width(), f.Height()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("preview: empty frame %s", f.Info)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	format := f.Info.Format

	switch {
	case format.PixelStride() > 0:
		convertPacked(img, f)
	case format.IsPlanar():
		convertPlanar(img, f)
	default:
		if _, _, _, _, ok := format.MacropixelOffsets(); !ok {
			return nil, fmt.Errorf("preview: unsupported format %s", format)
		}
		convertMacropixel(img, f)
	}
	return img, nil
}

func convertPacked(img *image.NRGBA, f *video.Frame) {
	format := f.Info.Format
	c0, c1, c2, ao := format.ComponentOffsets()
	ps := format.PixelStride()
	src, stride := f.Plane(0), f.Stride(0)
	yuv := format.IsYUV()

	for y := 0; y < f.Height(); y++ {
		row := src[y*stride:]
		out := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width(); x++ {
			p := row[x*ps:]
			a := byte(0xff)
			if ao >= 0 {
				a = p[ao]
			}
			r, g, b := p[c0], p[c1], p[c2]
			if yuv {
				r, g, b = color.YCbCrToRGB(r, g, b)
			}
			out[x*4], out[x*4+1], out[x*4+2], out[x*4+3] = r, g, b, a
		}
	}
}

func convertPlanar(img *image.NRGBA, f *video.Frame) {
	hs, vs := f.Info.Format.Subsampling()
	yp, up, vp := f.Plane(0), f.Plane(1), f.Plane(2)
	ys, cs := f.Stride(0), f.Stride(1)

	for y := 0; y < f.Height(); y++ {
		out := img.Pix[y*img.Stride:]
		crow := (y / vs) * cs
		for x := 0; x < f.Width(); x++ {
			cx := crow + x/hs
			r, g, b := color.YCbCrToRGB(yp[y*ys+x], up[cx], vp[cx])
			out[x*4], out[x*4+1], out[x*4+2], out[x*4+3] = r, g, b, 0xff
		}
	}
}

func convertMacropixel(img *image.NRGBA, f *video.Frame) {
	y0, y1, uo, vo, _ := f.Info.Format.MacropixelOffsets()
	src, stride := f.Plane(0), f.Stride(0)

	for y := 0; y < f.Height(); y++ {
		row := src[y*stride:]
		out := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width(); x++ {
			m := row[(x/2)*4:]
			luma := m[y0]
			if x%2 == 1 {
				luma = m[y1]
			}
			r, g, b := color.YCbCrToRGB(luma, m[uo], m[vo])
			out[x*4], out[x*4+1], out[x*4+2], out[x*4+3] = r, g, b, 0xff
		}
	}
}
