package blend

import "github.com/zsiec/mosaic/internal/video"

// blendPackedAlpha composites a 32-bit format with per-pixel alpha onto an
// opaque canvas. The destination stays fully opaque.
func blendPackedAlpha(f video.Format) Func {
	c0, c1, c2, ao := f.ComponentOffsets()
	return func(src *video.Frame, xpos, ypos int, alpha float64, dst *video.Frame) {
		ga := Alpha255(alpha)
		if ga == 0 {
			return
		}
		r, ok := clip(src.Width(), src.Height(), dst.Width(), dst.Height(), xpos, ypos)
		if !ok {
			return
		}
		sp, dp := src.Plane(0), dst.Plane(0)
		ss, ds := src.Stride(0), dst.Stride(0)

		for row := 0; row < r.h; row++ {
			si := (r.sy+row)*ss + r.sx*4
			di := (r.dy+row)*ds + r.dx*4
			for col := 0; col < r.w; col++ {
				a := mul255(int(sp[si+ao]), ga)
				dp[di+c0] = mix(sp[si+c0], dp[di+c0], a)
				dp[di+c1] = mix(sp[si+c1], dp[di+c1], a)
				dp[di+c2] = mix(sp[si+c2], dp[di+c2], a)
				dp[di+ao] = 0xff
				si += 4
				di += 4
			}
		}
	}
}

// overlayPackedAlpha composites with the "over" operator so that a
// transparent canvas keeps the combined coverage in its alpha channel.
func overlayPackedAlpha(f video.Format) Func {
	c0, c1, c2, ao := f.ComponentOffsets()
	comps := [3]int{c0, c1, c2}
	return func(src *video.Frame, xpos, ypos int, alpha float64, dst *video.Frame) {
		ga := Alpha255(alpha)
		if ga == 0 {
			return
		}
		r, ok := clip(src.Width(), src.Height(), dst.Width(), dst.Height(), xpos, ypos)
		if !ok {
			return
		}
		sp, dp := src.Plane(0), dst.Plane(0)
		ss, ds := src.Stride(0), dst.Stride(0)

		for row := 0; row < r.h; row++ {
			si := (r.sy+row)*ss + r.sx*4
			di := (r.dy+row)*ds + r.dx*4
			for col := 0; col < r.w; col++ {
				sa := mul255(int(sp[si+ao]), ga)
				da := int(dp[di+ao])
				// destination weight after being covered by sa
				dw := mul255(da, 255-sa)
				fa := sa + dw
				if fa == 0 {
					dp[di+0], dp[di+1], dp[di+2], dp[di+3] = 0, 0, 0, 0
				} else {
					for _, c := range comps {
						v := (int(sp[si+c])*sa + int(dp[di+c])*dw + fa/2) / fa
						dp[di+c] = clamp8(v)
					}
					dp[di+ao] = byte(fa)
				}
				si += 4
				di += 4
			}
		}
	}
}

// blendPacked composites a packed RGB format without alpha using a
// constant weight.
func blendPacked(f video.Format) Func {
	c0, c1, c2, _ := f.ComponentOffsets()
	bpp := f.PixelStride()
	return func(src *video.Frame, xpos, ypos int, alpha float64, dst *video.Frame) {
		a := Alpha255(alpha)
		if a == 0 {
			return
		}
		r, ok := clip(src.Width(), src.Height(), dst.Width(), dst.Height(), xpos, ypos)
		if !ok {
			return
		}
		sp, dp := src.Plane(0), dst.Plane(0)
		ss, ds := src.Stride(0), dst.Stride(0)

		for row := 0; row < r.h; row++ {
			si := (r.sy+row)*ss + r.sx*bpp
			di := (r.dy+row)*ds + r.dx*bpp
			if a == 255 {
				copy(dp[di:di+r.w*bpp], sp[si:si+r.w*bpp])
				continue
			}
			for col := 0; col < r.w; col++ {
				dp[di+c0] = mix(sp[si+c0], dp[di+c0], a)
				dp[di+c1] = mix(sp[si+c1], dp[di+c1], a)
				dp[di+c2] = mix(sp[si+c2], dp[di+c2], a)
				si += bpp
				di += bpp
			}
		}
	}
}
