// Package preview renders the mixer's latest composited frame as a PNG
// thumbnail for the control API.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/zsiec/mosaic/internal/distribution"
	"github.com/zsiec/mosaic/internal/mixer"
)

// DefaultMaxWidth bounds the width of rendered snapshots.
const DefaultMaxWidth = 640

// ErrNoFrame is returned by Snapshot before the first frame arrives.
var ErrNoFrame = errors.New("preview: no frame yet")

// Preview is a relay subscriber that keeps only the newest frame. Frames
// are converted lazily, so an unwatched preview costs one pointer swap per
// tick.
type Preview struct {
	maxWidth int
	label    bool

	latest   atomic.Pointer[mixer.OutputFrame]
	received atomic.Int64
	rendered atomic.Int64
	bytes    atomic.Int64

	// One render at a time keeps concurrent API hits from multiplying work.
	renderMu sync.Mutex
}

var _ distribution.Subscriber = (*Preview)(nil)

// Option configures a Preview.
type Option func(*Preview)

// WithMaxWidth sets the snapshot width limit. Values <= 0 disable scaling.
func WithMaxWidth(w int) Option {
	return func(p *Preview) { p.maxWidth = w }
}

// WithoutLabel disables the timestamp overlay.
func WithoutLabel() Option {
	return func(p *Preview) { p.label = false }
}

// New creates a Preview.
func New(opts ...Option) *Preview {
	p := &Preview{maxWidth: DefaultMaxWidth, label: true}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ID implements distribution.Subscriber.
func (p *Preview) ID() string { return "preview" }

// SendFrame stores f as the newest frame.
func (p *Preview) SendFrame(f *mixer.OutputFrame) {
	p.latest.Store(f)
	p.received.Add(1)
}

// SendEOS keeps the last frame on screen.
func (p *Preview) SendEOS() {}

// Stats implements distribution.Subscriber.
func (p *Preview) Stats() distribution.SubscriberStats {
	st := distribution.SubscriberStats{
		ID:        p.ID(),
		Kind:      "preview",
		Sent:      p.rendered.Load(),
		Dropped:   p.received.Load() - p.rendered.Load(),
		BytesSent: p.bytes.Load(),
	}
	if st.Dropped < 0 {
		st.Dropped = 0
	}
	if f := p.latest.Load(); f != nil {
		st.LastPTSMS = f.PTS.Duration().Milliseconds()
	}
	return st
}

// Snapshot encodes the newest frame as PNG.
func (p *Preview) Snapshot() ([]byte, error) {
	f := p.latest.Load()
	if f == nil {
		return nil, ErrNoFrame
	}

	p.renderMu.Lock()
	defer p.renderMu.Unlock()

	img, err := p.Render(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("preview: encode png: %w", err)
	}
	p.rendered.Add(1)
	p.bytes.Add(int64(buf.Len()))
	return buf.Bytes(), nil
}

// Render converts f to an image, scaled down to the width limit and
// labelled with its position and sequence number.
func (p *Preview) Render(f *mixer.OutputFrame) (image.Image, error) {
	src, err := ToRGBA(f.Frame)
	if err != nil {
		return nil, err
	}

	var dst draw.Image = src
	if b := src.Bounds(); p.maxWidth > 0 && b.Dx() > p.maxWidth {
		h := b.Dy() * p.maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		scaled := image.NewNRGBA(image.Rect(0, 0, p.maxWidth, h))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)
		dst = scaled
	}

	if p.label {
		drawLabel(dst, fmt.Sprintf("%s #%d", f.PTS, f.Sequence))
	}
	return dst, nil
}

func drawLabel(img draw.Image, text string) {
	face := basicfont.Face7x13
	b := img.Bounds()
	if b.Dy() < face.Height+4 {
		return
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(b.Min.X+4, b.Max.Y-4),
	}
	// Dark backing box so the label reads over any content.
	box := image.Rect(b.Min.X, b.Max.Y-face.Height-6, b.Min.X+d.MeasureString(text).Ceil()+8, b.Max.Y)
	draw.Draw(img, box.Intersect(b), image.NewUniform(color.NRGBA{A: 0xa0}), image.Point{}, draw.Over)
	d.DrawString(text)
}
