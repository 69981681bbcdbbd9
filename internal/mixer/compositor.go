package mixer

import (
	"fmt"

	"github.com/zsiec/mosaic/internal/video"
)

// Background colours in 8-bit Y'CbCr.
const (
	blackY, whiteY = 16, 240
	neutralChroma  = 128
)

// compositeLocked renders the current buffer of every channel onto a new
// frame. It returns the frame and how many channels contributed. A flush
// arriving mid-frame aborts with ErrFlushing.
func (e *Engine) compositeLocked() (*video.Frame, int, error) {
	size := e.info.Size()
	data, err := e.alloc(size)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	if len(data) < size {
		return nil, 0, fmt.Errorf("%w: got %d bytes, want %d", ErrAllocation, len(data), size)
	}
	out, err := video.MapFrame(e.info, data)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	composite := e.funcs.Blend
	switch e.cfg.Background {
	case BackgroundChecker:
		e.funcs.FillChecker(out)
	case BackgroundBlack:
		e.funcs.FillColor(out, blackY, neutralChroma, neutralChroma)
	case BackgroundWhite:
		e.funcs.FillColor(out, whiteY, neutralChroma, neutralChroma)
	case BackgroundTransparent:
		clear(out.Data)
		composite = e.funcs.Overlay
	}

	n := 0
	for _, ch := range e.channels {
		if e.flushing.Load() {
			return nil, 0, ErrFlushing
		}
		if ch.current == nil {
			continue
		}
		composite(ch.current, ch.x, ch.y, ch.alpha, out)
		ch.rendered++
		n++
	}
	return out, n, nil
}
