package mixer

import (
	"fmt"
	"math"

	"github.com/zsiec/mosaic/internal/blend"
	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
)

// defaultFPS is the output rate when no channel reports one.
var defaultFPS = video.Fraction{Num: 25, Den: 1}

// SetChannelFormat fixes a channel's video format. Every channel must share
// the pixel format and pixel aspect ratio of the output; the first format
// seen decides them. A channel's format cannot change once set.
func (e *Engine) SetChannelFormat(id int, info video.Info) error {
	if !info.Valid() {
		return fmt.Errorf("%w: %s", ErrIncompatibleFormat, info)
	}
	if !info.Fits() {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrFrameTooLarge, info.Width, info.Height, video.MaxDimension)
	}
	if _, ok := blend.Lookup(info.Format); !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, info.Format)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ch, err := e.channelLocked(id)
	if err != nil {
		return err
	}
	if ch.negotiated() {
		if ch.info == info {
			return nil
		}
		return &ChannelError{Channel: ch.name, Err: fmt.Errorf("%w: format already set to %s", ErrIncompatibleFormat, ch.info)}
	}
	if e.info.Valid() && !e.info.Compatible(info) {
		e.log.Warn("rejecting channel format", "channel", ch.name, "format", info, "output", e.info)
		return &ChannelError{Channel: ch.name, Err: fmt.Errorf("%w: %s does not match output %s", ErrIncompatibleFormat, info, e.info)}
	}

	ch.info = info
	if err := e.updateOutputLocked(); err != nil {
		ch.info = video.Info{}
		return &ChannelError{Channel: ch.name, Err: err}
	}
	e.log.Debug("channel format set", "channel", ch.name, "format", info)
	return nil
}

// SetChannelSegment sets the playback segment a channel's timestamps refer
// to. Reverse rates are rejected.
func (e *Engine) SetChannelSegment(id int, seg clock.Segment) error {
	if seg.Rate < 0 || math.IsNaN(seg.Rate) {
		return ErrReverseRate
	}
	if seg.Rate == 0 {
		seg.Rate = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ch, err := e.channelLocked(id)
	if err != nil {
		return err
	}
	ch.segment = seg
	return nil
}

// updateOutputLocked derives the output format from the channels: the
// canvas is large enough for every channel at its position and the frame
// rate is the highest input rate. Configured overrides win. A canvas larger
// than video.MaxDimension is refused and leaves the output unchanged.
func (e *Engine) updateOutputLocked() error {
	var (
		width, height int
		fps           video.Fraction
		format        video.Format
		par           video.Fraction
	)
	for _, ch := range e.channels {
		if !ch.negotiated() {
			continue
		}
		// Clamp so the sums cannot overflow.
		width = max(width, ch.info.Width+min(max(ch.x, 0), video.MaxDimension))
		height = max(height, ch.info.Height+min(max(ch.y, 0), video.MaxDimension))
		if !ch.info.FPS.IsZero() && (fps.IsZero() || fps.Less(ch.info.FPS)) {
			fps = ch.info.FPS
		}
		format = ch.info.Format
		par = ch.info.PixelAspect()
	}
	if format == video.FormatUnknown {
		return nil
	}
	if fps.IsZero() {
		fps = defaultFPS
	}
	if e.cfg.Width > 0 {
		width = e.cfg.Width
	}
	if e.cfg.Height > 0 {
		height = e.cfg.Height
	}
	if !e.cfg.FPS.IsZero() {
		fps = e.cfg.FPS
	}

	next := video.Info{Format: format, Width: width, Height: height, FPS: fps, PAR: par}
	if !next.Fits() {
		return fmt.Errorf("%w: output %dx%d exceeds %d", ErrFrameTooLarge, width, height, video.MaxDimension)
	}
	if next == e.info {
		return nil
	}
	funcs, ok := blend.Lookup(format)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if e.info.Valid() && !e.info.FPS.Equal(fps) {
		// Restart frame counting at the current position so output
		// timestamps stay continuous.
		if e.segment.Position.IsValid() {
			e.tsOffset = e.segment.Position - e.segment.Start
		} else {
			e.tsOffset = 0
		}
		e.nframes = 0
	}

	e.log.Info("output format", "format", next, "previous", e.info)
	e.info = next
	e.funcs = funcs
	e.qos.setFrameDuration(clock.FramesToTime(1, fps.Num, fps.Den))
	return nil
}
