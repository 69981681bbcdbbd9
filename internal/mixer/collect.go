package mixer

import (
	"context"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
)

// Push queues a buffer on a channel and then runs output ticks for as long
// as every channel has data or has ended. When the channel queue is full
// Push blocks until a tick consumes from it, ctx is done, or a flush
// discards it.
//
// A buffer without duration gets one frame at the channel's rate when the
// rate is known; otherwise its end is taken from the next buffer.
func (e *Engine) Push(ctx context.Context, id int, buf Buffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, err := e.pushableLocked(id, true)
	if err != nil {
		return err
	}
	frame, err := video.MapFrame(ch.info, buf.Data)
	if err != nil {
		return &ChannelError{Channel: ch.name, Err: err}
	}
	q := queued{pts: buf.PTS, duration: buf.Duration, frame: frame}
	if !q.duration.IsValid() && !ch.info.FPS.IsZero() {
		q.duration = clock.FramesToTime(1, ch.info.FPS.Num, ch.info.FPS.Den)
	}

	if len(ch.queue) >= e.cfg.QueueDepth {
		if err := e.waitSpaceLocked(ctx, ch); err != nil {
			return err
		}
	}

	ch.queue = append(ch.queue, q)
	ch.received++
	return e.collectLocked()
}

// EndOfStream marks a channel as finished. Buffers already queued are still
// composited. A channel may end before its format is known.
func (e *Engine) EndOfStream(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, err := e.pushableLocked(id, false)
	if err != nil {
		return err
	}
	ch.eos = true
	e.log.Debug("channel ended", "channel", ch.name, "queued", len(ch.queue))
	return e.collectLocked()
}

func (e *Engine) pushableLocked(id int, needFormat bool) (*channel, error) {
	if e.flushing.Load() {
		return nil, ErrFlushing
	}
	if e.state != StateRunning {
		if e.err != nil {
			return nil, e.err
		}
		return nil, ErrNotRunning
	}
	ch, err := e.channelLocked(id)
	if err != nil {
		return nil, err
	}
	if needFormat && !ch.negotiated() {
		return nil, &ChannelError{Channel: ch.name, Err: ErrNotNegotiated}
	}
	if ch.eos || e.eosSent {
		return nil, &ChannelError{Channel: ch.name, Err: ErrEOS}
	}
	return ch, nil
}

// waitSpaceLocked blocks until ch has room in its queue.
func (e *Engine) waitSpaceLocked(ctx context.Context, ch *channel) error {
	gen := e.flushGen
	ch.waiters++
	defer func() { ch.waiters-- }()
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	for len(ch.queue) >= e.cfg.QueueDepth {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.flushGen != gen || e.flushing.Load() {
			return ErrFlushing
		}
		if e.state != StateRunning {
			return ErrNotRunning
		}
		if e.eosSent {
			return &ChannelError{Channel: ch.name, Err: ErrEOS}
		}
		if _, err := e.channelLocked(ch.id); err != nil {
			return err
		}
		e.cond.Wait()
	}
	if e.flushGen != gen {
		return ErrFlushing
	}
	if ch.eos {
		return &ChannelError{Channel: ch.name, Err: ErrEOS}
	}
	return nil
}

// readyLocked reports whether every channel can take part in a tick: it
// either has a queued buffer or will never get another one.
func (e *Engine) readyLocked() bool {
	if len(e.channels) == 0 {
		return false
	}
	for _, ch := range e.channels {
		if len(ch.queue) == 0 && !ch.eos {
			return false
		}
	}
	return true
}

// collectLocked runs ticks while all channels are ready.
func (e *Engine) collectLocked() error {
	for e.state == StateRunning && !e.flushing.Load() && e.readyLocked() {
		res, err := e.tickLocked()
		e.cond.Broadcast()
		if err != nil {
			return err
		}
		switch res {
		case TickNotNegotiated, TickEOS, TickFlushed:
			return nil
		}
	}
	return nil
}
