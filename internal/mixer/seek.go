package mixer

import (
	"fmt"
	"math"

	"github.com/zsiec/mosaic/internal/clock"
)

// SeekRequest describes a new output segment.
type SeekRequest struct {
	Rate      float64         `json:"rate"`
	Flags     clock.SeekFlags `json:"flags"`
	StartType clock.SeekType  `json:"startType"`
	Start     clock.Time      `json:"start"`
	StopType  clock.SeekType  `json:"stopType"`
	Stop      clock.Time      `json:"stop"`
}

// Seek reconfigures the output segment. A flushing seek first interrupts
// any tick in progress and discards every queued, pending and current
// buffer; a non-flushing seek keeps them and maps them through the new
// rate. Either way frame counting restarts and QoS is reset. Rates at or
// below zero are rejected with ErrReverseRate and leave the engine
// unchanged.
func (e *Engine) Seek(req SeekRequest) error {
	if req.Rate <= 0 || math.IsNaN(req.Rate) {
		return fmt.Errorf("%w: rate %v", ErrReverseRate, req.Rate)
	}
	flush := req.Flags&clock.SeekFlagFlush != 0

	// Validate before disturbing anything.
	e.mu.Lock()
	seg := e.segment
	err := seg.DoSeek(req.Rate, req.Flags, req.StartType, req.Start, req.StopType, req.Stop)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if flush {
		e.beginFlush()
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	seg = e.segment
	if err := seg.DoSeek(req.Rate, req.Flags, req.StartType, req.Start, req.StopType, req.Stop); err != nil {
		if flush {
			e.endFlushLocked()
		}
		return err
	}

	if flush {
		e.flushChannelsLocked()
	}
	e.segment = seg
	e.restartLocked()
	if flush {
		e.endFlushLocked()
	}
	e.log.Info("seek", "rate", req.Rate, "start", seg.Start, "stop", seg.Stop, "flush", flush)
	return e.collectLocked()
}

// Flush discards all buffered input and restarts output on a fresh default
// segment.
func (e *Engine) Flush() {
	e.beginFlush()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.flushChannelsLocked()
	e.segment = clock.NewSegment()
	e.restartLocked()
	e.endFlushLocked()
	e.log.Info("flushed")
}

// beginFlush raises the flushing flag, which aborts a composite in
// progress, and wakes blocked pushers. It must be called without the lock.
func (e *Engine) beginFlush() {
	e.flushing.Store(true)
	e.cond.Broadcast()
}

func (e *Engine) endFlushLocked() {
	e.flushGen++
	e.flushing.Store(false)
	e.cond.Broadcast()
}

func (e *Engine) flushChannelsLocked() {
	prev := e.state
	if prev == StateRunning {
		e.state = StateFlushing
	}
	for _, ch := range e.channels {
		for range ch.reset() {
			e.dropLocked(ch, DropFlushed)
		}
		ch.segment = clock.NewSegment()
	}
	e.state = prev
}

// restartLocked restarts frame counting at the segment start.
func (e *Engine) restartLocked() {
	e.segment.Position = clock.None
	e.tsOffset = 0
	e.nframes = 0
	e.eosSent = false
	e.qos.reset()
}

// resumeLocked re-arms an output that has ended. Channels still attached
// have finished, so their last pictures are released and the timeline
// starts again on a default segment.
func (e *Engine) resumeLocked() {
	for _, ch := range e.channels {
		ch.clearCurrent()
	}
	e.segment = clock.NewSegment()
	e.restartLocked()
	e.log.Info("output restarted", "frames", e.seq)
}
