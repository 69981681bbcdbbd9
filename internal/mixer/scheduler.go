package mixer

import (
	"errors"
	"fmt"
	"time"

	"github.com/zsiec/mosaic/internal/clock"
)

// TickResult is the outcome of one output tick.
type TickResult int

// Tick outcomes.
const (
	TickNotNegotiated TickResult = iota
	TickNeedData
	TickRendered
	TickSkipped
	TickEOS
	TickFlushed
	TickError
)

func (r TickResult) String() string {
	switch r {
	case TickNotNegotiated:
		return "not-negotiated"
	case TickNeedData:
		return "need-data"
	case TickRendered:
		return "rendered"
	case TickSkipped:
		return "skipped"
	case TickEOS:
		return "eos"
	case TickFlushed:
		return "flushed"
	case TickError:
		return "error"
	}
	return fmt.Sprintf("TickResult(%d)", int(r))
}

// Tick runs one output tick regardless of whether every channel has data.
// Push and EndOfStream tick automatically; Tick exists for drivers that
// pace the output themselves.
func (e *Engine) Tick() (TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		if e.err != nil {
			return TickError, e.err
		}
		return TickError, ErrNotRunning
	}
	res, err := e.tickLocked()
	e.cond.Broadcast()
	return res, err
}

func (e *Engine) tickLocked() (TickResult, error) {
	if e.eosSent {
		return TickEOS, nil
	}
	if !e.info.Valid() {
		return TickNotNegotiated, nil
	}

	outStart := e.segment.Position
	if !outStart.IsValid() {
		outStart = e.segment.Start
	}
	if e.segment.HasStop() && outStart >= e.segment.Stop {
		e.sendEOSLocked()
		return TickEOS, nil
	}
	outEnd := e.segment.Start + e.tsOffset + clock.FramesToTime(e.nframes+1, e.info.FPS.Num, e.info.FPS.Den)
	if e.segment.HasStop() {
		outEnd = clock.Min(outEnd, e.segment.Stop)
	}

	res, err := e.fillQueuesLocked(outStart, outEnd)
	switch res {
	case fillNeedData:
		return TickNeedData, nil
	case fillEOS:
		e.sendEOSLocked()
		return TickEOS, nil
	case fillError:
		e.failLocked(err)
		return TickError, err
	}

	rt := e.segment.ToRunningTime(outStart)
	jitter, render := e.qos.check(rt)

	var out *OutputFrame
	if render {
		began := time.Now()
		frame, n, err := e.compositeLocked()
		if errors.Is(err, ErrFlushing) {
			return TickFlushed, nil
		}
		if err != nil {
			e.log.Error("composite failed", "error", err)
			e.sink.WriteError(err)
			return TickError, err
		}
		e.qos.record(true)
		e.obs.FrameRendered(n, time.Since(began))
		out = &OutputFrame{
			Frame:       frame,
			PTS:         outStart,
			Duration:    outEnd - outStart,
			RunningTime: rt,
			Sequence:    e.seq,
		}
		e.seq++
	} else {
		proportion, processed, dropped := e.qos.record(false)
		e.obs.FrameSkipped(time.Duration(jitter))
		e.log.Debug("skipping late frame", "pts", outStart, "jitter", time.Duration(jitter))
		e.sink.WriteQoS(QoSEvent{
			RunningTime: rt,
			StreamTime:  e.segment.ToStreamTime(outStart),
			Timestamp:   outStart,
			Duration:    outEnd - outStart,
			Jitter:      jitter,
			Proportion:  proportion,
			Processed:   processed,
			Dropped:     dropped,
		})
	}

	e.segment.Position = outEnd
	e.nframes++

	if out == nil {
		return TickSkipped, nil
	}
	if err := e.sink.WriteFrame(out); err != nil {
		return TickError, fmt.Errorf("mixer: write frame: %w", err)
	}
	return TickRendered, nil
}

func (e *Engine) sendEOSLocked() {
	if e.eosSent {
		return
	}
	e.eosSent = true
	e.log.Info("end of stream", "frames", e.seq, "position", e.segment.Position)
	e.sink.WriteEOS()
}
