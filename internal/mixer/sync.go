package mixer

import (
	"github.com/zsiec/mosaic/internal/clock"
)

// fillResult is the outcome of selecting buffers for one output window.
type fillResult int

const (
	fillNeedData fillResult = iota
	fillReady
	fillEOS
	fillError
)

func (r fillResult) String() string {
	switch r {
	case fillNeedData:
		return "need-data"
	case fillReady:
		return "ready"
	case fillEOS:
		return "eos"
	}
	return "error"
}

// fillQueuesLocked picks, for every channel, the buffer that overlaps the
// output window [outStart, outEnd). Windows are half-open: a buffer ending
// exactly at outStart belongs to the previous window.
func (e *Engine) fillQueuesLocked(outStart, outEnd clock.Time) (fillResult, error) {
	needMore := false
	eos := true

	for _, ch := range e.channels {
		next, hasNext := ch.peek()
		if hasNext && !next.pts.IsValid() {
			return fillError, &ChannelError{Channel: ch.name, Err: ErrMissingTimestamp}
		}

		if !hasNext && (ch.pending == nil || !ch.eos) {
			if ch.pending != nil {
				// The pending buffer's end is still unknown.
				needMore = true
				continue
			}
			if ch.current == nil {
				if !ch.eos {
					needMore = true
				}
				continue
			}
			if e.expiredLocked(ch, outStart) {
				ch.clearCurrent()
				if !ch.eos {
					needMore = true
				}
			} else {
				eos = false
			}
			continue
		}

		if hasNext && ((ch.current != nil && next.pts < ch.currentPTS) ||
			(ch.pending != nil && next.pts < ch.pending.pts)) {
			e.log.Warn("buffer from the past, dropping", "channel", ch.name, "pts", next.pts)
			ch.pop()
			e.dropLocked(ch, DropUnordered)
			needMore = true
			continue
		}

		cand, fromPending := next, false
		switch {
		case ch.pending != nil:
			cand, fromPending = *ch.pending, true
			if hasNext {
				cand.duration = next.pts - cand.pts
			} else {
				// Last buffer of an ended channel: it lasts one output frame.
				cand.duration = e.frameDurationLocked()
			}
		case !cand.duration.IsValid():
			ch.pending = &next
			ch.pop()
			needMore = true
			continue
		}

		consume := func() {
			if fromPending {
				ch.pending = nil
			} else {
				ch.pop()
			}
		}

		start, end, inside := ch.segment.Clip(cand.pts, cand.pts+cand.duration)
		if !inside {
			e.log.Debug("buffer outside segment", "channel", ch.name, "pts", cand.pts)
			consume()
			e.dropLocked(ch, DropOutside)
			needMore = true
			continue
		}
		start = ch.segment.ToRunningTime(start)
		end = ch.segment.ToRunningTime(end)

		if ch.end.IsValid() && ch.end > end {
			e.log.Debug("buffer from the past, dropping", "channel", ch.name, "pts", cand.pts)
			consume()
			e.dropLocked(ch, DropLate)
			needMore = true
			continue
		}

		ps, pe := e.segment.PositionFromRunningTime(start), e.segment.PositionFromRunningTime(end)
		switch {
		case overlaps(ps, pe, outStart, outEnd):
			ch.current = cand.frame
			ch.currentPTS = cand.pts
			ch.start, ch.end = start, end
			consume()
			eos = false
		case ps.IsValid() && ps >= outEnd:
			// Belongs to a later window. An older buffer that no longer
			// overlaps is not shown in the gap.
			if ch.current != nil && e.expiredLocked(ch, outStart) {
				ch.clearCurrent()
			}
			eos = false
		default:
			e.log.Debug("buffer too old, dropping", "channel", ch.name, "pts", cand.pts)
			consume()
			e.dropLocked(ch, DropLate)
			needMore = true
		}
	}

	switch {
	case needMore:
		return fillNeedData, nil
	case eos:
		return fillEOS, nil
	}
	return fillReady, nil
}

// overlaps reports whether [start, end) intersects [outStart, outEnd). A
// zero-length buffer overlaps the window containing its start.
func overlaps(start, end, outStart, outEnd clock.Time) bool {
	if !start.IsValid() || !end.IsValid() {
		return false
	}
	if start == end {
		return start >= outStart && start < outEnd
	}
	return end > outStart && start < outEnd
}

// expiredLocked reports whether the channel's current buffer ends at or
// before outStart.
func (e *Engine) expiredLocked(ch *channel, outStart clock.Time) bool {
	end := e.segment.PositionFromRunningTime(ch.end)
	return !end.IsValid() || end <= outStart
}

func (e *Engine) frameDurationLocked() clock.Time {
	return clock.FramesToTime(1, e.info.FPS.Num, e.info.FPS.Den)
}

func (e *Engine) dropLocked(ch *channel, reason DropReason) {
	ch.dropped++
	e.obs.BufferDropped(ch.name, reason)
}
