package clock

import (
	"errors"
	"fmt"
	"math"
)

// SeekType selects how a seek treats its start or stop value.
type SeekType int

const (
	// SeekTypeNone keeps the current value.
	SeekTypeNone SeekType = iota
	// SeekTypeSet replaces the value; None as a stop means open-ended.
	SeekTypeSet
)

// SeekFlags modify seek behaviour.
type SeekFlags uint32

// SeekFlagFlush discards everything queued before the seek and restarts
// running time at zero.
const SeekFlagFlush SeekFlags = 1 << 0

// ErrInvalidSeek is returned for a zero rate or a start past the stop.
var ErrInvalidSeek = errors.New("clock: invalid seek")

// Segment is a playback region. Positions between Start and Stop map to
// running time starting at Base and to stream time starting at Time.
type Segment struct {
	Rate     float64 `json:"rate"`
	Start    Time    `json:"start"`
	Stop     Time    `json:"stop"`
	Time     Time    `json:"time"`
	Base     Time    `json:"base"`
	Position Time    `json:"position"`
}

// NewSegment returns an open-ended forward segment starting at zero with
// no position yet.
func NewSegment() Segment {
	return Segment{Rate: 1, Start: 0, Stop: None, Time: 0, Base: 0, Position: None}
}

func (s Segment) absRate() float64 {
	if s.Rate == 0 {
		return 1
	}
	return math.Abs(s.Rate)
}

// HasStop reports whether the segment is closed.
func (s Segment) HasStop() bool {
	return s.Stop.IsValid()
}

// ToRunningTime converts a position inside the segment to running time.
// Positions before Start or after Stop have no running time.
func (s Segment) ToRunningTime(pos Time) Time {
	if !pos.IsValid() || pos < s.Start {
		return None
	}
	if s.HasStop() && pos > s.Stop {
		return None
	}
	rt := pos - s.Start
	if r := s.absRate(); r != 1 {
		rt = Time(float64(rt) / r)
	}
	return rt + s.Base
}

// ToStreamTime converts a position inside the segment to stream time.
func (s Segment) ToStreamTime(pos Time) Time {
	if !pos.IsValid() || pos < s.Start {
		return None
	}
	if s.HasStop() && pos > s.Stop {
		return None
	}
	return pos - s.Start + s.Time
}

// PositionFromRunningTime is the inverse of ToRunningTime.
func (s Segment) PositionFromRunningTime(rt Time) Time {
	if !rt.IsValid() || rt < s.Base {
		return None
	}
	d := rt - s.Base
	if r := s.absRate(); r != 1 {
		d = Time(float64(d) * r)
	}
	return s.Start + d
}

// Clip restricts [start, end) to the segment. It reports false when the
// interval lies entirely outside. end may be None for an open interval.
func (s Segment) Clip(start, end Time) (Time, Time, bool) {
	if !start.IsValid() {
		return None, None, false
	}
	if s.HasStop() && start >= s.Stop {
		return None, None, false
	}
	if end.IsValid() && end < s.Start {
		return None, None, false
	}
	if end.IsValid() && end == s.Start && start < end {
		return None, None, false
	}
	start = Max(start, s.Start)
	if s.HasStop() && (!end.IsValid() || end > s.Stop) {
		end = s.Stop
	}
	return start, end, true
}

// DoSeek reconfigures the segment. A flushing seek restarts running time at
// zero; otherwise running time continues from the current position.
func (s *Segment) DoSeek(rate float64, flags SeekFlags, startType SeekType, start Time, stopType SeekType, stop Time) error {
	if rate == 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: rate %v", ErrInvalidSeek, rate)
	}

	newStart := s.Start
	if startType == SeekTypeSet {
		if !start.IsValid() {
			start = 0
		}
		newStart = start
	}
	newStop := s.Stop
	if stopType == SeekTypeSet {
		newStop = stop
	}
	if newStop.IsValid() && newStart > newStop {
		return fmt.Errorf("%w: start %s after stop %s", ErrInvalidSeek, newStart, newStop)
	}

	base := Time(0)
	if flags&SeekFlagFlush == 0 {
		pos := s.Position
		if !pos.IsValid() {
			pos = s.Start
		}
		if rt := s.ToRunningTime(pos); rt.IsValid() {
			base = rt
		} else {
			base = s.Base
		}
	}

	s.Rate = rate
	s.Start = newStart
	s.Stop = newStop
	s.Time = newStart
	s.Base = base
	s.Position = newStart
	return nil
}
