// Package clock provides nanosecond media timestamps and playback segments,
// including the conversions between buffer timestamps, running time and
// stream time that every input of the mixer is aligned on.
package clock

import (
	"fmt"
	"math/bits"
	"time"
)

// Time is a media timestamp or duration in nanoseconds. Negative values
// other than None are never produced by this package.
type Time int64

// None marks an unknown timestamp or duration.
const None Time = -1

// Common units.
const (
	Nanosecond  Time = 1
	Microsecond Time = 1000 * Nanosecond
	Millisecond Time = 1000 * Microsecond
	Second      Time = 1000 * Millisecond
)

// IsValid reports whether t holds a real timestamp.
func (t Time) IsValid() bool {
	return t >= 0
}

// Duration converts t to a time.Duration. None converts to 0.
func (t Time) Duration() time.Duration {
	if !t.IsValid() {
		return 0
	}
	return time.Duration(t)
}

// FromDuration converts a time.Duration to a Time, mapping negative
// durations to None.
func FromDuration(d time.Duration) Time {
	if d < 0 {
		return None
	}
	return Time(d)
}

func (t Time) String() string {
	if !t.IsValid() {
		return "none"
	}
	d := uint64(t)
	return fmt.Sprintf("%d:%02d:%02d.%09d",
		d/uint64(time.Hour), d/uint64(time.Minute)%60, d/uint64(time.Second)%60, d%uint64(time.Second))
}

// Diff returns b - a as a signed value.
func Diff(a, b Time) int64 {
	return int64(b) - int64(a)
}

// Min returns the smaller of two valid times.
func Min(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of two times.
func Max(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}

// Scale computes val*num/denom with a 128-bit intermediate so that frame
// counts multiplied by nanoseconds-per-second never overflow. It returns
// None when denom is zero or the result does not fit.
func Scale(val, num, denom uint64) Time {
	if denom == 0 {
		return None
	}
	hi, lo := bits.Mul64(val, num)
	if hi >= denom {
		return None
	}
	q, _ := bits.Div64(hi, lo, denom)
	if q > uint64(1<<63-1) {
		return None
	}
	return Time(q)
}

// FramesToTime returns the timestamp of frame n at fpsNum/fpsDen frames per
// second. It returns None for a zero frame rate.
func FramesToTime(n uint64, fpsNum, fpsDen int) Time {
	if fpsNum <= 0 || fpsDen <= 0 {
		return None
	}
	return Scale(n, uint64(Second)*uint64(fpsDen), uint64(fpsNum))
}
