package mixer

import (
	"time"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
)

// Buffer is one input picture. PTS is mandatory; Duration may be
// clock.None, in which case the buffer ends where the next one starts.
type Buffer struct {
	PTS      clock.Time
	Duration clock.Time
	Data     []byte
}

// OutputFrame is a composited picture. PTS and Duration are positions in
// the output segment; RunningTime is the PTS converted to running time.
type OutputFrame struct {
	*video.Frame
	PTS         clock.Time
	Duration    clock.Time
	RunningTime clock.Time
	Sequence    uint64
}

// QoSEvent reports a frame skipped because downstream was late.
type QoSEvent struct {
	RunningTime clock.Time `json:"runningTime"`
	StreamTime  clock.Time `json:"streamTime"`
	Timestamp   clock.Time `json:"timestamp"`
	Duration    clock.Time `json:"duration"`
	Jitter      int64      `json:"jitter"`
	Proportion  float64    `json:"proportion"`
	Processed   uint64     `json:"processed"`
	Dropped     uint64     `json:"dropped"`
}

// Sink receives everything the engine produces. Methods are called with the
// engine lock held, in output order, and must not call back into the engine
// except for UpdateQoS.
type Sink interface {
	WriteFrame(f *OutputFrame) error
	WriteQoS(ev QoSEvent)
	WriteEOS()
	WriteError(err error)
}

// Observer is notified of engine activity, typically to export metrics.
// Calls must not block.
type Observer interface {
	FrameRendered(channels int, compose time.Duration)
	FrameSkipped(jitter time.Duration)
	BufferDropped(channel string, reason DropReason)
}

// DropReason explains why an input buffer never reached the output.
type DropReason string

// Drop reasons.
const (
	DropUnordered DropReason = "unordered"
	DropLate      DropReason = "late"
	DropOutside   DropReason = "outside-segment"
	DropFlushed   DropReason = "flushed"
)

type nopSink struct{}

func (nopSink) WriteFrame(*OutputFrame) error { return nil }
func (nopSink) WriteQoS(QoSEvent)             {}
func (nopSink) WriteEOS()                     {}
func (nopSink) WriteError(error)              {}

type nopObserver struct{}

func (nopObserver) FrameRendered(int, time.Duration) {}
func (nopObserver) FrameSkipped(time.Duration)       {}
func (nopObserver) BufferDropped(string, DropReason) {}
