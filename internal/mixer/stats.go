package mixer

import (
	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
)

// Stats is a point-in-time view of the engine, served by the control API.
type Stats struct {
	State      State         `json:"state"`
	Background Background    `json:"background"`
	Output     *video.Info   `json:"output,omitempty"`
	Segment    clock.Segment `json:"segment"`
	Position   clock.Time    `json:"position"`
	Frames     uint64        `json:"frames"`
	EOS        bool          `json:"eos"`
	QoS        QoSStats      `json:"qos"`
	Channels   []ChannelInfo `json:"channels"`
}

// Position returns the stream time of the next output frame, or
// clock.None before the segment has a position.
func (e *Engine) Position() clock.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *Engine) positionLocked() clock.Time {
	pos := e.segment.Position
	if !pos.IsValid() {
		pos = e.segment.Start
	}
	return e.segment.ToStreamTime(pos)
}

// Stats returns a snapshot of the engine and its channels.
func (e *Engine) Stats() Stats {
	state := e.State()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		State:      state,
		Background: e.cfg.Background,
		Segment:    e.segment,
		Position:   e.positionLocked(),
		Frames:     e.seq,
		EOS:        e.eosSent,
		QoS:        e.qos.snapshot(),
		Channels:   make([]ChannelInfo, len(e.channels)),
	}
	if e.info.Valid() {
		info := e.info
		s.Output = &info
	}
	for i, ch := range e.channels {
		s.Channels[i] = ch.snapshot()
	}
	return s
}
