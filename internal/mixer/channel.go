package mixer

import (
	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
)

// Props is a partial update of a channel's compositing properties. Nil
// fields are left unchanged.
type Props struct {
	Z     *int     `json:"z,omitempty"`
	X     *int     `json:"x,omitempty"`
	Y     *int     `json:"y,omitempty"`
	Alpha *float64 `json:"alpha,omitempty"`
}

// ChannelInfo is a snapshot of one input channel.
type ChannelInfo struct {
	ID      int         `json:"id"`
	Name    string      `json:"name"`
	Z       int         `json:"z"`
	X       int         `json:"x"`
	Y       int         `json:"y"`
	Alpha   float64     `json:"alpha"`
	Format  *video.Info `json:"format,omitempty"`
	Queued  int         `json:"queued"`
	Waiters int         `json:"waiters"`
	EOS     bool        `json:"eos"`
	Current clock.Time  `json:"current"`

	// Drained is set once an ended channel has nothing left to composite.
	Drained bool `json:"drained"`

	Received uint64 `json:"received"`
	Rendered uint64 `json:"rendered"`
	Dropped  uint64 `json:"dropped"`
}

type queued struct {
	pts      clock.Time
	duration clock.Time
	frame    *video.Frame
}

// channel is one input. All fields are guarded by the engine lock.
type channel struct {
	id    int
	name  string
	z     int
	x, y  int
	alpha float64

	info    video.Info
	segment clock.Segment

	queue   []queued
	eos     bool
	waiters int // pushers blocked on a full queue

	// pending holds a buffer whose duration is only known once the next
	// buffer arrives.
	pending *queued

	// current is the buffer overlapping the last output window. start and
	// end are its running times.
	current    *video.Frame
	currentPTS clock.Time
	start, end clock.Time

	received uint64
	rendered uint64
	dropped  uint64
}

func newChannel(id int, name string, z int) *channel {
	return &channel{
		id:         id,
		name:       name,
		z:          z,
		alpha:      1.0,
		segment:    clock.NewSegment(),
		currentPTS: clock.None,
		start:      clock.None,
		end:        clock.None,
	}
}

func (c *channel) negotiated() bool {
	return c.info.Valid()
}

func (c *channel) peek() (queued, bool) {
	if len(c.queue) == 0 {
		return queued{}, false
	}
	return c.queue[0], true
}

func (c *channel) pop() {
	c.queue[0] = queued{}
	c.queue = c.queue[1:]
}

// exhausted reports whether the channel has ended and has nothing left to
// offer.
func (c *channel) exhausted() bool {
	return c.eos && len(c.queue) == 0 && c.pending == nil
}

func (c *channel) clearCurrent() {
	c.current = nil
	c.currentPTS = clock.None
	c.start, c.end = clock.None, clock.None
}

// reset drops every buffer the channel holds and returns how many queued
// or pending buffers were discarded.
func (c *channel) reset() int {
	n := len(c.queue)
	if c.pending != nil {
		n++
	}
	c.queue = nil
	c.pending = nil
	c.eos = false
	c.clearCurrent()
	return n
}

func (c *channel) snapshot() ChannelInfo {
	ci := ChannelInfo{
		ID:       c.id,
		Name:     c.name,
		Z:        c.z,
		X:        c.x,
		Y:        c.y,
		Alpha:    c.alpha,
		Queued:   len(c.queue),
		Waiters:  c.waiters,
		EOS:      c.eos,
		Current:  c.currentPTS,
		Drained:  c.exhausted() && c.current == nil,
		Received: c.received,
		Rendered: c.rendered,
		Dropped:  c.dropped,
	}
	if c.negotiated() {
		info := c.info
		ci.Format = &info
	}
	return ci
}
