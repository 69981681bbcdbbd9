package mixer

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zsiec/mosaic/internal/blend"
	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
)

// State is the lifecycle state of an Engine.
type State int32

// Engine states.
const (
	StateIdle State = iota
	StateRunning
	StateFlushing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFlushing:
		return "flushing"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrChannelExists is returned by AddChannel for a name already in use.
var ErrChannelExists = errors.New("mixer: channel name in use")

// Engine is the compositing engine. It is safe for concurrent use.
type Engine struct {
	log   *slog.Logger
	cfg   Config
	sink  Sink
	obs   Observer
	alloc Allocator

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	err      error
	channels []*channel // sorted by z, then id
	nextID   int

	info     video.Info
	funcs    blend.Funcs
	segment  clock.Segment
	tsOffset clock.Time
	nframes  uint64
	seq      uint64
	eosSent  bool

	// flushGen changes on every flush so blocked pushers notice one even
	// after the flushing flag has been cleared again.
	flushGen uint64
	flushing atomic.Bool

	qos qosState
}

// New creates an idle Engine. Call Start before pushing buffers.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	e := &Engine{
		log:      log.With("component", "mixer"),
		cfg:      cfg,
		sink:     cfg.Sink,
		obs:      cfg.Observer,
		alloc:    cfg.Allocator,
		segment:  clock.NewSegment(),
		tsOffset: 0,
	}
	if e.sink == nil {
		e.sink = nopSink{}
	}
	if e.obs == nil {
		e.obs = nopObserver{}
	}
	if e.alloc == nil {
		e.alloc = defaultAllocator
	}
	e.cond = sync.NewCond(&e.mu)
	e.qos.reset()
	return e
}

// Start moves an idle engine to running.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateRunning:
		return nil
	case StateStopped:
		return ErrNotRunning
	}
	e.state = StateRunning
	e.log.Info("started", "background", e.cfg.Background)
	return e.collectLocked()
}

// Stop releases every queued buffer and stops the engine for good. Blocked
// Push calls return ErrNotRunning.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return
	}
	e.state = StateStopped
	for _, ch := range e.channels {
		ch.reset()
	}
	e.cond.Broadcast()
	e.log.Info("stopped", "frames", e.seq)
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	if e.flushing.Load() {
		return StateFlushing
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the fatal error that stopped the engine, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// AddChannel registers a new input and returns its id. An empty name
// becomes "sink_N" with the next unused ordinal; an explicit "sink_N" name
// moves the ordinal past N. The channel is stacked above all existing ones.
// If the output already ended because every channel had finished, it is
// restarted on a fresh segment for the new channel.
func (e *Engine) AddChannel(name string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("sink_%d", e.nextID)
	}
	for _, ch := range e.channels {
		if ch.name == name {
			return 0, fmt.Errorf("%w: %q", ErrChannelExists, name)
		}
	}
	id := e.nextID
	e.nextID++
	if n, ok := sinkOrdinal(name); ok && n >= e.nextID {
		e.nextID = n + 1
	}

	if e.eosSent && e.state == StateRunning && e.allExhaustedLocked() {
		e.resumeLocked()
	}

	ch := newChannel(id, name, len(e.channels))
	e.channels = append(e.channels, ch)
	e.sortLocked()
	e.log.Info("channel added", "id", id, "name", name, "z", ch.z)
	return id, nil
}

// sinkOrdinal parses the N of a "sink_N" name.
func sinkOrdinal(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "sink_")
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || n == math.MaxInt {
		return 0, false
	}
	return n, true
}

// RemoveChannel disconnects an input. Its buffers are released and the
// output geometry is derived again from the remaining channels.
func (e *Engine) RemoveChannel(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := slices.IndexFunc(e.channels, func(c *channel) bool { return c.id == id })
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	ch := e.channels[i]
	ch.reset()
	e.channels = slices.Delete(e.channels, i, i+1)
	e.cond.Broadcast()
	e.log.Info("channel removed", "id", id, "name", ch.name)

	if e.info.Valid() {
		if err := e.updateOutputLocked(); err != nil {
			return err
		}
	}
	return e.collectLocked()
}

// Update applies a partial property change to a channel.
func (e *Engine) Update(id int, p Props) error {
	if p.Alpha != nil && (math.IsNaN(*p.Alpha) || *p.Alpha < 0 || *p.Alpha > 1) {
		return fmt.Errorf("%w: %v", ErrInvalidAlpha, *p.Alpha)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ch, err := e.channelLocked(id)
	if err != nil {
		return err
	}
	if p.X != nil {
		ch.x = *p.X
	}
	if p.Y != nil {
		ch.y = *p.Y
	}
	if p.Alpha != nil {
		ch.alpha = *p.Alpha
	}
	if p.Z != nil && *p.Z != ch.z {
		ch.z = *p.Z
		e.sortLocked()
	}
	return nil
}

// SetZOrder changes a channel's stacking order. Lower values are drawn
// first; ties keep insertion order.
func (e *Engine) SetZOrder(id, z int) error {
	return e.Update(id, Props{Z: &z})
}

// SetPosition moves a channel's top-left corner on the output canvas.
func (e *Engine) SetPosition(id, x, y int) error {
	return e.Update(id, Props{X: &x, Y: &y})
}

// SetAlpha sets a channel's opacity in [0,1].
func (e *Engine) SetAlpha(id int, alpha float64) error {
	return e.Update(id, Props{Alpha: &alpha})
}

// Channel returns a snapshot of one channel.
func (e *Engine) Channel(id int) (ChannelInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, err := e.channelLocked(id)
	if err != nil {
		return ChannelInfo{}, err
	}
	return ch.snapshot(), nil
}

// ChannelByName returns a snapshot of the channel with the given name.
func (e *Engine) ChannelByName(name string) (ChannelInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.channels {
		if ch.name == name {
			return ch.snapshot(), true
		}
	}
	return ChannelInfo{}, false
}

// Channels returns snapshots of all channels in compositing order.
func (e *Engine) Channels() []ChannelInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ChannelInfo, len(e.channels))
	for i, ch := range e.channels {
		out[i] = ch.snapshot()
	}
	return out
}

// OutputInfo returns the negotiated output format, or false before any
// channel has a format.
func (e *Engine) OutputInfo() (video.Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info, e.info.Valid()
}

func (e *Engine) channelLocked(id int) (*channel, error) {
	for _, ch := range e.channels {
		if ch.id == id {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
}

func (e *Engine) allExhaustedLocked() bool {
	for _, ch := range e.channels {
		if !ch.exhausted() {
			return false
		}
	}
	return true
}

func (e *Engine) sortLocked() {
	slices.SortStableFunc(e.channels, func(a, b *channel) int {
		if c := cmp.Compare(a.z, b.z); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
}

// failLocked stops the engine after an unrecoverable error.
func (e *Engine) failLocked(err error) {
	if e.state == StateStopped {
		return
	}
	e.state = StateStopped
	e.err = err
	for _, ch := range e.channels {
		ch.reset()
	}
	e.cond.Broadcast()
	e.log.Error("fatal error", "error", err)
	e.sink.WriteError(err)
}
