// Package distribution fans composited output frames out to subscribers:
// the preview, SRT egress connections and anything else that wants the
// mixer's output.
package distribution

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zsiec/mosaic/internal/mixer"
)

// Subscriber receives output from a Relay. SendFrame and SendEOS are called
// from the mixer's tick and must not block.
type Subscriber interface {
	ID() string
	SendFrame(f *mixer.OutputFrame)
	SendEOS()
	Stats() SubscriberStats
}

// Relay is the fan-out hub for the mixer output. It implements mixer.Sink,
// so the engine writes into it directly, and caches the latest frame so a
// late subscriber has something to show immediately.
type Relay struct {
	log  *slog.Logger
	mu   sync.RWMutex
	subs map[string]Subscriber

	latestMu sync.RWMutex
	latest   *mixer.OutputFrame

	stateMu sync.Mutex
	lastQoS *mixer.QoSEvent
	lastErr error

	frames    atomic.Int64
	qosEvents atomic.Int64
	eos       atomic.Bool
}

var _ mixer.Sink = (*Relay)(nil)

// NewRelay creates a Relay with no subscribers. If log is nil,
// slog.Default() is used.
func NewRelay(log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		log:  log.With("component", "relay"),
		subs: make(map[string]Subscriber),
	}
}

// WriteFrame caches f and hands it to every subscriber.
func (r *Relay) WriteFrame(f *mixer.OutputFrame) error {
	r.eos.Store(false)
	r.frames.Add(1)

	r.latestMu.Lock()
	r.latest = f
	r.latestMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs {
		s.SendFrame(f)
	}
	return nil
}

// WriteQoS records the last overload notice.
func (r *Relay) WriteQoS(ev mixer.QoSEvent) {
	r.qosEvents.Add(1)
	r.stateMu.Lock()
	r.lastQoS = &ev
	r.stateMu.Unlock()
	r.log.Debug("frame skipped", "pts", ev.Timestamp, "jitter", ev.Jitter, "dropped", ev.Dropped)
}

// WriteEOS forwards end of stream to every subscriber.
func (r *Relay) WriteEOS() {
	r.eos.Store(true)
	r.log.Info("output ended", "frames", r.frames.Load())

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs {
		s.SendEOS()
	}
}

// WriteError records a processing error reported by the engine.
func (r *Relay) WriteError(err error) {
	r.stateMu.Lock()
	r.lastErr = err
	r.stateMu.Unlock()
	r.log.Error("mixer error", "error", err)
}

// AddSubscriber replays the latest frame to s, then registers it for live
// delivery. A subscriber added after end of stream is told so at once.
func (r *Relay) AddSubscriber(s Subscriber) {
	if f := r.Latest(); f != nil {
		s.SendFrame(f)
	}

	r.mu.Lock()
	r.subs[s.ID()] = s
	r.mu.Unlock()

	if r.eos.Load() {
		s.SendEOS()
	}
	r.log.Info("subscriber added", "subscriber", s.ID(), "subscribers", r.SubscriberCount())
}

// RemoveSubscriber unregisters a subscriber by ID.
func (r *Relay) RemoveSubscriber(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()

	r.log.Info("subscriber removed", "subscriber", id, "subscribers", r.SubscriberCount())
}

// SubscriberCount returns the number of registered subscribers.
func (r *Relay) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Latest returns the most recent output frame, or nil before the first.
func (r *Relay) Latest() *mixer.OutputFrame {
	r.latestMu.RLock()
	defer r.latestMu.RUnlock()
	return r.latest
}

// Stats returns a snapshot of relay and subscriber counters.
func (r *Relay) Stats() RelayStats {
	st := RelayStats{
		Frames:    r.frames.Load(),
		QoSEvents: r.qosEvents.Load(),
		EOS:       r.eos.Load(),
	}
	r.stateMu.Lock()
	if r.lastQoS != nil {
		ev := *r.lastQoS
		st.LastQoS = &ev
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	r.stateMu.Unlock()

	r.mu.RLock()
	st.Subscribers = make([]SubscriberStats, 0, len(r.subs))
	for _, s := range r.subs {
		st.Subscribers = append(st.Subscribers, s.Stats())
	}
	r.mu.RUnlock()
	return st
}
