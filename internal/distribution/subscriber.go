package distribution

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/mixer"
)

// DefaultQueueSize is the per-subscriber frame queue depth.
const DefaultQueueSize = 8

// FrameWriter delivers frames to a downstream connection.
type FrameWriter interface {
	WriteFrame(f *mixer.OutputFrame) (int, error)
	WriteEOS() error
}

// QueuedSubscriber decouples a slow FrameWriter from the mixer tick with a
// bounded queue. Frames that do not fit are dropped and counted.
type QueuedSubscriber struct {
	id   string
	kind string
	log  *slog.Logger
	w    FrameWriter

	frames  chan *mixer.OutputFrame
	eos     chan struct{}
	eosOnce sync.Once

	sent      atomic.Int64
	dropped   atomic.Int64
	bytesSent atomic.Int64
	lastPTS   atomic.Int64
}

var _ Subscriber = (*QueuedSubscriber)(nil)

// NewQueuedSubscriber creates a subscriber that writes to w from Run.
// size <= 0 means DefaultQueueSize. If log is nil, slog.Default() is used.
func NewQueuedSubscriber(id, kind string, size int, w FrameWriter, log *slog.Logger) *QueuedSubscriber {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	q := &QueuedSubscriber{
		id:     id,
		kind:   kind,
		log:    log.With("component", "subscriber", "subscriber", id),
		w:      w,
		frames: make(chan *mixer.OutputFrame, size),
		eos:    make(chan struct{}),
	}
	q.lastPTS.Store(int64(clock.None))
	return q
}

func (q *QueuedSubscriber) ID() string { return q.id }

// SendFrame queues f, dropping it if the queue is full.
func (q *QueuedSubscriber) SendFrame(f *mixer.OutputFrame) {
	select {
	case q.frames <- f:
	default:
		q.dropped.Add(1)
	}
}

// SendEOS asks Run to finish once the queue is drained.
func (q *QueuedSubscriber) SendEOS() {
	q.eosOnce.Do(func() { close(q.eos) })
}

func (q *QueuedSubscriber) Stats() SubscriberStats {
	st := SubscriberStats{
		ID:        q.id,
		Kind:      q.kind,
		Sent:      q.sent.Load(),
		Dropped:   q.dropped.Load(),
		BytesSent: q.bytesSent.Load(),
	}
	if pts := clock.Time(q.lastPTS.Load()); pts.IsValid() {
		st.LastPTSMS = pts.Duration().Milliseconds()
	}
	return st
}

// Run writes queued frames until ctx is done, a write fails or end of
// stream has been delivered.
func (q *QueuedSubscriber) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-q.frames:
			if err := q.write(f); err != nil {
				return err
			}
		case <-q.eos:
			if err := q.drain(); err != nil {
				return err
			}
			q.log.Debug("end of stream", "sent", q.sent.Load(), "dropped", q.dropped.Load())
			return q.w.WriteEOS()
		}
	}
}

func (q *QueuedSubscriber) drain() error {
	for {
		select {
		case f := <-q.frames:
			if err := q.write(f); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (q *QueuedSubscriber) write(f *mixer.OutputFrame) error {
	n, err := q.w.WriteFrame(f)
	if err != nil {
		q.log.Debug("frame write failed", "error", err)
		return err
	}
	q.sent.Add(1)
	q.bytesSent.Add(int64(n))
	q.lastPTS.Store(int64(f.PTS))
	return nil
}
