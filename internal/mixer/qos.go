package mixer

import (
	"sync"

	"github.com/zsiec/mosaic/internal/clock"
)

// qosState tracks downstream lateness. It has its own lock so that
// feedback never waits for a tick in progress.
type qosState struct {
	mu            sync.Mutex
	proportion    float64
	earliest      clock.Time
	frameDuration clock.Time
	processed     uint64
	dropped       uint64
}

func (q *qosState) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.proportion = 0.5
	q.earliest = clock.None
	q.processed = 0
	q.dropped = 0
}

func (q *qosState) setFrameDuration(d clock.Time) {
	q.mu.Lock()
	q.frameDuration = d
	q.mu.Unlock()
}

// update records downstream feedback. diff is how late (positive) or early
// (negative) the buffer with running time ts arrived.
func (q *qosState) update(proportion float64, diff int64, ts clock.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.proportion = proportion
	switch {
	case !ts.IsValid():
		q.earliest = clock.None
	case diff > 0:
		// Late: skip ahead twice the lateness plus one frame.
		fd := q.frameDuration
		if !fd.IsValid() {
			fd = 0
		}
		q.earliest = ts + clock.Time(2*diff) + fd
	default:
		e := int64(ts) + diff
		if e < 0 {
			e = 0
		}
		q.earliest = clock.Time(e)
	}
}

// check returns the jitter of a frame at running time rt and whether it
// should be rendered. Frames are always rendered when either time is
// unknown.
func (q *qosState) check(rt clock.Time) (jitter int64, render bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !rt.IsValid() || !q.earliest.IsValid() {
		return 0, true
	}
	jitter = clock.Diff(rt, q.earliest)
	return jitter, jitter <= 0
}

// record counts a rendered or skipped frame and returns the totals.
func (q *qosState) record(rendered bool) (proportion float64, processed, dropped uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rendered {
		q.processed++
	} else {
		q.dropped++
	}
	return q.proportion, q.processed, q.dropped
}

func (q *qosState) snapshot() QoSStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QoSStats{
		Proportion: q.proportion,
		Earliest:   q.earliest,
		Processed:  q.processed,
		Dropped:    q.dropped,
	}
}

// QoSStats summarises overload control.
type QoSStats struct {
	Proportion float64    `json:"proportion"`
	Earliest   clock.Time `json:"earliest"`
	Processed  uint64     `json:"processed"`
	Dropped    uint64     `json:"dropped"`
}

// UpdateQoS feeds downstream lateness back into the engine. proportion is
// the fraction of real time recent frames took, diff the signed lateness in
// nanoseconds of the frame at running time ts. It may be called from any
// goroutine, including from a Sink.
func (e *Engine) UpdateQoS(proportion float64, diff int64, ts clock.Time) {
	e.qos.update(proportion, diff, ts)
}
