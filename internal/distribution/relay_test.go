package distribution

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/mixer"
	"github.com/zsiec/mosaic/internal/video"
	"github.com/zsiec/mosaic/internal/wire"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	id     string
	mu     sync.Mutex
	frames []*mixer.OutputFrame
	eos    atomic.Int64
}

func newMockSubscriber(id string) *mockSubscriber {
	return &mockSubscriber{id: id}
}

func (m *mockSubscriber) ID() string { return m.id }

func (m *mockSubscriber) SendFrame(f *mixer.OutputFrame) {
	m.mu.Lock()
	m.frames = append(m.frames, f)
	m.mu.Unlock()
}

func (m *mockSubscriber) SendEOS() { m.eos.Add(1) }

func (m *mockSubscriber) Stats() SubscriberStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SubscriberStats{ID: m.id, Kind: "mock", Sent: int64(len(m.frames))}
}

func (m *mockSubscriber) frameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func testFrame(t *testing.T, pts clock.Time) *mixer.OutputFrame {
	t.Helper()
	info := video.NewInfo(video.FormatAYUV, 4, 2, video.Fraction{Num: 25, Den: 1})
	f := video.NewFrame(info)
	for i := range f.Data {
		f.Data[i] = byte(pts / clock.Millisecond)
	}
	return &mixer.OutputFrame{Frame: f, PTS: pts, Duration: 40 * clock.Millisecond, RunningTime: pts}
}

func TestRelayAddRemoveSubscriber(t *testing.T) {
	t.Parallel()
	r := NewRelay(nil)
	s := newMockSubscriber("s1")

	r.AddSubscriber(s)
	if got := r.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}
	r.RemoveSubscriber("s1")
	if got := r.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", got)
	}
	r.RemoveSubscriber("nonexistent")
}

func TestRelayBroadcast(t *testing.T) {
	t.Parallel()
	r := NewRelay(nil)
	a, b := newMockSubscriber("a"), newMockSubscriber("b")
	r.AddSubscriber(a)
	r.AddSubscriber(b)

	for i := range 3 {
		if err := r.WriteFrame(testFrame(t, clock.Time(i)*40*clock.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}
	if a.frameCount() != 3 || b.frameCount() != 3 {
		t.Errorf("frames delivered a=%d b=%d, want 3 each", a.frameCount(), b.frameCount())
	}

	r.WriteEOS()
	if a.eos.Load() != 1 || b.eos.Load() != 1 {
		t.Error("EOS not delivered to every subscriber")
	}
	if st := r.Stats(); st.Frames != 3 || !st.EOS || len(st.Subscribers) != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRelayReplaysLatestToLateSubscriber(t *testing.T) {
	t.Parallel()
	r := NewRelay(nil)
	if r.Latest() != nil {
		t.Fatal("Latest() before any frame should be nil")
	}
	r.WriteFrame(testFrame(t, 0))
	last := testFrame(t, 40*clock.Millisecond)
	r.WriteFrame(last)

	s := newMockSubscriber("late")
	r.AddSubscriber(s)
	if s.frameCount() != 1 || s.frames[0] != last {
		t.Fatalf("late subscriber got %d frames, want only the latest", s.frameCount())
	}

	r.WriteEOS()
	after := newMockSubscriber("after-eos")
	r.AddSubscriber(after)
	if after.eos.Load() != 1 {
		t.Error("subscriber added after EOS should receive EOS")
	}
}

func TestRelayRecordsQoSAndErrors(t *testing.T) {
	t.Parallel()
	r := NewRelay(nil)
	r.WriteQoS(mixer.QoSEvent{Timestamp: clock.Second, Jitter: 5, Dropped: 1})
	r.WriteError(errors.New("boom"))

	st := r.Stats()
	if st.QoSEvents != 1 || st.LastQoS == nil || st.LastQoS.Timestamp != clock.Second {
		t.Errorf("qos not recorded: %+v", st)
	}
	if st.LastError != "boom" {
		t.Errorf("LastError = %q, want boom", st.LastError)
	}
}

// blockingWriter blocks every WriteFrame until release is closed.
type blockingWriter struct {
	release chan struct{}
	written atomic.Int64
	eos     atomic.Bool
}

func (w *blockingWriter) WriteFrame(f *mixer.OutputFrame) (int, error) {
	<-w.release
	w.written.Add(1)
	return len(f.Data), nil
}

func (w *blockingWriter) WriteEOS() error {
	w.eos.Store(true)
	return nil
}

func TestQueuedSubscriberDropsWhenFull(t *testing.T) {
	t.Parallel()
	w := &blockingWriter{release: make(chan struct{})}
	q := NewQueuedSubscriber("q", "test", 2, w, nil)

	// No Run yet: two fit, the rest drop.
	for i := range 5 {
		q.SendFrame(testFrame(t, clock.Time(i)*40*clock.Millisecond))
	}
	if st := q.Stats(); st.Dropped != 3 {
		t.Fatalf("dropped = %d, want 3", st.Dropped)
	}

	close(w.release)
	q.SendEOS()
	if err := q.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := w.written.Load(); got != 2 {
		t.Errorf("written = %d, want 2", got)
	}
	if !w.eos.Load() {
		t.Error("EOS not written after draining")
	}
	st := q.Stats()
	if st.Sent != 2 || st.BytesSent != 2*32 || st.LastPTSMS != 40 {
		t.Errorf("stats = %+v", st)
	}
}

func TestQueuedSubscriberStopsOnCancel(t *testing.T) {
	t.Parallel()
	q := NewQueuedSubscriber("q", "test", 1, &blockingWriter{release: make(chan struct{})}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWireWriterSendsCapsOnChange(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWireWriter(&buf)

	f1 := testFrame(t, 0)
	f2 := testFrame(t, 40*clock.Millisecond)
	if _, err := w.WriteFrame(f1); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteFrame(f2); err != nil {
		t.Fatal(err)
	}
	bigInfo := video.NewInfo(video.FormatAYUV, 8, 2, video.Fraction{Num: 25, Den: 1})
	big := video.NewFrame(bigInfo)
	if _, err := w.WriteFrame(&mixer.OutputFrame{Frame: big, PTS: 80 * clock.Millisecond, Duration: clock.None}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEOS(); err != nil {
		t.Fatal(err)
	}

	var types []uint64
	dec := wire.NewDecoder(&buf)
	for {
		m, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		types = append(types, m.Type())
		if b, ok := m.(*wire.Buffer); ok && b.PTS == 40*clock.Millisecond && !bytes.Equal(b.Data, f2.Data) {
			t.Error("buffer payload mismatch")
		}
	}
	want := []uint64{wire.MsgCaps, wire.MsgBuffer, wire.MsgBuffer, wire.MsgCaps, wire.MsgBuffer, wire.MsgEOS}
	if len(types) != len(want) {
		t.Fatalf("message types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("message types = %v, want %v", types, want)
		}
	}
}

// pipeConn is an in-memory egress connection.
type pipeConn struct {
	*io.PipeWriter
}

func TestEgressStreamsToConnection(t *testing.T) {
	t.Parallel()
	relay := NewRelay(nil)
	eg := NewEgress(relay, 4, nil)

	pr, pw := io.Pipe()
	eg.dial = func(ctx context.Context, req EgressRequest) (io.WriteCloser, error) {
		return pipeConn{pw}, nil
	}

	if err := eg.Start(context.Background(), EgressRequest{Address: "127.0.0.1:7000"}); err != nil {
		t.Fatal(err)
	}
	if err := eg.Start(context.Background(), EgressRequest{Address: "127.0.0.1:7000"}); err == nil {
		t.Error("duplicate egress should fail")
	}
	active := eg.Active()
	if len(active) != 1 || active[0].ID != "127.0.0.1:7000/mosaic" {
		t.Fatalf("active = %+v", active)
	}

	relay.WriteFrame(testFrame(t, 0))

	dec := wire.NewDecoder(pr)
	m, err := dec.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(*wire.Caps); !ok {
		t.Fatalf("first message %T, want *wire.Caps", m)
	}
	m, err = dec.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if b, ok := m.(*wire.Buffer); !ok || b.PTS != 0 {
		t.Fatalf("second message = %+v, want buffer at 0", m)
	}

	if err := eg.Stop(active[0].ID); err != nil {
		t.Fatal(err)
	}
	// Stopping closes the pipe.
	if _, err := io.ReadAll(pr); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for relay.SubscriberCount() != 0 || len(eg.Active()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("egress not cleaned up after Stop")
		}
		time.Sleep(time.Millisecond)
	}
	if err := eg.Stop("missing"); err == nil {
		t.Error("Stop of unknown egress should fail")
	}
}

func TestEgressRequiresAddress(t *testing.T) {
	t.Parallel()
	eg := NewEgress(NewRelay(nil), 0, nil)
	if err := eg.Start(context.Background(), EgressRequest{}); err == nil {
		t.Fatal("expected error for empty address")
	}
}
