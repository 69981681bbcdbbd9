package mixer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
)

// recordSink captures everything the engine emits.
type recordSink struct {
	mu     sync.Mutex
	frames []*OutputFrame
	qos    []QoSEvent
	eos    int
	errs   []error
}

func (s *recordSink) WriteFrame(f *OutputFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordSink) WriteQoS(ev QoSEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qos = append(s.qos, ev)
}

func (s *recordSink) WriteEOS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eos++
}

func (s *recordSink) WriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordSink) Frames() []*OutputFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*OutputFrame(nil), s.frames...)
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *recordSink) {
	t.Helper()
	sink := &recordSink{}
	cfg.Sink = sink
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := New(cfg)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Stop)
	return e, sink
}

func fps(n int) video.Fraction {
	return video.Fraction{Num: n, Den: 1}
}

func ayuv(w, h int, rate video.Fraction) video.Info {
	return video.NewInfo(video.FormatAYUV, w, h, rate)
}

// solid returns an opaque AYUV picture with the given luma.
func solid(info video.Info, y byte) []byte {
	data := make([]byte, info.Size())
	for i := 0; i+3 < len(data); i += 4 {
		data[i], data[i+1], data[i+2], data[i+3] = 0xff, y, 128, 128
	}
	return data
}

// lumaAt reads the Y sample of an AYUV output frame.
func lumaAt(f *OutputFrame, x, y int) byte {
	return f.Plane(0)[y*f.Stride(0)+x*4+1]
}

func alphaAt(f *OutputFrame, x, y int) byte {
	return f.Plane(0)[y*f.Stride(0)+x*4]
}

func addChannel(t *testing.T, e *Engine, name string, info video.Info) int {
	t.Helper()
	id, err := e.AddChannel(name)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetChannelFormat(id, info); err != nil {
		t.Fatal(err)
	}
	return id
}

func push(t *testing.T, e *Engine, id int, info video.Info, pts, dur clock.Time, y byte) {
	t.Helper()
	if err := e.Push(context.Background(), id, Buffer{PTS: pts, Duration: dur, Data: solid(info, y)}); err != nil {
		t.Fatalf("push pts=%s: %v", pts, err)
	}
}

func TestAddChannelDefaults(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})

	a, err := e.AddChannel("")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.AddChannel("cam")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddChannel("cam"); !errors.Is(err, ErrChannelExists) {
		t.Fatalf("duplicate name: err = %v, want ErrChannelExists", err)
	}

	ca, _ := e.Channel(a)
	cb, _ := e.Channel(b)
	if ca.Name != "sink_0" || ca.Z != 0 || ca.Alpha != 1 || ca.X != 0 || ca.Y != 0 {
		t.Errorf("first channel = %+v", ca)
	}
	if cb.Z != 1 {
		t.Errorf("second channel z = %d, want 1", cb.Z)
	}
	if got, ok := e.ChannelByName("cam"); !ok || got.ID != b {
		t.Errorf("ChannelByName(cam) = %+v, %v", got, ok)
	}
}

func TestAddChannelSkipsExplicitSinkNames(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})

	if _, err := e.AddChannel("sink_1"); err != nil {
		t.Fatal(err)
	}
	var names []string
	for range 3 {
		id, err := e.AddChannel("")
		if err != nil {
			t.Fatalf("unnamed channel after sink_1: %v", err)
		}
		ci, _ := e.Channel(id)
		names = append(names, ci.Name)
	}
	want := []string{"sink_2", "sink_3", "sink_4"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}

	// A lower explicit ordinal does not move the counter back.
	if _, err := e.AddChannel("sink_0"); err != nil {
		t.Fatal(err)
	}
	id, err := e.AddChannel("")
	if err != nil {
		t.Fatal(err)
	}
	if ci, _ := e.Channel(id); ci.Name != "sink_6" {
		t.Errorf("next default name = %q, want sink_6", ci.Name)
	}
}

func TestSinkOrdinal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		n    int
		ok   bool
	}{
		{"sink_0", 0, true},
		{"sink_12", 12, true},
		{"sink_", 0, false},
		{"sink_-1", 0, false},
		{"sink_x", 0, false},
		{"cam1", 0, false},
	}
	for _, tt := range tests {
		n, ok := sinkOrdinal(tt.name)
		if n != tt.n || ok != tt.ok {
			t.Errorf("sinkOrdinal(%q) = %d, %v, want %d, %v", tt.name, n, ok, tt.n, tt.ok)
		}
	}
}

func TestZOrderSorting(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})
	a, _ := e.AddChannel("a")
	b, _ := e.AddChannel("b")
	c, _ := e.AddChannel("c")

	if err := e.SetZOrder(a, 5); err != nil {
		t.Fatal(err)
	}
	if err := e.SetZOrder(c, 1); err != nil {
		t.Fatal(err)
	}
	// b and c now tie at z=1; b was added first.
	got := e.Channels()
	want := []int{b, c, a}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("order = %v, want ids %v", got, want)
		}
	}
}

func TestUpdateValidation(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})
	id, _ := e.AddChannel("a")

	if err := e.SetAlpha(id, 1.5); !errors.Is(err, ErrInvalidAlpha) {
		t.Errorf("alpha 1.5: err = %v, want ErrInvalidAlpha", err)
	}
	if err := e.SetAlpha(id, -0.1); !errors.Is(err, ErrInvalidAlpha) {
		t.Errorf("alpha -0.1: err = %v, want ErrInvalidAlpha", err)
	}
	if err := e.SetPosition(42, 1, 1); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("unknown channel: err = %v, want ErrUnknownChannel", err)
	}
	if err := e.RemoveChannel(42); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("remove unknown: err = %v, want ErrUnknownChannel", err)
	}

	x, alpha := -4, 0.25
	if err := e.Update(id, Props{X: &x, Alpha: &alpha}); err != nil {
		t.Fatal(err)
	}
	ci, _ := e.Channel(id)
	if ci.X != -4 || ci.Y != 0 || ci.Alpha != 0.25 {
		t.Errorf("after update = %+v", ci)
	}
}

func TestOutputGeometry(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})

	if _, ok := e.OutputInfo(); ok {
		t.Fatal("output negotiated before any channel format")
	}

	a, _ := e.AddChannel("a")
	b, _ := e.AddChannel("b")
	c, _ := e.AddChannel("c")
	if err := e.SetPosition(b, 10, 5); err != nil {
		t.Fatal(err)
	}
	if err := e.SetPosition(c, -5, -5); err != nil {
		t.Fatal(err)
	}
	for id, info := range map[int]video.Info{
		a: ayuv(10, 10, fps(10)),
		b: ayuv(10, 10, fps(5)),
		c: ayuv(30, 4, fps(0)),
	} {
		if err := e.SetChannelFormat(id, info); err != nil {
			t.Fatal(err)
		}
	}

	out, ok := e.OutputInfo()
	if !ok {
		t.Fatal("output not negotiated")
	}
	// max(10+0, 10+10, 30+0) x max(10+0, 10+5, 4+0)
	if out.Width != 30 || out.Height != 15 {
		t.Errorf("output = %dx%d, want 30x15", out.Width, out.Height)
	}
	if !out.FPS.Equal(fps(10)) {
		t.Errorf("output fps = %s, want 10/1", out.FPS)
	}

	if err := e.RemoveChannel(c); err != nil {
		t.Fatal(err)
	}
	out, _ = e.OutputInfo()
	if out.Width != 20 || out.Height != 15 {
		t.Errorf("after remove = %dx%d, want 20x15", out.Width, out.Height)
	}
}

func TestDefaultFrameRate(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})
	addChannel(t, e, "a", ayuv(8, 8, video.Fraction{}))
	out, _ := e.OutputInfo()
	if !out.FPS.Equal(fps(25)) {
		t.Errorf("fps = %s, want 25/1", out.FPS)
	}
}

func TestOutputOverrides(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{Width: 64, Height: 48, FPS: video.Fraction{Num: 30000, Den: 1001}})
	addChannel(t, e, "a", ayuv(8, 8, fps(10)))
	out, _ := e.OutputInfo()
	if out.Width != 64 || out.Height != 48 || out.FPS.Num != 30000 {
		t.Errorf("output = %s, want overrides", out)
	}
}

func TestFormatNegotiation(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})
	a := addChannel(t, e, "a", ayuv(8, 8, fps(10)))

	b, _ := e.AddChannel("b")
	err := e.SetChannelFormat(b, video.NewInfo(video.FormatI420, 8, 8, fps(10)))
	if !errors.Is(err, ErrIncompatibleFormat) {
		t.Fatalf("mismatched format: err = %v, want ErrIncompatibleFormat", err)
	}
	var ce *ChannelError
	if !errors.As(err, &ce) || ce.Channel != "b" {
		t.Errorf("error %v should name channel b", err)
	}

	wide := ayuv(8, 8, fps(10))
	wide.PAR = video.Fraction{Num: 16, Den: 11}
	if err := e.SetChannelFormat(b, wide); !errors.Is(err, ErrIncompatibleFormat) {
		t.Errorf("mismatched PAR: err = %v, want ErrIncompatibleFormat", err)
	}

	// b stays unusable.
	err = e.Push(context.Background(), b, Buffer{PTS: 0, Duration: clock.Second})
	if !errors.Is(err, ErrNotNegotiated) {
		t.Errorf("push on rejected channel: err = %v, want ErrNotNegotiated", err)
	}

	// Changing an established format is refused; repeating it is fine.
	if err := e.SetChannelFormat(a, ayuv(16, 16, fps(10))); !errors.Is(err, ErrIncompatibleFormat) {
		t.Errorf("format change: err = %v, want ErrIncompatibleFormat", err)
	}
	if err := e.SetChannelFormat(a, ayuv(8, 8, fps(10))); err != nil {
		t.Errorf("same format again: %v", err)
	}

	c, _ := e.AddChannel("c")
	if err := e.SetChannelFormat(c, video.NewInfo(video.Format(200), 8, 8, fps(10))); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("unknown pixel format: err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestPushRequiresRunning(t *testing.T) {
	t.Parallel()
	e := New(Config{})
	id, _ := e.AddChannel("a")
	info := ayuv(4, 4, fps(10))
	if err := e.SetChannelFormat(id, info); err != nil {
		t.Fatal(err)
	}
	err := e.Push(context.Background(), id, Buffer{PTS: 0, Data: solid(info, 1)})
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("push while idle: err = %v, want ErrNotRunning", err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	e.Stop()
	if err := e.Start(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("restart after stop: err = %v, want ErrNotRunning", err)
	}
	if got := e.State(); got != StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

func TestPushShortBuffer(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{})
	id := addChannel(t, e, "a", ayuv(4, 4, fps(10)))
	err := e.Push(context.Background(), id, Buffer{PTS: 0, Data: make([]byte, 10)})
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestPushContextCancel(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{QueueDepth: 1})
	info := ayuv(4, 4, fps(10))
	a := addChannel(t, e, "a", info)
	addChannel(t, e, "b", info)

	push(t, e, a, info, 0, 100*clock.Millisecond, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Push(ctx, a, Buffer{PTS: 100 * clock.Millisecond, Data: solid(info, 2)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestEndOfStreamBeforeFormat(t *testing.T) {
	t.Parallel()
	e, sink := newTestEngine(t, Config{})
	id, err := e.AddChannel("idle")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.EndOfStream(id); err != nil {
		t.Fatalf("EndOfStream() = %v, want nil", err)
	}
	ci, _ := e.Channel(id)
	if !ci.EOS || !ci.Drained {
		t.Errorf("channel = %+v, want ended and drained", ci)
	}
	if len(sink.Frames()) != 0 {
		t.Error("no output expected without a negotiated format")
	}
}

func TestOversizedFormatRejected(t *testing.T) {
	t.Parallel()
	e, sink := newTestEngine(t, Config{})
	info := ayuv(4, 4, fps(10))
	a := addChannel(t, e, "a", info)
	push(t, e, a, info, 0, 100*clock.Millisecond, 50)

	b, _ := e.AddChannel("b")
	huge := ayuv(math.MaxInt32, math.MaxInt32, fps(10))
	if err := e.SetChannelFormat(b, huge); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("huge caps: err = %v, want ErrFrameTooLarge", err)
	}
	if ci, _ := e.Channel(b); ci.Format != nil {
		t.Errorf("rejected channel kept format %s", ci.Format)
	}
	if out, _ := e.OutputInfo(); out.Width != 4 || out.Height != 4 {
		t.Errorf("output = %dx%d, want 4x4", out.Width, out.Height)
	}

	// A far offset would push the canvas past the limit.
	c, _ := e.AddChannel("c")
	if err := e.SetPosition(c, math.MaxInt, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.SetChannelFormat(c, info); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("far offset: err = %v, want ErrFrameTooLarge", err)
	}

	if err := e.RemoveChannel(b); err != nil {
		t.Fatal(err)
	}
	if err := e.RemoveChannel(c); err != nil {
		t.Fatal(err)
	}
	if err := e.EndOfStream(a); err != nil {
		t.Fatal(err)
	}
	if e.State() != StateRunning || e.Err() != nil {
		t.Errorf("state = %s, err = %v, want running", e.State(), e.Err())
	}
	if len(sink.Frames()) != 1 || sink.eos != 1 {
		t.Errorf("frames = %d, eos = %d, want 1 and 1", len(sink.Frames()), sink.eos)
	}
}
