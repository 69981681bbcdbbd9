package ingest

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, w, err := r.Register("test-stream", FormatWire)
	if err != nil {
		t.Fatal(err)
	}

	if stream.Key != "test-stream" {
		t.Fatalf("got key %q, want %q", stream.Key, "test-stream")
	}
	if stream.Format != FormatWire {
		t.Fatalf("got format %d, want %d", stream.Format, FormatWire)
	}
	if w == nil {
		t.Fatal("writer is nil")
	}

	got, ok := r.Get("test-stream")
	if !ok {
		t.Fatal("Get returned false for registered stream")
	}
	if got != stream {
		t.Fatal("Get returned different stream pointer")
	}
}

func TestRegistryGetMissing(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	_, ok := r.Get("nonexistent")
	if ok {
		t.Fatal("Get returned true for missing stream")
	}
}

func TestRegistryUnregister(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	r.Register("stream1", FormatWire)

	r.Unregister("stream1")

	_, ok := r.Get("stream1")
	if ok {
		t.Fatal("stream still found after Unregister")
	}
}

func TestRegistryUnregisterMissing(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	// Should not panic.
	r.Unregister("nonexistent")
}

func TestRegistryUnregisterClosesPipe(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, _, _ := r.Register("stream1", FormatWire)
	r.Unregister("stream1")

	// Reading from the input side should return EOF after pipe is closed.
	buf := make([]byte, 1)
	_, err := stream.input.Read(buf)
	if err != io.EOF {
		t.Fatalf("expected EOF after Unregister, got %v", err)
	}
}

func TestRegistryOnStreamCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var calledKey string
	var calledFormat InputFormat

	done := make(chan struct{})
	r := NewRegistry(func(s *Stream, _ io.Reader) {
		mu.Lock()
		calledKey = s.Key
		calledFormat = s.Format
		mu.Unlock()
		close(done)
	})

	r.Register("cb-stream", FormatWire)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onStream callback not called within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if calledKey != "cb-stream" {
		t.Fatalf("callback got key %q, want %q", calledKey, "cb-stream")
	}
	if calledFormat != FormatWire {
		t.Fatalf("callback got format %d, want %d", calledFormat, FormatWire)
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	if _, _, err := r.Register("cam", FormatWire); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Register("cam", FormatWire); !errors.Is(err, ErrDuplicateStream) {
		t.Fatalf("err = %v, want ErrDuplicateStream", err)
	}
	r.Unregister("cam")
	if _, _, err := r.Register("cam", FormatWire); err != nil {
		t.Fatalf("re-register after Unregister: %v", err)
	}
}

func TestRegistryList(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	r.Register("b", FormatWire)
	r.Register("a", FormatWire)

	list := r.List()
	if len(list) != 2 || list[0].Key != "a" || list[1].Key != "b" {
		t.Fatalf("List() = %+v, want a then b", list)
	}
	if list[0].Format != "wire" {
		t.Errorf("format = %q, want wire", list[0].Format)
	}
}

func TestStreamCloseInput(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, w, _ := r.Register("s1", FormatWire)
	stream.CloseInput(nil)
	if _, err := w.Write([]byte{1}); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("write after CloseInput: err = %v, want io.ErrClosedPipe", err)
	}
	select {
	case <-stream.Done():
		t.Fatal("Done closed before Unregister")
	default:
	}
	r.Unregister("s1")
	<-stream.Done()
}

func TestStreamRecordRead(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, _, _ := r.Register("s1", FormatWire)

	stream.RecordRead(100)
	stream.RecordRead(200)

	stats := stream.IngestStats()
	if stats.BytesReceived != 300 {
		t.Fatalf("BytesReceived = %d, want 300", stats.BytesReceived)
	}
	if stats.ReadCount != 2 {
		t.Fatalf("ReadCount = %d, want 2", stats.ReadCount)
	}

	stream.RecordFrame()
	if got := stream.IngestStats().Frames; got != 1 {
		t.Fatalf("Frames = %d, want 1", got)
	}
}

func TestStreamSetRemoteAddr(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, _, _ := r.Register("s1", FormatWire)

	stream.SetRemoteAddr("192.168.1.1:5000")

	stats := stream.IngestStats()
	if stats.RemoteAddr != "192.168.1.1:5000" {
		t.Fatalf("RemoteAddr = %q, want %q", stats.RemoteAddr, "192.168.1.1:5000")
	}
}

func TestStreamIngestStatsUptime(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	stream, _, _ := r.Register("s1", FormatWire)

	// Sleep briefly to ensure uptime is measurable.
	time.Sleep(10 * time.Millisecond)

	stats := stream.IngestStats()
	if stats.UptimeMs < 10 {
		t.Fatalf("UptimeMs = %d, expected at least 10", stats.UptimeMs)
	}
	if stats.ConnectedAt == 0 {
		t.Fatal("ConnectedAt is zero")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "stream-" + string(rune('A'+n%26))
			if _, _, err := r.Register(key, FormatWire); err == nil {
				r.Get(key)
				r.List()
				r.Unregister(key)
			}
		}(i)
	}

	wg.Wait()
}
