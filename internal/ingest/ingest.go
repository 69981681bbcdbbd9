// Package ingest manages active input connections, coupling transport byte
// readers with metadata and lifecycle signaling, and feeds the decoded
// frames into mixer channels.
package ingest

import (
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// InputFormat identifies the framing of an ingested byte stream.
type InputFormat int

// Supported ingest formats.
const (
	// FormatWire is the raw-frame wire protocol of package wire.
	FormatWire InputFormat = iota
)

func (f InputFormat) String() string {
	if f == FormatWire {
		return "wire"
	}
	return "unknown"
}

// ErrDuplicateStream is returned when a key is already being ingested.
var ErrDuplicateStream = errors.New("ingest: stream already registered")

// IngestStats captures connection-level metrics for an ingest stream,
// exposed via the API for monitoring source health.
type IngestStats struct {
	Key           string `json:"key"`
	Format        string `json:"format"`
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	Frames        int64  `json:"frames"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stream represents an active ingest connection. Bytes written to the
// internal pipe by the transport are read by the feeder.
type Stream struct {
	Key       string
	StartedAt time.Time
	Format    InputFormat
	input     *io.PipeReader
	pw        *io.PipeWriter
	done      chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	frames        atomic.Int64
	remoteAddr    atomic.Value
}

// RecordRead increments the byte and read counters, called by the
// transport after each successful socket read.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// RecordFrame counts one frame handed to the mixer.
func (s *Stream) RecordFrame() {
	s.frames.Add(1)
}

// SetRemoteAddr stores the remote address of the connection for
// diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Done is closed when the stream is unregistered.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// CloseInput aborts the reading side. The transport's next write returns
// err (io.ErrClosedPipe if nil) and its connection is torn down.
func (s *Stream) CloseInput(err error) {
	s.input.CloseWithError(err)
}

// IngestStats returns a snapshot of connection metrics.
func (s *Stream) IngestStats() IngestStats {
	addr, _ := s.remoteAddr.Load().(string)
	return IngestStats{
		Key:           s.Key,
		Format:        s.Format.String(),
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		Frames:        s.frames.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks active ingest streams by key and dispatches new streams
// to the onStream callback. It is the rendezvous point between the
// transports and the mixer.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	onStream func(s *Stream, input io.Reader)
}

// NewRegistry creates a Registry. The onStream callback is invoked
// asynchronously whenever a new stream is registered.
func NewRegistry(onStream func(s *Stream, input io.Reader)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register creates a new ingest stream with the given key and format,
// returning the Stream and a Writer that the transport should write into.
// It fails with ErrDuplicateStream if key is already active.
func (r *Registry) Register(key string, format InputFormat) (*Stream, io.Writer, error) {
	pr, pw := io.Pipe()

	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Format:    format,
		input:     pr,
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if _, exists := r.streams[key]; exists {
		r.mu.Unlock()
		return nil, nil, ErrDuplicateStream
	}
	r.streams[key] = stream
	r.mu.Unlock()

	if r.onStream != nil {
		go r.onStream(stream, pr)
	}

	return stream, pw, nil
}

// Unregister removes a stream by key, closing its pipe and signaling Done.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

// Get returns the Stream for the given key, or false if not found.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// List returns stats for every active stream, sorted by key.
func (r *Registry) List() []IngestStats {
	r.mu.RLock()
	out := make([]IngestStats, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s.IngestStats())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
