package distribution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/mosaic/internal/mixer"
	"github.com/zsiec/mosaic/internal/video"
	"github.com/zsiec/mosaic/internal/wire"
)

const (
	// srtLatencyNs is the SRT receiver latency used for egress connections.
	srtLatencyNs = 120_000_000
	dialTimeout  = 10 * time.Second
)

// WireWriter encodes output frames in the wire format. Caps are sent
// before the first frame and again whenever the output format changes.
type WireWriter struct {
	enc  *wire.Encoder
	caps video.Info
	sent bool
}

var _ FrameWriter = (*WireWriter)(nil)

// NewWireWriter returns a WireWriter encoding to w.
func NewWireWriter(w io.Writer) *WireWriter {
	return &WireWriter{enc: wire.NewEncoder(w)}
}

func (w *WireWriter) WriteFrame(f *mixer.OutputFrame) (int, error) {
	if !w.sent || f.Info != w.caps {
		if err := w.enc.Encode(&wire.Caps{Info: f.Info}); err != nil {
			return 0, fmt.Errorf("write caps: %w", err)
		}
		w.caps = f.Info
		w.sent = true
	}
	if err := w.enc.Encode(&wire.Buffer{PTS: f.PTS, Duration: f.Duration, Data: f.Data}); err != nil {
		return 0, fmt.Errorf("write buffer: %w", err)
	}
	return len(f.Data), nil
}

func (w *WireWriter) WriteEOS() error {
	return w.enc.Encode(&wire.EOS{})
}

// EgressRequest describes a downstream SRT listener to push output to.
type EgressRequest struct {
	Address  string `json:"address"`
	StreamID string `json:"streamId,omitempty"`
}

type activeEgress struct {
	req    EgressRequest
	sub    *QueuedSubscriber
	cancel context.CancelFunc
}

// Egress manages SRT caller connections that push the relay's output to
// remote listeners, one QueuedSubscriber each.
type Egress struct {
	log       *slog.Logger
	relay     *Relay
	queueSize int
	dial      func(ctx context.Context, req EgressRequest) (io.WriteCloser, error)

	mu     sync.Mutex
	active map[string]*activeEgress
}

// NewEgress creates an Egress feeding from relay. If log is nil,
// slog.Default() is used.
func NewEgress(relay *Relay, queueSize int, log *slog.Logger) *Egress {
	if log == nil {
		log = slog.Default()
	}
	return &Egress{
		log:       log.With("component", "srt-egress"),
		relay:     relay,
		queueSize: queueSize,
		dial:      dialSRT,
		active:    make(map[string]*activeEgress),
	}
}

// Start dials the remote listener synchronously (with a timeout) and, on
// success, streams output to it in the background until ctx is done, the
// connection fails, the output ends or Stop is called.
func (e *Egress) Start(ctx context.Context, req EgressRequest) error {
	if req.Address == "" {
		return fmt.Errorf("address is required")
	}
	if req.StreamID == "" {
		req.StreamID = "mosaic"
	}
	id := req.Address + "/" + req.StreamID

	e.mu.Lock()
	if _, exists := e.active[id]; exists {
		e.mu.Unlock()
		return fmt.Errorf("egress already active for %q", id)
	}
	e.mu.Unlock()

	e.log.Info("dialing", "address", req.Address, "stream_id", req.StreamID)
	conn, err := e.dial(ctx, req)
	if err != nil {
		return err
	}

	egCtx, cancel := context.WithCancel(ctx)
	sub := NewQueuedSubscriber(id, "srt", e.queueSize, NewWireWriter(wire.NewChunkWriter(conn)), e.log)

	e.mu.Lock()
	if _, exists := e.active[id]; exists {
		e.mu.Unlock()
		cancel()
		conn.Close()
		return fmt.Errorf("egress already active for %q", id)
	}
	e.active[id] = &activeEgress{req: req, sub: sub, cancel: cancel}
	e.mu.Unlock()

	e.relay.AddSubscriber(sub)
	e.log.Info("connected", "address", req.Address, "stream_id", req.StreamID)

	go func() {
		defer func() {
			cancel()
			conn.Close()
			e.relay.RemoveSubscriber(id)
			e.mu.Lock()
			delete(e.active, id)
			e.mu.Unlock()
			st := sub.Stats()
			e.log.Info("egress ended", "id", id, "sent", st.Sent, "dropped", st.Dropped, "bytes", st.BytesSent)
		}()
		if err := sub.Run(egCtx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Warn("egress failed", "id", id, "error", err)
		}
	}()
	return nil
}

// Stop ends the egress with the given ID.
func (e *Egress) Stop(id string) error {
	e.mu.Lock()
	ae, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active egress %q", id)
	}
	ae.cancel()
	return nil
}

// EgressInfo describes one active egress.
type EgressInfo struct {
	ID string `json:"id"`
	EgressRequest
	Stats SubscriberStats `json:"stats"`
}

// Active lists the running egress connections.
func (e *Egress) Active() []EgressInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EgressInfo, 0, len(e.active))
	for id, ae := range e.active {
		out = append(out, EgressInfo{ID: id, EgressRequest: ae.req, Stats: ae.sub.Stats()})
	}
	return out
}

func dialSRT(ctx context.Context, req EgressRequest) (io.WriteCloser, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = req.StreamID

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(req.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial failed: %w", res.err)
		}
		return res.conn, nil
	case <-timer.C:
		// Close any connection that completes after we gave up.
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
