package srt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/mosaic/internal/ingest"
)

// dialTimeout bounds the SRT handshake of a pull.
const dialTimeout = 10 * time.Second

// Pull errors.
var (
	ErrInvalidPull = errors.New("srt: pull needs an address and a channel")
	ErrChannelBusy = errors.New("srt: channel already has a source")
	ErrNoPull      = errors.New("srt: no pull for channel")
)

// PullRequest asks for a mixer channel to be fed from a remote SRT
// listener. StreamID defaults to "live/<channel>".
type PullRequest struct {
	Address  string `json:"address"`
	Channel  string `json:"channel"`
	StreamID string `json:"streamId,omitempty"`
}

// Validate reports ErrInvalidPull when a required field is missing.
func (r PullRequest) Validate() error {
	if r.Address == "" || r.Channel == "" {
		return ErrInvalidPull
	}
	return nil
}

func (r PullRequest) streamID() string {
	if r.StreamID != "" {
		return r.StreamID
	}
	return "live/" + r.Channel
}

// pull is one reserved or running channel source. cancel is nil while the
// handshake is still in progress.
type pull struct {
	req    PullRequest
	cancel context.CancelFunc
}

// Caller feeds mixer channels from remote SRT listeners in caller mode.
// Each channel has at most one pull, and a channel already fed by a
// publisher cannot be pulled.
type Caller struct {
	log      *slog.Logger
	registry *ingest.Registry

	mu    sync.Mutex
	pulls map[string]*pull
}

// NewCaller creates a Caller that hands pulled connections to registry.
// If log is nil, slog.Default() is used.
func NewCaller(registry *ingest.Registry, log *slog.Logger) *Caller {
	if log == nil {
		log = slog.Default()
	}
	return &Caller{
		log:      log.With("component", "srt-caller"),
		registry: registry,
		pulls:    make(map[string]*pull),
	}
}

// Pull connects to req.Address and, once the handshake succeeds, feeds the
// connection into the channel named req.Channel until the remote side
// hangs up, Stop is called or ctx is done. Pull returns after the
// handshake; a failed or timed out dial is returned as an error.
func (c *Caller) Pull(ctx context.Context, req PullRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := c.reserve(req); err != nil {
		return err
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = req.streamID()

	log := c.log.With("channel", req.Channel, "address", req.Address)
	log.Info("dialing", "stream_id", cfg.StreamID)

	conn, err := dial(ctx, req.Address, cfg)
	if err != nil {
		c.release(req.Channel)
		return err
	}

	stream, w, err := c.registry.Register(req.Channel, ingest.FormatWire)
	if err != nil {
		c.release(req.Channel)
		conn.Close()
		return fmt.Errorf("%w: %q: %v", ErrChannelBusy, req.Channel, err)
	}
	stream.SetRemoteAddr(req.Address)

	pullCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.pulls[req.Channel].cancel = cancel
	c.mu.Unlock()

	// Closing the connection is what unblocks the read loop.
	stop := context.AfterFunc(pullCtx, func() { conn.Close() })

	go func() {
		defer func() {
			stop()
			cancel()
			conn.Close()
			stats := stream.IngestStats()
			c.registry.Unregister(req.Channel)
			c.release(req.Channel)
			log.Info("pull ended",
				"bytes", stats.BytesReceived,
				"frames", stats.Frames,
				"uptime_ms", stats.UptimeMs)
		}()
		copyStream(pullCtx, conn, stream, w, log)
	}()

	log.Info("pulling")
	return nil
}

// reserve claims req.Channel for the duration of the handshake so that
// concurrent pulls of the same channel fail fast.
func (c *Caller) reserve(req PullRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pulls[req.Channel]; ok {
		return fmt.Errorf("%w: %q is being pulled", ErrChannelBusy, req.Channel)
	}
	if _, ok := c.registry.Get(req.Channel); ok {
		return fmt.Errorf("%w: %q is being published", ErrChannelBusy, req.Channel)
	}
	c.pulls[req.Channel] = &pull{req: req}
	return nil
}

func (c *Caller) release(channel string) {
	c.mu.Lock()
	delete(c.pulls, channel)
	c.mu.Unlock()
}

// dial runs the blocking SRT handshake under a timeout. A connection that
// completes after the caller gave up is closed.
func dial(ctx context.Context, addr string, cfg srtgo.Config) (*srtgo.Conn, error) {
	type result struct {
		conn *srtgo.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := srtgo.Dial(addr, cfg)
		done <- result{conn, err}
	}()

	abandon := func() {
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("srt: dial %s: %w", addr, res.err)
		}
		return res.conn, nil
	case <-timer.C:
		abandon()
		return nil, fmt.Errorf("srt: dial %s: no handshake within %s", addr, dialTimeout)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

// Stop disconnects the pull feeding channel. The channel leaves the mixer
// once its feed has drained.
func (c *Caller) Stop(channel string) error {
	var cancel context.CancelFunc
	c.mu.Lock()
	if p, ok := c.pulls[channel]; ok {
		cancel = p.cancel
	}
	c.mu.Unlock()
	if cancel == nil {
		return fmt.Errorf("%w %q", ErrNoPull, channel)
	}
	cancel()
	return nil
}

// ActivePulls lists connected pulls by channel name.
func (c *Caller) ActivePulls() []PullRequest {
	c.mu.Lock()
	out := make([]PullRequest, 0, len(c.pulls))
	for _, p := range c.pulls {
		if p.cancel != nil {
			out = append(out, p.req)
		}
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
