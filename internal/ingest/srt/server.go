package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/mosaic/internal/ingest"
)

// srtReadBufferSize holds ten live-mode SRT payloads of 1316 bytes. Wire
// messages span many payloads, so a read never needs to align with one.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// Server accepts incoming SRT publish connections and registers them
// with the ingest registry.
type Server struct {
	log      *slog.Logger
	addr     string
	registry *ingest.Registry
}

// NewServer creates an SRT server that listens on addr and registers
// incoming streams with the given registry. If log is nil, slog.Default()
// is used.
func NewServer(addr string, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "srt-server"),
		addr:     addr,
		registry: registry,
	}
}

// Start begins accepting SRT publish connections. It blocks until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		// One publisher per channel name.
		if _, busy := s.registry.Get(channelName(req.StreamID)); busy {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		name := channelName(conn.StreamID())
		s.log.Info("publish", "channel", name, "remote", conn.RemoteAddr())

		go s.handleConnection(ctx, conn, name)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn *srtgo.Conn, name string) {
	defer conn.Close()

	stream, writer, err := s.registry.Register(name, ingest.FormatWire)
	if err != nil {
		s.log.Warn("rejecting connection", "channel", name, "error", err)
		return
	}
	stream.SetRemoteAddr(conn.RemoteAddr().String())

	copyStream(ctx, conn, stream, writer, s.log)

	stats := stream.IngestStats()
	s.registry.Unregister(name)
	s.log.Info("connection closed", "channel", name,
		"bytes", stats.BytesReceived, "reads", stats.ReadCount,
		"frames", stats.Frames, "uptime_ms", stats.UptimeMs)
}

// copyStream moves bytes from an SRT connection into the ingest pipe until
// either side fails or ctx is done.
func copyStream(ctx context.Context, conn io.Reader, stream *ingest.Stream, writer io.Writer, log *slog.Logger) {
	buf := make([]byte, srtReadBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("read error", "channel", stream.Key, "error", err)
			}
			return
		}
		stream.RecordRead(n)
		if _, err := writer.Write(buf[:n]); err != nil {
			log.Debug("pipe write error", "channel", stream.Key, "error", err)
			return
		}
	}
}

// channelName derives the mixer channel name from an SRT stream ID,
// accepting the common "live/<name>" publishing convention.
func channelName(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
