package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/mixer"
	"github.com/zsiec/mosaic/internal/video"
	"github.com/zsiec/mosaic/internal/wire"
)

// Mixer is the part of *mixer.Engine that a feed drives.
type Mixer interface {
	AddChannel(name string) (int, error)
	RemoveChannel(id int) error
	Update(id int, p mixer.Props) error
	SetChannelFormat(id int, info video.Info) error
	SetChannelSegment(id int, seg clock.Segment) error
	Push(ctx context.Context, id int, buf mixer.Buffer) error
	EndOfStream(id int) error
	Channel(id int) (mixer.ChannelInfo, error)
}

var _ Mixer = (*mixer.Engine)(nil)

// DefaultLinger bounds how long an ended channel stays attached so that
// its queued frames can still be composited.
const DefaultLinger = 2 * time.Second

// FeedConfig tunes Feed.
type FeedConfig struct {
	// Presets returns initial properties for a channel by name.
	Presets func(name string) (mixer.Props, bool)
	// Linger overrides DefaultLinger.
	Linger time.Duration
	Logger *slog.Logger
}

// Feed attaches s to m as a channel named after its key and drives it from
// the wire-format messages read from input until the stream ends, the
// producer sends EOS or ctx is done. The channel is removed on return and
// the input is closed so the transport stops writing.
func Feed(ctx context.Context, m Mixer, s *Stream, input io.Reader, cfg FeedConfig) error {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "feed", "channel", s.Key)
	linger := cfg.Linger
	if linger <= 0 {
		linger = DefaultLinger
	}

	id, err := m.AddChannel(s.Key)
	if err != nil {
		s.CloseInput(err)
		return fmt.Errorf("add channel %q: %w", s.Key, err)
	}
	if cfg.Presets != nil {
		if p, ok := cfg.Presets(s.Key); ok {
			if err := m.Update(id, p); err != nil {
				log.Warn("preset rejected", "error", err)
			}
		}
	}

	ended := false
	defer func() {
		s.CloseInput(nil)
		if ended {
			waitDrained(ctx, m, id, linger)
		} else if err := m.EndOfStream(id); err != nil && !errors.Is(err, mixer.ErrEOS) {
			log.Debug("end of stream on disconnect", "error", err)
		}
		if err := m.RemoveChannel(id); err != nil {
			log.Debug("remove channel", "error", err)
		}
	}()

	dec := wire.NewDecoder(input)
	for {
		msg, err := dec.Decode()
		if err == io.EOF {
			log.Info("input closed without EOS")
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}

		switch msg := msg.(type) {
		case *wire.Caps:
			if err := m.SetChannelFormat(id, msg.Info); err != nil {
				return fmt.Errorf("caps %s: %w", msg.Info, err)
			}
			log.Info("format negotiated", "format", msg.Info)

		case *wire.Segment:
			if err := m.SetChannelSegment(id, msg.Segment); err != nil {
				return fmt.Errorf("segment: %w", err)
			}

		case *wire.Buffer:
			err := m.Push(ctx, id, mixer.Buffer{PTS: msg.PTS, Duration: msg.Duration, Data: msg.Data})
			switch {
			case err == nil:
				s.RecordFrame()
			case errors.Is(err, mixer.ErrFlushing):
				log.Debug("buffer discarded by flush", "pts", msg.PTS)
			case errors.Is(err, mixer.ErrEOS):
				log.Info("output ended, closing input")
				return nil
			default:
				return fmt.Errorf("push: %w", err)
			}

		case *wire.EOS:
			if err := m.EndOfStream(id); err != nil && !errors.Is(err, mixer.ErrEOS) {
				return fmt.Errorf("end of stream: %w", err)
			}
			ended = true
			log.Info("end of stream", "frames", s.IngestStats().Frames)
			return nil

		case *wire.Props:
			p := mixer.Props{Z: msg.Z, X: msg.X, Y: msg.Y, Alpha: msg.Alpha}
			if err := m.Update(id, p); err != nil {
				log.Warn("props rejected", "error", err)
			}
		}
	}
}

// waitDrained polls until the channel has nothing left to composite.
func waitDrained(ctx context.Context, m Mixer, id int, linger time.Duration) {
	deadline := time.NewTimer(linger)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		ci, err := m.Channel(id)
		if err != nil || ci.Drained {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}
