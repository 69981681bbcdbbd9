// Command pattern-push generates moving test pictures and publishes them to
// a mosaic server over SRT in the wire format, paced in real time.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	srt "github.com/zsiec/srtgo"

	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/video"
	"github.com/zsiec/mosaic/internal/wire"
)

type options struct {
	addr     string
	key      string
	info     video.Info
	gen      *Generator
	frames   int
	props    wire.Props
	hasProps bool
}

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:6000", "SRT server address")
	keyFlag := flag.String("key", "pattern", "Channel name (sent as stream ID live/<key>)")
	countFlag := flag.Int("count", 1, "Number of channels to push, named <key>-1..N when > 1")
	formatFlag := flag.String("format", "AYUV", "Pixel format")
	sizeFlag := flag.String("size", "320x240", "Picture size")
	fpsFlag := flag.String("fps", "25/1", "Frame rate")
	patternFlag := flag.String("pattern", PatternBars, "Pattern: bars, solid or checker")
	colorFlag := flag.String("color", "#2060c0", "Colour for solid and checker patterns (#rrggbb[aa])")
	speedFlag := flag.Int("speed", 2, "Horizontal motion in pixels per frame")
	framesFlag := flag.Int("frames", 0, "Frames to send before EOS (0 = until interrupted)")
	zFlag := flag.Int("z", -1, "Z-order to request (negative = leave to server)")
	xFlag := flag.Int("x", 0, "X position to request")
	yFlag := flag.Int("y", 0, "Y position to request")
	alphaFlag := flag.Float64("alpha", -1, "Alpha to request (negative = leave to server)")
	flag.Parse()

	opts, err := buildOptions(*formatFlag, *sizeFlag, *fpsFlag, *patternFlag, *colorFlag, *speedFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	opts.addr = *addrFlag
	opts.frames = *framesFlag

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "x", "y":
			opts.props.X, opts.props.Y = xFlag, yFlag
			opts.hasProps = true
		}
	})
	if *zFlag >= 0 {
		opts.props.Z = zFlag
		opts.hasProps = true
	}
	if *alphaFlag >= 0 {
		opts.props.Alpha = alphaFlag
		opts.hasProps = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Pushing %s %s to %s\n", opts.info, *patternFlag, opts.addr)

	var wg sync.WaitGroup
	for i := 1; i <= max(*countFlag, 1); i++ {
		o := opts
		o.key = *keyFlag
		if *countFlag > 1 {
			o.key = fmt.Sprintf("%s-%d", *keyFlag, i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			pushSingle(ctx, o)
		}()
		time.Sleep(200 * time.Millisecond)
	}
	wg.Wait()
}

func buildOptions(format, size, fps, pattern, col string, speed int) (options, error) {
	f, err := video.ParseFormat(format)
	if err != nil {
		return options{}, err
	}
	w, h, err := ParseSize(size)
	if err != nil {
		return options{}, err
	}
	rate, err := video.ParseFraction(fps)
	if err != nil || rate.IsZero() {
		return options{}, fmt.Errorf("bad fps %q", fps)
	}
	c, err := ParseColor(col)
	if err != nil {
		return options{}, err
	}
	info := video.NewInfo(f, w, h, rate)
	gen, err := NewGenerator(info, pattern, c, speed)
	if err != nil {
		return options{}, err
	}
	return options{info: info, gen: gen}, nil
}

func pushSingle(ctx context.Context, o options) {
	streamID := "live/" + o.key
	for ctx.Err() == nil {
		fmt.Printf("[%s] Connecting to SRT %s...\n", streamID, o.addr)

		cfg := srt.DefaultConfig()
		cfg.StreamID = streamID

		conn, err := srt.Dial(o.addr, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] SRT connect failed: %v, retrying...\n", streamID, err)
			sleep(ctx, time.Second)
			continue
		}

		fmt.Printf("[%s] Connected, streaming\n", streamID)
		writeErr := streamLoop(ctx, wire.NewChunkWriter(conn), o, streamID)
		conn.Close()

		if writeErr == nil {
			fmt.Printf("[%s] Done\n", streamID)
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] Connection lost: %v, reconnecting...\n", streamID, writeErr)
		sleep(ctx, time.Second)
	}
}

// streamLoop sends caps, optional properties, then frames paced against
// the wall clock. It returns nil after EOS or when ctx is cancelled.
func streamLoop(ctx context.Context, w io.Writer, o options, streamID string) error {
	enc := wire.NewEncoder(w)
	if err := enc.Encode(&wire.Caps{Info: o.info}); err != nil {
		return err
	}
	if o.hasProps {
		if err := enc.Encode(&o.props); err != nil {
			return err
		}
	}

	frameDur := clock.FramesToTime(1, o.info.FPS.Num, o.info.FPS.Den)
	start := time.Now()
	lastLog := start
	const logInterval = 10 * time.Second

	for n := 0; o.frames <= 0 || n < o.frames; n++ {
		if ctx.Err() != nil {
			return enc.Encode(&wire.EOS{})
		}
		pts := clock.FramesToTime(uint64(n), o.info.FPS.Num, o.info.FPS.Den)
		buf := &wire.Buffer{PTS: pts, Duration: frameDur, Data: o.gen.Frame(n)}
		if err := enc.Encode(buf); err != nil {
			return err
		}

		// Pace against the global clock so timing does not drift.
		if ahead := pts.Duration() - time.Since(start); ahead > 0 {
			sleep(ctx, ahead)
		}

		if time.Since(lastLog) >= logInterval {
			fmt.Printf("[%s] frame=%d pts=%s elapsed=%s\n",
				streamID, n, pts, time.Since(start).Truncate(time.Second))
			lastLog = time.Now()
		}
	}
	return enc.Encode(&wire.EOS{})
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
