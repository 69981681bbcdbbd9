package mixer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/zsiec/mosaic/internal/video"
)

// Background selects what is painted under the inputs.
type Background int

// Supported backgrounds.
const (
	BackgroundChecker Background = iota
	BackgroundBlack
	BackgroundWhite
	BackgroundTransparent
)

var backgroundNames = [...]string{
	BackgroundChecker:     "checker",
	BackgroundBlack:       "black",
	BackgroundWhite:       "white",
	BackgroundTransparent: "transparent",
}

func (b Background) String() string {
	if b >= 0 && int(b) < len(backgroundNames) {
		return backgroundNames[b]
	}
	return fmt.Sprintf("Background(%d)", int(b))
}

// ParseBackground maps a background name to its value.
func ParseBackground(s string) (Background, error) {
	for i, name := range backgroundNames {
		if strings.EqualFold(name, s) {
			return Background(i), nil
		}
	}
	return BackgroundChecker, fmt.Errorf("mixer: unknown background %q", s)
}

// MarshalText encodes the background by name.
func (b Background) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a background name.
func (b *Background) UnmarshalText(text []byte) error {
	v, err := ParseBackground(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// DefaultQueueDepth is the number of buffers a channel accepts before Push
// blocks.
const DefaultQueueDepth = 2

// Allocator returns a zeroed buffer of size bytes for an output frame.
type Allocator func(size int) ([]byte, error)

// Config holds the engine configuration. The zero value is usable: a
// checkerboard background with output geometry derived from the inputs.
type Config struct {
	Background Background

	// QueueDepth bounds the per-channel input queue. Zero means
	// DefaultQueueDepth.
	QueueDepth int

	// Width, Height and FPS fix the output geometry when non-zero instead
	// of deriving it from the channels.
	Width  int
	Height int
	FPS    video.Fraction

	Sink      Sink
	Observer  Observer
	Allocator Allocator
	Logger    *slog.Logger
}

func defaultAllocator(size int) ([]byte, error) {
	return make([]byte, size), nil
}
