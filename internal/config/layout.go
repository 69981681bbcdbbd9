package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/mosaic/internal/mixer"
	"github.com/zsiec/mosaic/internal/video"
)

// Layout is the compositing setup read from a YAML file:
//
//	background: black
//	queue_depth: 4
//	output:
//	  width: 1280
//	  height: 720
//	  fps: 30000/1001
//	channels:
//	  - name: cam1
//	    z: 0
//	  - name: cam2
//	    z: 1
//	    x: 960
//	    y: 540
//	    alpha: 0.8
type Layout struct {
	Background mixer.Background `yaml:"background"`
	QueueDepth int              `yaml:"queue_depth"`
	Output     OutputLayout     `yaml:"output"`
	Channels   []ChannelLayout  `yaml:"channels"`
}

// OutputLayout fixes output properties that would otherwise be derived
// from the inputs. Zero values are not fixed.
type OutputLayout struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    string `yaml:"fps"`
}

// ChannelLayout presets the properties of the channel with the given name
// when it connects.
type ChannelLayout struct {
	Name  string   `yaml:"name"`
	Z     *int     `yaml:"z"`
	X     *int     `yaml:"x"`
	Y     *int     `yaml:"y"`
	Alpha *float64 `yaml:"alpha"`
}

// Props returns the preset as a channel update.
func (c ChannelLayout) Props() mixer.Props {
	return mixer.Props{Z: c.Z, X: c.X, Y: c.Y, Alpha: c.Alpha}
}

// LoadLayout reads a layout file. Environment variables in the file are
// expanded before parsing.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout parses and validates layout YAML.
func ParseLayout(data []byte) (*Layout, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	if l.QueueDepth == 0 {
		l.QueueDepth = mixer.DefaultQueueDepth
	}
	if l.QueueDepth < 0 {
		return nil, fmt.Errorf("layout: queue_depth %d must be positive", l.QueueDepth)
	}
	if l.Output.Width < 0 || l.Output.Height < 0 {
		return nil, fmt.Errorf("layout: negative output size %dx%d", l.Output.Width, l.Output.Height)
	}
	if l.Output.Width > video.MaxDimension || l.Output.Height > video.MaxDimension {
		return nil, fmt.Errorf("layout: output size %dx%d exceeds %d", l.Output.Width, l.Output.Height, video.MaxDimension)
	}
	if l.Output.FPS != "" {
		if _, err := video.ParseFraction(l.Output.FPS); err != nil {
			return nil, fmt.Errorf("layout: output fps: %w", err)
		}
	}

	seen := make(map[string]bool, len(l.Channels))
	for i, ch := range l.Channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("layout: channel %d has no name", i)
		}
		if seen[ch.Name] {
			return nil, fmt.Errorf("layout: duplicate channel %q", ch.Name)
		}
		seen[ch.Name] = true
		if ch.Alpha != nil && (*ch.Alpha < 0 || *ch.Alpha > 1) {
			return nil, fmt.Errorf("layout: channel %q alpha %v outside [0, 1]", ch.Name, *ch.Alpha)
		}
	}
	return &l, nil
}

// Channel returns the preset for name.
func (l *Layout) Channel(name string) (ChannelLayout, bool) {
	for _, ch := range l.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelLayout{}, false
}

// EngineConfig returns the mixer settings described by the layout. Sink,
// observer and logger are left for the caller.
func (l *Layout) EngineConfig() mixer.Config {
	cfg := mixer.Config{
		Background: l.Background,
		QueueDepth: l.QueueDepth,
		Width:      l.Output.Width,
		Height:     l.Output.Height,
	}
	if l.Output.FPS != "" {
		cfg.FPS, _ = video.ParseFraction(l.Output.FPS)
	}
	return cfg
}
