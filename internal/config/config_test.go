package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zsiec/mosaic/internal/mixer"
	"github.com/zsiec/mosaic/internal/video"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("MOSAIC_TEST_STR", "hello")
	t.Setenv("MOSAIC_TEST_INT", "42")
	t.Setenv("MOSAIC_TEST_BADINT", "forty")
	t.Setenv("MOSAIC_TEST_DUR", "250ms")
	t.Setenv("MOSAIC_TEST_BOOL", "true")

	if got := GetEnv("MOSAIC_TEST_STR", "x"); got != "hello" {
		t.Errorf("GetEnv = %q, want hello", got)
	}
	if got := GetEnv("MOSAIC_TEST_UNSET", "x"); got != "x" {
		t.Errorf("GetEnv unset = %q, want x", got)
	}
	if got := GetEnvInt("MOSAIC_TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvInt = %d, want 42", got)
	}
	if got := GetEnvInt("MOSAIC_TEST_BADINT", 7); got != 7 {
		t.Errorf("GetEnvInt invalid = %d, want fallback 7", got)
	}
	if got := GetEnvDuration("MOSAIC_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("GetEnvDuration = %s, want 250ms", got)
	}
	if got := GetEnvBool("MOSAIC_TEST_BOOL", false); !got {
		t.Error("GetEnvBool = false, want true")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("MOSAIC_TEST_DOTENV=from-file\nMOSAIC_TEST_KEEP=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MOSAIC_TEST_KEEP", "from-env")
	// Registers cleanup so the loaded value does not leak into other tests.
	t.Setenv("MOSAIC_TEST_DOTENV", "")
	os.Unsetenv("MOSAIC_TEST_DOTENV")

	if err := Load(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("MOSAIC_TEST_DOTENV"); got != "from-file" {
		t.Errorf("MOSAIC_TEST_DOTENV = %q, want from-file", got)
	}
	if got := os.Getenv("MOSAIC_TEST_KEEP"); got != "from-env" {
		t.Errorf("MOSAIC_TEST_KEEP = %q, want from-env (existing values win)", got)
	}
	if err := Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("expected error for missing file")
	}
}

const sampleLayout = `
background: black
queue_depth: 4
output:
  width: 1280
  height: 720
  fps: 30000/1001
channels:
  - name: cam1
    z: 0
  - name: cam2
    z: 1
    x: 960
    y: 540
    alpha: 0.8
`

func TestParseLayout(t *testing.T) {
	t.Parallel()
	l, err := ParseLayout([]byte(sampleLayout))
	if err != nil {
		t.Fatal(err)
	}

	cfg := l.EngineConfig()
	if cfg.Background != mixer.BackgroundBlack {
		t.Errorf("background = %s, want black", cfg.Background)
	}
	if cfg.QueueDepth != 4 || cfg.Width != 1280 || cfg.Height != 720 {
		t.Errorf("config = %+v", cfg)
	}
	if want := (video.Fraction{Num: 30000, Den: 1001}); cfg.FPS != want {
		t.Errorf("fps = %v, want %v", cfg.FPS, want)
	}

	ch, ok := l.Channel("cam2")
	if !ok {
		t.Fatal("cam2 preset missing")
	}
	p := ch.Props()
	if p.Z == nil || *p.Z != 1 || p.X == nil || *p.X != 960 || p.Alpha == nil || *p.Alpha != 0.8 {
		t.Errorf("cam2 props = %+v", p)
	}
	if cam1, _ := l.Channel("cam1"); cam1.X != nil || cam1.Alpha != nil {
		t.Errorf("cam1 should only set z: %+v", cam1)
	}
	if _, ok := l.Channel("cam3"); ok {
		t.Error("unexpected preset for cam3")
	}
}

func TestParseLayoutDefaults(t *testing.T) {
	t.Parallel()
	l, err := ParseLayout([]byte("channels: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := l.EngineConfig()
	if cfg.QueueDepth != mixer.DefaultQueueDepth {
		t.Errorf("queue depth = %d, want %d", cfg.QueueDepth, mixer.DefaultQueueDepth)
	}
	if cfg.Background != mixer.BackgroundChecker {
		t.Errorf("background = %s, want checker", cfg.Background)
	}
	if !cfg.FPS.IsZero() || cfg.Width != 0 {
		t.Errorf("output should not be fixed: %+v", cfg)
	}
}

func TestParseLayoutErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad background", "background: purple\n", "background"},
		{"negative depth", "queue_depth: -1\n", "queue_depth"},
		{"bad fps", "output:\n  fps: fast\n", "fps"},
		{"oversized output", "output:\n  width: 100000\n", "exceeds"},
		{"unnamed channel", "channels:\n  - z: 1\n", "no name"},
		{"duplicate", "channels:\n  - name: a\n  - name: a\n", "duplicate"},
		{"alpha range", "channels:\n  - name: a\n    alpha: 1.5\n", "alpha"},
	}
	for _, tt := range tests {
		_, err := ParseLayout([]byte(tt.yaml))
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error %q does not mention %q", tt.name, err, tt.want)
		}
	}
}

func TestLoadLayoutExpandsEnv(t *testing.T) {
	t.Setenv("MOSAIC_TEST_WIDTH", "640")
	path := filepath.Join(t.TempDir(), "layout.yaml")
	if err := os.WriteFile(path, []byte("output:\n  width: ${MOSAIC_TEST_WIDTH}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := LoadLayout(path)
	if err != nil {
		t.Fatal(err)
	}
	if l.Output.Width != 640 {
		t.Errorf("width = %d, want 640", l.Output.Width)
	}
}
