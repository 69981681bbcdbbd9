package srt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/zsiec/mosaic/internal/ingest"
)

func TestChannelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		streamID string
		want     string
	}{
		{name: "simple name", streamID: "camera1", want: "camera1"},
		{name: "leading slash", streamID: "/camera1", want: "camera1"},
		{name: "live prefix", streamID: "live/camera1", want: "camera1"},
		{name: "slash and live prefix", streamID: "/live/camera1", want: "camera1"},
		{name: "empty returns default", streamID: "", want: "default"},
		{name: "just slash returns default", streamID: "/", want: "default"},
		{name: "just live/ returns default", streamID: "live/", want: "default"},
		{name: "nested path preserved", streamID: "studio/camera1", want: "studio/camera1"},
		{name: "live in name preserved", streamID: "liveshow", want: "liveshow"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := channelName(tc.streamID)
			if got != tc.want {
				t.Errorf("channelName(%q) = %q, want %q", tc.streamID, got, tc.want)
			}
		})
	}
}

func TestCopyStream(t *testing.T) {
	t.Parallel()

	var got bytes.Buffer
	done := make(chan struct{})
	r := ingest.NewRegistry(func(s *ingest.Stream, input io.Reader) {
		io.Copy(&got, input)
		close(done)
	})
	stream, w, err := r.Register("cam", ingest.FormatWire)
	if err != nil {
		t.Fatal(err)
	}

	src := strings.NewReader(strings.Repeat("x", srtReadBufferSize+10))
	copyStream(context.Background(), src, stream, w, slog.Default())
	r.Unregister("cam")
	<-done

	if got.Len() != srtReadBufferSize+10 {
		t.Fatalf("copied %d bytes, want %d", got.Len(), srtReadBufferSize+10)
	}
	st := stream.IngestStats()
	if st.BytesReceived != int64(srtReadBufferSize+10) || st.ReadCount != 2 {
		t.Errorf("stats = %+v, want %d bytes over 2 reads", st, srtReadBufferSize+10)
	}
}

func TestCopyStreamStopsWhenInputClosed(t *testing.T) {
	t.Parallel()

	r := ingest.NewRegistry(nil)
	stream, w, _ := r.Register("cam", ingest.FormatWire)
	stream.CloseInput(errors.New("rejected"))

	src := strings.NewReader("payload")
	copyStream(context.Background(), src, stream, w, slog.Default())
	if got := stream.IngestStats().ReadCount; got != 1 {
		t.Errorf("ReadCount = %d, want 1 (stopped after failed write)", got)
	}
}

func TestCallerValidation(t *testing.T) {
	t.Parallel()

	c := NewCaller(ingest.NewRegistry(nil), nil)
	if err := c.Pull(context.Background(), PullRequest{Channel: "cam"}); !errors.Is(err, ErrInvalidPull) {
		t.Errorf("without address: err = %v, want ErrInvalidPull", err)
	}
	if err := c.Pull(context.Background(), PullRequest{Address: "127.0.0.1:1"}); !errors.Is(err, ErrInvalidPull) {
		t.Errorf("without channel: err = %v, want ErrInvalidPull", err)
	}
	if err := c.Stop("cam"); !errors.Is(err, ErrNoPull) {
		t.Errorf("stop unknown: err = %v, want ErrNoPull", err)
	}
	if n := len(c.ActivePulls()); n != 0 {
		t.Errorf("ActivePulls() = %d, want 0", n)
	}
}

func TestCallerRefusesPublishedChannel(t *testing.T) {
	t.Parallel()

	reg := ingest.NewRegistry(nil)
	if _, _, err := reg.Register("cam", ingest.FormatWire); err != nil {
		t.Fatal(err)
	}
	c := NewCaller(reg, nil)
	err := c.Pull(context.Background(), PullRequest{Address: "127.0.0.1:1", Channel: "cam"})
	if !errors.Is(err, ErrChannelBusy) {
		t.Fatalf("err = %v, want ErrChannelBusy", err)
	}
	// The refused request leaves no reservation behind.
	if err := c.Stop("cam"); !errors.Is(err, ErrNoPull) {
		t.Errorf("stop after refusal: err = %v, want ErrNoPull", err)
	}
}

func TestPullRequestStreamID(t *testing.T) {
	t.Parallel()
	if got := (PullRequest{Channel: "cam"}).streamID(); got != "live/cam" {
		t.Errorf("default stream id = %q, want live/cam", got)
	}
	if got := (PullRequest{Channel: "cam", StreamID: "studio/a"}).streamID(); got != "studio/a" {
		t.Errorf("explicit stream id = %q, want studio/a", got)
	}
}
