package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zsiec/mosaic/internal/mixer"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestObserverCounters(t *testing.T) {
	t.Parallel()
	m := New()
	m.FrameRendered(3, 2*time.Millisecond)
	m.FrameRendered(2, time.Millisecond)
	m.FrameSkipped(40 * time.Millisecond)
	m.BufferDropped("cam1", mixer.DropLate)
	m.BufferDropped("cam1", mixer.DropLate)
	m.BufferDropped("cam2", mixer.DropFlushed)
	m.IncIngestConnections()
	m.AddSubscriberDrops(5)

	body := scrape(t, m.Handler(nil))
	for _, want := range []string{
		"mosaic_frames_rendered_total 2",
		"mosaic_frames_skipped_total 1",
		"mosaic_composed_channels 2",
		"mosaic_qos_jitter_seconds 0.04",
		`mosaic_buffers_dropped_total{channel="cam1",reason="late"} 2`,
		`mosaic_buffers_dropped_total{channel="cam2",reason="flushed"} 1`,
		"mosaic_compose_seconds_count 2",
		"mosaic_ingest_connections_total 1",
		"mosaic_subscriber_frames_dropped_total 5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHandlerUpdatesGauges(t *testing.T) {
	t.Parallel()
	m := New()
	calls := 0
	h := m.Handler(func() {
		calls++
		m.SetChannels(4)
		m.SetSubscribers(2)
	})

	body := scrape(t, h)
	if calls != 1 {
		t.Errorf("updateGauges called %d times, want 1", calls)
	}
	if !strings.Contains(body, "mosaic_channels 4") || !strings.Contains(body, "mosaic_subscribers 2") {
		t.Errorf("gauges not refreshed:\n%s", body)
	}
}

func TestRequestMiddleware(t *testing.T) {
	t.Parallel()
	m := New()
	r := chi.NewRouter()
	r.Use(RequestMiddleware(m))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/bad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})

	for _, path := range []string{"/ok", "/bad", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m.Handler(nil))
	if !strings.Contains(body, "mosaic_http_requests_total 3") {
		t.Error("expected 3 requests")
	}
	if !strings.Contains(body, "mosaic_http_errors_total 2") {
		t.Error("expected 2 errors")
	}
}
