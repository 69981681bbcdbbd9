// Package api serves the mixer's HTTP control plane: channel properties,
// seek, flush, QoS feedback, statistics, preview snapshots, ingest pulls and
// egress management. The same routes are served over HTTPS and HTTP/3.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/mosaic/internal/certs"
	"github.com/zsiec/mosaic/internal/clock"
	"github.com/zsiec/mosaic/internal/distribution"
	"github.com/zsiec/mosaic/internal/ingest"
	srtingest "github.com/zsiec/mosaic/internal/ingest/srt"
	"github.com/zsiec/mosaic/internal/logger"
	"github.com/zsiec/mosaic/internal/metrics"
	"github.com/zsiec/mosaic/internal/mixer"
)

// Controller is the part of the mixer engine the API drives.
type Controller interface {
	Channels() []mixer.ChannelInfo
	Channel(id int) (mixer.ChannelInfo, error)
	ChannelByName(name string) (mixer.ChannelInfo, bool)
	Update(id int, p mixer.Props) error
	Seek(req mixer.SeekRequest) error
	Flush()
	UpdateQoS(proportion float64, diff int64, ts clock.Time)
	Stats() mixer.Stats
}

var _ Controller = (*mixer.Engine)(nil)

// SnapshotFunc returns the latest output frame encoded as PNG.
type SnapshotFunc func() ([]byte, error)

// IngestLister returns the live ingest connections.
type IngestLister func() []ingest.IngestStats

// PullFunc starts an SRT caller-mode pull into a new channel.
type PullFunc func(req srtingest.PullRequest) error

// PullListFunc returns all active SRT pulls.
type PullListFunc func() []srtingest.PullRequest

// EgressFunc starts pushing the output to a remote SRT listener.
type EgressFunc func(req distribution.EgressRequest) error

// EgressListFunc returns all active egress connections.
type EgressListFunc func() []distribution.EgressInfo

// StopFunc stops the pull or egress identified by key.
type StopFunc func(key string) error

// ServerConfig holds the configuration for the API Server. Only Addr, Cert
// and Engine are required; routes whose hook is nil answer 501.
type ServerConfig struct {
	Addr    string
	Cert    *certs.CertInfo
	Engine  Controller
	Relay   *distribution.Relay
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	Snapshot   SnapshotFunc
	Ingest     IngestLister
	Pull       PullFunc
	PullStop   StopFunc
	PullList   PullListFunc
	Egress     EgressFunc
	EgressStop StopFunc
	EgressList EgressListFunc

	// UpdateGauges runs before each metrics scrape.
	UpdateGauges func()
}

// Server is the HTTPS + HTTP/3 control API.
type Server struct {
	config  ServerConfig
	log     *slog.Logger
	handler http.Handler
	h3      *http3.Server
}

// NewServer creates a Server with the given configuration.
// It returns an error if required fields are missing.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Cert == nil {
		return nil, errors.New("api: Cert is required")
	}
	if config.Addr == "" {
		return nil, errors.New("api: Addr is required")
	}
	if config.Engine == nil {
		return nil, errors.New("api: Engine is required")
	}
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		config: config,
		log:    log.With("component", "api"),
	}
	s.handler = s.routes()
	s.h3 = &http3.Server{
		Addr:      config.Addr,
		Handler:   s.handler,
		TLSConfig: http3.ConfigureTLSConfig(config.Cert.TLSConfig()),
		QUICConfig: &quic.Config{
			MaxIdleTimeout: 30 * time.Second,
			Allow0RTT:      true,
		},
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(s.log))
	if s.config.Metrics != nil {
		r.Use(metrics.RequestMiddleware(s.config.Metrics))
	}
	r.Use(corsMiddleware)

	if s.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.config.Metrics.Handler(s.config.UpdateGauges))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/channels", s.handleListChannels)
		r.Route("/channels/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetChannel)
			r.Patch("/", s.handleUpdateChannel)
		})
		r.Post("/seek", s.handleSeek)
		r.Post("/flush", s.handleFlush)
		r.Post("/qos", s.handleQoS)
		r.Get("/stats", s.handleStats)
		r.Get("/preview.png", s.handlePreview)
		r.Get("/cert-hash", s.handleCertHash)
		r.Get("/ingest", s.handleListIngest)

		r.Get("/srt-pull", s.handlePullList)
		r.Post("/srt-pull", s.handlePullCreate)
		r.Delete("/srt-pull", s.handlePullStop)

		r.Get("/egress", s.handleEgressList)
		r.Post("/egress", s.handleEgressCreate)
		r.Delete("/egress", s.handleEgressStop)
	})
	return r
}

// Handler returns the API routes for the TCP listener. Responses advertise
// the HTTP/3 endpoint through Alt-Svc.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.h3.SetQUICHeaders(w.Header()); err != nil {
			s.log.Debug("alt-svc header", "error", err)
		}
		s.handler.ServeHTTP(w, r)
	})
}

// Start serves the API over HTTP/3 and blocks until the context is
// cancelled or a fatal error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("HTTP/3 API listening", "addr", s.config.Addr)

	stop := context.AfterFunc(ctx, func() { s.h3.Close() })
	defer stop()

	err := s.h3.ListenAndServe()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// corsMiddleware allows any origin and answers preflight requests itself.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// errorStatus maps engine errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, mixer.ErrUnknownChannel):
		return http.StatusNotFound
	case errors.Is(err, mixer.ErrInvalidAlpha),
		errors.Is(err, mixer.ErrReverseRate),
		errors.Is(err, clock.ErrInvalidSeek):
		return http.StatusBadRequest
	case errors.Is(err, mixer.ErrNotRunning):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
