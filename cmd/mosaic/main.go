package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/mosaic/internal/api"
	"github.com/zsiec/mosaic/internal/certs"
	"github.com/zsiec/mosaic/internal/config"
	"github.com/zsiec/mosaic/internal/distribution"
	"github.com/zsiec/mosaic/internal/ingest"
	srtingest "github.com/zsiec/mosaic/internal/ingest/srt"
	"github.com/zsiec/mosaic/internal/logger"
	"github.com/zsiec/mosaic/internal/metrics"
	"github.com/zsiec/mosaic/internal/mixer"
	"github.com/zsiec/mosaic/internal/preview"
)

var version = "dev"

func main() {
	envErr := config.Load()

	level := config.GetEnv("LOG_LEVEL", "info")
	if os.Getenv("DEBUG") != "" {
		level = "debug"
	}
	log := logger.New(level, config.GetEnv("LOG_FORMAT", "text"))
	slog.SetDefault(log)

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warn("failed to load .env", "error", envErr)
	}

	if err := run(log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	layout, err := loadLayout()
	if err != nil {
		return err
	}

	cert, err := certs.LoadOrGenerate(
		config.GetEnv("TLS_CERT", ""),
		config.GetEnv("TLS_KEY", ""),
		certs.MaxValidity,
		splitList(config.GetEnv("CERT_HOSTS", ""))...,
	)
	if err != nil {
		return fmt.Errorf("certificate: %w", err)
	}
	log.Info("certificate ready",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
		"self_signed", cert.SelfSigned,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	met := metrics.New()
	relay := distribution.NewRelay(log)
	prev := preview.New(preview.WithMaxWidth(config.GetEnvInt("PREVIEW_WIDTH", preview.DefaultMaxWidth)))
	relay.AddSubscriber(prev)

	engineCfg := layout.EngineConfig()
	engineCfg.Sink = relay
	engineCfg.Observer = met
	engineCfg.Logger = log
	engine := mixer.New(engineCfg)
	if err := engine.Start(); err != nil {
		return fmt.Errorf("start mixer: %w", err)
	}
	defer engine.Stop()

	srtAddr := config.GetEnv("SRT_ADDR", ":6000")
	apiAddr := config.GetEnv("API_ADDR", ":4444")

	log.Info("mosaic starting",
		"version", version,
		"srt", srtAddr,
		"api", apiAddr,
		"background", engineCfg.Background,
		"presets", len(layout.Channels),
	)

	g, ctx := errgroup.WithContext(ctx)

	// Create the registry after errgroup so feeds capture the errgroup-derived
	// context and detach when any component fails.
	feedCfg := ingest.FeedConfig{
		Presets: func(name string) (mixer.Props, bool) {
			ch, ok := layout.Channel(name)
			return ch.Props(), ok
		},
		Linger: config.GetEnvDuration("CHANNEL_LINGER", ingest.DefaultLinger),
		Logger: log,
	}
	registry := ingest.NewRegistry(func(s *ingest.Stream, input io.Reader) {
		met.IncIngestConnections()
		if err := ingest.Feed(ctx, engine, s, input, feedCfg); err != nil {
			log.Warn("feed ended with error", "channel", s.Key, "error", err)
		}
	})
	caller := srtingest.NewCaller(registry, log)
	egress := distribution.NewEgress(relay, config.GetEnvInt("EGRESS_QUEUE", distribution.DefaultQueueSize), log)

	var reportedDrops atomic.Int64
	apiSrv, err := api.NewServer(api.ServerConfig{
		Addr:     apiAddr,
		Cert:     cert,
		Engine:   engine,
		Relay:    relay,
		Metrics:  met,
		Logger:   log,
		Snapshot: prev.Snapshot,
		Ingest:   registry.List,
		Pull: func(req srtingest.PullRequest) error {
			return caller.Pull(ctx, req)
		},
		PullStop: caller.Stop,
		PullList: caller.ActivePulls,
		Egress: func(req distribution.EgressRequest) error {
			return egress.Start(ctx, req)
		},
		EgressStop: egress.Stop,
		EgressList: egress.Active,
		UpdateGauges: func() {
			met.SetChannels(len(engine.Channels()))
			met.SetSubscribers(relay.SubscriberCount())
			// Drops of removed subscribers vanish from the relay total, so
			// only forward growth.
			total := relay.Stats().Dropped()
			if last := reportedDrops.Load(); total > last {
				met.AddSubscriberDrops(total - last)
				reportedDrops.Store(total)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}

	srtSrv := srtingest.NewServer(srtAddr, registry, log)

	httpsSrv := &http.Server{
		Addr:              apiAddr,
		Handler:           apiSrv.Handler(),
		TLSConfig:         cert.TLSConfig(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		return srtSrv.Start(ctx)
	})

	g.Go(func() error {
		log.Info("HTTPS API server listening", "addr", apiAddr)
		if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpsSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return apiSrv.Start(ctx)
	})

	for _, addr := range splitList(config.GetEnv("EGRESS_ADDRS", "")) {
		if err := egress.Start(ctx, distribution.EgressRequest{Address: addr}); err != nil {
			log.Warn("static egress failed", "address", addr, "error", err)
		}
	}

	return g.Wait()
}

// loadLayout reads LAYOUT_FILE if set. BACKGROUND overrides the layout's
// background either way.
func loadLayout() (*config.Layout, error) {
	var (
		layout *config.Layout
		err    error
	)
	if path := config.GetEnv("LAYOUT_FILE", ""); path != "" {
		if layout, err = config.LoadLayout(path); err != nil {
			return nil, fmt.Errorf("layout %s: %w", path, err)
		}
	} else if layout, err = config.ParseLayout(nil); err != nil {
		return nil, err
	}

	if bg := config.GetEnv("BACKGROUND", ""); bg != "" {
		if layout.Background, err = mixer.ParseBackground(bg); err != nil {
			return nil, err
		}
	}
	return layout, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
