// Package main provides the streamwatch CLI entry point.
//
// streamwatch continuously observes a fleet of HLS endpoints, derives
// per-stream health, opens and resolves incidents automatically, and
// serves the results over a REST API, a websocket push channel, and an
// optional terminal dashboard.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/config"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/httpapi"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/logging"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/metrics"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/persist"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/probe"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/registry"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/thumbnail"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/streamwatch
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("streamwatch %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When the TUI is enabled, suppress logs to avoid interfering with
	// the dashboard rendering.
	var logger *slog.Logger
	if cfg.TUI {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"listen", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval.String(),
		"probe_timeout", cfg.ProbeTimeout.String(),
		"streams_file", cfg.StreamsFile,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pipeline wiring.
	prober := probe.New(cfg.ProbeTimeout)
	thumbs := thumbnail.NewGenerator(cfg.FFmpegPath, cfg.ThumbnailDir, logger)
	reg := registry.New(registry.Options{
		Config:      cfg,
		Logger:      logger,
		Prober:      prober,
		Thumbnailer: thumbs,
		Persistence: persist.NewFileStore(cfg.StreamsFile),
	})

	if err := reg.LoadPersisted(ctx); err != nil {
		logger.Error("streams_load_failed", "error", err)
	}

	// Prometheus export: one subscriber feeds the collectors.
	collector := metrics.NewCollector()
	go pumpMetrics(ctx, reg, collector)

	// Thumbnail age sweep.
	go thumbs.RunSweeper(ctx, cfg.ThumbnailMaxAge)

	// HTTP surface. A bind failure is not fatal: it surfaces only through
	// the server's error log, and the process still exits only through
	// signals.
	server := httpapi.NewServer(cfg, reg, logger)
	server.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	if cfg.TUI {
		program := tea.NewProgram(tui.NewModel(reg, cfg.ListenAddr), tea.WithAltScreen())
		go func() {
			select {
			case sig := <-sigCh:
				logger.Info("received_signal", "signal", sig.String())
				program.Quit()
			case <-ctx.Done():
				program.Quit()
			}
		}()
		if _, err := program.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	} else {
		sig := <-sigCh
		logger.Info("received_signal", "signal", sig.String())
	}

	// Graceful shutdown: stop probing, then stop serving.
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := reg.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_incomplete", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_server_shutdown_error", "error", err)
	}

	logger.Info("stopped")
	return 0
}

// pumpMetrics feeds push-channel events and fleet gauges into the
// Prometheus collectors.
func pumpMetrics(ctx context.Context, reg *registry.Registry, collector *metrics.Collector) {
	sub := reg.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			collector.ObserveEvent(ev)
		case <-ticker.C:
			collector.SetFleet(reg.StreamCount(), reg.ActiveIncidentCount())
			collector.SetDroppedEvents(reg.DroppedEvents())
		}
	}
}
