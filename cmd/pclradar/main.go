// Command pclradar runs the passive coherent-location radar pipeline:
// ingest, per-channel preprocessing and CAF, CFAR/morphology/clustering,
// multi-target tracking, and broadcast/event-log/fusion output.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pcl-radar/internal/broadcast"
	"pcl-radar/internal/config"
	"pcl-radar/internal/console"
	"pcl-radar/internal/coordinator"
	"pcl-radar/internal/eventlog"
	"pcl-radar/internal/fusion"
	"pcl-radar/internal/ingest"
	"pcl-radar/internal/ring"
	"pcl-radar/internal/types"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (defaults are used if omitted)")
	noConsole := flag.Bool("no-console", false, "Disable the interactive terminal dashboard")
	showHelp := flag.Bool("help", false, "Show this help message")
	flag.Parse()

	if *showHelp {
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pcl-radar: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "pcl-radar: %v\n", err)
		os.Exit(1)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pcl-radar: open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))
	slog.Info("starting pcl-radar", "mode", cfg.Mode, "channels", cfg.Channels, "block_size", cfg.BlockSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := ingest.NewSourceFromConfig(cfg)
	if err != nil {
		slog.Error("fatal: build ingest source", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	buf := ring.NewBuffer(cfg.RingDepth)
	ingestor := ingest.New(src, buf)

	var hub *broadcast.Hub
	var broadcastSrv *broadcast.Server
	if cfg.Broadcast.Port > 0 {
		hub = broadcast.NewHub()
		broadcastSrv = broadcast.NewServer(hub, cfg.Broadcast.Port)
		go hub.Run(ctx)
		if err := broadcastSrv.Start(); err != nil {
			slog.Error("fatal: start broadcast server", "error", err)
			os.Exit(1)
		}
		slog.Info("broadcast server listening", "port", cfg.Broadcast.Port)
	}

	var events *eventlog.Writer
	if cfg.EventLog.Enabled {
		events, err = eventlog.NewWriter(cfg.EventLog.Dir, 8)
		if err != nil {
			slog.Error("fatal: open event log", "error", err)
			os.Exit(1)
		}
	}

	var fusionClient *fusion.Client
	if cfg.Fusion.Enabled {
		fusionClient = fusion.NewClient(cfg.Fusion.URL)
	}

	co, err := coordinator.New(cfg, hub, events)
	if err != nil {
		slog.Error("fatal: build coordinator", "error", err)
		os.Exit(1)
	}

	var dash *console.Dashboard
	if !*noConsole {
		dash = console.New()
		go func() {
			if err := dash.Run(); err != nil {
				slog.Warn("console dashboard exited", "error", err)
			}
			stop() // 'q'/Esc in the dashboard also requests shutdown
		}()
	}

	co.Observe(func(_ *types.RDMap, _ []types.Detection, tracks []types.TrackSnapshot) {
		if dash != nil {
			fill := float64(buf.WriteIndex())
			if fill > float64(buf.Depth()) {
				fill = float64(buf.Depth())
			}
			dash.Update(console.Stats{
				RingDepth:     buf.Depth(),
				RingFillRatio: fill / float64(buf.Depth()),
				BlocksIn:      ingestor.Counters().BlocksIn,
				BlocksDropped: ingestor.Counters().BlocksDropped + buf.Dropped(),
				FramesOut:     co.Counters().FramesOut,
				Detections:    co.Counters().Detections,
				TracksBorn:    co.Counters().TracksBorn,
				TracksDied:    co.Counters().TracksDied,
				Tracks:        tracks,
			})
		}
		if fusionClient != nil {
			reportCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := fusionClient.ReportTracks(reportCtx, tracks); err != nil {
				slog.Warn("fusion: report tracks failed", "error", err)
			}
		}
	})

	go co.Run(ctx, buf)

	if err := ingestor.Run(ctx); err != nil {
		slog.Error("ingest: fatal error", "error", err)
	}

	<-ctx.Done()
	slog.Info("shutting down",
		"blocks_in", ingestor.Counters().BlocksIn,
		"frames_out", co.Counters().FramesOut,
		"detections", co.Counters().Detections)

	if dash != nil {
		dash.Stop()
	}
	if broadcastSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = broadcastSrv.Shutdown(shutdownCtx)
	}
}
