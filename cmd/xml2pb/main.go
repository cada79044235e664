package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"xml2pb/internal/config"
	"xml2pb/internal/feed"
	"xml2pb/internal/gtfs"
	"xml2pb/internal/loop"
	"xml2pb/internal/match"
	"xml2pb/internal/metrics"
	"xml2pb/internal/publisher"
	"xml2pb/internal/schedule"
	"xml2pb/internal/storage"
	"xml2pb/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to YAML config file")
	importOnly := flag.Bool("import-gtfs", false, "download and import GTFS data, then exit")
	logLevel := flag.String("log", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Optional .env overlay before config reads the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Context with cancellation for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	loader := gtfs.NewLoader(gtfs.NewDownloader(cfg.GTFSURL, cfg.GTFSDir, logger), db, logger)

	if *importOnly {
		if cfg.GTFSURL == "" {
			logger.Error("gtfs_url must be configured for -import-gtfs")
			os.Exit(1)
		}
		if err := loader.Refresh(ctx); err != nil {
			logger.Error("GTFS import failed", "error", err)
			os.Exit(1)
		}
		logger.Info("GTFS import complete")
		return
	}

	// A schedule must be fully loaded before the loop starts; anything less
	// is fatal.
	if cfg.GTFSURL != "" {
		if err := loader.EnsureData(ctx); err != nil {
			logger.Error("failed to ensure GTFS data", "error", err)
			os.Exit(1)
		}
	} else if !db.HasData(ctx) {
		logger.Error("no GTFS data imported and no gtfs_url configured")
		os.Exit(1)
	}

	store, err := schedule.Load(ctx, db, logger)
	if err != nil {
		logger.Error("failed to build schedule index", "error", err)
		os.Exit(1)
	}

	col := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		col.Serve(cfg.MetricsAddr, logger)
	}

	var broadcast loop.Broadcaster
	if cfg.NATSURL != "" {
		snap, err := publisher.Connect(cfg.NATSURL, cfg.NATSSubject, col, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer snap.Close()
		broadcast = snap
	}

	client := tracker.NewClient(cfg.DeparturesURL, cfg.VehiclesURL, cfg.FetchTimeout, logger)
	matcher := match.New(store, cfg.DeadheadRoute, logger)
	builder := feed.NewBuilder(logger)

	l := loop.New(loop.Config{
		OutputPath: cfg.OutputPath,
		Interval:   cfg.PollInterval,
		Location:   cfg.Location(),
	}, client, matcher, builder, col, broadcast, logger)

	l.Run(ctx)
}
