package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/V4T54L/honeywatch/internal/adapter/repository/relational"
	"github.com/V4T54L/honeywatch/internal/pkg/config"
	"github.com/V4T54L/honeywatch/internal/pkg/logger"
	"github.com/V4T54L/honeywatch/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting snapshot worker")

	if cfg.RelationalDriver == "" {
		log.Error("RELATIONAL_DRIVER is not set, nothing to snapshot")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := relational.Open(ctx, cfg.RelationalDriver, cfg.RelationalDSN, log)
	if err != nil {
		log.Error("failed to open relational database", "driver", cfg.RelationalDriver, "error", err)
		os.Exit(1)
	}
	defer sink.Close()
	log.Info("connected to relational database", "driver", cfg.RelationalDriver)

	snapshots := usecase.NewSnapshotUseCase(sink, cfg.SnapshotDir, cfg.SnapshotTables, log, cfg.SnapshotRetries, cfg.SnapshotBackoff)

	// A zero interval takes one snapshot and exits.
	if cfg.SnapshotInterval <= 0 {
		path, err := snapshots.Run(ctx)
		if err != nil {
			log.Error("snapshot failed", "error", err)
			sink.Close()
			os.Exit(1)
		}
		log.Info("snapshot complete", "path", path)
		return
	}

	log.Info("snapshot worker started", "interval", cfg.SnapshotInterval, "dir", cfg.SnapshotDir)
	if _, err := snapshots.Run(ctx); err != nil {
		log.Error("initial snapshot failed", "error", err)
	}
	snapshots.RunEvery(ctx, cfg.SnapshotInterval)

	log.Info("snapshot worker shut down gracefully")
}
