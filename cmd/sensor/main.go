package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/V4T54L/honeywatch/internal/adapter/api"
	"github.com/V4T54L/honeywatch/internal/adapter/api/handler"
	"github.com/V4T54L/honeywatch/internal/adapter/api/middleware"
	"github.com/V4T54L/honeywatch/internal/adapter/corpus"
	"github.com/V4T54L/honeywatch/internal/adapter/export"
	"github.com/V4T54L/honeywatch/internal/adapter/metrics"
	"github.com/V4T54L/honeywatch/internal/adapter/pii"
	"github.com/V4T54L/honeywatch/internal/adapter/repository/eventlog"
	"github.com/V4T54L/honeywatch/internal/adapter/repository/memory"
	natsrepo "github.com/V4T54L/honeywatch/internal/adapter/repository/nats"
	redisrepo "github.com/V4T54L/honeywatch/internal/adapter/repository/redis"
	"github.com/V4T54L/honeywatch/internal/adapter/repository/relational"
	"github.com/V4T54L/honeywatch/internal/domain"
	"github.com/V4T54L/honeywatch/internal/pkg/config"
	"github.com/V4T54L/honeywatch/internal/pkg/logger"
	"github.com/V4T54L/honeywatch/internal/threat"
	"github.com/V4T54L/honeywatch/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Threat Engine ---
	loader, err := corpus.NewLoader(corpus.Sources{
		Patterns:   cfg.CorpusPatternsFile,
		Signatures: cfg.CorpusSignaturesFile,
		Ports:      cfg.CorpusPortsFile,
		Traffic:    cfg.CorpusTrafficFile,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize corpus loader", "error", err)
		os.Exit(1)
	}
	engine := threat.NewEngine(loader.LoadOrEmpty(ctx), threat.WithScoreCap(cfg.ScoreCap))
	reloader := corpus.NewReloader(loader, engine, cfg.CorpusReloadInterval, m, logger)
	go reloader.Run(ctx)

	sessions, err := threat.NewSessionTracker(cfg.SessionCacheSize)
	if err != nil {
		logger.Error("failed to initialize session tracker", "error", err)
		os.Exit(1)
	}

	// --- Sinks ---
	store := memory.NewEventStore(cfg.StoreCapacity, m)

	eventLog, err := eventlog.OpenSink(filepath.Join(cfg.DataDir, "eventlog"), cfg.EventLogSegmentSize, cfg.EventLogMaxDiskSize, logger)
	if err != nil {
		logger.Error("failed to open event log", "error", err)
		os.Exit(1)
	}
	defer eventLog.Close()

	if n, err := usecase.Rehydrate(ctx, eventLog, store); err != nil {
		logger.Warn("event store rehydration incomplete", "restored", n, "error", err)
	} else {
		logger.Info("event store rehydrated", "restored", n)
	}

	compression, err := export.ParseCompression(cfg.ExportCompression)
	if err != nil {
		logger.Error("invalid export compression", "error", err)
		os.Exit(1)
	}
	exporter, err := export.NewManager(export.Config{
		Dir:             cfg.ExportDir,
		Compression:     compression,
		IncludeMetadata: cfg.ExportIncludeMetadata,
		MaxBufferSize:   cfg.ExportMaxBuffer,
		Interval:        cfg.ExportInterval,
	}, m, logger)
	if err != nil {
		logger.Error("failed to initialize export manager", "error", err)
		os.Exit(1)
	}
	exporter.Start(ctx)

	sinks := []usecase.NamedSink{
		{Name: "eventlog", Sink: eventLog},
		{Name: "export", Sink: exporter},
	}

	var relationalSink *relational.Sink
	if cfg.RelationalDriver != "" {
		relationalSink, err = relational.Open(ctx, cfg.RelationalDriver, cfg.RelationalDSN, logger)
		if err != nil {
			logger.Error("failed to open relational sink", "driver", cfg.RelationalDriver, "error", err)
			os.Exit(1)
		}
		defer relationalSink.Close()
		sinks = append(sinks, usecase.NamedSink{Name: "relational", Sink: relationalSink})
	}

	// --- Alert Publishers ---
	var publishers []domain.AlertPublisher
	var alertStream *redisrepo.AlertRepository
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		spool, err := eventlog.Open(filepath.Join(cfg.DataDir, "alert-spool"), cfg.EventLogSegmentSize, cfg.EventLogMaxDiskSize, logger)
		if err != nil {
			logger.Error("failed to open alert spool", "error", err)
			os.Exit(1)
		}
		defer spool.Close()

		alertStream = redisrepo.NewAlertRepository(ctx, redisClient, cfg.RedisStream, cfg.RedisMaxLen, spool, m, logger)
		if alertStream.Available() {
			if err := alertStream.ReplaySpool(ctx); err != nil {
				logger.Warn("failed to replay alert spool at startup", "error", err)
			}
		}
		go alertStream.StartHealthCheck(ctx, cfg.RedisHealthInterval)
		publishers = append(publishers, alertStream)
	}
	if cfg.NATSURL != "" {
		nc, err := natsrepo.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		publishers = append(publishers, natsrepo.NewAlertPublisher(nc, cfg.NATSSubjectPrefix, m, logger))
	}
	if len(publishers) > 0 {
		minLevel, err := domain.ParseThreatLevel(cfg.AlertMinLevel)
		if err != nil {
			logger.Error("invalid alert level", "error", err)
			os.Exit(1)
		}
		redactor := pii.NewRedactor(cfg.RedactionFields(), logger)
		alerts := usecase.NewAlertSink(publishers, redactor, logger).WithMinLevel(minLevel)
		sinks = append(sinks, usecase.NamedSink{Name: "alerts", Sink: alerts})
	}

	// --- Use Cases ---
	sseBroker := handler.NewSSEBroker(ctx, logger, cfg.SSEInterval)
	ingestUseCase := usecase.NewIngestEventUseCase(engine, store, sinks, m, logger,
		usecase.WithSessionAnnotator(sessions),
		usecase.WithRateReporter(sseBroker),
	)
	queryUseCase := usecase.NewQueryUseCase(store, exporter)

	var limiter *rate.Limiter
	if cfg.IngestRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.IngestRateLimit), cfg.IngestBurst)
	}

	var keys middleware.KeyValidator
	if staticKeys := middleware.NewStaticKeys(cfg.APIKeys); staticKeys.Len() > 0 {
		keys = staticKeys
	} else {
		logger.Warn("no API_KEYS configured, API is unauthenticated")
	}

	// --- Admin and Metrics Server ---
	adminDeps := handler.AdminDeps{Corpus: engine, Reloader: reloader, Exports: queryUseCase}
	if relationalSink != nil {
		adminDeps.Relational = relationalSink
	}
	if alertStream != nil {
		adminDeps.Alerts = alertStream
	}
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: api.NewAdminRouter(handler.NewAdminHandler(adminDeps, logger), promhttp.Handler(), keys, logger),
	}

	// --- Sensor API Server ---
	apiServer := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: api.NewRouter(logger, keys,
			handler.NewIngestHandler(ingestUseCase, logger, cfg.MaxEventSize, m, limiter),
			handler.NewQueryHandler(queryUseCase, logger),
			sseBroker,
		),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()
	go func() {
		logger.Info("starting sensor api server", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("sensor api server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("sensor api server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}
	if err := exporter.Stop(shutdownCtx); err != nil {
		logger.Error("final export failed", "error", err)
	}

	logger.Info("sensor shut down gracefully")
}
