// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/config"
	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/adapter"
	notifyAdapters "sitegen-realtime/internal/infra/adapters/notify"
	workerAdapters "sitegen-realtime/internal/infra/adapters/worker"
	"sitegen-realtime/internal/infra/api"
	"sitegen-realtime/internal/infra/bus"
	pg "sitegen-realtime/internal/infra/db/postgres"
	"sitegen-realtime/internal/infra/feed"
	"sitegen-realtime/internal/infra/metrics"
	red "sitegen-realtime/internal/infra/redis"
	"sitegen-realtime/internal/infra/sched"
	"sitegen-realtime/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop external adapters)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := buildLogger(&cfg.Log)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis (optional, enables the cross-replica scan lock) ----
	var locker red.Locker
	var cachePinger api.Pinger
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
		cachePinger = redisClient
	}

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	ledgerRepo := pg.NewLedgerRepo(pool)

	// ---- Event bus + change feed ----
	eventBus := bus.New(cfg.Feed.Debounce, logger)
	defer eventBus.Close()

	var source feed.Source
	switch cfg.Feed.Transport {
	case "nats":
		source = feed.NewNATSSource(cfg.Feed.URL, logger)
	default:
		source = feed.NewWebsocketSource(cfg.Feed.URL, cfg.Feed.Token)
	}

	feeds := []*feed.Client{feed.NewClient(feed.AudienceUser, source, eventBus, logger)}
	if cfg.Feed.Admin {
		feeds = append(feeds, feed.NewClient(feed.AudienceAdmin, source, eventBus, logger))
	}
	for _, f := range feeds {
		f.Start(ctx)
	}
	defer func() {
		for _, f := range feeds {
			f.Stop()
		}
	}()

	// ---- External adapters ----
	var notifier adapter.NotificationSink = notifyAdapters.NoopSink{}
	if !cfg.Runtime.Dev && cfg.Notify.WebhookURL != "" {
		notifier = notifyAdapters.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Token, logger)
	}
	processors := map[model.JobKind]adapter.JobProcessor{
		model.KindGeneration: buildProcessor(cfg, &cfg.Workers.Generation, logger),
		model.KindRevision:   buildProcessor(cfg, &cfg.Workers.Revision, logger),
	}

	// ---- Recovery path ----
	detector := usecase.NewDetector(usecase.Thresholds{
		NoWorkerStuckAfter: cfg.Recovery.NoWorkerStuckAfter,
		NoWorkerMaxRetries: cfg.Recovery.NoWorkerMaxRetries,
		CallbackStuckAfter: cfg.Recovery.CallbackStuckAfter,
		CallbackMaxRetries: cfg.Recovery.CallbackMaxRetries,
		CallbackFailAfter:  cfg.Recovery.CallbackFailAfter,
	})
	comp := usecase.NewCompensationEngine(jobRepo, ledgerRepo, logger)
	exec := usecase.NewRecoveryExecutor(jobRepo, processors, comp, notifier, detector, cfg.Recovery.InvokeTimeout, logger)

	loop := sched.NewRecoveryLoop(jobRepo, detector, exec, cfg.Recovery.ScanInterval, locker, logger)
	go func() { _ = loop.Run(ctx) }()

	// Any change on the jobs collection may mean a new in-flight job; wake a
	// parked loop.
	eventBus.Subscribe(model.CollectionJobs, func(model.ChangeEvent) { loop.Kick() })

	sweeper := sched.NewCompensationSweeper(jobRepo, comp, cfg.Sweeper.Cron, logger)
	go func() { _ = sweeper.Run(ctx) }()

	// ---- Ops HTTP server ----
	opsSrv := api.NewServer(pool, cachePinger, feeds)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Ops.Port),
		Handler: opsSrv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("ops server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("ops server")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

func buildProcessor(cfg *config.Config, w *config.WorkerEndpoint, logger *zerolog.Logger) adapter.JobProcessor {
	if cfg.Runtime.Dev || w.Endpoint == "" {
		return workerAdapters.NoopProcessor{}
	}
	if w.Mode == "sync" {
		return workerAdapters.NewSyncHTTPProcessor(w.Name, w.Endpoint, w.Token, logger)
	}
	return workerAdapters.NewAsyncHTTPProcessor(w.Name, w.Endpoint, w.Token, logger)
}

func buildLogger(cfg *config.LogConfig) *zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.Level(level).With().Timestamp().Logger()
	return &logger
}
