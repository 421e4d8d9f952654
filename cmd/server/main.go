package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"audio-extractor/internal/config"
	"audio-extractor/internal/converter"
	"audio-extractor/internal/database"
	"audio-extractor/internal/downloader"
	"audio-extractor/internal/events"
	"audio-extractor/internal/job"
	"audio-extractor/internal/server"
	"audio-extractor/internal/source"
	"audio-extractor/internal/task"

	"github.com/panjf2000/ants/v2"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, "config.json")
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	setupLogger(cfg)

	if cfg.Converter == config.ConverterYtDlp && cfg.InstallYtDlp {
		if err := converter.Install(ctx); err != nil {
			return fmt.Errorf("failed to install yt-dlp: %w", err)
		}
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init task store: %w", err)
	}
	defer store.Close()
	go task.RunJanitor(ctx, store, cfg.TaskTTL.Std(), cfg.SweepInterval.Std())

	publisher, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("failed to init kafka: %w", err)
	}

	pool, err := ants.NewPool(
		cfg.MaxConcurrentJobs,
		ants.WithOptions(ants.Options{
			// Submit blocks while workers are busy, up to MaxBlockingTasks
			// waiters, then fails with ErrPoolOverload.
			MaxBlockingTasks: cfg.MaxQueuedJobs,
			Nonblocking:      false,
			PanicHandler: func(p any) {
				slog.Error("Worker panic", "panic", p)
			},
			ExpiryDuration: 10 * time.Second,
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize worker pool: %w", err)
	}

	resolver := source.NewResolver(source.Options{
		Timeout:    cfg.FetchTimeout.Std(),
		Headers:    cfg.Headers,
		ResolveHLS: cfg.ResolveHLS,
	})

	orchestrator := job.NewOrchestrator(store, newConverter(cfg), resolver, publisher, job.Options{
		WorkRoot: cfg.WorkDir,
		Codec:    cfg.AudioCodec,
		Quality:  cfg.AudioQuality,
		Timeout:  cfg.JobTimeout.Std(),
	})

	srv := server.New(ctx, server.Options{
		Addr:              cfg.Addr(),
		Codec:             cfg.AudioCodec,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}, orchestrator, pool, task.NewGateway(store))

	if err := srv.Start(); err != nil {
		return err
	}

	// Gracefully shutdown
	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shutdown http server", "error", err)
	}
	if err := pool.ReleaseTimeout(10 * time.Second); err != nil {
		slog.Error("Workers did not stop in time", "error", err)
	}
	if err := publisher.Close(shutdownCtx); err != nil {
		slog.Error("Failed to close publisher", "error", err)
	}
	return nil
}

func setupLogger(cfg config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func newStore(ctx context.Context, cfg config.Config) (task.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := database.Init(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		store, err := task.NewSQLStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		return task.NewRedisStore(task.RedisOptions{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TaskTTL.Std(),
		})
	default:
		return task.NewMemoryStore(), nil
	}
}

func newConverter(cfg config.Config) converter.Converter {
	if cfg.Converter == config.ConverterDirect {
		aria2 := downloader.NewClient(cfg.Aria2RPCUrl, cfg.Aria2Secret)
		return converter.NewDirect(aria2, converter.FFmpeg{Path: cfg.FFmpegPath}, cfg.Headers)
	}
	return converter.NewYtDlp(cfg.FFmpegPath)
}

func newPublisher(cfg config.Config) (events.Publisher, error) {
	if strings.TrimSpace(cfg.KafkaAddress) == "" {
		return events.Noop{}, nil
	}
	return events.NewKafkaPublisher(cfg.KafkaAddress, cfg.KafkaTopic)
}
