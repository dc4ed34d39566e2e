package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ownlingo/ownlingo/internal/cli"
	"github.com/ownlingo/ownlingo/internal/config"
	"github.com/ownlingo/ownlingo/internal/db"
	"github.com/ownlingo/ownlingo/internal/httpapi"
	"github.com/ownlingo/ownlingo/internal/jobs"
	"github.com/ownlingo/ownlingo/internal/logging"
	"github.com/ownlingo/ownlingo/internal/translator/providers"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	chain, err := providers.BuildChain(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to build provider chain")
		fmt.Fprintf(os.Stderr, "Failed to build provider chain: %v\n", err)
		return 1
	}

	bus := jobs.NewBus(cfg.EventBufferSize)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for event := range bus.Events() {
			logEvent(logger, event)
		}
	}()

	executor := jobs.NewExecutor(pool, pool, pool, chain, bus,
		jobs.ExecutorConfig{ItemRetryDelay: cfg.ItemRetryDelay}, logger)
	scheduler := jobs.NewScheduler(pool, executor, bus,
		jobs.SchedulerConfig{
			MaxConcurrentJobs: cfg.MaxConcurrentJobs,
			PollInterval:      cfg.PollInterval,
		}, logger)
	creator := jobs.NewCreator(pool, pool, pool, scheduler,
		jobs.CreatorConfig{DefaultMaxRetries: cfg.ItemMaxRetries}, logger)

	if err := scheduler.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduler failed to start")
		fmt.Fprintf(os.Stderr, "Scheduler failed to start: %v\n", err)
		return 1
	}

	srv := httpapi.NewServer(pool, creator, scheduler, scheduler, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
	})

	serveErr := srv.Start(ctx)

	// The bus is closed only after the scheduler has drained its
	// executors, so no publisher can race the close.
	scheduler.Stop()
	bus.Close()
	<-drained

	if serveErr != nil {
		logger.Error().Err(serveErr).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", serveErr)
		return 1
	}
	return 0
}

func logEvent(logger zerolog.Logger, event jobs.Event) {
	entry := logger.Info().Str("event", string(event.Kind))
	if event.JobUUID != "" {
		entry = entry.Str("job_uuid", event.JobUUID)
	}
	if event.ItemID != 0 {
		entry = entry.Int64("item_id", event.ItemID)
	}
	if event.ResourceID != "" {
		entry = entry.Str("resource_id", event.ResourceID)
	}
	if event.Error != "" {
		entry = entry.Str("error", event.Error)
	}
	if event.RetryCount != 0 {
		entry = entry.Int("retry_count", event.RetryCount)
	}
	if event.Total != 0 {
		entry = entry.Int("total", event.Total).
			Int("completed", event.Completed).
			Int("failed", event.Failed).
			Int("progress", event.Progress)
	}
	entry.Msg("job event")
}
