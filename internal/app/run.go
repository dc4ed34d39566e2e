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

	"github.com/ownlingo/ownlingo/internal/cli"
	"github.com/ownlingo/ownlingo/internal/config"
	"github.com/ownlingo/ownlingo/internal/db"
	"github.com/ownlingo/ownlingo/internal/jobs"
	"github.com/ownlingo/ownlingo/internal/logging"
	"github.com/ownlingo/ownlingo/internal/translator/providers"
)

// runDaemon starts the scheduler without the HTTP API. Jobs are created
// through the CLI or by another serving process sharing the database.
func runDaemon(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "run does not accept positional arguments")
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
		logger.Error().Err(err).Msg("run failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	chain, err := providers.BuildChain(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("run failed to build provider chain")
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

	if err := scheduler.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduler failed to start")
		fmt.Fprintf(os.Stderr, "Scheduler failed to start: %v\n", err)
		return 1
	}

	logger.Info().Msg("scheduler running, press Ctrl-C to stop")
	<-sigCh
	cancel()

	scheduler.Stop()
	bus.Close()
	<-drained

	return 0
}
