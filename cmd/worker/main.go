// Package main provides the entrypoint for the PrintPush worker, which takes
// host events from Pub/Sub instead of the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/printpush/printpush/internal/api"
	"github.com/printpush/printpush/internal/api/middleware"
	"github.com/printpush/printpush/internal/bootstrap"
	"github.com/printpush/printpush/internal/telemetry"
	"github.com/printpush/printpush/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "printpush-worker"

func main() {
	var configPath, envFile string
	flags := pflag.NewFlagSet(serviceName, pflag.ExitOnError)
	flags.StringVar(&configPath, "config", "", "path to the YAML config file (default: search paths)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	_ = flags.Parse(os.Args[1:]) //nolint:errcheck // ExitOnError

	if err := bootstrap.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "loading %s: %v\n", envFile, err)
		os.Exit(1)
	}

	cfg, err := bootstrap.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log := bootstrap.NewLogger(os.Stdout, serviceName, Version, cfg.Server.LogLevel)
	log.Info().Str("build_time", BuildTime).Msg("starting PrintPush worker")

	if cfg.PubSub.ProjectID == "" || cfg.PubSub.Subscription == "" {
		log.Fatal().Msg("pubsub.project_id and pubsub.subscription are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		PrinterName:    cfg.Printer.Name,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pipeline, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build notification pipeline")
	}

	subscriber, err := worker.NewEventSubscriber(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSub.ProjectID,
		SubscriptionName: cfg.PubSub.Subscription,
		Handler:          pipeline.Host,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event subscriber")
	}

	// Worker exposes the ops endpoints only, for Cloud Run health checks.
	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		TokenValidator: pipeline.JWT,
		Store:          pipeline.Store,
		Engine:         pipeline.Engine,
		Status:         pipeline.Config,
		Sweeper:        pipeline.Sweeper,
		Providers:      pipeline.Providers,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := subscriber.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event subscriber: %w", err)
		}
		return nil
	})

	pipeline.RunBackground(gctx, g)

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down worker")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("health server forced to shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	if runErr != nil {
		log.Error().Err(runErr).Msg("worker stopped with error")
	}

	if err := subscriber.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close pubsub client")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := pipeline.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("pipeline shutdown incomplete")
	}

	log.Info().Msg("worker stopped")
	if runErr != nil {
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
}
