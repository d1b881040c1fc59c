// Package bootstrap assembles the notification pipeline shared by the API
// server and the worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/auth"
	"github.com/printpush/printpush/internal/config"
	"github.com/printpush/printpush/internal/notification"
	"github.com/printpush/printpush/internal/provider/resilience"
	"github.com/printpush/printpush/internal/relay"
	"github.com/printpush/printpush/internal/remoteconfig"
	"github.com/printpush/printpush/internal/secrets"
	"github.com/printpush/printpush/internal/storage"
	"github.com/printpush/printpush/internal/worker"
)

// Pipeline holds every long-lived component of a running instance.
type Pipeline struct {
	Store     *storage.Store
	Keys      *secrets.KeyProvider
	JWT       *auth.JWTService
	Config    *remoteconfig.Service
	Apps      *apps.Registry
	Providers *resilience.Registry
	Engine    *notification.Engine
	Host      *notification.Host
	Sweeper   *worker.ExpirySweeper
	Refresher *worker.ConfigRefresher

	logger zerolog.Logger
}

// Build opens the store and wires the pipeline from cfg. The caller owns the
// result and must call Close.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Pipeline, error) {
	store, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	p, err := build(ctx, cfg, store, logger)
	if err != nil {
		_ = store.Close() //nolint:errcheck // best effort cleanup
		return nil, err
	}
	return p, nil
}

func build(ctx context.Context, cfg *config.Config, store *storage.Store, logger zerolog.Logger) (*Pipeline, error) {
	keys := secrets.NewKeyProvider(store.Secrets, logger)

	jwtService, err := auth.NewJWTServiceFromSecrets(ctx, keys, auth.JWTConfig{})
	if err != nil {
		return nil, err
	}

	providers := resilience.NewRegistry()

	remote := remoteconfig.NewService(remoteconfig.ServiceConfig{
		Fetcher: remoteconfig.NewHTTPFetcher(remoteconfig.HTTPFetcherConfig{
			URL:      cfg.RemoteConfig.URL,
			Timeout:  cfg.RemoteConfig.Timeout,
			Registry: providers,
		}),
		Logger:           logger,
		CacheTTL:         cfg.RemoteConfig.CacheTTL,
		FailureTTL:       cfg.RemoteConfig.FailureTTL,
		RelayURLOverride: cfg.Relay.URL,
	})

	registry := apps.NewRegistry(apps.RegistryConfig{
		Repository: store.Apps,
		Logger:     logger,
	})

	relayMetrics, err := relay.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating relay metrics: %w", err)
	}
	sender := relay.NewClient(relay.ClientConfig{
		Endpoint:  remote,
		Pruner:    registry,
		Logger:    logger,
		Timeout:   cfg.Relay.Timeout,
		RateLimit: rate.Limit(cfg.Relay.RateLimit),
		Burst:     cfg.Relay.Burst,
		Registry:  providers,
		Metrics:   relayMetrics,
	})

	notifyMetrics, err := notification.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating notification metrics: %w", err)
	}
	dispatcher := notification.NewDispatcher(notification.DispatcherConfig{
		Apps:   registry,
		Sender: sender,
		Keys:   keys,
		Builder: notification.NewPayloadBuilder(notification.PayloadBuilderConfig{
			PrinterName:   cfg.Printer.Name,
			TerminalDelay: cfg.Dispatch.TerminalDelay,
		}),
		Metrics: notifyMetrics,
		Logger:  logger,
	})

	engine := notification.NewEngine(notification.EngineConfig{
		Dispatcher:  dispatcher,
		Config:      remote,
		Metrics:     notifyMetrics,
		Logger:      logger,
		MaxInFlight: cfg.Dispatch.MaxInFlight,
		MaxPending:  cfg.Dispatch.MaxPending,
		SendTimeout: cfg.Dispatch.SendTimeout,
	})

	return &Pipeline{
		Store:     store,
		Keys:      keys,
		JWT:       jwtService,
		Config:    remote,
		Apps:      registry,
		Providers: providers,
		Engine:    engine,
		Host:      notification.NewHost(engine, logger),
		Sweeper: worker.NewExpirySweeper(worker.SweeperConfig{
			Apps:     registry,
			Notifier: engine,
			Logger:   logger,
			Interval: cfg.Sweeper.Interval,
		}),
		Refresher: worker.NewConfigRefresher(remote, cfg.RemoteConfig.RefreshInterval, logger),
		logger:    logger,
	}, nil
}

// RunBackground starts the expiry sweeper and the config refresher on g.
// Both stop when ctx is done.
func (p *Pipeline) RunBackground(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		p.Sweeper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		p.Refresher.Run(ctx)
		return nil
	})
}

// Close sends the terminal notification, waits for deliveries until ctx
// ends and releases the store.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	if err := p.Engine.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if len(errs) == 0 {
		p.logger.Info().Msg("pipeline stopped")
	}
	return errors.Join(errs...)
}
