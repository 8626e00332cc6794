// Package bootstrap builds the components shared by the API server and the
// dispatch worker from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/postcard/backend/internal/application/dispatch"
	"github.com/postcard/backend/internal/application/reconcile"
	suppressionapp "github.com/postcard/backend/internal/application/suppression"
	"github.com/postcard/backend/internal/domain/cost"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/infrastructure/artwork"
	"github.com/postcard/backend/internal/infrastructure/cache"
	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/postcard/backend/internal/infrastructure/event"
	"github.com/postcard/backend/internal/infrastructure/ledger"
	"github.com/postcard/backend/internal/infrastructure/logger"
	"github.com/postcard/backend/internal/infrastructure/mailvendor"
	"github.com/postcard/backend/internal/infrastructure/notification"
	"github.com/postcard/backend/internal/infrastructure/persistence"
	"github.com/postcard/backend/internal/infrastructure/storage"
	"github.com/postcard/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Repositories groups the GORM repositories
type Repositories struct {
	Campaigns   *persistence.GormCampaignRepository
	Recipients  *persistence.GormRecipientRepository
	DoNotMail   *persistence.GormDoNotMailRepository
	Profiles    *persistence.GormProfileRepository
	Settings    *persistence.GormSettingsRepository
	VendorCalls *persistence.GormVendorAPILogRepository
}

// Core holds everything needed to run dispatches and reconciliation
type Core struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *persistence.Database
	Telemetry *telemetry.Providers
	Repos     Repositories
	Ledger    *ledger.GormLedger
	Events    *event.InMemoryEventBus
	Claims    shared.ClaimStore
	Metrics   *telemetry.DispatchMetrics

	Evaluator *suppressionapp.Evaluator
	Estimator *cost.Estimator
	Merger    *artwork.TemplateMerger
	// Storage is nil when object storage is not configured
	Storage  artwork.ObjectStore
	Renderer *artwork.ChromedpRenderer

	Gateway      *mailvendor.Gateway
	Orchestrator *dispatch.Orchestrator
	Reconciler   *reconcile.Reconciler

	closers []func(context.Context) error
}

// NewLogger creates the process logger from the log section
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
}

// New connects to the database and wires the dispatch pipeline. Close must be
// called to release what was opened, also when New fails halfway. Callers
// should log through Core.Logger afterwards, which also feeds the collector
// when log export is on.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Core, error) {
	c := &Core{Config: cfg, Logger: log}

	providers, err := telemetry.NewProviders(ctx, cfg.Telemetry, log)
	if err != nil {
		return c, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	c.Telemetry = providers
	c.closers = append(c.closers, providers.Shutdown)
	log = providers.Bridge(log, logger.ParseLevel(cfg.Log.Level))
	c.Logger = log

	profiler, err := telemetry.NewProfiler(cfg.Profiling, log)
	if err != nil {
		return c, fmt.Errorf("failed to start profiler: %w", err)
	}
	c.closers = append(c.closers, profiler.Stop)
	if profiler.IsEnabled() {
		providers.ProfileSpans()
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return c, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = db
	c.closers = append(c.closers, func(context.Context) error { return db.Close() })
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		return c, err
	}

	c.Repos = Repositories{
		Campaigns:   persistence.NewGormCampaignRepository(db.DB),
		Recipients:  persistence.NewGormRecipientRepository(db.DB),
		DoNotMail:   persistence.NewGormDoNotMailRepository(db.DB),
		Profiles:    persistence.NewGormProfileRepository(db.DB),
		Settings:    persistence.NewGormSettingsRepository(db.DB),
		VendorCalls: persistence.NewGormVendorAPILogRepository(db.DB),
	}
	c.Ledger = ledger.NewGormLedger(db.DB, log)

	c.Events = event.NewInMemoryEventBus(log)
	c.Events.Subscribe(event.NewCampaignAuditHandler(log))

	claims, err := cache.NewClaimStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.Queue.Enabled),
	).CreateStore()
	if err != nil {
		return c, err
	}
	c.Claims = claims
	if closer, ok := claims.(interface{ Close() error }); ok {
		c.closers = append(c.closers, func(context.Context) error { return closer.Close() })
	}

	c.Metrics, err = telemetry.NewDispatchMetrics(providers.Meter("postcard.dispatch"))
	if err != nil {
		return c, fmt.Errorf("failed to create dispatch metrics: %w", err)
	}

	c.Evaluator = suppressionapp.NewEvaluator(c.Repos.Settings, c.Repos.Profiles, c.Repos.DoNotMail, cfg.Suppression)
	c.Estimator, err = cost.NewEstimator(cfg.Pricing.Rates)
	if err != nil {
		return c, fmt.Errorf("invalid pricing configuration: %w", err)
	}

	c.Merger = artwork.NewTemplateMerger()
	if err := c.initArtwork(ctx); err != nil {
		return c, err
	}

	client, err := mailvendor.NewClient(mailvendor.ConfigFromSettings(cfg.Vendor))
	if err != nil {
		return c, fmt.Errorf("invalid vendor configuration: %w", err)
	}
	resolverStore := c.Storage
	if resolverStore == nil {
		resolverStore = storage.NewMemoryObjectStorage("")
	}
	c.Gateway = mailvendor.NewGateway(client, artwork.NewResolver(resolverStore), c.Merger, c.Repos.VendorCalls, log)

	notifier, err := notification.New(cfg.Notification, log)
	if err != nil {
		return c, fmt.Errorf("invalid notification configuration: %w", err)
	}

	c.Orchestrator = dispatch.NewOrchestrator(
		c.Repos.Campaigns, c.Repos.Recipients, c.Gateway, c.Ledger, c.Claims,
		dispatch.ConfigFromSettings(cfg.Dispatch),
		dispatch.WithLogger(log),
		dispatch.WithEventPublisher(c.Events),
		dispatch.WithNotifier(notifier),
		dispatch.WithMetrics(c.Metrics),
	)
	c.Reconciler = reconcile.NewReconciler(
		c.Repos.Campaigns, c.Repos.Recipients, c.Gateway,
		reconcile.ConfigFromSettings(cfg.Reconcile, cfg.Dispatch),
		reconcile.WithLogger(log),
		reconcile.WithEventPublisher(c.Events),
		reconcile.WithMetrics(c.Metrics),
	)
	return c, nil
}

func (c *Core) initArtwork(ctx context.Context) error {
	cfg := c.Config
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3ObjectStorage(&cfg.Storage, storage.WithLogger(c.Logger))
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			c.Logger.Warn("Artwork bucket check failed", zap.String("bucket", s3.GetBucket()), zap.Error(err))
		}
		c.Storage = s3
	}
	if cfg.Renderer.Enabled {
		c.Renderer = artwork.NewChromedpRenderer(artwork.ChromedpConfig{
			RemoteURL: cfg.Renderer.RemoteURL,
			Timeout:   cfg.Renderer.Timeout,
			NoSandbox: true,
			Logger:    c.Logger,
		})
		c.closers = append(c.closers, func(context.Context) error { return c.Renderer.Close() })
	}
	return nil
}

// Proofer returns the proof generator, or nil when storage is not configured
func (c *Core) Proofer() *artwork.Proofer {
	if c.Storage == nil {
		return nil
	}
	var renderer artwork.PDFRenderer
	if c.Renderer != nil {
		renderer = c.Renderer
	}
	return artwork.NewProofer(c.Merger, renderer, c.Storage, c.Logger)
}

// Close releases resources in reverse order of acquisition
func (c *Core) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i](ctx))
	}
	c.closers = nil
	return errors.Join(errs...)
}
