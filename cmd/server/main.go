package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/postcard/backend/internal/application/billing"
	campaignapp "github.com/postcard/backend/internal/application/campaign"
	"github.com/postcard/backend/internal/application/dispatch"
	suppressionapp "github.com/postcard/backend/internal/application/suppression"
	"github.com/postcard/backend/internal/bootstrap"
	"github.com/postcard/backend/internal/infrastructure/auth"
	"github.com/postcard/backend/internal/infrastructure/cache"
	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/postcard/backend/internal/infrastructure/logger"
	"github.com/postcard/backend/internal/infrastructure/scheduler"
	"github.com/postcard/backend/internal/infrastructure/taskqueue"
	"github.com/postcard/backend/internal/interfaces/http/handler"
	"github.com/postcard/backend/internal/interfaces/http/middleware"
	"github.com/postcard/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

const version = "1.0.0"

// dispatcher is what the campaign service enqueues sends on
type dispatcher interface {
	Enqueue(ctx context.Context, tenantID, campaignID uuid.UUID) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting postcard backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("amqp_queue", cfg.Queue.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := bootstrap.New(ctx, cfg, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := core.Close(closeCtx); err != nil {
			log.Error("Error releasing resources", zap.Error(err))
		}
	}()
	if err != nil {
		log.Error("Failed to initialize", zap.Error(err))
		return
	}
	log = core.Logger

	// Sends go to the AMQP queue when a separate worker runs them, otherwise
	// to the in-process pool
	var queue dispatcher
	var localQueue *scheduler.DispatchQueue
	if cfg.Queue.Enabled {
		publisher, err := taskqueue.NewPublisher(cfg.Queue, log)
		if err != nil {
			log.Error("Failed to connect to dispatch queue", zap.Error(err))
			return
		}
		defer func() { _ = publisher.Close() }()
		queue = publisher
	} else {
		localQueue, err = scheduler.NewDispatchQueue(
			scheduler.QueueConfigFromSettings(cfg.Dispatch),
			core.Orchestrator,
			scheduler.WithRetryPolicy(dispatch.Retryable),
			scheduler.WithQueueLogger(log),
		)
		if err != nil {
			log.Error("Invalid dispatch queue configuration", zap.Error(err))
			return
		}
		if err := localQueue.Start(ctx); err != nil {
			log.Error("Failed to start dispatch queue", zap.Error(err))
			return
		}
		queue = localQueue
	}

	opts := []campaignapp.Option{
		campaignapp.WithLogger(log),
		campaignapp.WithEventPublisher(core.Events),
		campaignapp.WithTemplateValidator(core.Merger),
	}
	if core.Storage != nil {
		opts = append(opts,
			campaignapp.WithArtworkStore(core.Storage, 0),
			campaignapp.WithProofs(core.Proofer()),
		)
	}
	campaigns := campaignapp.NewService(
		core.Repos.Campaigns, core.Repos.Recipients,
		core.Evaluator, core.Estimator, core.Ledger, queue,
		opts...,
	)
	suppressions := suppressionapp.NewService(core.Repos.DoNotMail, core.Repos.Settings, cfg.Suppression, log)
	accounts := billingapp.NewAccountService(core.Ledger, log)

	runner := scheduler.NewPeriodicRunner(log)
	if err := registerTasks(runner, cfg, core, campaigns); err != nil {
		log.Error("Failed to register periodic tasks", zap.Error(err))
		return
	}
	if err := runner.Start(ctx); err != nil {
		log.Error("Failed to start periodic tasks", zap.Error(err))
		return
	}

	engine, err := newEngine(cfg, core, log, campaigns, suppressions, accounts)
	if err != nil {
		log.Error("Failed to build HTTP server", zap.Error(err))
		return
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		log.Error("Periodic tasks did not stop cleanly", zap.Error(err))
	}
	if localQueue != nil {
		if err := localQueue.Stop(shutdownCtx); err != nil {
			log.Error("Dispatch queue did not stop cleanly", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

// registerTasks adds the release of due scheduled campaigns, the resume of
// stalled sends and, when enabled, vendor status reconciliation
func registerTasks(runner *scheduler.PeriodicRunner, cfg *config.Config, core *bootstrap.Core, campaigns *campaignapp.Service) error {
	tasks := []scheduler.PeriodicTask{
		{
			Name:       "release-scheduled",
			Interval:   cfg.Dispatch.ScheduleCheck,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				n, err := campaigns.ReleaseDue(ctx)
				if n > 0 {
					logger.L(ctx).Info("Released scheduled campaigns", zap.Int("count", n))
				}
				return err
			},
		},
		{
			Name:     "resume-processing",
			Interval: cfg.Dispatch.ClaimTTL,
			Run: func(ctx context.Context) error {
				n, err := campaigns.ResumeProcessing(ctx, cfg.Dispatch.ClaimTTL)
				if n > 0 {
					logger.L(ctx).Info("Resumed stalled campaigns", zap.Int("count", n))
				}
				return err
			},
		},
	}
	if cfg.Reconcile.Enabled {
		tasks = append(tasks, scheduler.PeriodicTask{
			Name:     "reconcile-status",
			Interval: cfg.Reconcile.Interval,
			Run: func(ctx context.Context) error {
				_, err := core.Reconciler.Run(ctx)
				return err
			},
		})
	}
	for _, task := range tasks {
		if err := runner.Register(task); err != nil {
			return err
		}
	}
	return nil
}

func newEngine(
	cfg *config.Config,
	core *bootstrap.Core,
	log *zap.Logger,
	campaigns *campaignapp.Service,
	suppressions *suppressionapp.Service,
	accounts *billingapp.AccountService,
) (*gin.Engine, error) {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, err
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.HTTP.CORSAllowOrigins)),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	authCfg := middleware.AuthConfig{Enabled: cfg.JWT.Enabled, Logger: log}
	if cfg.JWT.Enabled {
		verifier, err := auth.NewVerifier(cfg.JWT)
		if err != nil {
			return nil, err
		}
		authCfg.Verifier = verifier
	} else {
		log.Warn("JWT authentication disabled, tenants are taken from the X-Tenant-ID header")
	}

	checks := map[string]handler.HealthCheck{
		"database": core.DB.Ping,
	}
	if pinger, ok := core.Claims.(*cache.RedisClaimStore); ok {
		checks["redis"] = pinger.Ping
	}
	engine.GET("/health", handler.NewHealthHandler(version, checks).Health)

	importLimiter := middleware.NewRateLimiter(cfg.HTTP.ImportRateLimit, cfg.HTTP.ImportRateWindow)
	r := router.NewRouter(engine, router.WithMiddleware(
		middleware.Auth(authCfg),
		middleware.SpanAttributes(),
		middleware.HTTPMetrics(core.Telemetry.Meter("postcard.http")),
	))
	r.Register(handler.NewCampaignHandler(campaigns, middleware.RateLimitByTenant(importLimiter)).Routes()...)
	r.Register(handler.NewSuppressionHandler(suppressions).Routes())
	r.Register(handler.NewBillingHandler(accounts).Routes())

	for _, route := range r.Setup() {
		log.Debug("Route registered",
			zap.String("group", route.Group),
			zap.String("method", route.Method),
			zap.String("path", route.Path))
	}
	return engine, nil
}
