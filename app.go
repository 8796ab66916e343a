package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	casdoorsdk "github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/cache"
	"github.com/SAP-F-2025/grading-service/internal/config"
	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/handlers"
	"github.com/SAP-F-2025/grading-service/internal/jobqueue"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
	"github.com/SAP-F-2025/grading-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/grading-service/internal/repositories/memory"
	"github.com/SAP-F-2025/grading-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
	"github.com/SAP-F-2025/grading-service/internal/validator"
	"github.com/SAP-F-2025/grading-service/internal/worker"
	"github.com/SAP-F-2025/grading-service/pkg"
)

// app holds the process-wide collaborators shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	casdoorClient *casdoorsdk.Client
	users         repositories.UserRepository

	db          *gorm.DB
	redisClient *redis.Client
	repoManager repositories.RepositoryManager
	repo        repositories.Repository
	bus         *events.Bus
	spool       *jobqueue.Spool
	services    services.ServiceManager
}

func loadConfig(v *viper.Viper, configFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, utils.NewSlog(cfg.LogFormat, cfg.LogLevel), nil
}

func newApp(ctx context.Context, v *viper.Viper, configFile string) (*app, error) {
	cfg, logger, err := loadConfig(v, configFile)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	if cfg.RedisURL != "" {
		a.redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Failed to initialize Redis, continuing without cache", "error", err)
		}
	}

	switch cfg.Store {
	case "memory":
		logger.Warn("Using in-memory store, data is lost on exit")
		a.repo = memory.NewRepository()
	default:
		a.db, err = pkg.InitDatabase(cfg)
		if err != nil {
			return nil, err
		}
		a.repoManager = postgres.NewRepositoryManager(postgres.RepositoryConfig{
			DB:          a.db,
			RedisClient: a.redisClient,
		})
		if err := a.repoManager.Initialize(); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to initialize repositories: %w", err)
		}
		a.repo = a.repoManager.GetRepository()
	}

	a.bus, err = events.NewBus(events.BusConfig{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.spool = jobqueue.NewSpool(cfg.Grader.ExecuteDir, cfg.Grader.ExecutedDir)
	if err := a.spool.EnsureDirs(); err != nil {
		a.close(ctx)
		return nil, err
	}

	a.casdoorClient = casdoor.NewClient(casdoorConfig(cfg))
	a.users = casdoor.NewUserCasdoor(a.casdoorClient, a.redisClient)
	a.services = services.NewServiceManager(services.Dependencies{
		Repo:      a.repo,
		Users:     a.users,
		Cache:     cache.NewCacheManager(a.redisClient),
		Spool:     a.spool,
		Publisher: a.bus,
		Logger:    logger,
		Validator: validator.New(),
	}, services.ServiceManagerConfig{
		SubmitCooldown:   cfg.Grader.SubmitCooldown,
		SubmitDailyLimit: cfg.Grader.SubmitDailyLimit,
	})
	if err := a.services.Initialize(ctx); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return a, nil
}

func casdoorConfig(cfg *config.Config) casdoor.CasdoorConfig {
	return casdoor.CasdoorConfig{
		Endpoint:         cfg.Casdoor.Endpoint,
		ClientID:         cfg.Casdoor.ClientID,
		ClientSecret:     cfg.Casdoor.ClientSecret,
		Certificate:      cfg.Casdoor.Cert,
		OrganizationName: cfg.Casdoor.Organization,
		ApplicationName:  cfg.Casdoor.Application,
	}
}

func (a *app) newWorker() *worker.Worker {
	return worker.New(a.spool, worker.NewExecRunner(a.cfg.Grader.Interpreter), a.bus, a.logger, worker.Config{
		CaseTimeout:  a.cfg.Grader.CaseTimeout,
		PollInterval: a.cfg.Grader.PollInterval,
	})
}

func (a *app) close(ctx context.Context) {
	if a.services != nil {
		if err := a.services.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to shutdown services", "error", err)
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Error("Failed to close event bus", "error", err)
		}
	}
	if a.repoManager != nil {
		if err := a.repoManager.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to close repositories", "error", err)
		}
	} else if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, v *viper.Viper, configFile string, opts serveOptions) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := newApp(ctx, v, configFile)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	logger := utils.NewSlogLogger(a.logger)
	verifier := handlers.NewCasdoorVerifier(a.casdoorClient, a.users, logger)
	handlerManager := handlers.NewHandlerManager(a.services, logger, verifier)

	if a.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", a.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var w *worker.Worker
	if opts.withWorker {
		w = a.newWorker()
		if err := w.Listen(ctx, a.bus); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Starting server", "port", a.cfg.Port, "environment", a.cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if w != nil {
		g.Go(func() error { return w.Run(gctx) })
	}
	if opts.withCollector {
		g.Go(func() error {
			return services.Listen(gctx, a.services.Collector(), a.bus, a.cfg.Grader.PollInterval, a.logger)
		})
	}

	err = g.Wait()
	a.logger.Info("Server exited")
	return err
}

func runWorker(cmd *cobra.Command, v *viper.Viper, configFile string, once bool) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := newApp(ctx, v, configFile)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	w := a.newWorker()
	if once {
		processed, err := w.RunOnce(ctx)
		a.logger.Info("Worker pass finished", "processed", processed)
		return err
	}
	if err := w.Listen(ctx, a.bus); err != nil {
		return err
	}
	return w.Run(ctx)
}

func runCollect(cmd *cobra.Command, v *viper.Viper, configFile string, once bool) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := newApp(ctx, v, configFile)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if once {
		results, err := a.services.Collector().CollectReady(ctx)
		a.logger.Info("Collection pass finished", "collected", len(results))
		return err
	}
	a.logger.Info("Starting result collector", "poll_interval", a.cfg.Grader.PollInterval)
	return services.Listen(ctx, a.services.Collector(), a.bus, a.cfg.Grader.PollInterval, a.logger)
}

func runMigrate(v *viper.Viper, configFile string, steps int) error {
	cfg, logger, err := loadConfig(v, configFile)
	if err != nil {
		return err
	}
	if cfg.Store != "postgres" {
		return fmt.Errorf("migrations require STORE=postgres, got %q", cfg.Store)
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if steps > 0 {
		return pkg.RollbackDB(db, steps, logger)
	}
	return pkg.MigrateDB(db, logger)
}

func runReclaim(cmd *cobra.Command, v *viper.Viper, configFile string, submissionID uint) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := newApp(ctx, v, configFile)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.services.Submission().Reclaim(ctx, submissionID); err != nil {
		return err
	}
	a.logger.Info("Submission reclaimed", "submission_id", submissionID)
	return nil
}
