package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentacar/internal/api"
	"rentacar/internal/assets"
	"rentacar/internal/config"
	"rentacar/internal/contract"
	"rentacar/internal/database"
	"rentacar/internal/events"
	"rentacar/internal/export"
	"rentacar/internal/google"
	"rentacar/internal/inspection"
	"rentacar/internal/logging"
	"rentacar/internal/metrics"
	"rentacar/internal/notify"
	"rentacar/internal/repository"
	"rentacar/internal/scheduler"
	"rentacar/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const readinessInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	loc := cfg.Contracts.Location()

	bus := events.NewEventBus()
	bus.OnError(func(e *events.Event, err error) {
		logger.Error().Err(err).Str("event", e.Type).Msg("event handler failed")
	})

	resolver, err := assets.FromConfig(ctx, cfg.Storage, cfg.Contracts.Logo, &logger)
	if err != nil {
		return fmt.Errorf("init assets: %w", err)
	}
	issuer := inspection.NewIssuer(db, cfg.Contracts.PublicBase(), cfg.Contracts.LinkTTL, &logger)

	manager, err := initContracts(cfg, db, resolver, issuer, bus, &logger)
	if err != nil {
		return err
	}
	manager.Subscribe(bus)

	targets := initTargets(ctx, cfg, loc, &logger)
	deliveryWorker := worker.NewDeliveryWorker(db, targets, redisClient, retryPolicy(cfg.Worker), &logger)
	deliveryWorker.SetPollInterval(cfg.Worker.PollInterval)
	deliveryWorker.Subscribe(bus)
	go deliveryWorker.Start(ctx)

	exporter := export.NewRegisterExporter(db, cfg.Exports.Path, loc, &logger)

	sched, err := scheduler.New(cfg.Scheduler, cfg.Backup.Schedule, scheduledJobs(cfg, db, deliveryWorker, targets.Register != nil, &logger), &logger)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	grpcServer, err := api.NewGRPCServer(&cfg.API, db, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	go grpcServer.WatchReadiness(ctx, readinessInterval)

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Contracts:   manager,
		Inspections: inspection.NewRecorder(db, db, bus, &logger),
		Gallery:     inspection.NewGallery(db, db, resolver, &logger),
		Export:      exporter,
		Ready:       db,
		Location:    loc,
	}, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initContracts(
	cfg *config.Config,
	db *database.DB,
	resolver *assets.Resolver,
	issuer *inspection.Issuer,
	bus *events.EventBus,
	logger *zerolog.Logger,
) (*contract.Manager, error) {
	renderer, err := contract.NewRenderer(cfg.Contracts.TemplatePath)
	if err != nil {
		return nil, err
	}

	loc := cfg.Contracts.Location()
	aggregator := contract.NewAggregator(resolver, issuer, contract.AggregatorOptions{
		TaxRate:         cfg.Contracts.TaxRate,
		DefaultLanguage: cfg.Contracts.DefaultLanguage,
		Location:        loc,
	}, logger)

	return contract.NewManager(contract.Deps{
		Bookings:    db,
		Contracts:   db,
		Inspections: db,
		Company:     db,
		Numbers:     contract.NewNumberAllocator(db, loc),
		Aggregator:  aggregator,
		Renderer:    renderer,
		Events:      bus,
	}, contract.Options{
		BaseVersion: cfg.Contracts.BaseVersion,
		MaxAttempts: cfg.Contracts.MaxRegenerateAttempts,
	}, logger), nil
}

// initTargets builds the delivery targets that are configured. Failures disable the target.
func initTargets(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) worker.Targets {
	var targets worker.Targets

	if cfg.Telegram.BotToken != "" && len(cfg.Telegram.Managers) > 0 {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, signed-contract notifications disabled")
		} else {
			botAPI.Debug = cfg.Telegram.Debug
			targets.Telegram = notify.NewTelegramNotifier(botAPI, cfg.Telegram.Managers, loc)
		}
	}

	if cfg.Email.SendGridAPIKey != "" {
		mailer, err := notify.NewSendGridMailer(cfg.Email.SendGridAPIKey, cfg.Email.FromAddress, cfg.Email.FromName)
		if err != nil {
			logger.Warn().Err(err).Msg("sendgrid init failed, customer emails disabled")
		} else {
			targets.Email = mailer
		}
	}

	if register := initRegister(ctx, cfg, loc, logger); register != nil {
		targets.Register = register
	}

	return targets
}

func initRegister(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) *google.RegisterService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.RegisterSpreadsheetID == "" {
		return nil
	}

	register, err := google.NewRegisterService(ctx,
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.RegisterSpreadsheetID,
		cfg.Google.RegisterSheetName,
		loc,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without register")
		return nil
	}
	if err := register.TestConnection(ctx); err != nil {
		event := logger.Warn().Err(err)
		if email, emailErr := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile); emailErr == nil {
			event = event.Str("share_with", email)
		}
		event.Msg("google sheets connection test failed, continuing without register")
		return nil
	}
	if err := register.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("register cache warm-up failed")
	}

	logger.Info().Str("sheet", cfg.Google.RegisterSheetName).Msg("google sheets register connected")
	return register
}

func retryPolicy(cfg config.WorkerConfig) worker.RetryPolicy {
	return worker.RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
		Jitter:        cfg.Jitter,
		TaskRetries:   cfg.TaskRetries,
	}
}

// scheduledJobs enables the backup when configured and the housekeeping jobs when the scheduler is.
func scheduledJobs(cfg *config.Config, db *database.DB, w *worker.DeliveryWorker, hasRegister bool, logger *zerolog.Logger) scheduler.Jobs {
	var jobs scheduler.Jobs
	if cfg.Backup.Enabled {
		jobs.Backup = database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
	}
	if cfg.Scheduler.Enabled {
		jobs.Links = db
		if hasRegister {
			jobs.Register = w
		}
	}
	return jobs
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
