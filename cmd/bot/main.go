package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentacar/internal/bot"
	"rentacar/internal/config"
	"rentacar/internal/contract"
	"rentacar/internal/database"
	"rentacar/internal/domain"
	"rentacar/internal/export"
	"rentacar/internal/google"
	"rentacar/internal/logging"
	"rentacar/internal/repository"
	"rentacar/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if cfg.Telegram.BotToken == "" {
		logger.Error().Msg("telegram.bot_token is not set")
		return os.ErrInvalid
	}
	if len(cfg.Telegram.Managers) == 0 {
		logger.Warn().Msg("telegram.managers is empty, every command will be refused")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, limiter := initRateLimiter(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	loc := cfg.Contracts.Location()
	deps := bot.Deps{
		// Only History is reachable from the bot.
		Contracts: contract.NewManager(contract.Deps{Contracts: db}, contract.Options{}, &logger),
		Export:    export.NewRegisterExporter(db, cfg.Exports.Path, loc, &logger),
		Limiter:   limiter,
	}
	if register := initRegister(ctx, cfg, loc, &logger); register != nil {
		// Resync tasks land in sync_queue; the API process delivers them.
		deps.Resync = worker.NewDeliveryWorker(db, worker.Targets{Register: register}, redisClient, worker.RetryPolicy{}, &logger)
	}

	return startBot(ctx, cfg, deps, loc, &logger)
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
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

// initRateLimiter prefers Redis so replicas share budgets and falls back to memory when it is down.
func initRateLimiter(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.RateLimiter) {
	fallback := repository.NewMemoryRateLimiter()
	if cfg.Redis.Address == "" {
		return nil, fallback
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, rate limits start in memory")
	}
	return redisClient, repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(redisClient), fallback, logger)
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
		logger.Warn().Err(err).Msg("google sheets init failed, /resync disabled")
		return nil
	}
	return register
}

func startBot(ctx context.Context, cfg *config.Config, deps bot.Deps, loc *time.Location, logger *zerolog.Logger) error {
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("create bot api")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	telegramBot := bot.NewBot(bot.NewAPIWrapper(botAPI), cfg.Telegram, deps, loc, logger)

	logger.Info().Msg("bot started")
	telegramBot.Start(ctx)
	telegramBot.Stop()

	logger.Info().Msg("shutdown complete")
	return nil
}
