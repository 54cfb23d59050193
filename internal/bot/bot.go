package bot

import (
	"context"
	"time"

	"rentacar/internal/config"
	"rentacar/internal/domain"
	"rentacar/internal/logging"
	"rentacar/internal/metrics"
	"rentacar/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const updateTimeout = 30 * time.Second

type TelegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
	GetSelf() tgbotapi.User
}

type ContractHistory interface {
	History(ctx context.Context, bookingID int64) (*models.Contract, []models.ContractHistory, error)
}

type RegisterExporter interface {
	SaveFile(ctx context.Context, from, to time.Time) (string, error)
}

type RegisterResyncer interface {
	EnqueueResync(ctx context.Context) error
}

// Deps are the services behind the commands. Export, Resync and Limiter are optional.
type Deps struct {
	Contracts ContractHistory
	Export    RegisterExporter
	Resync    RegisterResyncer
	Limiter   domain.RateLimiter
}

// Bot is the back-office Telegram bot. Only configured managers get answers.
type Bot struct {
	tg       TelegramAPI
	deps     Deps
	cfg      config.TelegramConfig
	managers map[int64]bool
	loc      *time.Location
	logger   *zerolog.Logger
}

func NewBot(tg TelegramAPI, cfg config.TelegramConfig, deps Deps, loc *time.Location, logger *zerolog.Logger) *Bot {
	managers := make(map[int64]bool, len(cfg.Managers))
	for _, id := range cfg.Managers {
		managers[id] = true
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Bot{
		tg:       tg,
		deps:     deps,
		cfg:      cfg,
		managers: managers,
		loc:      loc,
		logger:   logging.Component(logger, "bot"),
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("bot stopping")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates.
func (b *Bot) Stop() {
	if b == nil || b.tg == nil {
		return
	}
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		metrics.ObserveBotUpdate(time.Since(start))
	}()

	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.New().String()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		msg := update.Message
		if msg == nil || msg.From == nil || msg.Chat == nil {
			return
		}

		if !b.allow(updateCtx, msg.From.ID) {
			l.Warn().Int64("user_id", msg.From.ID).Msg("rate limit exceeded")
			b.sendMessage(msg.Chat.ID, msgTooManyRequests)
			return
		}

		if !msg.IsCommand() {
			return
		}
		if !b.isManager(msg.From.ID) {
			metrics.IncBotCommand(msg.Command(), "denied")
			b.sendMessage(msg.Chat.ID, msgRestricted)
			return
		}

		b.handleCommand(updateCtx, msg)
	})
}

func (b *Bot) isManager(userID int64) bool {
	return b.managers[userID]
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}
