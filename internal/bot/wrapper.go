package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// APIWrapper exposes the bot's own user through TelegramAPI.
type APIWrapper struct {
	*tgbotapi.BotAPI
}

func NewAPIWrapper(api *tgbotapi.BotAPI) *APIWrapper {
	return &APIWrapper{BotAPI: api}
}

func (w *APIWrapper) GetSelf() tgbotapi.User {
	return w.Self
}
