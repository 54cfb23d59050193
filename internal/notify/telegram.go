// Package notify delivers contract notifications to managers (Telegram) and customers (email).
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentacar/internal/domain"
	"rentacar/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier posts a short message to every manager chat.
type TelegramNotifier struct {
	bot   domain.TelegramSender
	chats []int64
	loc   *time.Location
}

func NewTelegramNotifier(bot domain.TelegramSender, chats []int64, loc *time.Location) *TelegramNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramNotifier{bot: bot, chats: chats, loc: loc}
}

func (n *TelegramNotifier) NotifyContractSigned(ctx context.Context, p events.ContractEventPayload) error {
	if len(n.chats) == 0 {
		return nil
	}
	text := n.signedMessage(p)

	var errs []error
	for _, chatID := range n.chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (n *TelegramNotifier) signedMessage(p events.ContractEventPayload) string {
	var sb strings.Builder
	sb.WriteString("✍️ Contrato firmado\n\n")
	fmt.Fprintf(&sb, "Nº: %s\n", p.ContractNumber)
	fmt.Fprintf(&sb, "Reserva: #%d\n", p.BookingID)
	if p.CustomerName != "" {
		fmt.Fprintf(&sb, "Cliente: %s\n", p.CustomerName)
	}
	if p.SignedAt != nil {
		fmt.Fprintf(&sb, "Firmado: %s\n", p.SignedAt.In(n.loc).Format("02/01/2006 15:04"))
	}
	fmt.Fprintf(&sb, "Versión: %d", p.Version)
	return sb.String()
}
